package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"projectdash/auth"
	"projectdash/config"
	"projectdash/db"
	"projectdash/i18n"
	"projectdash/notify"
)

func TestMain(m *testing.M) {
	// Setup
	dbPath := "./test_handlers.db"
	db.InitDB(dbPath, "admin@example.com")
	config.AppConfig.SessionKey = "test-secret-key-for-handlers-test"
	config.AppConfig.AppName = "ProjectDashTest"
	auth.InitStore()
	i18n.LoadTranslations("../i18n")

	sched, err := notify.NewScheduler(notify.NewMailer("localhost", 2525))
	if err != nil {
		panic(err)
	}
	mux := http.NewServeMux()
	RegisterHandlers(mux, sched)

	// Run tests
	code := m.Run()

	// Teardown
	db.DB.Close()
	os.Remove(dbPath)

	os.Exit(code)
}

func postForm(handler http.HandlerFunc, path string, form url.Values, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func sessionCookies(t *testing.T, email, role string) []*http.Cookie {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)
	auth.SetSession(w, r, email, role)
	return w.Result().Cookies()
}

func TestLoginFlow(t *testing.T) {
	if err := db.RegisterUser("login@test.com", "secret123", ""); err != nil {
		t.Fatal(err)
	}

	// Wrong password
	w := postForm(LoginHandler, "/login", url.Values{
		"email":    {"login@test.com"},
		"password": {"wrong"},
	}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for wrong password, got %d", w.Code)
	}
	if w.Header().Get("HX-Trigger") != "loginError" {
		t.Error("Expected loginError trigger for failed login")
	}

	// Correct password
	w = postForm(LoginHandler, "/login", url.Values{
		"email":    {"login@test.com"},
		"password": {"secret123"},
	}, nil)
	if w.Header().Get("HX-Redirect") != "/dashboard" {
		t.Errorf("Expected HX-Redirect to /dashboard, got %q", w.Header().Get("HX-Redirect"))
	}
	if len(w.Result().Cookies()) == 0 {
		t.Error("Successful login did not set a session cookie")
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	w := postForm(LoginHandler, "/login", url.Values{
		"email":    {"nobody@test.com"},
		"password": {"whatever"},
	}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for unknown email, got %d", w.Code)
	}
}

func TestRegisterBadCaptcha(t *testing.T) {
	w := postForm(RegisterHandler, "/register", url.Values{
		"email":            {"captcha@test.com"},
		"password":         {"secret123"},
		"captcha_id":       {"bogus"},
		"captcha_solution": {"000000"},
	}, nil)

	if w.Header().Get("HX-Retarget") != "#error-message" {
		t.Error("Expected error retarget on failed captcha")
	}

	var count int
	db.DB.QueryRow("SELECT COUNT(*) FROM users WHERE email = 'captcha@test.com'").Scan(&count)
	if count != 0 {
		t.Errorf("User created despite failed captcha, found %d rows", count)
	}
}

func TestChangePasswordRequiresAdmin(t *testing.T) {
	if err := db.RegisterUser("member@test.com", "memberpw", ""); err != nil {
		t.Fatal(err)
	}

	// Anonymous
	w := postForm(ChangePasswordHandler, "/change-password", url.Values{
		"new_password": {"newpw"},
	}, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for anonymous change-password, got %d", w.Code)
	}

	// Member session
	w = postForm(ChangePasswordHandler, "/change-password", url.Values{
		"new_password": {"newpw"},
	}, sessionCookies(t, "member@test.com", "member"))
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for member change-password, got %d", w.Code)
	}

	// Admin session changing another account
	w = postForm(ChangePasswordHandler, "/change-password", url.Values{
		"email":        {"member@test.com"},
		"new_password": {"rotatedpw"},
	}, sessionCookies(t, "admin@example.com", "admin"))
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for admin change-password, got %d: %s", w.Code, w.Body.String())
	}

	if ok, _ := db.Authenticate("member@test.com", "rotatedpw"); !ok {
		t.Error("Password was not changed by the admin action")
	}
	if ok, _ := db.Authenticate("member@test.com", "memberpw"); ok {
		t.Error("Old password still authenticates")
	}
}

func TestAdminPageRequiresAdmin(t *testing.T) {
	req := httptest.NewRequest("GET", "/admin", nil)
	for _, c := range sessionCookies(t, "member@test.com", "member") {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	AdminHandler(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for member on /admin, got %d", w.Code)
	}
}

func TestAddProjectRequiresLogin(t *testing.T) {
	w := postForm(AddProjectHandler, "/projects/add", url.Values{"name": {"P1"}}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for anonymous add, got %d", w.Code)
	}
}

func TestAddTeamMemberDuplicate(t *testing.T) {
	cookies := sessionCookies(t, "member@test.com", "member")

	w := postForm(AddTeamMemberHandler, "/team/add", url.Values{
		"name":  {"Bob"},
		"email": {"bob@x.com"},
	}, cookies)
	if w.Header().Get("HX-Redirect") != "/team" {
		t.Errorf("Expected redirect after add, got body %q", w.Body.String())
	}

	w = postForm(AddTeamMemberHandler, "/team/add", url.Values{
		"name":  {"Bobby"},
		"email": {"bob@x.com"},
	}, cookies)
	if w.Header().Get("HX-Retarget") != "#team-error" {
		t.Error("Expected error retarget for duplicate team email")
	}
}

func TestRehashRequiresAdmin(t *testing.T) {
	w := postForm(RehashHandler, "/admin/rehash", url.Values{}, sessionCookies(t, "member@test.com", "member"))
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for member rehash, got %d", w.Code)
	}

	// Plant a legacy plaintext credential, then run the sweep as admin
	if _, err := db.DB.Exec("INSERT INTO users (email, password) VALUES ('plain@test.com', 'plainpw')"); err != nil {
		t.Fatal(err)
	}

	w = postForm(RehashHandler, "/admin/rehash", url.Values{}, sessionCookies(t, "admin@example.com", "admin"))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for admin rehash, got %d", w.Code)
	}

	if ok, err := db.Authenticate("plain@test.com", "plainpw"); err != nil || !ok {
		t.Errorf("Legacy credential not repaired by sweep: ok=%v err=%v", ok, err)
	}
}

func TestScheduleReminderRejectsPastTime(t *testing.T) {
	w := postForm(RemindersHandler, "/reminders", url.Values{
		"recipient": {"a@b.com"},
		"message":   {"ship it"},
		"date":      {"2001-01-01"},
		"time":      {"09:00"},
	}, sessionCookies(t, "member@test.com", "member"))

	if w.Header().Get("HX-Retarget") != "#reminder-error" {
		t.Error("Expected error retarget for past reminder time")
	}
}
