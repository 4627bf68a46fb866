package auth

import (
	"net/http/httptest"
	"os"
	"testing"

	"projectdash/config"
	"projectdash/db"
)

func TestMain(m *testing.M) {
	// Setup
	dbPath := "./test_auth.db"
	db.InitDB(dbPath, "admin@example.com")
	config.AppConfig.SessionKey = "test-secret-key-12345678901234567890123456789012"
	InitStore()

	// Run tests
	code := m.Run()

	// Teardown
	db.DB.Close()
	os.Remove(dbPath)

	os.Exit(code)
}

func TestSessionManagement(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)

	email := "user@example.com"
	role := "member"

	// Set session
	SetSession(w, r, email, role)

	// Since SetSession modifies the response (cookies), we need to pass them back in a new request
	cookies := w.Result().Cookies()
	r2 := httptest.NewRequest("GET", "/", nil)
	for _, c := range cookies {
		r2.AddCookie(c)
	}

	if GetEmail(r2) != email {
		t.Errorf("Expected email %s, got %s", email, GetEmail(r2))
	}
	if GetRole(r2) != role {
		t.Errorf("Expected role %s, got %s", role, GetRole(r2))
	}
	if IsAdmin(r2) {
		t.Error("IsAdmin returned true for member role")
	}
}

func TestAdminRoleGate(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)

	SetSession(w, r, "root@example.com", "admin")

	r2 := httptest.NewRequest("GET", "/", nil)
	for _, c := range w.Result().Cookies() {
		r2.AddCookie(c)
	}

	if !IsAdmin(r2) {
		t.Error("IsAdmin returned false for admin role")
	}
}

func TestAnonymousSession(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)

	if GetEmail(r) != "" {
		t.Error("Anonymous request has a session email")
	}
	if IsAdmin(r) {
		t.Error("Anonymous request passes the admin gate")
	}
}

func TestClearSession(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)
	SetSession(w, r, "user@example.com", "member")

	r2 := httptest.NewRequest("GET", "/", nil)
	for _, c := range w.Result().Cookies() {
		r2.AddCookie(c)
	}

	w2 := httptest.NewRecorder()
	ClearSession(w2, r2)

	cleared := w2.Result().Cookies()
	if len(cleared) == 0 {
		t.Fatal("ClearSession did not set a cookie")
	}
	if cleared[0].MaxAge >= 0 {
		t.Error("ClearSession cookie does not expire the session")
	}
}

func TestAPITokenPersistence(t *testing.T) {
	email := "mobile@example.com"
	role := "member"

	token := CreateAPIToken(email, role)
	if token == "" {
		t.Fatal("Failed to create API token")
	}

	sess, ok := GetAPISession(token)
	if !ok {
		t.Error("Failed to retrieve API session by token")
	}

	if sess.Email != email {
		t.Errorf("Expected email %s, got %s", email, sess.Email)
	}
	if sess.Role != role {
		t.Errorf("Expected role %s, got %s", role, sess.Role)
	}

	// Test non-existent token
	_, ok = GetAPISession("invalid-token")
	if ok {
		t.Error("GetAPISession succeeded for invalid token")
	}
}

func TestTrackerTokenRoundTrip(t *testing.T) {
	email := "dev@example.com"

	// No stored token yet
	token, err := GetTrackerToken(email)
	if err != nil {
		t.Fatalf("GetTrackerToken failed: %v", err)
	}
	if token != "" {
		t.Errorf("Expected no stored token, got %q", token)
	}

	if err := SaveTrackerToken(email, "ghp_secret123"); err != nil {
		t.Fatalf("SaveTrackerToken failed: %v", err)
	}

	// Stored value must be encrypted, not the raw token
	var stored string
	if err := db.DB.QueryRow("SELECT encrypted_token FROM tracker_tokens WHERE email = ?", email).Scan(&stored); err != nil {
		t.Fatal(err)
	}
	if stored == "ghp_secret123" {
		t.Error("Tracker token stored in plaintext")
	}

	token, err = GetTrackerToken(email)
	if err != nil {
		t.Fatalf("GetTrackerToken failed: %v", err)
	}
	if token != "ghp_secret123" {
		t.Errorf("Expected decrypted token, got %q", token)
	}

	// Saving again replaces the stored value
	if err := SaveTrackerToken(email, "ghp_other456"); err != nil {
		t.Fatal(err)
	}
	token, _ = GetTrackerToken(email)
	if token != "ghp_other456" {
		t.Errorf("Expected replaced token, got %q", token)
	}
}

func TestGenerateRandomToken(t *testing.T) {
	t1 := generateRandomToken(32)
	t2 := generateRandomToken(32)

	if t1 == t2 {
		t.Error("generateRandomToken produced identical tokens")
	}
}
