package handlers

import (
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"time"

	"projectdash/auth"
	"projectdash/config"
	"projectdash/db"
	"projectdash/i18n"
	"projectdash/models"
	"projectdash/notify"
	"projectdash/tracker"

	"github.com/dchest/captcha"
	"github.com/gorilla/csrf"
)

// reminders is set by RegisterHandlers; main owns the scheduler lifecycle.
var reminders *notify.Scheduler

func RegisterHandlers(mux *http.ServeMux, sched *notify.Scheduler) {
	reminders = sched

	mux.HandleFunc("/", IndexHandler)
	mux.HandleFunc("/login", LoginHandler)
	mux.HandleFunc("/register", RegisterHandler)
	mux.HandleFunc("/logout", LogoutHandler)
	mux.HandleFunc("/dashboard", DashboardHandler)
	mux.HandleFunc("/projects", ProjectsHandler)
	mux.HandleFunc("/projects/add", AddProjectHandler)
	mux.HandleFunc("/projects/update", UpdateProjectHandler)
	mux.HandleFunc("/team", TeamHandler)
	mux.HandleFunc("/team/add", AddTeamMemberHandler)
	mux.HandleFunc("/issues", IssuesHandler)
	mux.HandleFunc("/issues/token", SaveTrackerTokenHandler)
	mux.HandleFunc("/reminders", RemindersHandler)
	mux.HandleFunc("/change-password", ChangePasswordHandler)
	mux.HandleFunc("/admin", AdminHandler)
	mux.HandleFunc("/admin/rehash", RehashHandler)

	mux.Handle("/captcha/", captcha.Server(captcha.StdWidth, captcha.StdHeight))

	// Mobile API endpoints (JSON)
	mux.HandleFunc("/api/v1/login", APILoginHandler)
	mux.HandleFunc("/api/v1/projects", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			APIListProjectsHandler(w, r)
		case http.MethodPost:
			APIAddProjectHandler(w, r)
		case http.MethodPut:
			APIUpdateProjectHandler(w, r)
		default:
			sendJSONResponse(w, http.StatusMethodNotAllowed, APIResponse{Status: "error", Message: "Method not allowed"})
		}
	})
}

func IndexHandler(w http.ResponseWriter, r *http.Request) {
	if auth.GetEmail(r) != "" {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func LoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		lang := i18n.DetectLanguage(r)
		ip := getClientIP(r)
		if !loginLimiter.Allow(ip) {
			http.Error(w, i18n.T(lang, "TooManyAttempts"), http.StatusTooManyRequests)
			return
		}

		email := r.FormValue("email")
		password := r.FormValue("password")

		ok, err := db.Authenticate(email, password)
		if err != nil {
			// Corrupt stored credential, not a wrong password. Surface it.
			log.Printf("Authentication error for %s: %v", email, err)
			http.Error(w, "Account data error, contact the administrator", http.StatusInternalServerError)
			return
		}
		if !ok {
			loginLimiter.RecordFailure(ip)
			w.Header().Set("HX-Trigger", "loginError")
			// HTMX doesn't process HX-Trigger on 401/403 by default.
			// We return 200 OK for HTMX requests to ensure the trigger works.
			if r.Header.Get("HX-Request") == "true" {
				w.WriteHeader(http.StatusOK)
			} else {
				w.WriteHeader(http.StatusUnauthorized)
			}
			return
		}

		loginLimiter.Reset(ip)
		role, _ := db.GetUserRole(email)
		auth.SetSession(w, r, email, role)
		w.Header().Set("HX-Redirect", "/dashboard")
		return
	}
	renderTemplate(w, r, "login.html", nil)
}

func RegisterHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		lang := i18n.DetectLanguage(r)
		ip := getClientIP(r)
		if !registerLimiter.Allow(ip) {
			http.Error(w, i18n.T(lang, "TooManyAttempts"), http.StatusTooManyRequests)
			return
		}

		if !captcha.VerifyString(r.FormValue("captcha_id"), r.FormValue("captcha_solution")) {
			registerLimiter.RecordFailure(ip)
			w.Header().Set("HX-Retarget", "#error-message")
			w.Write([]byte(i18n.T(lang, "CaptchaFailed")))
			return
		}

		email := r.FormValue("email")
		password := r.FormValue("password")
		if email == "" || password == "" {
			w.Header().Set("HX-Retarget", "#error-message")
			w.Write([]byte(i18n.T(lang, "MissingFields")))
			return
		}

		if err := db.RegisterUser(email, password, "member"); err != nil {
			if errors.Is(err, db.ErrEmailExists) {
				w.Header().Set("HX-Retarget", "#error-message")
				w.Write([]byte(i18n.T(lang, "EmailAlreadyExists")))
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		auth.SetSession(w, r, email, "member")
		w.Header().Set("HX-Redirect", "/dashboard")
		return
	}
	renderTemplate(w, r, "register.html", map[string]any{"CaptchaID": captcha.New()})
}

func LogoutHandler(w http.ResponseWriter, r *http.Request) {
	auth.ClearSession(w, r)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func DashboardHandler(w http.ResponseWriter, r *http.Request) {
	if auth.GetEmail(r) == "" {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	projects, err := db.GetProjects()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	statusCounts := map[string]int{}
	for _, p := range projects {
		statusCounts[p.Status]++
	}

	renderTemplate(w, r, "dashboard.html", map[string]any{
		"Projects":     projects,
		"StatusCounts": statusCounts,
		"Email":        auth.GetEmail(r),
		"IsAdmin":      auth.IsAdmin(r),
	})
}

func ProjectsHandler(w http.ResponseWriter, r *http.Request) {
	if auth.GetEmail(r) == "" {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	projects, err := db.GetProjects()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	renderTemplate(w, r, "projects.html", map[string]any{
		"Projects": projects,
		"Statuses": []string{"Pending", "In Progress", "Completed"},
		"IsAdmin":  auth.IsAdmin(r),
	})
}

func AddProjectHandler(w http.ResponseWriter, r *http.Request) {
	if auth.GetEmail(r) == "" || r.Method != http.MethodPost {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	name := r.FormValue("name")
	description := r.FormValue("description")
	deadline := r.FormValue("deadline")
	if name == "" {
		lang := i18n.DetectLanguage(r)
		w.Header().Set("HX-Retarget", "#project-error")
		w.Write([]byte(i18n.T(lang, "MissingFields")))
		return
	}

	if _, err := db.AddProject(name, description, deadline); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("HX-Redirect", "/projects")
}

func UpdateProjectHandler(w http.ResponseWriter, r *http.Request) {
	if auth.GetEmail(r) == "" || r.Method != http.MethodPost {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := strconv.Atoi(r.FormValue("id"))
	if err != nil {
		http.Error(w, "Invalid project id", http.StatusBadRequest)
		return
	}
	progress, err := strconv.Atoi(r.FormValue("progress"))
	if err != nil {
		http.Error(w, "Invalid progress value", http.StatusBadRequest)
		return
	}

	err = db.UpdateProject(id,
		r.FormValue("name"),
		r.FormValue("description"),
		r.FormValue("deadline"),
		progress,
		r.FormValue("status"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("HX-Redirect", "/projects")
}

func TeamHandler(w http.ResponseWriter, r *http.Request) {
	if auth.GetEmail(r) == "" {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	members, err := db.GetTeamMembers()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	renderTemplate(w, r, "team.html", map[string]any{
		"Members": members,
		"IsAdmin": auth.IsAdmin(r),
	})
}

func AddTeamMemberHandler(w http.ResponseWriter, r *http.Request) {
	if auth.GetEmail(r) == "" || r.Method != http.MethodPost {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	lang := i18n.DetectLanguage(r)
	name := r.FormValue("name")
	email := r.FormValue("email")
	if name == "" || email == "" {
		w.Header().Set("HX-Retarget", "#team-error")
		w.Write([]byte(i18n.T(lang, "MissingFields")))
		return
	}

	_, err := db.AddTeamMember(name, email, r.FormValue("role"))
	if errors.Is(err, db.ErrEmailExists) {
		w.Header().Set("HX-Retarget", "#team-error")
		w.Write([]byte(i18n.T(lang, "MemberAlreadyExists")))
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("HX-Redirect", "/team")
}

func IssuesHandler(w http.ResponseWriter, r *http.Request) {
	email := auth.GetEmail(r)
	if email == "" {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	if r.Method == http.MethodPost {
		lang := i18n.DetectLanguage(r)

		token := r.FormValue("token")
		if token == "" {
			stored, err := auth.GetTrackerToken(email)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			token = stored
		}
		if token == "" {
			w.Header().Set("HX-Retarget", "#issue-error")
			w.Write([]byte(i18n.T(lang, "NoTrackerToken")))
			return
		}

		client := tracker.New(token)
		err := client.LogIssue(r.Context(),
			r.FormValue("repo"),
			r.FormValue("title"),
			r.FormValue("description"),
			r.FormValue("priority"))
		if err != nil {
			w.Header().Set("HX-Retarget", "#issue-error")
			w.Write([]byte(err.Error()))
			return
		}

		w.Header().Set("HX-Retarget", "#issue-success")
		w.Write([]byte(i18n.T(lang, "IssueLogged")))
		return
	}

	projects, err := db.GetProjects()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	stored, _ := auth.GetTrackerToken(email)

	renderTemplate(w, r, "issues.html", map[string]any{
		"Projects":   projects,
		"HasToken":   stored != "",
		"Priorities": []string{"Low", "Medium", "High"},
		"IsAdmin":    auth.IsAdmin(r),
	})
}

func SaveTrackerTokenHandler(w http.ResponseWriter, r *http.Request) {
	email := auth.GetEmail(r)
	if email == "" || r.Method != http.MethodPost {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	lang := i18n.DetectLanguage(r)
	token := r.FormValue("token")
	if token == "" {
		w.Header().Set("HX-Retarget", "#issue-error")
		w.Write([]byte(i18n.T(lang, "MissingFields")))
		return
	}

	if err := auth.SaveTrackerToken(email, token); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("HX-Retarget", "#issue-success")
	w.Write([]byte(i18n.T(lang, "TokenSaved")))
}

func RemindersHandler(w http.ResponseWriter, r *http.Request) {
	if auth.GetEmail(r) == "" {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	if r.Method == http.MethodPost {
		lang := i18n.DetectLanguage(r)

		recipient := r.FormValue("recipient")
		message := r.FormValue("message")
		when, err := time.ParseInLocation("2006-01-02 15:04", r.FormValue("date")+" "+r.FormValue("time"), time.Local)
		if err != nil || recipient == "" || message == "" {
			w.Header().Set("HX-Retarget", "#reminder-error")
			w.Write([]byte(i18n.T(lang, "MissingFields")))
			return
		}

		if err := reminders.ScheduleReminder(recipient, message, when); err != nil {
			w.Header().Set("HX-Retarget", "#reminder-error")
			w.Write([]byte(i18n.T(lang, "InvalidReminderTime")))
			return
		}

		w.Header().Set("HX-Retarget", "#reminder-success")
		w.Write([]byte(i18n.T(lang, "ReminderScheduled")))
		return
	}

	projects, err := db.GetProjects()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	renderTemplate(w, r, "reminders.html", map[string]any{
		"Projects": projects,
		"IsAdmin":  auth.IsAdmin(r),
	})
}

// ChangePasswordHandler replaces a stored credential. Admin-only: the store
// layer does no old-password check, so the gate lives here.
func ChangePasswordHandler(w http.ResponseWriter, r *http.Request) {
	if !auth.IsAdmin(r) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	lang := i18n.DetectLanguage(r)
	newPassword := r.FormValue("new_password")
	if newPassword == "" {
		w.Header().Set("HX-Retarget", "#password-error")
		w.Write([]byte(i18n.T(lang, "PasswordCannotBeEmpty")))
		return
	}

	email := r.FormValue("email")
	if email == "" {
		email = auth.GetEmail(r)
	}

	if err := db.ChangePassword(email, newPassword); err != nil {
		w.Header().Set("HX-Retarget", "#password-error")
		w.Write([]byte(i18n.T(lang, "ErrorUpdatingPassword")))
		return
	}

	w.Header().Set("HX-Trigger", "passwordUpdated")
	w.Write([]byte(i18n.T(lang, "PasswordUpdated")))
}

func AdminHandler(w http.ResponseWriter, r *http.Request) {
	if !auth.IsAdmin(r) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	rows, err := db.DB.Query("SELECT id, email, role FROM users")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Role); err != nil {
			continue
		}
		users = append(users, u)
	}

	renderTemplate(w, r, "admin.html", map[string]any{"Users": users, "IsAdmin": true})
}

// RehashHandler runs the credential maintenance sweep: any stored password
// that is not a valid hash (legacy plaintext imports) gets hashed in place.
func RehashHandler(w http.ResponseWriter, r *http.Request) {
	if !auth.IsAdmin(r) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	repaired, err := db.RehashAll()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	log.Printf("Credential rehash sweep repaired %d records", repaired)
	w.Header().Set("HX-Retarget", "#rehash-result")
	fmt.Fprintf(w, "Repaired %d records", repaired)
}

func renderTemplate(w http.ResponseWriter, r *http.Request, name string, data any) {
	lang := i18n.DetectLanguage(r)

	funcMap := template.FuncMap{
		"T": func(key string) string {
			return i18n.T(lang, key)
		},
	}

	tmpl, err := template.New(name).Funcs(funcMap).ParseFiles("templates/layout.html", "templates/"+name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Prepare CSRF field
	csrfField := csrf.TemplateField(r)

	// If data is a map, ensure AppName and Lang are there
	if m, ok := data.(map[string]any); ok {
		if _, exists := m["AppName"]; !exists {
			m["AppName"] = config.AppConfig.AppName
		}
		m["Lang"] = lang
		m["csrfField"] = csrfField
	} else if data == nil {
		data = map[string]any{
			"AppName":   config.AppConfig.AppName,
			"Lang":      lang,
			"csrfField": csrfField,
		}
	}

	tmpl.ExecuteTemplate(w, "layout", data)
}
