package main

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"projectdash/auth"
	"projectdash/config"
	"projectdash/db"
	"projectdash/handlers"
	"projectdash/i18n"
	"projectdash/notify"

	"github.com/gorilla/csrf"
)

func main() {
	if err := config.LoadConfig("config.json"); err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	if err := i18n.LoadTranslations("i18n"); err != nil {
		log.Fatalf("Error loading translations: %v", err)
	}

	auth.InitStore()

	db.InitDB(config.AppConfig.DBPath, config.AppConfig.AdminEmail)
	defer db.DB.Close()

	mailer := notify.NewMailer(config.AppConfig.SMTPHost, config.AppConfig.SMTPPort)
	reminders, err := notify.NewScheduler(mailer)
	if err != nil {
		log.Fatalf("Error creating reminder scheduler: %v", err)
	}
	reminders.Start()
	defer reminders.Stop()

	mux := http.NewServeMux()

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir("static"))))

	// Register application handlers
	handlers.RegisterHandlers(mux, reminders)

	addr := fmt.Sprintf("%s:%d", config.AppConfig.ListenIP, config.AppConfig.ListenPort)
	log.Printf("Server starting on %s (%s)", addr, config.AppConfig.AppName)

	// CSRF Protection
	// We need a 32-byte key. Using session key for now, assuming it's suitable.
	// In production, this should be a separate key.
	csrfMiddleware := csrf.Protect(
		[]byte(config.AppConfig.SessionKey),
		csrf.Secure(false), // Set to true in production with HTTPS
		csrf.Path("/"),
	)
	protected := csrfMiddleware(mux)

	// The JSON API authenticates with X-API-Token, not cookies, so it is
	// exempt from CSRF checks.
	root := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			mux.ServeHTTP(w, r)
			return
		}
		protected.ServeHTTP(w, r)
	})

	if err := http.ListenAndServe(addr, handlers.SecurityHeadersMiddleware(root)); err != nil {
		log.Fatal(err)
	}
}
