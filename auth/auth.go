package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"fmt"
	"net/http"

	"projectdash/config"
	"projectdash/crypto"
	"projectdash/db"

	"github.com/gorilla/sessions"
)

var Store *sessions.CookieStore

func InitStore() {
	// Derive two 32-byte keys from the session key to ensure secure encryption
	// Auth key for signing (HMAC)
	authKey := sha256.Sum256([]byte(config.AppConfig.SessionKey + "auth"))
	// Encryption key for content encryption (AES)
	encKey := sha256.Sum256([]byte(config.AppConfig.SessionKey + "encryption"))

	Store = sessions.NewCookieStore(authKey[:], encKey[:])

	Store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 days
		HttpOnly: true,
		Secure:   config.AppConfig.ListenPort != 8080, // Default to true unless dev port
		SameSite: http.SameSiteLaxMode,
	}
}

const SessionName = "projectdash-session"

// GetEmail returns the authenticated identity, or "" for an anonymous session.
func GetEmail(r *http.Request) string {
	session, _ := Store.Get(r, SessionName)
	if email, ok := session.Values["email"].(string); ok {
		return email
	}
	return ""
}

func GetRole(r *http.Request) string {
	session, _ := Store.Get(r, SessionName)
	if role, ok := session.Values["role"].(string); ok {
		return role
	}
	return ""
}

// IsAdmin gates on the stored role attribute, not on the reserved admin email.
func IsAdmin(r *http.Request) bool {
	return GetRole(r) == "admin"
}

func SetSession(w http.ResponseWriter, r *http.Request, email, role string) {
	session, _ := Store.Get(r, SessionName)
	session.Values["email"] = email
	session.Values["role"] = role
	session.Save(r, w)
}

func ClearSession(w http.ResponseWriter, r *http.Request) {
	session, _ := Store.Get(r, SessionName)
	session.Options.MaxAge = -1
	session.Save(r, w)
}

// Token-based Auth for API (Persistent)
type APISession struct {
	Email string
	Role  string
}

func CreateAPIToken(email, role string) string {
	token := generateRandomToken(32)

	_, err := db.DB.Exec("INSERT INTO api_tokens (token, email, role) VALUES (?, ?, ?)", token, email, role)
	if err != nil {
		fmt.Printf("Error creating API token in DB: %v\n", err)
		return ""
	}

	return token
}

func GetAPISession(token string) (APISession, bool) {
	var sess APISession
	err := db.DB.QueryRow("SELECT email, role FROM api_tokens WHERE token = ?", token).
		Scan(&sess.Email, &sess.Role)
	if err != nil {
		return APISession{}, false
	}
	return sess, true
}

// trackerKey derives the server-side key protecting stored tracker tokens.
// The session key doubles as the key material; the fixed salt only separates
// this use from the cookie keys.
func trackerKey() []byte {
	return crypto.DeriveKey(config.AppConfig.SessionKey, []byte("tracker-token-v1"))
}

// SaveTrackerToken stores an issue-tracker access token encrypted at rest so
// the issue form does not need it retyped on every visit.
func SaveTrackerToken(email, token string) error {
	encrypted, err := crypto.Encrypt(token, trackerKey())
	if err != nil {
		return err
	}
	_, err = db.DB.Exec(`INSERT INTO tracker_tokens (email, encrypted_token) VALUES (?, ?)
		ON CONFLICT(email) DO UPDATE SET encrypted_token = excluded.encrypted_token`, email, encrypted)
	return err
}

// GetTrackerToken returns the decrypted token, or "" when none is stored.
func GetTrackerToken(email string) (string, error) {
	var encrypted string
	err := db.DB.QueryRow("SELECT encrypted_token FROM tracker_tokens WHERE email = ?", email).Scan(&encrypted)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return crypto.Decrypt(encrypted, trackerKey())
}

func generateRandomToken(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// If we can't generate random numbers, the system is in a critical state.
		// Panic is appropriate here as we cannot securely continue.
		panic(fmt.Sprintf("critical security error: failed to generate random token: %v", err))
	}
	return base64.URLEncoding.EncodeToString(b)
}
