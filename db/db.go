package db

import (
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

var DB *sql.DB

// ErrEmailExists is returned when an insert violates an email uniqueness
// constraint (users or team). An expected failure, not a bug.
var ErrEmailExists = errors.New("email already exists")

// ErrCorruptCredential means a stored password value is not a structurally
// valid bcrypt hash. This is data corruption, never a wrong password.
var ErrCorruptCredential = errors.New("stored credential is not a valid hash")

// DummyHash is a valid bcrypt hash of a random string, compared against when a
// login targets an unknown email so both paths cost the same.
const DummyHash = "$2a$14$wJzYJqYHBCfhpeRWRTzONOx8OBVUMKGDSYuvDfoFBen452hG15rGe"

func InitDB(dataSourceName, adminEmail string) {
	var err error
	DB, err = sql.Open("sqlite3", dataSourceName)
	if err != nil {
		log.Fatal(err)
	}

	createTables := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL,
		role TEXT DEFAULT 'member'
	);

	CREATE TABLE IF NOT EXISTS projects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT,
		deadline DATE,
		progress INTEGER DEFAULT 0,
		status TEXT DEFAULT 'Pending'
	);

	CREATE TABLE IF NOT EXISTS team (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT UNIQUE NOT NULL,
		role TEXT DEFAULT 'member',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS api_tokens (
		token TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		role TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS tracker_tokens (
		email TEXT PRIMARY KEY,
		encrypted_token TEXT NOT NULL
	);
	`

	_, err = DB.Exec(createTables)
	if err != nil {
		log.Fatalf("Error creating tables: %v", err)
	}

	if err := migrateProjectColumns(); err != nil {
		log.Fatalf("Error migrating projects table: %v", err)
	}

	if err := seedAdmin(adminEmail); err != nil {
		log.Fatalf("Error seeding administrator: %v", err)
	}
}

// migrateProjectColumns adds the progress/status columns to a projects table
// created by an older schema. Additive only.
func migrateProjectColumns() error {
	rows, err := DB.Query("PRAGMA table_info(projects)")
	if err != nil {
		return err
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return err
		}
		existing[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if !existing["progress"] {
		if _, err := DB.Exec("ALTER TABLE projects ADD COLUMN progress INTEGER DEFAULT 0"); err != nil {
			return err
		}
	}
	if !existing["status"] {
		if _, err := DB.Exec("ALTER TABLE projects ADD COLUMN status TEXT DEFAULT 'Pending'"); err != nil {
			return err
		}
	}
	return nil
}

// seedAdmin creates the reserved administrator account on first run. The
// password comes from ADMIN_PASSWORD when set; otherwise a random one is
// generated and printed exactly once so there is no well-known default.
func seedAdmin(adminEmail string) error {
	var count int
	if err := DB.QueryRow("SELECT COUNT(*) FROM users WHERE email = ?", adminEmail).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	password := os.Getenv("ADMIN_PASSWORD")
	generated := false
	if password == "" {
		b := make([]byte, 12)
		if _, err := rand.Read(b); err != nil {
			return err
		}
		password = base64.RawURLEncoding.EncodeToString(b)
		generated = true
	}

	hashed, err := HashPassword(password)
	if err != nil {
		return err
	}
	if _, err := DB.Exec("INSERT INTO users (email, password, role) VALUES (?, ?, 'admin')", adminEmail, hashed); err != nil {
		return err
	}

	if generated {
		log.Printf("Administrator account created: %s (one-time password: %s) - change it after first login", adminEmail, password)
	} else {
		log.Printf("Administrator account created: %s", adminEmail)
	}
	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), 14)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// RegisterUser inserts a new credential with a fresh salted hash. A duplicate
// email reports ErrEmailExists.
func RegisterUser(email, password, role string) error {
	if role == "" {
		role = "member"
	}
	hashed, err := HashPassword(password)
	if err != nil {
		return err
	}
	_, err = DB.Exec("INSERT INTO users (email, password, role) VALUES (?, ?, ?)", email, hashed, role)
	if isUniqueViolation(err) {
		return ErrEmailExists
	}
	return err
}

// Authenticate verifies a password against the stored hash. Unknown email and
// wrong password both return (false, nil). A stored value that is not a valid
// bcrypt hash returns ErrCorruptCredential: that row needs RehashAll, and
// treating it as a failed login would hide the corruption.
func Authenticate(email, password string) (bool, error) {
	var stored string
	err := DB.QueryRow("SELECT password FROM users WHERE email = ?", email).Scan(&stored)
	if err == sql.ErrNoRows {
		// Equalize timing with the real path.
		bcrypt.CompareHashAndPassword([]byte(DummyHash), []byte(password))
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if _, err := bcrypt.Cost([]byte(stored)); err != nil {
		return false, fmt.Errorf("%w: %s", ErrCorruptCredential, email)
	}

	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil, nil
}

// GetUserRole returns the stored role, or false when no such user exists.
func GetUserRole(email string) (string, bool) {
	var role string
	err := DB.QueryRow("SELECT role FROM users WHERE email = ?", email).Scan(&role)
	if err != nil {
		return "", false
	}
	return role, true
}

// ChangePassword replaces the stored hash unconditionally. Whoever calls this
// is responsible for having checked authorization.
func ChangePassword(email, newPassword string) error {
	hashed, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	res, err := DB.Exec("UPDATE users SET password = ? WHERE email = ?", hashed, email)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RehashAll is a one-time maintenance sweep: any password value that is not a
// structurally valid bcrypt hash (legacy plaintext imports) is hashed in
// place. Running it again is a no-op. Returns the number of repaired rows.
func RehashAll() (int, error) {
	rows, err := DB.Query("SELECT id, password FROM users")
	if err != nil {
		return 0, err
	}

	type pending struct {
		id     int
		stored string
	}
	var broken []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.stored); err != nil {
			rows.Close()
			return 0, err
		}
		if _, err := bcrypt.Cost([]byte(p.stored)); err != nil {
			broken = append(broken, p)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	for _, p := range broken {
		hashed, err := HashPassword(p.stored)
		if err != nil {
			return 0, err
		}
		if _, err := DB.Exec("UPDATE users SET password = ? WHERE id = ?", hashed, p.id); err != nil {
			return 0, err
		}
	}
	return len(broken), nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
