package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	AppName    string `json:"app_name"`
	ListenIP   string `json:"listen_ip"`
	ListenPort int    `json:"listen_port"`
	SessionKey string `json:"session_key"`
	DBPath     string `json:"db_path"`
	AdminEmail string `json:"admin_email"`
	SMTPHost   string `json:"smtp_host"`
	SMTPPort   int    `json:"smtp_port"`
}

var AppConfig Config

func LoadConfig(path string) error {
	// Mail credentials and overrides may live in a .env file next to the binary.
	// A missing .env is fine; the variables can come from the real environment.
	godotenv.Load()

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&AppConfig); err != nil {
		return err
	}

	// Override with environment variable if present
	if envKey := os.Getenv("PROJECTDASH_SESSION_KEY"); envKey != "" {
		AppConfig.SessionKey = envKey
	}
	if envAdmin := os.Getenv("PROJECTDASH_ADMIN_EMAIL"); envAdmin != "" {
		AppConfig.AdminEmail = envAdmin
	}

	if AppConfig.DBPath == "" {
		AppConfig.DBPath = "./projectdash.db"
	}
	if AppConfig.AdminEmail == "" {
		AppConfig.AdminEmail = "admin@example.com"
	}
	if AppConfig.SMTPHost == "" {
		AppConfig.SMTPHost = "smtp.gmail.com"
	}
	if AppConfig.SMTPPort == 0 {
		AppConfig.SMTPPort = 587
	}

	// If no key is provided or it's the placeholder, generate a secure random one
	if AppConfig.SessionKey == "" || AppConfig.SessionKey == "CHANGE_ME_IN_PRODUCTION" {
		log.Println("WARNING: No session key configured. Generating a random key. Sessions will be invalidated on restart.")
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err != nil {
			return err
		}
		AppConfig.SessionKey = hex.EncodeToString(randomKey)
	}

	return nil
}
