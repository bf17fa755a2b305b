package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	SQLitePath            string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	AuthSecret            string
	AccessTokenTTLMinutes int
	OTPTTLSeconds         int
	Timezone              string
	BillPrefix            string
	BillDigits            int
	BillMaxAttempts       int
	SMTPHost              string
	SMTPPort              int
	SMTPUsername          string
	SMTPPassword          string
	MailFrom              string
	AutoSendReceipt       bool
}

// Load reads the environment. A .env file in the working directory fills in
// variables that are not already set.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] WARN: could not read .env: %v", err)
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SQLitePath:            strings.TrimSpace(os.Getenv("SQLITE_PATH")),
		RedisAddr:             strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               getInt("REDIS_DB", 0, 0),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: getInt("ACCESS_TOKEN_TTL_MINUTES", 480, 1),
		OTPTTLSeconds:         getInt("OTP_TTL_SECONDS", 300, 30),
		Timezone:              strings.TrimSpace(os.Getenv("TIMEZONE")),
		BillPrefix:            getEnv("BILL_PREFIX", "B"),
		BillDigits:            getInt("BILL_DIGITS", 3, 1),
		BillMaxAttempts:       getInt("BILL_MAX_ATTEMPTS", 30, 1),
		SMTPHost:              strings.TrimSpace(os.Getenv("SMTP_HOST")),
		SMTPPort:              getInt("SMTP_PORT", 587, 1),
		SMTPUsername:          os.Getenv("SMTP_USERNAME"),
		SMTPPassword:          os.Getenv("SMTP_PASSWORD"),
		MailFrom:              getEnv("MAIL_FROM", "no-reply@pharmacy.local"),
		AutoSendReceipt:       getBool("AUTO_SEND_RECEIPT", false),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location resolves TIMEZONE. Empty or unknown names fall back to the host
// zone.
func (c Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("[config] WARN: unknown TIMEZONE %q, using local time: %v", c.Timezone, err)
		return time.Local
	}
	return loc
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getInt(key string, fallback int, min int) int {
	val, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || val < min {
		return fallback
	}
	return val
}

func getBool(key string, fallback bool) bool {
	val, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return val
}
