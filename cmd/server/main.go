package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pharmapos/backend/internal/billing"
	"pharmapos/backend/internal/config"
	"pharmapos/backend/internal/httpapi"
	"pharmapos/backend/internal/notify"
	"pharmapos/backend/internal/otp"
	"pharmapos/backend/internal/service"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/store/memory"
	pgstore "pharmapos/backend/internal/store/postgres"
	sqlitestore "pharmapos/backend/internal/store/sqlite"
)

const maxBillDigits = 9

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, closers, err := openRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("repository unavailable: %v", err)
	}

	var sessions otp.Store = otp.NewMemoryStore()
	if cfg.RedisAddr != "" {
		redisStore := otp.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisStore.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), keeping otp sessions in memory", err)
			_ = redisStore.Close()
		} else {
			sessions = redisStore
			closers = append(closers, redisStore.Close)
			log.Println("otp sessions: redis")
		}
	} else {
		log.Println("otp sessions: in-memory")
	}

	mailer := buildMailer(cfg)
	loc := cfg.Location()

	svc := service.New(repo, service.Options{
		Bills: billing.NewAllocator(billing.Config{
			Prefix:      cfg.BillPrefix,
			Digits:      cfg.BillDigits,
			MaxAttempts: cfg.BillMaxAttempts,
		}, nil),
		Receipts:        notify.NewReceiptNotifier(mailer, loc),
		AutoSendReceipt: cfg.AutoSendReceipt,
		Location:        loc,
	})
	codes := otp.NewManager(sessions, time.Duration(cfg.OTPTTLSeconds)*time.Second)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo, codes, mailer)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("pharmacy POS backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

// openRepository picks postgres, then sqlite, then the seeded memory store.
// A configured database that cannot be reached is fatal rather than silently
// replaced by memory.
func openRepository(ctx context.Context, cfg config.Config) (store.Repository, []func() error, error) {
	closers := make([]func() error, 0, 2)

	switch {
	case cfg.DatabaseURL != "":
		if err := pgstore.Migrate(cfg.DatabaseURL); err != nil {
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		closers = append(closers, pg.Close)
		if err := store.SeedIfEmpty(ctx, pg, time.Now().UTC()); err != nil {
			_ = pg.Close()
			return nil, nil, fmt.Errorf("seed postgres: %w", err)
		}
		log.Println("repository: postgres")
		return pg, closers, nil
	case cfg.SQLitePath != "":
		db, err := sqlitestore.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		closers = append(closers, db.Close)
		if err := store.SeedIfEmpty(ctx, db, time.Now().UTC()); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("seed sqlite: %w", err)
		}
		log.Printf("repository: sqlite (%s)", cfg.SQLitePath)
		return db, closers, nil
	default:
		log.Println("repository: in-memory")
		return memory.NewSeeded(), closers, nil
	}
}

func buildMailer(cfg config.Config) notify.Mailer {
	if cfg.SMTPHost == "" {
		log.Println("mail: SMTP_HOST not set, logging messages instead of sending")
		return notify.LogMailer{}
	}
	log.Printf("mail: smtp %s:%d", cfg.SMTPHost, cfg.SMTPPort)
	return notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	})
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.BillDigits > maxBillDigits {
		return fmt.Errorf("BILL_DIGITS must be at most %d", maxBillDigits)
	}
	if cfg.SMTPHost != "" && cfg.SMTPUsername != "" && cfg.SMTPPassword == "" {
		return fmt.Errorf("SMTP_PASSWORD must be set when SMTP_USERNAME is set")
	}
	return nil
}
