package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
	*unit
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, unit: &unit{q: db}}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// WithinTx runs fn at READ COMMITTED. Rows read through the unit of work
// are locked with SELECT ... FOR UPDATE until commit or rollback.
func (s *Store) WithinTx(ctx context.Context, fn func(uow store.UnitOfWork) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&unit{q: tx, locking: true}); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveSale touches two tables, so outside a unit of work it gets its own.
func (s *Store) SaveSale(ctx context.Context, sale *domain.Sale) error {
	return s.WithinTx(ctx, func(uow store.UnitOfWork) error {
		return uow.SaveSale(ctx, sale)
	})
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, company, email, phone, address, notes, created_at
		FROM suppliers
		ORDER BY lower(name), id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 32)
	for rows.Next() {
		var sup domain.Supplier
		if err := rows.Scan(&sup.ID, &sup.Name, &sup.Company, &sup.Email, &sup.Phone, &sup.Address, &sup.Notes, &sup.CreatedAt); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, sup)
	}
	return suppliers, rows.Err()
}

func (s *Store) FindSupplierByID(ctx context.Context, id string) (*domain.Supplier, error) {
	return s.findSupplier(ctx, `WHERE id = $1`, id)
}

func (s *Store) FindSupplierByEmail(ctx context.Context, email string) (*domain.Supplier, error) {
	return s.findSupplier(ctx, `WHERE email <> '' AND lower(email) = lower($1)`, email)
}

func (s *Store) findSupplier(ctx context.Context, where string, arg string) (*domain.Supplier, error) {
	var sup domain.Supplier
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, company, email, phone, address, notes, created_at
		FROM suppliers `+where, arg).
		Scan(&sup.ID, &sup.Name, &sup.Company, &sup.Email, &sup.Phone, &sup.Address, &sup.Notes, &sup.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sup, nil
}

func (s *Store) SaveSupplier(ctx context.Context, supplier domain.Supplier) error {
	if supplier.ID == "" || supplier.Name == "" {
		return store.ErrInvalidRequest
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, company, email, phone, address, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, company = EXCLUDED.company, email = EXCLUDED.email,
			phone = EXCLUDED.phone, address = EXCLUDED.address, notes = EXCLUDED.notes
	`, supplier.ID, supplier.Name, supplier.Company, supplier.Email, supplier.Phone, supplier.Address, supplier.Notes, supplier.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) DeleteSupplier(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM suppliers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email == "" || user.PasswordHash == "" {
		return store.ErrInvalidRequest
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (email, name, phone, address, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, email, user.Name, user.Phone, user.Address, user.PasswordHash, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	var u domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT email, name, phone, address, password_hash, role, active, created_at
		FROM users
		WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(email))).
		Scan(&u.Email, &u.Name, &u.Phone, &u.Address, &u.PasswordHash, &u.Role, &u.Active, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT email, name, phone, address, password_hash, role, active, created_at
		FROM users
		ORDER BY email
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Email, &u.Name, &u.Phone, &u.Address, &u.PasswordHash, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// translate maps constraint failures onto store sentinels.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		if pgErr.ConstraintName == "uq_sales_bill_number" {
			return store.ErrDuplicateBillNumber
		}
		return store.ErrConflict
	case "23503":
		return store.ErrNotFound
	case "23514":
		return store.ErrInsufficientStock
	}
	return err
}
