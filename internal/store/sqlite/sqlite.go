package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

// Store keeps a single connection open. SQLite allows one writer, and a
// single connection also keeps a ":memory:" database alive.
type Store struct {
	db *sqlx.DB
	*unit
}

func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, unit: &unit{q: db}}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// WithinTx holds the only connection for the whole of fn, so units of work
// never interleave.
func (s *Store) WithinTx(ctx context.Context, fn func(uow store.UnitOfWork) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&unit{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) SaveSale(ctx context.Context, sale *domain.Sale) error {
	return s.WithinTx(ctx, func(uow store.UnitOfWork) error {
		return uow.SaveSale(ctx, sale)
	})
}

type supplierRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	Company   string `db:"company"`
	Email     string `db:"email"`
	Phone     string `db:"phone"`
	Address   string `db:"address"`
	Notes     string `db:"notes"`
	CreatedAt int64  `db:"created_at"`
}

func (r supplierRow) toDomain() domain.Supplier {
	return domain.Supplier{
		ID:        r.ID,
		Name:      r.Name,
		Company:   r.Company,
		Email:     r.Email,
		Phone:     r.Phone,
		Address:   r.Address,
		Notes:     r.Notes,
		CreatedAt: fromMillis(r.CreatedAt),
	}
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	var rows []supplierRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM suppliers ORDER BY LOWER(name), id`); err != nil {
		return nil, err
	}
	suppliers := make([]domain.Supplier, 0, len(rows))
	for _, r := range rows {
		suppliers = append(suppliers, r.toDomain())
	}
	return suppliers, nil
}

func (s *Store) FindSupplierByID(ctx context.Context, id string) (*domain.Supplier, error) {
	return s.findSupplier(ctx, `SELECT * FROM suppliers WHERE id = ?`, id)
}

func (s *Store) FindSupplierByEmail(ctx context.Context, email string) (*domain.Supplier, error) {
	return s.findSupplier(ctx, `SELECT * FROM suppliers WHERE email <> '' AND LOWER(email) = LOWER(?)`, email)
}

func (s *Store) findSupplier(ctx context.Context, query string, arg string) (*domain.Supplier, error) {
	var row supplierRow
	if err := s.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sup := row.toDomain()
	return &sup, nil
}

func (s *Store) SaveSupplier(ctx context.Context, sup domain.Supplier) error {
	if sup.ID == "" || sup.Name == "" {
		return store.ErrInvalidRequest
	}
	if sup.CreatedAt.IsZero() {
		sup.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, company, email, phone, address, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  name = excluded.name, company = excluded.company, email = excluded.email,
		  phone = excluded.phone, address = excluded.address, notes = excluded.notes
	`, sup.ID, sup.Name, sup.Company, sup.Email, sup.Phone, sup.Address, sup.Notes, toMillis(sup.CreatedAt))
	return translate(err)
}

func (s *Store) DeleteSupplier(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM suppliers WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

type userRow struct {
	Email        string `db:"email"`
	Name         string `db:"name"`
	Phone        string `db:"phone"`
	Address      string `db:"address"`
	PasswordHash string `db:"password_hash"`
	Role         string `db:"role"`
	Active       bool   `db:"active"`
	CreatedAt    int64  `db:"created_at"`
}

func (r userRow) toDomain() domain.UserAccount {
	return domain.UserAccount{
		Email:        r.Email,
		Name:         r.Name,
		Phone:        r.Phone,
		Address:      r.Address,
		PasswordHash: r.PasswordHash,
		Role:         r.Role,
		Active:       r.Active,
		CreatedAt:    fromMillis(r.CreatedAt),
	}
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, email, user.Name, user.Phone, user.Address, user.PasswordHash, user.Role, user.Active, toMillis(user.CreatedAt))
	return translate(err)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM users WHERE email = ?`, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user := row.toDomain()
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM users ORDER BY email`); err != nil {
		return nil, err
	}
	users := make([]domain.UserAccount, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toDomain())
	}
	return users, nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
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

// translate maps constraint failures onto store sentinels. nil passes through.
func translate(err error) error {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return err
	}
	msg := sqliteErr.Error()
	switch {
	case strings.Contains(msg, "sales.bill_number"):
		return store.ErrDuplicateBillNumber
	case strings.Contains(msg, "UNIQUE"):
		return store.ErrConflict
	case strings.Contains(msg, "FOREIGN KEY"):
		return store.ErrNotFound
	case strings.Contains(msg, "CHECK"):
		return store.ErrInsufficientStock
	}
	return err
}
