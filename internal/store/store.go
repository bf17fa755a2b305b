package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pharmapos/backend/internal/domain"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrAllocationExhausted = errors.New("bill number space exhausted")
	ErrDuplicateBillNumber = errors.New("duplicate bill number")
	ErrConflict            = errors.New("conflict")
)

// InsufficientStockError names the medicine and what is left of it.
type InsufficientStockError struct {
	MedicineID   string
	MedicineName string
	Available    int
	Requested    int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d", e.MedicineName, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

type Medicines interface {
	// FindMedicineByID locks the row when called inside WithinTx.
	FindMedicineByID(ctx context.Context, id string) (*domain.Medicine, error)
	SaveMedicine(ctx context.Context, medicine domain.Medicine) error
	ListMedicines(ctx context.Context) ([]domain.Medicine, error)
}

type Customers interface {
	FindCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	FindCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error)
	SaveCustomer(ctx context.Context, customer domain.Customer) error
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
}

type Sales interface {
	// SaveSale upserts the sale header and replaces its item set.
	SaveSale(ctx context.Context, sale *domain.Sale) error
	// FindSaleByID locks the sale row when called inside WithinTx.
	FindSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context) ([]*domain.Sale, error)
	// ListSalesBetween returns sales with from <= sale_date < to.
	ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]*domain.Sale, error)
	ExistsByBillNumber(ctx context.Context, bill string) (bool, error)
	CountSales(ctx context.Context) (int, error)
	DeleteSale(ctx context.Context, id string) error
}

// UnitOfWork is the set of stores a sale operation touches. Everything done
// through one UnitOfWork handed out by WithinTx commits or rolls back together.
type UnitOfWork interface {
	Medicines
	Customers
	Sales
}

type Suppliers interface {
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	FindSupplierByID(ctx context.Context, id string) (*domain.Supplier, error)
	FindSupplierByEmail(ctx context.Context, email string) (*domain.Supplier, error)
	SaveSupplier(ctx context.Context, supplier domain.Supplier) error
	DeleteSupplier(ctx context.Context, id string) error
}

type Users interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	FindUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
}

type Repository interface {
	UnitOfWork
	Suppliers
	Users

	// WithinTx runs fn in one transaction. A nil return commits, anything
	// else rolls back and is returned unchanged.
	WithinTx(ctx context.Context, fn func(uow UnitOfWork) error) error
}
