package memory

import (
	"context"
	"log"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

// state holds the committed rows of everything a unit of work can touch.
// Store.mu guards it. Stored values are never mutated in place; commit
// replaces them.
type state struct {
	medicines map[string]domain.Medicine
	customers map[string]domain.Customer
	sales     map[string]*domain.Sale
	bills     map[string]string
}

func newState() *state {
	return &state{
		medicines: make(map[string]domain.Medicine),
		customers: make(map[string]domain.Customer),
		sales:     make(map[string]*domain.Sale),
		bills:     make(map[string]string),
	}
}

type Store struct {
	mu        sync.RWMutex
	data      *state
	rows      *rowLocks
	suppliers map[string]domain.Supplier
	users     map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		data:      newState(),
		rows:      newRowLocks(),
		suppliers: make(map[string]domain.Supplier),
		users:     make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store holding the demo catalog and owner account.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	for _, m := range store.SeedMedicines(now) {
		s.data.medicines[m.ID] = m
	}
	users, err := store.SeedUsers(now)
	if err != nil {
		log.Fatalf("[memory-store] failed to seed users: %v", err)
	}
	for _, u := range users {
		s.users[userKey(u.Email)] = u
	}
	return s
}

// WithinTx stages fn's writes and applies them only when fn returns nil.
// Rows read for update or written inside fn stay locked until the unit
// ends, so units touching different rows run side by side.
func (s *Store) WithinTx(ctx context.Context, fn func(uow store.UnitOfWork) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t := newTx(s, true)
	defer t.release()

	if err := fn(t); err != nil {
		return err
	}
	return s.commit(t)
}

// commit re-checks bill uniqueness against rows committed since the unit
// staged its sales, then applies the overlay.
func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[string]string, len(t.sales))
	for id, sale := range t.sales {
		if sale == nil {
			continue
		}
		bill := sale.BillNumber()
		if other, dup := staged[bill]; dup && other != id {
			return store.ErrDuplicateBillNumber
		}
		staged[bill] = id
		if owner, ok := s.data.bills[bill]; ok && owner != id {
			if replaced, touched := t.sales[owner]; !touched || replaced != nil {
				return store.ErrDuplicateBillNumber
			}
		}
	}

	maps.Copy(s.data.medicines, t.medicines)
	maps.Copy(s.data.customers, t.customers)
	for id := range t.sales {
		if prev, ok := s.data.sales[id]; ok {
			delete(s.data.bills, prev.BillNumber())
		}
	}
	for id, sale := range t.sales {
		if sale == nil {
			delete(s.data.sales, id)
			continue
		}
		s.data.sales[id] = sale
		s.data.bills[sale.BillNumber()] = id
	}
	return nil
}

// read returns a unit that sees committed rows only and takes no row locks.
func (s *Store) read() *tx {
	return newTx(s, false)
}

func (s *Store) FindMedicineByID(ctx context.Context, id string) (*domain.Medicine, error) {
	return s.read().FindMedicineByID(ctx, id)
}

func (s *Store) SaveMedicine(ctx context.Context, medicine domain.Medicine) error {
	return s.WithinTx(ctx, func(uow store.UnitOfWork) error {
		return uow.SaveMedicine(ctx, medicine)
	})
}

func (s *Store) ListMedicines(ctx context.Context) ([]domain.Medicine, error) {
	return s.read().ListMedicines(ctx)
}

func (s *Store) FindCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	return s.read().FindCustomerByID(ctx, id)
}

func (s *Store) FindCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	return s.read().FindCustomerByPhone(ctx, phone)
}

func (s *Store) SaveCustomer(ctx context.Context, customer domain.Customer) error {
	return s.WithinTx(ctx, func(uow store.UnitOfWork) error {
		return uow.SaveCustomer(ctx, customer)
	})
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.read().ListCustomers(ctx)
}

func (s *Store) SaveSale(ctx context.Context, sale *domain.Sale) error {
	return s.WithinTx(ctx, func(uow store.UnitOfWork) error {
		return uow.SaveSale(ctx, sale)
	})
}

func (s *Store) FindSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	return s.read().FindSaleByID(ctx, id)
}

func (s *Store) ListSales(ctx context.Context) ([]*domain.Sale, error) {
	return s.read().ListSales(ctx)
}

func (s *Store) ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]*domain.Sale, error) {
	return s.read().ListSalesBetween(ctx, from, to)
}

func (s *Store) ExistsByBillNumber(ctx context.Context, bill string) (bool, error) {
	return s.read().ExistsByBillNumber(ctx, bill)
}

func (s *Store) CountSales(ctx context.Context) (int, error) {
	return s.read().CountSales(ctx)
}

func (s *Store) DeleteSale(ctx context.Context, id string) error {
	return s.WithinTx(ctx, func(uow store.UnitOfWork) error {
		return uow.DeleteSale(ctx, id)
	})
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliers))
	for _, sup := range s.suppliers {
		suppliers = append(suppliers, sup)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return suppliers, nil
}

func (s *Store) FindSupplierByID(_ context.Context, id string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sup, ok := s.suppliers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sup, nil
}

func (s *Store) FindSupplierByEmail(_ context.Context, email string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sup := range s.suppliers {
		if sup.Email != "" && strings.EqualFold(sup.Email, email) {
			found := sup
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) SaveSupplier(_ context.Context, supplier domain.Supplier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if supplier.ID == "" || supplier.Name == "" {
		return store.ErrInvalidRequest
	}
	if supplier.Email != "" {
		for id, other := range s.suppliers {
			if id != supplier.ID && strings.EqualFold(other.Email, supplier.Email) {
				return store.ErrConflict
			}
		}
	}
	s.suppliers[supplier.ID] = supplier
	return nil
}

func (s *Store) DeleteSupplier(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.suppliers[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.suppliers, id)
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := userKey(user.Email)
	if key == "" || user.PasswordHash == "" {
		return store.ErrInvalidRequest
	}
	if _, exists := s.users[key]; exists {
		return store.ErrConflict
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[key] = user
	return nil
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userKey(email)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Email, b.Email)
	})
	return users, nil
}

func sortSalesNewestFirst(sales []*domain.Sale) {
	slices.SortFunc(sales, func(a, b *domain.Sale) int {
		if c := b.SaleDate.Compare(a.SaleDate); c != 0 {
			return c
		}
		return strings.Compare(a.BillNumber(), b.BillNumber())
	})
}

func cloneMedicine(src domain.Medicine) domain.Medicine {
	dup := src
	if src.ExpiryDate != nil {
		exp := *src.ExpiryDate
		dup.ExpiryDate = &exp
	}
	return dup
}

func userKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
