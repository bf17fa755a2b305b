package memory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

// rowLocks hands out one exclusive lock per row key. Entries are dropped
// once nobody holds or waits for them.
type rowLocks struct {
	mu   sync.Mutex
	rows map[string]*rowLock
}

type rowLock struct {
	ch   chan struct{}
	refs int
}

func newRowLocks() *rowLocks {
	return &rowLocks{rows: make(map[string]*rowLock)}
}

func (l *rowLocks) acquire(ctx context.Context, key string) error {
	l.mu.Lock()
	rl, ok := l.rows[key]
	if !ok {
		rl = &rowLock{ch: make(chan struct{}, 1)}
		l.rows[key] = rl
	}
	rl.refs++
	l.mu.Unlock()

	select {
	case rl.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.drop(key, false)
		return ctx.Err()
	}
}

func (l *rowLocks) drop(key string, held bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rl := l.rows[key]
	if held {
		<-rl.ch
	}
	rl.refs--
	if rl.refs == 0 {
		delete(l.rows, key)
	}
}

// tx implements store.UnitOfWork. Writes land in the overlay maps and reads
// fall back to the committed state. A nil entry in sales marks a deletion.
type tx struct {
	s       *Store
	locking bool
	held    []string

	medicines map[string]domain.Medicine
	customers map[string]domain.Customer
	sales     map[string]*domain.Sale
}

func newTx(s *Store, locking bool) *tx {
	return &tx{
		s:         s,
		locking:   locking,
		medicines: make(map[string]domain.Medicine),
		customers: make(map[string]domain.Customer),
		sales:     make(map[string]*domain.Sale),
	}
}

func (t *tx) lock(ctx context.Context, key string) error {
	if !t.locking || slices.Contains(t.held, key) {
		return nil
	}
	if err := t.s.rows.acquire(ctx, key); err != nil {
		return err
	}
	t.held = append(t.held, key)
	return nil
}

func (t *tx) release() {
	for _, key := range t.held {
		t.s.rows.drop(key, true)
	}
	t.held = nil
}

func (t *tx) medicine(id string) (domain.Medicine, bool) {
	if m, ok := t.medicines[id]; ok {
		return m, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	m, ok := t.s.data.medicines[id]
	return m, ok
}

func (t *tx) customer(id string) (domain.Customer, bool) {
	if c, ok := t.customers[id]; ok {
		return c, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	c, ok := t.s.data.customers[id]
	return c, ok
}

func (t *tx) sale(id string) (*domain.Sale, bool) {
	if sale, ok := t.sales[id]; ok {
		return sale, sale != nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	sale, ok := t.s.data.sales[id]
	return sale, ok
}

func (t *tx) allMedicines() map[string]domain.Medicine {
	t.s.mu.RLock()
	merged := maps.Clone(t.s.data.medicines)
	t.s.mu.RUnlock()
	maps.Copy(merged, t.medicines)
	return merged
}

func (t *tx) allCustomers() map[string]domain.Customer {
	t.s.mu.RLock()
	merged := maps.Clone(t.s.data.customers)
	t.s.mu.RUnlock()
	maps.Copy(merged, t.customers)
	return merged
}

func (t *tx) allSales() map[string]*domain.Sale {
	t.s.mu.RLock()
	merged := maps.Clone(t.s.data.sales)
	t.s.mu.RUnlock()
	for id, sale := range t.sales {
		if sale == nil {
			delete(merged, id)
			continue
		}
		merged[id] = sale
	}
	return merged
}

// billOwner reports which sale, staged or committed, holds bill.
func (t *tx) billOwner(bill string) (string, bool) {
	for id, sale := range t.sales {
		if sale != nil && sale.BillNumber() == bill {
			return id, true
		}
	}
	t.s.mu.RLock()
	owner, ok := t.s.data.bills[bill]
	t.s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if _, touched := t.sales[owner]; touched {
		return "", false
	}
	return owner, true
}

func (t *tx) FindMedicineByID(ctx context.Context, id string) (*domain.Medicine, error) {
	if err := t.lock(ctx, "medicine:"+id); err != nil {
		return nil, err
	}
	m, ok := t.medicine(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	found := cloneMedicine(m)
	return &found, nil
}

func (t *tx) SaveMedicine(ctx context.Context, medicine domain.Medicine) error {
	if medicine.ID == "" {
		return store.ErrInvalidRequest
	}
	if medicine.StockQuantity < 0 {
		return store.ErrInsufficientStock
	}
	if err := t.lock(ctx, "medicine:"+medicine.ID); err != nil {
		return err
	}
	t.medicines[medicine.ID] = cloneMedicine(medicine)
	return nil
}

func (t *tx) ListMedicines(_ context.Context) ([]domain.Medicine, error) {
	all := t.allMedicines()
	medicines := make([]domain.Medicine, 0, len(all))
	for _, m := range all {
		medicines = append(medicines, cloneMedicine(m))
	}
	slices.SortFunc(medicines, func(a, b domain.Medicine) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return medicines, nil
}

func (t *tx) FindCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	c, ok := t.customer(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (t *tx) FindCustomerByPhone(_ context.Context, phone string) (*domain.Customer, error) {
	if phone == "" {
		return nil, store.ErrNotFound
	}
	var found *domain.Customer
	for _, c := range t.allCustomers() {
		if c.Phone != phone {
			continue
		}
		// Oldest record wins when the soft key is shared.
		if found == nil || c.CreatedAt.Before(found.CreatedAt) {
			match := c
			found = &match
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return found, nil
}

func (t *tx) SaveCustomer(ctx context.Context, customer domain.Customer) error {
	if customer.ID == "" {
		return store.ErrInvalidRequest
	}
	if err := t.lock(ctx, "customer:"+customer.ID); err != nil {
		return err
	}
	t.customers[customer.ID] = customer
	return nil
}

func (t *tx) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	all := t.allCustomers()
	customers := make([]domain.Customer, 0, len(all))
	for _, c := range all {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return customers, nil
}

func (t *tx) SaveSale(ctx context.Context, sale *domain.Sale) error {
	if sale == nil || sale.ID == "" || sale.BillNumber() == "" {
		return store.ErrInvalidRequest
	}
	if err := t.lock(ctx, "sale:"+sale.ID); err != nil {
		return err
	}
	if _, ok := t.customer(sale.CustomerID); !ok {
		return store.ErrNotFound
	}
	if owner, ok := t.billOwner(sale.BillNumber()); ok && owner != sale.ID {
		return store.ErrDuplicateBillNumber
	}
	for _, item := range sale.Items() {
		if _, ok := t.medicine(item.MedicineID); !ok {
			return store.ErrNotFound
		}
	}
	t.sales[sale.ID] = sale.Clone()
	return nil
}

func (t *tx) FindSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	if err := t.lock(ctx, "sale:"+id); err != nil {
		return nil, err
	}
	sale, ok := t.sale(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	return t.attachCustomer(sale), nil
}

func (t *tx) ListSales(_ context.Context) ([]*domain.Sale, error) {
	all := t.allSales()
	sales := make([]*domain.Sale, 0, len(all))
	for _, sale := range all {
		sales = append(sales, t.attachCustomer(sale))
	}
	sortSalesNewestFirst(sales)
	return sales, nil
}

func (t *tx) ListSalesBetween(_ context.Context, from time.Time, to time.Time) ([]*domain.Sale, error) {
	sales := make([]*domain.Sale, 0)
	for _, sale := range t.allSales() {
		if sale.SaleDate.Before(from) || !sale.SaleDate.Before(to) {
			continue
		}
		sales = append(sales, t.attachCustomer(sale))
	}
	sortSalesNewestFirst(sales)
	return sales, nil
}

func (t *tx) ExistsByBillNumber(_ context.Context, bill string) (bool, error) {
	_, ok := t.billOwner(bill)
	return ok, nil
}

func (t *tx) CountSales(_ context.Context) (int, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	n := len(t.s.data.sales)
	for id, sale := range t.sales {
		_, committed := t.s.data.sales[id]
		switch {
		case sale == nil && committed:
			n--
		case sale != nil && !committed:
			n++
		}
	}
	return n, nil
}

func (t *tx) DeleteSale(ctx context.Context, id string) error {
	if err := t.lock(ctx, "sale:"+id); err != nil {
		return err
	}
	if _, ok := t.sale(id); !ok {
		return store.ErrNotFound
	}
	t.sales[id] = nil
	return nil
}

func (t *tx) attachCustomer(sale *domain.Sale) *domain.Sale {
	dup := sale.Clone()
	if c, ok := t.customer(dup.CustomerID); ok {
		dup.Customer = &c
	}
	return dup
}
