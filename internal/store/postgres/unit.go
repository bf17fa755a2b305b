package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

// unit implements store.UnitOfWork on a querier. When locking is set the
// finders append FOR UPDATE.
type unit struct {
	q       querier
	locking bool
}

const medicineColumns = `id, name, generic_name, category, manufacturer, price, cost_price,
	stock_quantity, min_stock_level, expiry_date, batch_number, active, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMedicine(row rowScanner) (domain.Medicine, error) {
	var m domain.Medicine
	var expiry sql.NullTime
	err := row.Scan(&m.ID, &m.Name, &m.GenericName, &m.Category, &m.Manufacturer, &m.Price, &m.CostPrice,
		&m.StockQuantity, &m.MinStockLevel, &expiry, &m.BatchNumber, &m.Active, &m.CreatedAt)
	if err != nil {
		return domain.Medicine{}, err
	}
	if expiry.Valid {
		e := expiry.Time.UTC()
		m.ExpiryDate = &e
	}
	return m, nil
}

func (u *unit) lockClause() string {
	if u.locking {
		return " FOR UPDATE"
	}
	return ""
}

func (u *unit) FindMedicineByID(ctx context.Context, id string) (*domain.Medicine, error) {
	row := u.q.QueryRowContext(ctx, `SELECT `+medicineColumns+` FROM medicines WHERE id = $1`+u.lockClause(), id)
	m, err := scanMedicine(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (u *unit) SaveMedicine(ctx context.Context, m domain.Medicine) error {
	if m.ID == "" {
		return store.ErrInvalidRequest
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	var expiry any
	if m.ExpiryDate != nil {
		expiry = *m.ExpiryDate
	}

	_, err := u.q.ExecContext(ctx, `
		INSERT INTO medicines (`+medicineColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, generic_name = EXCLUDED.generic_name, category = EXCLUDED.category,
			manufacturer = EXCLUDED.manufacturer, price = EXCLUDED.price, cost_price = EXCLUDED.cost_price,
			stock_quantity = EXCLUDED.stock_quantity, min_stock_level = EXCLUDED.min_stock_level,
			expiry_date = EXCLUDED.expiry_date, batch_number = EXCLUDED.batch_number, active = EXCLUDED.active
	`, m.ID, m.Name, m.GenericName, m.Category, m.Manufacturer, m.Price, m.CostPrice,
		m.StockQuantity, m.MinStockLevel, expiry, m.BatchNumber, m.Active, m.CreatedAt)
	if err != nil {
		return translate(err)
	}
	return nil
}

func (u *unit) ListMedicines(ctx context.Context) ([]domain.Medicine, error) {
	rows, err := u.q.QueryContext(ctx, `SELECT `+medicineColumns+` FROM medicines ORDER BY lower(name), id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	medicines := make([]domain.Medicine, 0, 64)
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, err
		}
		medicines = append(medicines, m)
	}
	return medicines, rows.Err()
}

const customerColumns = `id, name, phone, email, address, created_at`

func (u *unit) findCustomer(ctx context.Context, where string, arg string) (*domain.Customer, error) {
	var c domain.Customer
	err := u.q.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers `+where, arg).
		Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (u *unit) FindCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	return u.findCustomer(ctx, `WHERE id = $1`, id)
}

// FindCustomerByPhone returns the oldest customer on file for the phone.
func (u *unit) FindCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	if phone == "" {
		return nil, store.ErrNotFound
	}
	return u.findCustomer(ctx, `WHERE phone = $1 ORDER BY created_at, id LIMIT 1`, phone)
}

func (u *unit) SaveCustomer(ctx context.Context, c domain.Customer) error {
	if c.ID == "" {
		return store.ErrInvalidRequest
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := u.q.ExecContext(ctx, `
		INSERT INTO customers (`+customerColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, phone = EXCLUDED.phone, email = EXCLUDED.email, address = EXCLUDED.address
	`, c.ID, c.Name, c.Phone, c.Email, c.Address, c.CreatedAt)
	if err != nil {
		return translate(err)
	}
	return nil
}

func (u *unit) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := u.q.QueryContext(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY lower(name), id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.CreatedAt); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (u *unit) SaveSale(ctx context.Context, sale *domain.Sale) error {
	if sale == nil || sale.ID == "" || sale.BillNumber() == "" {
		return store.ErrInvalidRequest
	}

	// bill_number is written once and never updated.
	_, err := u.q.ExecContext(ctx, `
		INSERT INTO sales (id, sale_date, total_amount, payment_method, bill_number, customer_id)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE
		SET total_amount = EXCLUDED.total_amount, payment_method = EXCLUDED.payment_method,
			customer_id = EXCLUDED.customer_id
	`, sale.ID, sale.SaleDate, sale.Total(), string(sale.PaymentMethod), sale.BillNumber(), sale.CustomerID)
	if err != nil {
		return translate(err)
	}

	items := sale.Items()
	keep := make([]string, 0, len(items))
	for _, item := range items {
		keep = append(keep, item.ID)
	}
	if _, err := u.q.ExecContext(ctx, `
		DELETE FROM sale_items WHERE sale_id = $1 AND NOT (id = ANY($2))
	`, sale.ID, keep); err != nil {
		return err
	}

	for pos, item := range items {
		_, err := u.q.ExecContext(ctx, `
			INSERT INTO sale_items (id, sale_id, position, medicine_id, medicine_name, quantity, unit_price, subtotal)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (id) DO UPDATE
			SET position = EXCLUDED.position, quantity = EXCLUDED.quantity,
				unit_price = EXCLUDED.unit_price, subtotal = EXCLUDED.subtotal
		`, item.ID, sale.ID, pos, item.MedicineID, item.MedicineName, item.Quantity, item.UnitPrice, item.Subtotal)
		if err != nil {
			return translate(err)
		}
	}
	return nil
}

const saleSelect = `
	SELECT s.id, s.sale_date, s.payment_method, s.bill_number, s.customer_id,
		c.name, c.phone, c.email, c.address, c.created_at
	FROM sales s
	JOIN customers c ON c.id = s.customer_id
`

func scanSaleHeader(row rowScanner) (domain.SaleHeader, error) {
	var h domain.SaleHeader
	var c domain.Customer
	var method string
	if err := row.Scan(&h.ID, &h.SaleDate, &method, &h.BillNumber, &h.CustomerID,
		&c.Name, &c.Phone, &c.Email, &c.Address, &c.CreatedAt); err != nil {
		return domain.SaleHeader{}, err
	}
	h.PaymentMethod = domain.PaymentMethod(method)
	c.ID = h.CustomerID
	h.Customer = &c
	return h, nil
}

func (u *unit) FindSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	query := saleSelect + ` WHERE s.id = $1`
	if u.locking {
		query += ` FOR UPDATE OF s`
	}
	header, err := scanSaleHeader(u.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	sales, err := u.attachItems(ctx, []domain.SaleHeader{header})
	if err != nil {
		return nil, err
	}
	return sales[0], nil
}

func (u *unit) ListSales(ctx context.Context) ([]*domain.Sale, error) {
	return u.listSales(ctx, saleSelect+` ORDER BY s.sale_date DESC, s.bill_number`)
}

func (u *unit) ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]*domain.Sale, error) {
	return u.listSales(ctx, saleSelect+`
		WHERE s.sale_date >= $1 AND s.sale_date < $2
		ORDER BY s.sale_date DESC, s.bill_number
	`, from, to)
}

func (u *unit) listSales(ctx context.Context, query string, args ...any) ([]*domain.Sale, error) {
	rows, err := u.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	headers := make([]domain.SaleHeader, 0, 64)
	for rows.Next() {
		h, err := scanSaleHeader(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		headers = append(headers, h)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	return u.attachItems(ctx, headers)
}

func (u *unit) attachItems(ctx context.Context, headers []domain.SaleHeader) ([]*domain.Sale, error) {
	if len(headers) == 0 {
		return []*domain.Sale{}, nil
	}
	ids := make([]string, 0, len(headers))
	for _, h := range headers {
		ids = append(ids, h.ID)
	}

	rows, err := u.q.QueryContext(ctx, `
		SELECT id, sale_id, medicine_id, medicine_name, quantity, unit_price, subtotal
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, position
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	itemsBySale := make(map[string][]domain.SaleItem, len(headers))
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.MedicineID, &item.MedicineName, &item.Quantity, &item.UnitPrice, &item.Subtotal); err != nil {
			return nil, err
		}
		itemsBySale[item.SaleID] = append(itemsBySale[item.SaleID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sales := make([]*domain.Sale, 0, len(headers))
	for _, h := range headers {
		sales = append(sales, domain.RestoreSale(h, itemsBySale[h.ID]))
	}
	return sales, nil
}

func (u *unit) ExistsByBillNumber(ctx context.Context, bill string) (bool, error) {
	var exists bool
	err := u.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sales WHERE bill_number = $1)`, bill).Scan(&exists)
	return exists, err
}

func (u *unit) CountSales(ctx context.Context) (int, error) {
	var count int
	err := u.q.QueryRowContext(ctx, `SELECT count(*) FROM sales`).Scan(&count)
	return count, err
}

func (u *unit) DeleteSale(ctx context.Context, id string) error {
	res, err := u.q.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}
