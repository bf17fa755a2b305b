package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

const expiryLayout = "2006-01-02"

// unit implements store.UnitOfWork over *sqlx.DB or *sqlx.Tx. There is no
// row locking: the single connection already serializes writers.
type unit struct {
	q sqlx.ExtContext
}

type medicineRow struct {
	ID            string          `db:"id"`
	Name          string          `db:"name"`
	GenericName   string          `db:"generic_name"`
	Category      string          `db:"category"`
	Manufacturer  string          `db:"manufacturer"`
	Price         decimal.Decimal `db:"price"`
	CostPrice     decimal.Decimal `db:"cost_price"`
	StockQuantity int             `db:"stock_quantity"`
	MinStockLevel int             `db:"min_stock_level"`
	ExpiryDate    sql.NullString  `db:"expiry_date"`
	BatchNumber   string          `db:"batch_number"`
	Active        bool            `db:"active"`
	CreatedAt     int64           `db:"created_at"`
}

func (r medicineRow) toDomain() domain.Medicine {
	m := domain.Medicine{
		ID:            r.ID,
		Name:          r.Name,
		GenericName:   r.GenericName,
		Category:      r.Category,
		Manufacturer:  r.Manufacturer,
		Price:         r.Price,
		CostPrice:     r.CostPrice,
		StockQuantity: r.StockQuantity,
		MinStockLevel: r.MinStockLevel,
		BatchNumber:   r.BatchNumber,
		Active:        r.Active,
		CreatedAt:     fromMillis(r.CreatedAt),
	}
	if r.ExpiryDate.Valid {
		if exp, err := time.Parse(expiryLayout, r.ExpiryDate.String); err == nil {
			m.ExpiryDate = &exp
		}
	}
	return m
}

func (u *unit) FindMedicineByID(ctx context.Context, id string) (*domain.Medicine, error) {
	var row medicineRow
	if err := sqlx.GetContext(ctx, u.q, &row, `SELECT * FROM medicines WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	m := row.toDomain()
	return &m, nil
}

func (u *unit) SaveMedicine(ctx context.Context, m domain.Medicine) error {
	if m.ID == "" {
		return store.ErrInvalidRequest
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	var expiry sql.NullString
	if m.ExpiryDate != nil {
		expiry = sql.NullString{String: m.ExpiryDate.Format(expiryLayout), Valid: true}
	}

	_, err := u.q.ExecContext(ctx, `
		INSERT INTO medicines (id, name, generic_name, category, manufacturer, price, cost_price,
		  stock_quantity, min_stock_level, expiry_date, batch_number, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  name = excluded.name, generic_name = excluded.generic_name, category = excluded.category,
		  manufacturer = excluded.manufacturer, price = excluded.price, cost_price = excluded.cost_price,
		  stock_quantity = excluded.stock_quantity, min_stock_level = excluded.min_stock_level,
		  expiry_date = excluded.expiry_date, batch_number = excluded.batch_number, active = excluded.active
	`, m.ID, m.Name, m.GenericName, m.Category, m.Manufacturer, m.Price.String(), m.CostPrice.String(),
		m.StockQuantity, m.MinStockLevel, expiry, m.BatchNumber, m.Active, toMillis(m.CreatedAt))
	return translate(err)
}

func (u *unit) ListMedicines(ctx context.Context) ([]domain.Medicine, error) {
	var rows []medicineRow
	if err := sqlx.SelectContext(ctx, u.q, &rows, `SELECT * FROM medicines ORDER BY LOWER(name), id`); err != nil {
		return nil, err
	}
	medicines := make([]domain.Medicine, 0, len(rows))
	for _, r := range rows {
		medicines = append(medicines, r.toDomain())
	}
	return medicines, nil
}

type customerRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	Phone     string `db:"phone"`
	Email     string `db:"email"`
	Address   string `db:"address"`
	CreatedAt int64  `db:"created_at"`
}

func (r customerRow) toDomain() domain.Customer {
	return domain.Customer{
		ID:        r.ID,
		Name:      r.Name,
		Phone:     r.Phone,
		Email:     r.Email,
		Address:   r.Address,
		CreatedAt: fromMillis(r.CreatedAt),
	}
}

func (u *unit) findCustomer(ctx context.Context, query string, arg string) (*domain.Customer, error) {
	var row customerRow
	if err := sqlx.GetContext(ctx, u.q, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c := row.toDomain()
	return &c, nil
}

func (u *unit) FindCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	return u.findCustomer(ctx, `SELECT * FROM customers WHERE id = ?`, id)
}

func (u *unit) FindCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	if phone == "" {
		return nil, store.ErrNotFound
	}
	return u.findCustomer(ctx, `SELECT * FROM customers WHERE phone = ? ORDER BY created_at, id LIMIT 1`, phone)
}

func (u *unit) SaveCustomer(ctx context.Context, c domain.Customer) error {
	if c.ID == "" {
		return store.ErrInvalidRequest
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := u.q.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, email, address, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  name = excluded.name, phone = excluded.phone, email = excluded.email, address = excluded.address
	`, c.ID, c.Name, c.Phone, c.Email, c.Address, toMillis(c.CreatedAt))
	return translate(err)
}

func (u *unit) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	var rows []customerRow
	if err := sqlx.SelectContext(ctx, u.q, &rows, `SELECT * FROM customers ORDER BY LOWER(name), id`); err != nil {
		return nil, err
	}
	customers := make([]domain.Customer, 0, len(rows))
	for _, r := range rows {
		customers = append(customers, r.toDomain())
	}
	return customers, nil
}

func (u *unit) SaveSale(ctx context.Context, sale *domain.Sale) error {
	if sale == nil || sale.ID == "" || sale.BillNumber() == "" {
		return store.ErrInvalidRequest
	}

	_, err := u.q.ExecContext(ctx, `
		INSERT INTO sales (id, sale_date, total_amount, payment_method, bill_number, customer_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  total_amount = excluded.total_amount, payment_method = excluded.payment_method,
		  customer_id = excluded.customer_id
	`, sale.ID, toMillis(sale.SaleDate), sale.Total().String(), string(sale.PaymentMethod), sale.BillNumber(), sale.CustomerID)
	if err != nil {
		return translate(err)
	}

	items := sale.Items()
	if len(items) == 0 {
		if _, err := u.q.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = ?`, sale.ID); err != nil {
			return err
		}
	} else {
		keep := make([]string, 0, len(items))
		for _, item := range items {
			keep = append(keep, item.ID)
		}
		query, args, err := sqlx.In(`DELETE FROM sale_items WHERE sale_id = ? AND id NOT IN (?)`, sale.ID, keep)
		if err != nil {
			return err
		}
		if _, err := u.q.ExecContext(ctx, u.q.Rebind(query), args...); err != nil {
			return err
		}
	}

	for pos, item := range items {
		_, err := u.q.ExecContext(ctx, `
			INSERT INTO sale_items (id, sale_id, position, medicine_id, medicine_name, quantity, unit_price, subtotal)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
			  position = excluded.position, quantity = excluded.quantity,
			  unit_price = excluded.unit_price, subtotal = excluded.subtotal
		`, item.ID, sale.ID, pos, item.MedicineID, item.MedicineName, item.Quantity, item.UnitPrice.String(), item.Subtotal.String())
		if err != nil {
			return translate(err)
		}
	}
	return nil
}

type saleRow struct {
	ID              string `db:"id"`
	SaleDate        int64  `db:"sale_date"`
	PaymentMethod   string `db:"payment_method"`
	BillNumber      string `db:"bill_number"`
	CustomerID      string `db:"customer_id"`
	CustomerName    string `db:"customer_name"`
	CustomerPhone   string `db:"customer_phone"`
	CustomerEmail   string `db:"customer_email"`
	CustomerAddress string `db:"customer_address"`
	CustomerCreated int64  `db:"customer_created_at"`
}

func (r saleRow) header() domain.SaleHeader {
	return domain.SaleHeader{
		ID:            r.ID,
		SaleDate:      fromMillis(r.SaleDate),
		PaymentMethod: domain.PaymentMethod(r.PaymentMethod),
		BillNumber:    r.BillNumber,
		CustomerID:    r.CustomerID,
		Customer: &domain.Customer{
			ID:        r.CustomerID,
			Name:      r.CustomerName,
			Phone:     r.CustomerPhone,
			Email:     r.CustomerEmail,
			Address:   r.CustomerAddress,
			CreatedAt: fromMillis(r.CustomerCreated),
		},
	}
}

type saleItemRow struct {
	ID           string          `db:"id"`
	SaleID       string          `db:"sale_id"`
	MedicineID   string          `db:"medicine_id"`
	MedicineName string          `db:"medicine_name"`
	Quantity     int             `db:"quantity"`
	UnitPrice    decimal.Decimal `db:"unit_price"`
	Subtotal     decimal.Decimal `db:"subtotal"`
}

const saleSelect = `
	SELECT s.id, s.sale_date, s.payment_method, s.bill_number, s.customer_id,
	  c.name AS customer_name, c.phone AS customer_phone, c.email AS customer_email,
	  c.address AS customer_address, c.created_at AS customer_created_at
	FROM sales s
	JOIN customers c ON c.id = s.customer_id
`

func (u *unit) FindSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	var row saleRow
	if err := sqlx.GetContext(ctx, u.q, &row, saleSelect+` WHERE s.id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sales, err := u.attachItems(ctx, []saleRow{row})
	if err != nil {
		return nil, err
	}
	return sales[0], nil
}

func (u *unit) ListSales(ctx context.Context) ([]*domain.Sale, error) {
	var rows []saleRow
	if err := sqlx.SelectContext(ctx, u.q, &rows, saleSelect+` ORDER BY s.sale_date DESC, s.bill_number`); err != nil {
		return nil, err
	}
	return u.attachItems(ctx, rows)
}

func (u *unit) ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]*domain.Sale, error) {
	var rows []saleRow
	err := sqlx.SelectContext(ctx, u.q, &rows, saleSelect+`
		WHERE s.sale_date >= ? AND s.sale_date < ?
		ORDER BY s.sale_date DESC, s.bill_number
	`, toMillis(from), toMillis(to))
	if err != nil {
		return nil, err
	}
	return u.attachItems(ctx, rows)
}

func (u *unit) attachItems(ctx context.Context, rows []saleRow) ([]*domain.Sale, error) {
	if len(rows) == 0 {
		return []*domain.Sale{}, nil
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}

	query, args, err := sqlx.In(`
		SELECT id, sale_id, medicine_id, medicine_name, quantity, unit_price, subtotal
		FROM sale_items
		WHERE sale_id IN (?)
		ORDER BY sale_id, position
	`, ids)
	if err != nil {
		return nil, err
	}
	var itemRows []saleItemRow
	if err := sqlx.SelectContext(ctx, u.q, &itemRows, u.q.Rebind(query), args...); err != nil {
		return nil, err
	}

	itemsBySale := make(map[string][]domain.SaleItem, len(rows))
	for _, r := range itemRows {
		itemsBySale[r.SaleID] = append(itemsBySale[r.SaleID], domain.SaleItem{
			ID:           r.ID,
			SaleID:       r.SaleID,
			MedicineID:   r.MedicineID,
			MedicineName: r.MedicineName,
			Quantity:     r.Quantity,
			UnitPrice:    r.UnitPrice,
			Subtotal:     r.Subtotal,
		})
	}

	sales := make([]*domain.Sale, 0, len(rows))
	for _, r := range rows {
		sales = append(sales, domain.RestoreSale(r.header(), itemsBySale[r.ID]))
	}
	return sales, nil
}

func (u *unit) ExistsByBillNumber(ctx context.Context, bill string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, u.q, &exists, `SELECT EXISTS (SELECT 1 FROM sales WHERE bill_number = ?)`, bill)
	return exists, err
}

func (u *unit) CountSales(ctx context.Context) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, u.q, &count, `SELECT COUNT(*) FROM sales`)
	return count, err
}

func (u *unit) DeleteSale(ctx context.Context, id string) error {
	res, err := u.q.ExecContext(ctx, `DELETE FROM sales WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}
