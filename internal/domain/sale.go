package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
)

var ErrUnknownPaymentMethod = errors.New("unknown payment method")

// ParsePaymentMethod maps a request token onto the fixed set of methods.
// An empty token means cash.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "cash":
		return PaymentCash, nil
	case "card":
		return PaymentCard, nil
	case "transfer", "upi", "electronic-transfer", "bank_transfer":
		return PaymentTransfer, nil
	default:
		return "", ErrUnknownPaymentMethod
	}
}

// SaleItem is one line of a sale. SaleID is only kept so the line can be
// reattached to its sale when loaded from storage.
type SaleItem struct {
	ID           string          `json:"id"`
	SaleID       string          `json:"sale_id"`
	MedicineID   string          `json:"medicine_id"`
	MedicineName string          `json:"medicine_name"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

// NewSaleItem pins the medicine's current price onto a new line.
func NewSaleItem(id string, medicine Medicine, quantity int) SaleItem {
	item := SaleItem{
		ID:           id,
		MedicineID:   medicine.ID,
		MedicineName: medicine.Name,
		Quantity:     quantity,
		UnitPrice:    medicine.Price,
	}
	item.Subtotal = item.computeSubtotal()
	return item
}

func (i SaleItem) computeSubtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

var (
	ErrSaleItemNotFound = errors.New("sale item not found")
	ErrInvalidQuantity  = errors.New("quantity must be positive")
	ErrInvalidPrice     = errors.New("unit price must not be negative")
	ErrBillNumberSet    = errors.New("bill number already assigned")
)

// Sale is the aggregate root of a transaction. Its items and total are
// unexported: every mutation goes through a method that re-sums the total.
type Sale struct {
	ID            string
	SaleDate      time.Time
	PaymentMethod PaymentMethod
	CustomerID    string
	Customer      *Customer

	billNumber string
	items      []SaleItem
	total      decimal.Decimal
}

// SaleHeader is the persisted, non-derived part of a sale.
type SaleHeader struct {
	ID            string
	SaleDate      time.Time
	PaymentMethod PaymentMethod
	BillNumber    string
	CustomerID    string
	Customer      *Customer
}

func NewSale(id string, customer Customer, method PaymentMethod, at time.Time) *Sale {
	if method == "" {
		method = PaymentCash
	}
	c := customer
	return &Sale{
		ID:            id,
		SaleDate:      at,
		PaymentMethod: method,
		CustomerID:    customer.ID,
		Customer:      &c,
		total:         decimal.Zero,
	}
}

// RestoreSale rebuilds a persisted sale. The stored total is ignored and
// recomputed from the items; item subtotals are recomputed as well.
func RestoreSale(header SaleHeader, items []SaleItem) *Sale {
	sale := Sale{
		ID:            header.ID,
		SaleDate:      header.SaleDate,
		PaymentMethod: header.PaymentMethod,
		CustomerID:    header.CustomerID,
		Customer:      header.Customer,
		billNumber:    header.BillNumber,
	}
	sale.items = make([]SaleItem, 0, len(items))
	for _, item := range items {
		item.SaleID = sale.ID
		item.Subtotal = item.computeSubtotal()
		sale.items = append(sale.items, item)
	}
	sale.recalculate()
	return &sale
}

func (s *Sale) BillNumber() string {
	return s.billNumber
}

// AssignBillNumber sets the bill number once; it cannot be changed later.
func (s *Sale) AssignBillNumber(bill string) error {
	if s.billNumber != "" {
		return ErrBillNumberSet
	}
	s.billNumber = bill
	return nil
}

func (s *Sale) Items() []SaleItem {
	out := make([]SaleItem, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Sale) ItemCount() int {
	return len(s.items)
}

func (s *Sale) Total() decimal.Decimal {
	return s.total
}

func (s *Sale) Item(itemID string) (SaleItem, bool) {
	idx := s.indexOf(itemID)
	if idx < 0 {
		return SaleItem{}, false
	}
	return s.items[idx], true
}

// AddItem attaches the item to this sale and appends it.
func (s *Sale) AddItem(item SaleItem) error {
	if item.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if item.UnitPrice.IsNegative() {
		return ErrInvalidPrice
	}
	item.SaleID = s.ID
	item.Subtotal = item.computeSubtotal()
	s.items = append(s.items, item)
	s.recalculate()
	return nil
}

func (s *Sale) SetItemQuantity(itemID string, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	idx := s.indexOf(itemID)
	if idx < 0 {
		return ErrSaleItemNotFound
	}
	s.items[idx].Quantity = quantity
	s.items[idx].Subtotal = s.items[idx].computeSubtotal()
	s.recalculate()
	return nil
}

func (s *Sale) SetItemUnitPrice(itemID string, price decimal.Decimal) error {
	if price.IsNegative() {
		return ErrInvalidPrice
	}
	idx := s.indexOf(itemID)
	if idx < 0 {
		return ErrSaleItemNotFound
	}
	s.items[idx].UnitPrice = price
	s.items[idx].Subtotal = s.items[idx].computeSubtotal()
	s.recalculate()
	return nil
}

// RemoveItem detaches the item and returns it.
func (s *Sale) RemoveItem(itemID string) (SaleItem, error) {
	idx := s.indexOf(itemID)
	if idx < 0 {
		return SaleItem{}, ErrSaleItemNotFound
	}
	removed := s.items[idx]
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	s.recalculate()
	return removed, nil
}

func (s *Sale) Clone() *Sale {
	if s == nil {
		return nil
	}
	dup := *s
	dup.items = s.Items()
	if s.Customer != nil {
		c := *s.Customer
		dup.Customer = &c
	}
	return &dup
}

// recalculate re-sums every line rather than adjusting incrementally.
func (s *Sale) recalculate() {
	total := decimal.Zero
	for _, item := range s.items {
		total = total.Add(item.Subtotal)
	}
	s.total = total
}

func (s *Sale) indexOf(itemID string) int {
	for i, item := range s.items {
		if item.ID == itemID {
			return i
		}
	}
	return -1
}

type saleJSON struct {
	ID            string          `json:"id"`
	SaleDate      time.Time       `json:"sale_date"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	BillNumber    string          `json:"bill_number"`
	CustomerID    string          `json:"customer_id"`
	Customer      *Customer       `json:"customer,omitempty"`
	Items         []SaleItem      `json:"items"`
}

func (s *Sale) MarshalJSON() ([]byte, error) {
	return json.Marshal(saleJSON{
		ID:            s.ID,
		SaleDate:      s.SaleDate,
		TotalAmount:   s.total,
		PaymentMethod: s.PaymentMethod,
		BillNumber:    s.billNumber,
		CustomerID:    s.CustomerID,
		Customer:      s.Customer,
		Items:         s.Items(),
	})
}

// UnmarshalJSON accepts the shape produced by MarshalJSON; the total is
// derived from the items, not read from the payload.
func (s *Sale) UnmarshalJSON(data []byte) error {
	var raw saleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	restored := RestoreSale(SaleHeader{
		ID:            raw.ID,
		SaleDate:      raw.SaleDate,
		PaymentMethod: raw.PaymentMethod,
		BillNumber:    raw.BillNumber,
		CustomerID:    raw.CustomerID,
		Customer:      raw.Customer,
	}, raw.Items)
	*s = *restored
	return nil
}

func (s *Sale) Header() SaleHeader {
	return SaleHeader{
		ID:            s.ID,
		SaleDate:      s.SaleDate,
		PaymentMethod: s.PaymentMethod,
		BillNumber:    s.billNumber,
		CustomerID:    s.CustomerID,
		Customer:      s.Customer,
	}
}
