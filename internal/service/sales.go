package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/xid"
)

// saleCommitAttempts bounds retries when the unique bill index rejects a
// sale at commit.
const saleCommitAttempts = 3

// CreateSale records a sale and decrements stock in one unit of work. Either
// every decrement and the sale commit, or nothing does.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleRequest) (*domain.Sale, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: sale must contain at least one item", store.ErrInvalidRequest)
	}
	for _, line := range req.Items {
		if strings.TrimSpace(line.MedicineID) == "" {
			return nil, fmt.Errorf("%w: medicine_id is required", store.ErrInvalidRequest)
		}
		if line.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidRequest)
		}
	}
	method, err := domain.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidRequest, err)
	}

	// A bill that passed the existence check can still lose to a concurrent
	// commit. The whole unit is rolled back, so a fresh attempt is safe.
	var created *domain.Sale
	for attempt := 1; ; attempt++ {
		created, err = s.createSaleTx(ctx, req, method)
		if !errors.Is(err, store.ErrDuplicateBillNumber) || attempt == saleCommitAttempts {
			break
		}
		log.Printf("[sales] WARN: bill number taken at commit, retrying (attempt %d)", attempt)
	}
	if err != nil {
		if errors.Is(err, store.ErrAllocationExhausted) || errors.Is(err, store.ErrDuplicateBillNumber) {
			log.Printf("[sales] ERROR: bill number allocation failed: %v", err)
		}
		return nil, err
	}

	s.logAudit(ctx, "sale_create", "sale", created.ID,
		fmt.Sprintf("bill=%s total=%s items=%d", created.BillNumber(), created.Total().StringFixed(2), created.ItemCount()))

	if s.receipts != nil && (s.autoSend || req.SendReceipt) {
		email := strings.TrimSpace(req.CustomerEmail)
		if email == "" && created.Customer != nil {
			email = created.Customer.Email
		}
		if email != "" {
			s.receipts.NotifyAsync(created.Clone(), email)
		}
	}

	return created, nil
}

func (s *Service) createSaleTx(ctx context.Context, req domain.SaleRequest, method domain.PaymentMethod) (*domain.Sale, error) {
	var created *domain.Sale
	err := s.repo.WithinTx(ctx, func(uow store.UnitOfWork) error {
		customer, err := s.resolveCustomer(ctx, uow, req)
		if err != nil {
			return err
		}

		sale := domain.NewSale(xid.New("sale"), *customer, method, s.now().UTC())

		medicines, err := lockMedicines(ctx, uow, lineMedicineIDs(req.Items))
		if err != nil {
			return err
		}

		for _, line := range req.Items {
			medicine := medicines[line.MedicineID]
			if !medicine.Active {
				return fmt.Errorf("%w: medicine %s is not available for sale", store.ErrInvalidRequest, medicine.Name)
			}
			if line.Quantity > medicine.StockQuantity {
				return &store.InsufficientStockError{
					MedicineID:   medicine.ID,
					MedicineName: medicine.Name,
					Available:    medicine.StockQuantity,
					Requested:    line.Quantity,
				}
			}

			if err := sale.AddItem(domain.NewSaleItem(xid.New("item"), *medicine, line.Quantity)); err != nil {
				return fmt.Errorf("%w: %v", store.ErrInvalidRequest, err)
			}
			medicine.StockQuantity -= line.Quantity
			if err := uow.SaveMedicine(ctx, *medicine); err != nil {
				return err
			}
		}

		if sale.BillNumber() == "" {
			bill, err := s.bills.Allocate(ctx, uow)
			if err != nil {
				return err
			}
			if err := sale.AssignBillNumber(bill); err != nil {
				return err
			}
		}

		if err := uow.SaveSale(ctx, sale); err != nil {
			return err
		}
		created = sale
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// DeleteSale restores the stock of every item and removes the sale.
func (s *Service) DeleteSale(ctx context.Context, saleID string) error {
	if err := requireOwner(ctx); err != nil {
		return err
	}

	var bill string
	err := s.repo.WithinTx(ctx, func(uow store.UnitOfWork) error {
		sale, err := uow.FindSaleByID(ctx, saleID)
		if err != nil {
			return err
		}
		bill = sale.BillNumber()

		if err := restoreStock(ctx, uow, sale.Items()); err != nil {
			return err
		}
		return uow.DeleteSale(ctx, sale.ID)
	})
	if err != nil {
		return err
	}

	s.logAudit(ctx, "sale_delete", "sale", saleID, "bill="+bill)
	return nil
}

// DeleteSaleItem restores the item's stock and removes it. When it was the
// last item the sale is deleted too and the returned sale is nil.
func (s *Service) DeleteSaleItem(ctx context.Context, saleID string, itemID string) (*domain.Sale, error) {
	if err := requireOwner(ctx); err != nil {
		return nil, err
	}

	var remaining *domain.Sale
	err := s.repo.WithinTx(ctx, func(uow store.UnitOfWork) error {
		sale, err := uow.FindSaleByID(ctx, saleID)
		if err != nil {
			return err
		}
		item, ok := sale.Item(itemID)
		if !ok {
			return fmt.Errorf("%w: sale item %s", store.ErrNotFound, itemID)
		}

		if err := restoreStock(ctx, uow, []domain.SaleItem{item}); err != nil {
			return err
		}
		if _, err := sale.RemoveItem(itemID); err != nil {
			return err
		}

		if sale.ItemCount() == 0 {
			return uow.DeleteSale(ctx, sale.ID)
		}
		if err := uow.SaveSale(ctx, sale); err != nil {
			return err
		}
		remaining = sale
		return nil
	})
	if err != nil {
		return nil, err
	}

	detail := "sale_removed=false"
	if remaining == nil {
		detail = "sale_removed=true"
	}
	s.logAudit(ctx, "sale_item_delete", "sale_item", saleID+"/"+itemID, detail)
	return remaining, nil
}

func (s *Service) ListSales(ctx context.Context) ([]*domain.Sale, error) {
	return s.repo.ListSales(ctx)
}

func (s *Service) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	return s.repo.FindSaleByID(ctx, saleID)
}

func (s *Service) TodaySales(ctx context.Context) ([]*domain.Sale, error) {
	from, to := s.todayRange()
	return s.repo.ListSalesBetween(ctx, from, to)
}

func (s *Service) TodayTotal(ctx context.Context) (domain.TodayTotalResponse, error) {
	from, to := s.todayRange()
	sales, err := s.repo.ListSalesBetween(ctx, from, to)
	if err != nil {
		return domain.TodayTotalResponse{}, err
	}
	return domain.TodayTotalResponse{
		Date:  from.Format("2006-01-02"),
		Count: len(sales),
		Total: sumTotals(sales),
	}, nil
}

// SendReceipt delivers the receipt synchronously. An empty email falls back
// to the customer's email on file.
func (s *Service) SendReceipt(ctx context.Context, saleID string, email string) error {
	if s.receipts == nil {
		return errors.New("receipt delivery is not configured")
	}

	sale, err := s.repo.FindSaleByID(ctx, saleID)
	if err != nil {
		return err
	}
	email = strings.TrimSpace(email)
	if email == "" && sale.Customer != nil {
		email = sale.Customer.Email
	}
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: a valid email is required", store.ErrInvalidRequest)
	}

	if err := s.receipts.Send(ctx, sale, email); err != nil {
		return fmt.Errorf("send receipt: %w", err)
	}
	s.logAudit(ctx, "receipt_send", "sale", sale.ID, "to="+email)
	return nil
}

func lineMedicineIDs(lines []domain.SaleLine) []string {
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.MedicineID)
	}
	return ids
}

// lockMedicines loads each distinct medicine once, in ascending id order so
// concurrent units of work acquire row locks in the same sequence.
func lockMedicines(ctx context.Context, uow store.Medicines, ids []string) (map[string]*domain.Medicine, error) {
	unique := slices.Clone(ids)
	slices.Sort(unique)
	unique = slices.Compact(unique)

	medicines := make(map[string]*domain.Medicine, len(unique))
	for _, id := range unique {
		medicine, err := uow.FindMedicineByID(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: medicine %s", store.ErrNotFound, id)
			}
			return nil, err
		}
		medicines[id] = medicine
	}
	return medicines, nil
}

func restoreStock(ctx context.Context, uow store.Medicines, items []domain.SaleItem) error {
	quantities := make(map[string]int, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		quantities[item.MedicineID] += item.Quantity
		ids = append(ids, item.MedicineID)
	}

	medicines, err := lockMedicines(ctx, uow, ids)
	if err != nil {
		return err
	}
	for id, qty := range quantities {
		medicine := medicines[id]
		medicine.StockQuantity += qty
		if err := uow.SaveMedicine(ctx, *medicine); err != nil {
			return err
		}
	}
	return nil
}

func sumTotals(sales []*domain.Sale) decimal.Decimal {
	total := decimal.Zero
	for _, sale := range sales {
		total = total.Add(sale.Total())
	}
	return total
}
