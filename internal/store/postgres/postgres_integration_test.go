package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/billing"
	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/service"
	"pharmapos/backend/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("PHARMAPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set PHARMAPOS_TEST_DATABASE_URL to run postgres integration test")
	}
	if err := Migrate(databaseURL); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	s, err := New(context.Background(), databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestSaleRoundTripAndCascade(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	medID := fmt.Sprintf("med-it-%d", stamp)
	custID := fmt.Sprintf("cust-it-%d", stamp)
	saleID := fmt.Sprintf("sale-it-%d", stamp)
	bill := fmt.Sprintf("IT%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, custID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM medicines WHERE id = $1`, medID)
	})

	med := domain.Medicine{ID: medID, Name: "IT Medicine", Price: decimal.RequireFromString("5.00"), StockQuantity: 10, MinStockLevel: 2, Active: true}
	cust := domain.Customer{ID: custID, Name: "IT Customer", Phone: fmt.Sprintf("p-%d", stamp)}

	err := s.WithinTx(ctx, func(uow store.UnitOfWork) error {
		if err := uow.SaveMedicine(ctx, med); err != nil {
			return err
		}
		if err := uow.SaveCustomer(ctx, cust); err != nil {
			return err
		}
		locked, err := uow.FindMedicineByID(ctx, medID)
		if err != nil {
			return err
		}
		sale := domain.NewSale(saleID, cust, domain.PaymentCard, time.Now().UTC())
		if err := sale.AddItem(domain.NewSaleItem(saleID+"-1", *locked, 3)); err != nil {
			return err
		}
		if err := sale.AddItem(domain.NewSaleItem(saleID+"-2", *locked, 1)); err != nil {
			return err
		}
		locked.StockQuantity -= 4
		if err := uow.SaveMedicine(ctx, *locked); err != nil {
			return err
		}
		if err := sale.AssignBillNumber(bill); err != nil {
			return err
		}
		return uow.SaveSale(ctx, sale)
	})
	if err != nil {
		t.Fatalf("create sale tx: %v", err)
	}

	sale, err := s.FindSaleByID(ctx, saleID)
	if err != nil {
		t.Fatalf("find sale: %v", err)
	}
	if sale.ItemCount() != 2 || !sale.Total().Equal(decimal.RequireFromString("20")) {
		t.Fatalf("unexpected sale items=%d total=%s", sale.ItemCount(), sale.Total())
	}
	if sale.Customer == nil || sale.Customer.Name != "IT Customer" {
		t.Fatalf("expected joined customer, got %+v", sale.Customer)
	}

	if _, err := sale.RemoveItem(saleID + "-2"); err != nil {
		t.Fatalf("remove item: %v", err)
	}
	if err := s.SaveSale(ctx, sale); err != nil {
		t.Fatalf("save trimmed sale: %v", err)
	}
	reloaded, err := s.FindSaleByID(ctx, saleID)
	if err != nil || reloaded.ItemCount() != 1 {
		t.Fatalf("expected one item after save, got %v err=%v", reloaded, err)
	}

	if err := s.DeleteSale(ctx, saleID); err != nil {
		t.Fatalf("delete sale: %v", err)
	}
	var orphaned int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM sale_items WHERE sale_id = $1`, saleID).Scan(&orphaned); err != nil {
		t.Fatalf("count items: %v", err)
	}
	if orphaned != 0 {
		t.Fatalf("expected cascade delete of items, got %d", orphaned)
	}
}

func TestDuplicateBillNumberIsRejected(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	medID := fmt.Sprintf("med-dup-%d", stamp)
	custID := fmt.Sprintf("cust-dup-%d", stamp)
	bill := fmt.Sprintf("DUP%d", stamp)
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE bill_number = $1`, bill)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, custID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM medicines WHERE id = $1`, medID)
	})

	med := domain.Medicine{ID: medID, Name: "Dup", Price: decimal.RequireFromString("1"), StockQuantity: 5, Active: true}
	cust := domain.Customer{ID: custID, Name: "Dup", Phone: "dup"}
	if err := s.SaveMedicine(ctx, med); err != nil {
		t.Fatalf("save medicine: %v", err)
	}
	if err := s.SaveCustomer(ctx, cust); err != nil {
		t.Fatalf("save customer: %v", err)
	}

	for i := range 2 {
		sale := domain.NewSale(fmt.Sprintf("sale-dup-%d-%d", stamp, i), cust, domain.PaymentCash, time.Now().UTC())
		_ = sale.AddItem(domain.NewSaleItem(fmt.Sprintf("item-dup-%d-%d", stamp, i), med, 1))
		_ = sale.AssignBillNumber(bill)
		err := s.SaveSale(ctx, sale)
		if i == 1 && !errors.Is(err, store.ErrDuplicateBillNumber) {
			t.Fatalf("expected duplicate bill number, got %v", err)
		}
	}
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	medID := fmt.Sprintf("med-conc-%d", stamp)
	phone := fmt.Sprintf("conc-%d", stamp)
	prefix := fmt.Sprintf("C%d-", stamp)
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE bill_number LIKE $1`, prefix+"%")
		_, _ = s.db.ExecContext(ctx, `DELETE FROM customers WHERE phone = $1`, phone)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM medicines WHERE id = $1`, medID)
	})

	med := domain.Medicine{ID: medID, Name: "Concurrent", Price: decimal.RequireFromString("2.50"), StockQuantity: 10, Active: true}
	if err := s.SaveMedicine(ctx, med); err != nil {
		t.Fatalf("save medicine: %v", err)
	}

	svc := service.New(s, service.Options{
		Bills:    billing.NewAllocator(billing.Config{Prefix: prefix, Digits: 6}, nil),
		Location: time.UTC,
	})

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateSale(ctx, domain.SaleRequest{
				CustomerName:  "Concurrent Buyer",
				CustomerPhone: phone,
				Items:         []domain.SaleLine{{MedicineID: medID, Quantity: 1}},
			})
			switch {
			case err == nil:
				mu.Lock()
				succeeded++
				mu.Unlock()
			case !errors.Is(err, store.ErrInsufficientStock):
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Fatalf("expected exactly 10 sales to succeed, got %d", succeeded)
	}
	got, err := s.FindMedicineByID(ctx, medID)
	if err != nil {
		t.Fatalf("find medicine: %v", err)
	}
	if got.StockQuantity != 0 {
		t.Fatalf("expected stock 0, got %d", got.StockQuantity)
	}
	var stored int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM sales WHERE bill_number LIKE $1`, prefix+"%").Scan(&stored); err != nil {
		t.Fatalf("count sales: %v", err)
	}
	if stored != 10 {
		t.Fatalf("expected 10 stored sales, got %d", stored)
	}
}
