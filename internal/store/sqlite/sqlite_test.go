package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func seedFixtures(t *testing.T, s *Store) (domain.Medicine, domain.Customer) {
	t.Helper()
	ctx := context.Background()

	expiry := time.Date(2027, 5, 31, 0, 0, 0, 0, time.UTC)
	med := domain.Medicine{
		ID:            "med-a",
		Name:          "Paracetamol",
		Category:      "analgesic",
		Price:         decimal.RequireFromString("2.35"),
		CostPrice:     decimal.RequireFromString("1.10"),
		StockQuantity: 10,
		MinStockLevel: 3,
		ExpiryDate:    &expiry,
		Active:        true,
	}
	if err := s.SaveMedicine(ctx, med); err != nil {
		t.Fatalf("save medicine: %v", err)
	}
	cust := domain.Customer{ID: "cust-1", Name: "Ravi", Phone: "9876543210", Email: "ravi@example.test"}
	if err := s.SaveCustomer(ctx, cust); err != nil {
		t.Fatalf("save customer: %v", err)
	}
	return med, cust
}

func TestMedicineRoundTripKeepsDecimalsAndExpiry(t *testing.T) {
	s := newTestStore(t)
	med, _ := seedFixtures(t, s)

	got, err := s.FindMedicineByID(context.Background(), med.ID)
	if err != nil {
		t.Fatalf("find medicine: %v", err)
	}
	if !got.Price.Equal(med.Price) || !got.CostPrice.Equal(med.CostPrice) {
		t.Fatalf("expected prices %s/%s, got %s/%s", med.Price, med.CostPrice, got.Price, got.CostPrice)
	}
	if got.ExpiryDate == nil || got.ExpiryDate.Format(expiryLayout) != "2027-05-31" {
		t.Fatalf("unexpected expiry %v", got.ExpiryDate)
	}
	if !got.Active {
		t.Fatalf("expected active medicine")
	}
}

func TestSaleLifecycleInUnitOfWork(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	med, cust := seedFixtures(t, s)

	err := s.WithinTx(ctx, func(uow store.UnitOfWork) error {
		m, err := uow.FindMedicineByID(ctx, med.ID)
		if err != nil {
			return err
		}
		sale := domain.NewSale("sale-1", cust, domain.PaymentTransfer, time.Now())
		if err := sale.AddItem(domain.NewSaleItem("item-1", *m, 2)); err != nil {
			return err
		}
		if err := sale.AddItem(domain.NewSaleItem("item-2", *m, 1)); err != nil {
			return err
		}
		m.StockQuantity -= 3
		if err := uow.SaveMedicine(ctx, *m); err != nil {
			return err
		}
		if err := sale.AssignBillNumber("B123"); err != nil {
			return err
		}
		return uow.SaveSale(ctx, sale)
	})
	if err != nil {
		t.Fatalf("create tx: %v", err)
	}

	sale, err := s.FindSaleByID(ctx, "sale-1")
	if err != nil {
		t.Fatalf("find sale: %v", err)
	}
	if !sale.Total().Equal(decimal.RequireFromString("7.05")) {
		t.Fatalf("expected total 7.05, got %s", sale.Total())
	}
	items := sale.Items()
	if len(items) != 2 || items[0].ID != "item-1" || items[1].ID != "item-2" {
		t.Fatalf("expected items in insertion order, got %+v", items)
	}
	if sale.Customer == nil || sale.Customer.Email != "ravi@example.test" {
		t.Fatalf("expected joined customer, got %+v", sale.Customer)
	}

	if _, err := sale.RemoveItem("item-2"); err != nil {
		t.Fatalf("remove item: %v", err)
	}
	if err := s.SaveSale(ctx, sale); err != nil {
		t.Fatalf("save sale: %v", err)
	}
	reloaded, err := s.FindSaleByID(ctx, "sale-1")
	if err != nil || reloaded.ItemCount() != 1 {
		t.Fatalf("expected one item, got %v err=%v", reloaded, err)
	}

	if err := s.DeleteSale(ctx, "sale-1"); err != nil {
		t.Fatalf("delete sale: %v", err)
	}
	var remaining int
	if err := s.db.GetContext(ctx, &remaining, `SELECT COUNT(*) FROM sale_items`); err != nil {
		t.Fatalf("count items: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected cascade delete, %d items remain", remaining)
	}
}

func TestWithinTxRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	med, _ := seedFixtures(t, s)

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(uow store.UnitOfWork) error {
		m, err := uow.FindMedicineByID(ctx, med.ID)
		if err != nil {
			return err
		}
		m.StockQuantity = 0
		if err := uow.SaveMedicine(ctx, *m); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	got, _ := s.FindMedicineByID(ctx, med.ID)
	if got.StockQuantity != 10 {
		t.Fatalf("expected stock 10 after rollback, got %d", got.StockQuantity)
	}
}

func TestConstraintErrorsMapToSentinels(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	med, cust := seedFixtures(t, s)

	first := domain.NewSale("sale-1", cust, domain.PaymentCash, time.Now())
	_ = first.AddItem(domain.NewSaleItem("item-1", med, 1))
	_ = first.AssignBillNumber("B001")
	if err := s.SaveSale(ctx, first); err != nil {
		t.Fatalf("save first sale: %v", err)
	}

	second := domain.NewSale("sale-2", cust, domain.PaymentCash, time.Now())
	_ = second.AddItem(domain.NewSaleItem("item-2", med, 1))
	_ = second.AssignBillNumber("B001")
	if err := s.SaveSale(ctx, second); !errors.Is(err, store.ErrDuplicateBillNumber) {
		t.Fatalf("expected duplicate bill number, got %v", err)
	}

	negative := med
	negative.StockQuantity = -1
	if err := s.SaveMedicine(ctx, negative); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected check violation as insufficient stock, got %v", err)
	}

	if err := s.SaveSupplier(ctx, domain.Supplier{ID: "sup-1", Name: "A", Email: "a@x.test"}); err != nil {
		t.Fatalf("save supplier: %v", err)
	}
	if err := s.SaveSupplier(ctx, domain.Supplier{ID: "sup-2", Name: "B", Email: "A@x.test"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected supplier email conflict, got %v", err)
	}
}

func TestListSalesBetweenAndCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	med, cust := seedFixtures(t, s)

	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	for i, at := range []time.Time{day.Add(-time.Millisecond), day, day.Add(23 * time.Hour), day.Add(24 * time.Hour)} {
		sale := domain.NewSale("sale-"+string(rune('a'+i)), cust, domain.PaymentCash, at)
		_ = sale.AddItem(domain.NewSaleItem("item-"+string(rune('a'+i)), med, 1))
		_ = sale.AssignBillNumber("B00" + string(rune('1'+i)))
		if err := s.SaveSale(ctx, sale); err != nil {
			t.Fatalf("save sale %d: %v", i, err)
		}
	}

	sales, err := s.ListSalesBetween(ctx, day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("list between: %v", err)
	}
	if len(sales) != 2 {
		t.Fatalf("expected 2 sales in [day, next day), got %d", len(sales))
	}
	count, _ := s.CountSales(ctx)
	if count != 4 {
		t.Fatalf("expected 4 sales, got %d", count)
	}
	exists, _ := s.ExistsByBillNumber(ctx, "B003")
	if !exists {
		t.Fatalf("expected B003 to exist")
	}
}

func TestSeedIfEmpty(t *testing.T) {
	t.Setenv("SEED_OWNER_PASSWORD", "seed-password-123")
	s := newTestStore(t)
	ctx := context.Background()

	if err := store.SeedIfEmpty(ctx, s, time.Now()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.SeedIfEmpty(ctx, s, time.Now()); err != nil {
		t.Fatalf("second seed should be a no-op: %v", err)
	}
	users, _ := s.ListUsers(ctx)
	if len(users) != 1 || users[0].Email != store.SeedOwnerEmail {
		t.Fatalf("expected seeded owner, got %+v", users)
	}
	medicines, _ := s.ListMedicines(ctx)
	if len(medicines) == 0 {
		t.Fatalf("expected seeded medicines")
	}
}
