package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/billing"
	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

func TestCreateMedicineRequiresOwnerAndValidates(t *testing.T) {
	f := newFixture(t, billing.Config{})

	req := domain.MedicineCreateRequest{
		Name:          "Cetirizine",
		Category:      "antihistamine",
		Price:         decimal.RequireFromString("3.10"),
		StockQuantity: 40,
		ExpiryDate:    "2026-12-31",
	}
	if _, err := f.svc.CreateMedicine(context.Background(), req); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	created, err := f.svc.CreateMedicine(ownerCtx(), req)
	if err != nil {
		t.Fatalf("create medicine: %v", err)
	}
	if created.MinStockLevel != defaultMinStockLevel || !created.Active {
		t.Fatalf("expected defaults applied, got %+v", created)
	}
	if created.ExpiryDate == nil || created.ExpiryDate.Format("2006-01-02") != "2026-12-31" {
		t.Fatalf("unexpected expiry %v", created.ExpiryDate)
	}

	bad := req
	bad.ExpiryDate = "31/12/2026"
	if _, err := f.svc.CreateMedicine(ownerCtx(), bad); !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected invalid expiry, got %v", err)
	}
	bad = req
	bad.Price = decimal.RequireFromString("-1")
	if _, err := f.svc.CreateMedicine(ownerCtx(), bad); !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected invalid price, got %v", err)
	}
}

func TestListMedicinesFiltersAndSoftDelete(t *testing.T) {
	f := newFixture(t, billing.Config{})
	ctx := context.Background()

	name := "Amoxicillin 250"
	category := "antibiotic"
	if _, err := f.svc.UpdateMedicine(ownerCtx(), "med-a", domain.MedicineUpdateRequest{Name: &name, Category: &category}); err != nil {
		t.Fatalf("update medicine: %v", err)
	}

	byName, _ := f.svc.ListMedicines(ctx, "amoxi", "")
	if len(byName) != 1 || byName[0].ID != "med-a" {
		t.Fatalf("expected search hit on med-a, got %+v", byName)
	}
	byCategory, _ := f.svc.ListMedicines(ctx, "", "ANTIBIOTIC")
	if len(byCategory) != 1 {
		t.Fatalf("expected category filter to match, got %d", len(byCategory))
	}

	if err := f.svc.DeleteMedicine(ownerCtx(), "med-a"); err != nil {
		t.Fatalf("delete medicine: %v", err)
	}
	all, _ := f.svc.ListMedicines(ctx, "", "")
	if len(all) != 1 || all[0].ID != "med-b" {
		t.Fatalf("expected only med-b after soft delete, got %+v", all)
	}
	got, err := f.svc.GetMedicine(ctx, "med-a")
	if err != nil || got.Active {
		t.Fatalf("expected med-a to remain readable and inactive, got %+v err=%v", got, err)
	}

	low, _ := f.svc.LowStockMedicines(ctx)
	if len(low) != 1 || low[0].ID != "med-b" {
		t.Fatalf("expected med-b low stock, got %+v", low)
	}
}

func TestUpdateMedicineRejectsNegativeStock(t *testing.T) {
	f := newFixture(t, billing.Config{})
	negative := -4

	_, err := f.svc.UpdateMedicine(ownerCtx(), "med-a", domain.MedicineUpdateRequest{StockQuantity: &negative})
	if !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	if got := f.stock(t, "med-a"); got != 10 {
		t.Fatalf("expected stock unchanged, got %d", got)
	}
	if _, err := f.svc.UpdateMedicine(ownerCtx(), "med-missing", domain.MedicineUpdateRequest{}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCustomerCRUD(t *testing.T) {
	f := newFixture(t, billing.Config{})
	ctx := context.Background()

	created, err := f.svc.CreateCustomer(ctx, domain.CustomerRequest{Name: " Lina ", Phone: "0811"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	if created.Name != "Lina" {
		t.Fatalf("expected trimmed name, got %q", created.Name)
	}
	if _, err := f.svc.CreateCustomer(ctx, domain.CustomerRequest{Name: "Other", Phone: "0811"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected duplicate phone conflict, got %v", err)
	}
	if _, err := f.svc.CreateCustomer(ctx, domain.CustomerRequest{Name: "No Phone"}); !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}

	updated, err := f.svc.UpdateCustomer(ctx, created.ID, domain.CustomerRequest{Email: "lina@example.test"})
	if err != nil {
		t.Fatalf("update customer: %v", err)
	}
	if updated.Email != "lina@example.test" || updated.Phone != "0811" {
		t.Fatalf("unexpected update result %+v", updated)
	}

	byPhone, err := f.svc.FindCustomerByPhone(ctx, "0811")
	if err != nil || byPhone.ID != created.ID {
		t.Fatalf("expected phone lookup to find %s, got %+v err=%v", created.ID, byPhone, err)
	}
	found, _ := f.svc.ListCustomers(ctx, "lin")
	if len(found) != 1 {
		t.Fatalf("expected name search hit, got %d", len(found))
	}
}

func TestSupplierCRUD(t *testing.T) {
	f := newFixture(t, billing.Config{})
	ctx := ownerCtx()

	if _, err := f.svc.CreateSupplier(context.Background(), domain.SupplierRequest{Name: "Acme"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	created, err := f.svc.CreateSupplier(ctx, domain.SupplierRequest{Name: "Acme Pharma", Email: "Sales@Acme.test"})
	if err != nil {
		t.Fatalf("create supplier: %v", err)
	}
	if created.Email != "sales@acme.test" {
		t.Fatalf("expected normalized email, got %s", created.Email)
	}
	if _, err := f.svc.CreateSupplier(ctx, domain.SupplierRequest{Name: "Copycat", Email: "sales@acme.test"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected email conflict, got %v", err)
	}

	updated, err := f.svc.UpdateSupplier(ctx, created.ID, domain.SupplierRequest{Phone: "021-555"})
	if err != nil || updated.Phone != "021-555" || updated.Name != "Acme Pharma" {
		t.Fatalf("unexpected update %+v err=%v", updated, err)
	}

	if err := f.svc.DeleteSupplier(ctx, created.ID); err != nil {
		t.Fatalf("delete supplier: %v", err)
	}
	if _, err := f.svc.GetSupplier(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}
