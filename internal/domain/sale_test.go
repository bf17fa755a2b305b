package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func testMedicine(id string, price string, stock int) Medicine {
	return Medicine{
		ID:            id,
		Name:          "Medicine " + id,
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		Active:        true,
	}
}

func TestSaleTotalFollowsEveryMutation(t *testing.T) {
	sale := NewSale("sale-1", Customer{ID: "cust-1"}, "", time.Now())
	if sale.PaymentMethod != PaymentCash {
		t.Fatalf("expected cash default, got %s", sale.PaymentMethod)
	}

	if err := sale.AddItem(NewSaleItem("item-a", testMedicine("a", "5.00", 10), 3)); err != nil {
		t.Fatalf("add item a: %v", err)
	}
	if err := sale.AddItem(NewSaleItem("item-b", testMedicine("b", "3.00", 2), 2)); err != nil {
		t.Fatalf("add item b: %v", err)
	}
	if !sale.Total().Equal(decimal.RequireFromString("21")) {
		t.Fatalf("expected total 21, got %s", sale.Total())
	}

	if err := sale.SetItemQuantity("item-a", 1); err != nil {
		t.Fatalf("set quantity: %v", err)
	}
	if !sale.Total().Equal(decimal.RequireFromString("11")) {
		t.Fatalf("expected total 11 after quantity change, got %s", sale.Total())
	}

	if err := sale.SetItemUnitPrice("item-b", decimal.RequireFromString("2.50")); err != nil {
		t.Fatalf("set price: %v", err)
	}
	if !sale.Total().Equal(decimal.RequireFromString("10")) {
		t.Fatalf("expected total 10 after price change, got %s", sale.Total())
	}

	removed, err := sale.RemoveItem("item-a")
	if err != nil {
		t.Fatalf("remove item: %v", err)
	}
	if removed.Quantity != 1 || removed.MedicineID != "a" {
		t.Fatalf("unexpected removed item %+v", removed)
	}
	if !sale.Total().Equal(decimal.RequireFromString("5")) {
		t.Fatalf("expected total 5 after removal, got %s", sale.Total())
	}
	if sale.ItemCount() != 1 {
		t.Fatalf("expected one remaining item, got %d", sale.ItemCount())
	}
}

func TestAddItemSetsOwningSale(t *testing.T) {
	sale := NewSale("sale-7", Customer{ID: "cust-1"}, PaymentCard, time.Now())
	item := NewSaleItem("item-1", testMedicine("a", "1.25", 5), 4)
	item.SaleID = "something-else"
	if err := sale.AddItem(item); err != nil {
		t.Fatalf("add item: %v", err)
	}

	got, ok := sale.Item("item-1")
	if !ok {
		t.Fatalf("expected item to be found")
	}
	if got.SaleID != "sale-7" {
		t.Fatalf("expected sale id back-reference, got %s", got.SaleID)
	}
	if !got.Subtotal.Equal(decimal.RequireFromString("5")) {
		t.Fatalf("expected subtotal 5, got %s", got.Subtotal)
	}
}

func TestAddItemRejectsInvalidLines(t *testing.T) {
	sale := NewSale("sale-1", Customer{ID: "cust-1"}, PaymentCash, time.Now())
	if err := sale.AddItem(NewSaleItem("x", testMedicine("a", "1", 1), 0)); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected invalid quantity, got %v", err)
	}
	if err := sale.AddItem(NewSaleItem("x", testMedicine("a", "-1", 1), 1)); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected invalid price, got %v", err)
	}
	if _, err := sale.RemoveItem("missing"); !errors.Is(err, ErrSaleItemNotFound) {
		t.Fatalf("expected item not found, got %v", err)
	}
	if !sale.Total().IsZero() {
		t.Fatalf("expected zero total, got %s", sale.Total())
	}
}

func TestItemsReturnsCopy(t *testing.T) {
	sale := NewSale("sale-1", Customer{ID: "cust-1"}, PaymentCash, time.Now())
	_ = sale.AddItem(NewSaleItem("item-1", testMedicine("a", "2", 5), 2))

	items := sale.Items()
	items[0].Quantity = 50
	items[0].Subtotal = decimal.RequireFromString("100")

	if !sale.Total().Equal(decimal.RequireFromString("4")) {
		t.Fatalf("expected total unaffected by external edits, got %s", sale.Total())
	}
	got, _ := sale.Item("item-1")
	if got.Quantity != 2 {
		t.Fatalf("expected quantity 2, got %d", got.Quantity)
	}
}

func TestBillNumberAssignedOnce(t *testing.T) {
	sale := NewSale("sale-1", Customer{ID: "cust-1"}, PaymentCash, time.Now())
	if err := sale.AssignBillNumber("B042"); err != nil {
		t.Fatalf("assign bill: %v", err)
	}
	if err := sale.AssignBillNumber("B043"); !errors.Is(err, ErrBillNumberSet) {
		t.Fatalf("expected bill already set, got %v", err)
	}
	if sale.BillNumber() != "B042" {
		t.Fatalf("expected B042, got %s", sale.BillNumber())
	}
}

func TestRestoreSaleRecomputesTotal(t *testing.T) {
	sale := RestoreSale(SaleHeader{ID: "sale-9", BillNumber: "B009"}, []SaleItem{
		{ID: "i1", MedicineID: "a", Quantity: 2, UnitPrice: decimal.RequireFromString("1.50"), Subtotal: decimal.RequireFromString("999")},
		{ID: "i2", MedicineID: "b", Quantity: 1, UnitPrice: decimal.RequireFromString("4")},
	})
	if !sale.Total().Equal(decimal.RequireFromString("7")) {
		t.Fatalf("expected total 7, got %s", sale.Total())
	}
	for _, item := range sale.Items() {
		if item.SaleID != "sale-9" {
			t.Fatalf("expected restored back-reference, got %s", item.SaleID)
		}
	}
}

func TestSaleJSONIgnoresStoredTotal(t *testing.T) {
	payload := []byte(`{"id":"sale-1","bill_number":"B001","payment_method":"card","total_amount":"1000",
		"items":[{"id":"i1","medicine_id":"a","quantity":3,"unit_price":"2.5"}]}`)

	var sale Sale
	if err := json.Unmarshal(payload, &sale); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !sale.Total().Equal(decimal.RequireFromString("7.5")) {
		t.Fatalf("expected derived total 7.5, got %s", sale.Total())
	}
	if sale.BillNumber() != "B001" {
		t.Fatalf("expected bill number B001, got %s", sale.BillNumber())
	}

	encoded, err := json.Marshal(&sale)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var shape map[string]any
	if err := json.Unmarshal(encoded, &shape); err != nil {
		t.Fatalf("decode shape: %v", err)
	}
	if shape["total_amount"] != "7.5" {
		t.Fatalf("expected total_amount 7.5, got %v", shape["total_amount"])
	}
}

func TestParsePaymentMethod(t *testing.T) {
	cases := map[string]PaymentMethod{
		"":         PaymentCash,
		"CASH":     PaymentCash,
		"card":     PaymentCard,
		"upi":      PaymentTransfer,
		"transfer": PaymentTransfer,
	}
	for raw, want := range cases {
		got, err := ParsePaymentMethod(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %s, got %s", raw, want, got)
		}
	}
	if _, err := ParsePaymentMethod("cheque"); !errors.Is(err, ErrUnknownPaymentMethod) {
		t.Fatalf("expected unknown payment method, got %v", err)
	}
}
