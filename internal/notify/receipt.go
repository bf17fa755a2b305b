package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"pharmapos/backend/internal/domain"
)

const defaultSendTimeout = 30 * time.Second

// RenderReceipt builds the plain-text receipt mail for a sale.
func RenderReceipt(sale *domain.Sale, loc *time.Location) Message {
	if loc == nil {
		loc = time.Local
	}
	name := domain.WalkInCustomerName
	if sale.Customer != nil && sale.Customer.Name != "" {
		name = sale.Customer.Name
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", name)
	b.WriteString("Thank you for your purchase.\n\n")
	fmt.Fprintf(&b, "Bill Number: %s\n", sale.BillNumber())
	fmt.Fprintf(&b, "Date: %s\n\n", sale.SaleDate.In(loc).Format("2006-01-02 15:04"))
	b.WriteString("Items:\n")
	for _, item := range sale.Items() {
		fmt.Fprintf(&b, "- %s x%d = %s\n", item.MedicineName, item.Quantity, item.Subtotal.StringFixed(2))
	}
	fmt.Fprintf(&b, "\nTotal: %s\n", sale.Total().StringFixed(2))
	fmt.Fprintf(&b, "Payment Method: %s\n", strings.ToUpper(string(sale.PaymentMethod)))

	return Message{
		Subject: "Your Pharmacy Bill - " + sale.BillNumber(),
		Body:    b.String(),
	}
}

// ReceiptNotifier mails receipts. Failures never affect the sale.
type ReceiptNotifier struct {
	mailer  Mailer
	loc     *time.Location
	timeout time.Duration
}

func NewReceiptNotifier(mailer Mailer, loc *time.Location) *ReceiptNotifier {
	return &ReceiptNotifier{mailer: mailer, loc: loc, timeout: defaultSendTimeout}
}

func (n *ReceiptNotifier) Send(ctx context.Context, sale *domain.Sale, email string) error {
	msg := RenderReceipt(sale, n.loc)
	msg.To = email
	return n.mailer.Send(ctx, msg)
}

// NotifyAsync sends in the background and only logs failures.
func (n *ReceiptNotifier) NotifyAsync(sale *domain.Sale, email string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.Send(ctx, sale, email); err != nil {
			log.Printf("[notify] WARN: receipt for bill %s to %s failed: %v", sale.BillNumber(), email, err)
		}
	}()
}
