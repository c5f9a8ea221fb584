package dispatch

import (
	"fmt"
	"strings"

	"github.com/vadimtkacj1/juice-dispatch/internal/models"
)

const (
	takeOrderLabel = "🚚 Take order"
	deliveredLabel = "✅ Mark as delivered"

	alreadyTakenReply    = "This order was already taken by another courier."
	notFoundReply        = "Order not found or already delivered."
	deliveredThanksReply = "Order #%d marked as delivered. Thank you!"

	notProvided = "not provided"
)

func orDefault(s *string, def string) string {
	if s == nil || *s == "" {
		return def
	}
	return *s
}

// stage1Text — полное сообщение о заказе для бродкаста всем курьерам.
// Порядок полей фиксирован: админка и курьеры привыкли его сканировать глазами.
func stage1Text(o *models.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🆕 New order #%d\n\n", o.ID)
	fmt.Fprintf(&b, "👤 Customer: %s\n", o.CustomerName)
	fmt.Fprintf(&b, "📞 Phone: %s\n", orDefault(o.CustomerPhone, notProvided))
	fmt.Fprintf(&b, "✉️ Email: %s\n", orDefault(o.CustomerEmail, notProvided))
	if o.DeliveryAddress != nil && *o.DeliveryAddress != "" {
		fmt.Fprintf(&b, "📍 Address: %s\n", *o.DeliveryAddress)
	}
	fmt.Fprintf(&b, "💰 Total: ₪%.2f\n", o.TotalAmount)
	if len(o.Items) > 0 {
		b.WriteString("🧾 Items:\n")
		for _, it := range o.Items {
			fmt.Fprintf(&b, "  • %d x %s\n", it.Quantity, it.Name)
		}
	}
	if o.Notes != nil && *o.Notes != "" {
		fmt.Fprintf(&b, "📝 Notes: %s\n", *o.Notes)
	}
	fmt.Fprintf(&b, "🕒 Ordered at: %s\n", o.CreatedAt.Local().Format("02.01.2006 15:04"))
	b.WriteString("\nPress the button below to take this order.")
	return b.String()
}

func claimConfirmText(o *models.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Order #%d is yours!\n\n", o.ID)
	writeClaimDetails(&b, o)
	return b.String()
}

// Напоминание взявшему курьеру нарочно короче полного сообщения.
func claimReminderText(o *models.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⏰ Order #%d is still in progress.\n\n", o.ID)
	writeClaimDetails(&b, o)
	return b.String()
}

func writeClaimDetails(b *strings.Builder, o *models.Order) {
	fmt.Fprintf(b, "👤 Customer: %s\n", o.CustomerName)
	fmt.Fprintf(b, "📞 Phone: %s\n", orDefault(o.CustomerPhone, notProvided))
	if o.DeliveryAddress != nil && *o.DeliveryAddress != "" {
		fmt.Fprintf(b, "📍 Address: %s\n", *o.DeliveryAddress)
	}
	b.WriteString("\nPress the button below once the order is delivered.")
}
