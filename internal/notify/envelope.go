package notify

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/Stealph7/AgriConnect/internal/inventory"
	"github.com/Stealph7/AgriConnect/internal/user"
)

// Kind names a transaction transition.
type Kind string

const (
	KindCreated   Kind = "created"
	KindCompleted Kind = "completed"
	KindCancelled Kind = "cancelled"
)

// WebhookEvent returns the wire event name for a transition.
func (k Kind) WebhookEvent() string { return "transaction." + string(k) }

// NotificationEnvelope describes one in-app notification to persist.
type NotificationEnvelope struct {
	UserID  uuid.UUID
	Type    string
	Title   string
	Content string
	Data    map[string]any
}

// SMSEnvelope describes one text message to hand to the SMS gateway.
type SMSEnvelope struct {
	UserID   uuid.UUID
	Phone    string
	SMSOptIn bool
	Text     string
}

// EnvelopeSet is everything a transition wants delivered. It is a plain value:
// building it performs no I/O.
type EnvelopeSet struct {
	Notifications []NotificationEnvelope
	SMS           []SMSEnvelope
	WebhookEvent  string
	WebhookData   map[string]any
	// WebhookOwners are the users whose registered endpoints should receive
	// the event.
	WebhookOwners []uuid.UUID
}

// BuildInput is the full snapshot a transition is described by. Everything the
// builder needs is passed in; it never reads a clock or storage.
type BuildInput struct {
	Kind         Kind
	OrderID      uuid.UUID
	Quantity     int
	PricePerUnit int64
	TotalAmount  int64
	Reason       string

	Product inventory.Product
	Buyer   user.User
	Seller  user.User
	Admins  []user.User

	LargeTransactionThreshold int64
}

// BuildEnvelopes is a pure function of its input: identical input yields an
// identical envelope set. For every transition it produces one notification
// and one SMS envelope for the buyer and one pair for the seller; completion
// additionally fans out to admins above the large-transaction threshold and
// warns the seller when remaining stock drops to 10% of the initial quantity.
func BuildEnvelopes(in BuildInput) EnvelopeSet {
	amount := FormatAmount(in.TotalAmount)
	qty := in.Quantity
	unit := in.Product.Unit
	name := in.Product.Name

	data := map[string]any{
		"transaction_id": in.OrderID.String(),
		"product_id":     in.Product.ID.String(),
		"amount":         in.TotalAmount,
	}

	var buyerTitle, buyerText, sellerTitle, sellerText, notifType string
	switch in.Kind {
	case KindCreated:
		notifType = "transaction_created"
		buyerTitle = "Order created"
		buyerText = fmt.Sprintf("Your order of %d %s of %s for %s FCFA has been created.", qty, unit, name, amount)
		sellerTitle = "New order received"
		sellerText = fmt.Sprintf("You received an order for %d %s of %s worth %s FCFA.", qty, unit, name, amount)
	case KindCompleted:
		notifType = "transaction_completed"
		buyerTitle = "Order completed"
		buyerText = fmt.Sprintf("Your order of %d %s of %s has been completed.", qty, unit, name)
		sellerTitle = "Sale completed"
		sellerText = fmt.Sprintf("Your sale of %d %s of %s has been completed.", qty, unit, name)
	case KindCancelled:
		notifType = "transaction_cancelled"
		suffix := ""
		if in.Reason != "" {
			suffix = " Reason: " + in.Reason
		}
		buyerTitle = "Order cancelled"
		buyerText = fmt.Sprintf("Your order of %d %s of %s has been cancelled.%s", qty, unit, name, suffix)
		sellerTitle = "Sale cancelled"
		sellerText = fmt.Sprintf("The sale of %d %s of %s has been cancelled.%s", qty, unit, name, suffix)
	}

	set := EnvelopeSet{
		Notifications: []NotificationEnvelope{
			{UserID: in.Buyer.ID, Type: notifType, Title: buyerTitle, Content: buyerText, Data: data},
			{UserID: in.Seller.ID, Type: notifType, Title: sellerTitle, Content: sellerText, Data: data},
		},
		SMS: []SMSEnvelope{
			{UserID: in.Buyer.ID, Phone: in.Buyer.Phone, SMSOptIn: in.Buyer.SMSOptIn, Text: buyerText},
			{UserID: in.Seller.ID, Phone: in.Seller.Phone, SMSOptIn: in.Seller.SMSOptIn, Text: sellerText},
		},
		WebhookEvent:  in.Kind.WebhookEvent(),
		WebhookData:   webhookData(in),
		WebhookOwners: []uuid.UUID{in.Buyer.ID, in.Seller.ID},
	}

	if in.Kind == KindCompleted {
		if in.LargeTransactionThreshold > 0 && in.TotalAmount >= in.LargeTransactionThreshold {
			for _, admin := range in.Admins {
				set.Notifications = append(set.Notifications, NotificationEnvelope{
					UserID:  admin.ID,
					Type:    "large_transaction",
					Title:   "Large transaction detected",
					Content: fmt.Sprintf("A transaction of %s FCFA has been completed.", amount),
					Data:    data,
				})
			}
		}
		if in.Product.InitialQuantity > 0 && in.Product.AvailableQuantity*10 <= in.Product.InitialQuantity {
			set.Notifications = append(set.Notifications, NotificationEnvelope{
				UserID:  in.Seller.ID,
				Type:    "stock_alert",
				Title:   "Low stock",
				Content: fmt.Sprintf("Stock for %s is low (%d %s left).", name, in.Product.AvailableQuantity, unit),
				Data: map[string]any{
					"product_id": in.Product.ID.String(),
					"quantity":   in.Product.AvailableQuantity,
				},
			})
		}
	}

	return set
}

func webhookData(in BuildInput) map[string]any {
	status := "pending"
	switch in.Kind {
	case KindCompleted:
		status = "completed"
	case KindCancelled:
		status = "cancelled"
	}
	data := map[string]any{
		"id":           in.OrderID.String(),
		"buyerId":      in.Buyer.ID.String(),
		"sellerId":     in.Seller.ID.String(),
		"productId":    in.Product.ID.String(),
		"productName":  in.Product.Name,
		"quantity":     in.Quantity,
		"unit":         in.Product.Unit,
		"pricePerUnit": in.PricePerUnit,
		"totalAmount":  in.TotalAmount,
		"status":       status,
	}
	if in.Kind == KindCancelled && in.Reason != "" {
		data["reason"] = in.Reason
	}
	return data
}

// FormatAmount renders whole FCFA with space-separated thousands, the way
// amounts read on the marketplace ("1 250 000").
func FormatAmount(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	s := fmt.Sprintf("%d", amount)
	if len(s) > 3 {
		var out []byte
		lead := len(s) % 3
		if lead > 0 {
			out = append(out, s[:lead]...)
		}
		for i := lead; i < len(s); i += 3 {
			if len(out) > 0 {
				out = append(out, ' ')
			}
			out = append(out, s[i:i+3]...)
		}
		s = string(out)
	}
	if neg {
		return "-" + s
	}
	return s
}
