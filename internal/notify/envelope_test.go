package notify

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Stealph7/AgriConnect/internal/inventory"
	"github.com/Stealph7/AgriConnect/internal/user"
)

func buildInput(kind Kind) BuildInput {
	buyerID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	sellerID := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	return BuildInput{
		Kind:         kind,
		OrderID:      uuid.MustParse("33333333-3333-3333-3333-333333333333"),
		Quantity:     5,
		PricePerUnit: 2500,
		TotalAmount:  12500,
		Product: inventory.Product{
			ID:                uuid.MustParse("44444444-4444-4444-4444-444444444444"),
			SellerID:          sellerID,
			Name:              "Cacao",
			Unit:              "kg",
			Price:             2500,
			AvailableQuantity: 95,
			InitialQuantity:   100,
			Status:            inventory.ProductApproved,
		},
		Buyer:                     user.User{ID: buyerID, Name: "Awa", Phone: "22507000001", SMSOptIn: true},
		Seller:                    user.User{ID: sellerID, Name: "Kouame", Phone: "22507000002", SMSOptIn: true},
		LargeTransactionThreshold: 1_000_000,
	}
}

func TestBuildEnvelopes_CreatedPairs(t *testing.T) {
	in := buildInput(KindCreated)
	set := BuildEnvelopes(in)

	require.Len(t, set.Notifications, 2)
	require.Len(t, set.SMS, 2)
	assert.Equal(t, "transaction.created", set.WebhookEvent)
	assert.Equal(t, []uuid.UUID{in.Buyer.ID, in.Seller.ID}, set.WebhookOwners)

	assert.Equal(t, in.Buyer.ID, set.Notifications[0].UserID)
	assert.Equal(t, "Order created", set.Notifications[0].Title)
	assert.Contains(t, set.Notifications[0].Content, "5 kg of Cacao")
	assert.Contains(t, set.Notifications[0].Content, "12 500 FCFA")
	assert.Equal(t, in.Seller.ID, set.Notifications[1].UserID)
	assert.Equal(t, "New order received", set.Notifications[1].Title)

	assert.Equal(t, set.Notifications[0].Content, set.SMS[0].Text)
	assert.Equal(t, "pending", set.WebhookData["status"])
}

func TestBuildEnvelopes_Deterministic(t *testing.T) {
	in := buildInput(KindCompleted)
	first := BuildEnvelopes(in)
	second := BuildEnvelopes(in)
	require.Equal(t, first, second)
}

func TestBuildEnvelopes_CancelledCarriesReason(t *testing.T) {
	in := buildInput(KindCancelled)
	in.Reason = "buyer unreachable"
	set := BuildEnvelopes(in)

	for _, n := range set.Notifications {
		assert.Contains(t, n.Content, "Reason: buyer unreachable")
	}
	assert.Equal(t, "buyer unreachable", set.WebhookData["reason"])
	assert.Equal(t, "cancelled", set.WebhookData["status"])
}

func TestBuildEnvelopes_LargeTransactionNotifiesEachAdmin(t *testing.T) {
	in := buildInput(KindCompleted)
	in.TotalAmount = 2_000_000
	in.Admins = []user.User{
		{ID: uuid.New(), Role: user.RoleAdmin},
		{ID: uuid.New(), Role: user.RoleAdmin},
	}
	set := BuildEnvelopes(in)

	var adminNotes int
	for _, n := range set.Notifications {
		if n.Type == "large_transaction" {
			adminNotes++
			assert.Contains(t, n.Content, "2 000 000 FCFA")
		}
	}
	assert.Equal(t, 2, adminNotes)
}

func TestBuildEnvelopes_BelowThresholdSkipsAdmins(t *testing.T) {
	in := buildInput(KindCompleted)
	in.Admins = []user.User{{ID: uuid.New(), Role: user.RoleAdmin}}
	set := BuildEnvelopes(in)

	for _, n := range set.Notifications {
		assert.NotEqual(t, "large_transaction", n.Type)
	}
}

func TestBuildEnvelopes_LowStockAlertsSeller(t *testing.T) {
	in := buildInput(KindCompleted)
	in.Product.AvailableQuantity = 10 // exactly 10% of 100
	set := BuildEnvelopes(in)

	var found bool
	for _, n := range set.Notifications {
		if n.Type == "stock_alert" {
			found = true
			assert.Equal(t, in.Seller.ID, n.UserID)
			assert.Contains(t, n.Content, "10 kg left")
		}
	}
	require.True(t, found, "expected a stock_alert notification")
}

func TestBuildEnvelopes_LowStockOnlyOnCompletion(t *testing.T) {
	in := buildInput(KindCreated)
	in.Product.AvailableQuantity = 1
	set := BuildEnvelopes(in)

	for _, n := range set.Notifications {
		assert.NotEqual(t, "stock_alert", n.Type)
	}
}

func TestFormatAmount(t *testing.T) {
	cases := map[int64]string{
		0:          "0",
		999:        "999",
		1000:       "1 000",
		12500:      "12 500",
		1000000:    "1 000 000",
		1234567890: "1 234 567 890",
		-45000:     "-45 000",
	}
	for amount, want := range cases {
		assert.Equal(t, want, FormatAmount(amount), "amount %d", amount)
	}
}
