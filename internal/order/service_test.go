package order

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Stealph7/AgriConnect/internal/inventory"
	"github.com/Stealph7/AgriConnect/internal/notify"
	"github.com/Stealph7/AgriConnect/internal/user"
)

type fakeLedger struct {
	product    inventory.Product
	reserveErr error
	commits    []uuid.UUID
	releases   []uuid.UUID
}

func (f *fakeLedger) ReserveWithTx(_ context.Context, _ pgx.Tx, orderID, productID uuid.UUID, quantity int) (inventory.Reservation, inventory.Product, error) {
	if f.reserveErr != nil {
		return inventory.Reservation{}, inventory.Product{}, f.reserveErr
	}
	res := inventory.Reservation{
		ID: uuid.New(), OrderID: orderID, ProductID: productID,
		Quantity: quantity, Status: inventory.ReservationActive,
	}
	return res, f.product, nil
}

func (f *fakeLedger) ReleaseWithTx(_ context.Context, _ pgx.Tx, orderID uuid.UUID) error {
	f.releases = append(f.releases, orderID)
	return nil
}

func (f *fakeLedger) CommitWithTx(_ context.Context, _ pgx.Tx, orderID uuid.UUID) error {
	f.commits = append(f.commits, orderID)
	return nil
}

func (f *fakeLedger) GetProduct(_ context.Context, _ uuid.UUID) (inventory.Product, error) {
	return f.product, nil
}

type fakeOrders struct {
	byID      map[uuid.UUID]*Transaction
	created   []*Transaction
	createErr error
	flipOK    bool
}

func (f *fakeOrders) CreateWithTx(_ context.Context, _ pgx.Tx, t *Transaction) error {
	if f.createErr != nil {
		return f.createErr
	}
	t.RecomputeTotal()
	f.created = append(f.created, t)
	return nil
}

func (f *fakeOrders) GetByID(_ context.Context, id uuid.UUID) (*Transaction, error) {
	if t, ok := f.byID[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (f *fakeOrders) ListByUser(_ context.Context, _ uuid.UUID) ([]Transaction, error) {
	return nil, nil
}

func (f *fakeOrders) MarkCompletedWithTx(_ context.Context, _ pgx.Tx, _ uuid.UUID, _ time.Time) (bool, error) {
	return f.flipOK, nil
}

func (f *fakeOrders) MarkCancelledWithTx(_ context.Context, _ pgx.Tx, _ uuid.UUID, _ string, _ time.Time) (bool, error) {
	return f.flipOK, nil
}

type fakeDirectory struct {
	users  map[uuid.UUID]user.User
	admins []user.User
}

func (f *fakeDirectory) Get(_ context.Context, id uuid.UUID) (user.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return user.User{}, user.ErrNotFound
}

func (f *fakeDirectory) Admins(_ context.Context) ([]user.User, error) {
	return f.admins, nil
}

type fakeDispatcher struct {
	sets []notify.EnvelopeSet
}

func (f *fakeDispatcher) Dispatch(_ context.Context, set notify.EnvelopeSet) {
	f.sets = append(f.sets, set)
}

type fixture struct {
	mock       pgxmock.PgxPoolIface
	ledger     *fakeLedger
	orders     *fakeOrders
	dir        *fakeDirectory
	dispatcher *fakeDispatcher
	svc        *Service

	buyer  user.User
	seller user.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	buyer := user.User{ID: uuid.New(), Name: "Awa", Phone: "22507000001", Role: user.RoleAcheteur, SMSOptIn: true}
	seller := user.User{ID: uuid.New(), Name: "Kouame", Phone: "22507000002", Role: user.RoleProducteur, SMSOptIn: true}

	ledger := &fakeLedger{product: inventory.Product{
		ID: uuid.New(), SellerID: seller.ID, Name: "Cacao", Unit: "kg",
		Price: 2500, AvailableQuantity: 4, InitialQuantity: 10, Status: inventory.ProductApproved,
	}}
	orders := &fakeOrders{byID: map[uuid.UUID]*Transaction{}, flipOK: true}
	dir := &fakeDirectory{users: map[uuid.UUID]user.User{buyer.ID: buyer, seller.ID: seller}}
	dispatcher := &fakeDispatcher{}

	svc := NewService(mock, orders, ledger, dir, dispatcher, 1_000_000, log.New(io.Discard, "", 0))
	return &fixture{
		mock: mock, ledger: ledger, orders: orders, dir: dir,
		dispatcher: dispatcher, svc: svc, buyer: buyer, seller: seller,
	}
}

func (fx *fixture) pendingTransaction() *Transaction {
	t := &Transaction{
		ID:           uuid.New(),
		BuyerID:      fx.buyer.ID,
		SellerID:     fx.seller.ID,
		ProductID:    fx.ledger.product.ID,
		Quantity:     5,
		PricePerUnit: 2500,
		Status:       StatusPending,
		CreatedAt:    time.Now().UTC(),
	}
	t.RecomputeTotal()
	fx.orders.byID[t.ID] = t
	return t
}

func TestCreate_ReservesAndPersists(t *testing.T) {
	fx := newFixture(t)
	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()

	got, err := fx.svc.Create(context.Background(), fx.buyer.ID, fx.ledger.product.ID, 5)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, fx.seller.ID, got.SellerID)
	assert.Equal(t, int64(2500), got.PricePerUnit)
	assert.Equal(t, int64(12500), got.TotalAmount)
	require.Len(t, fx.orders.created, 1)

	require.Len(t, fx.dispatcher.sets, 1)
	assert.Equal(t, "transaction.created", fx.dispatcher.sets[0].WebhookEvent)
	require.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestCreate_InsufficientStockSurfacesAndSkipsSideEffects(t *testing.T) {
	fx := newFixture(t)
	fx.ledger.reserveErr = inventory.ErrInsufficientStock
	fx.mock.ExpectBegin()
	fx.mock.ExpectRollback()

	_, err := fx.svc.Create(context.Background(), fx.buyer.ID, fx.ledger.product.ID, 5)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	assert.Empty(t, fx.orders.created)
	assert.Empty(t, fx.dispatcher.sets)
}

func TestCreate_PersistFailureRollsBackReservation(t *testing.T) {
	fx := newFixture(t)
	fx.orders.createErr = errors.New("insert failed")
	fx.mock.ExpectBegin()
	fx.mock.ExpectRollback()

	_, err := fx.svc.Create(context.Background(), fx.buyer.ID, fx.ledger.product.ID, 5)
	require.Error(t, err)
	assert.Empty(t, fx.dispatcher.sets)
	require.NoError(t, fx.mock.ExpectationsWereMet())
}

func TestCreate_RejectsZeroQuantity(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.Create(context.Background(), fx.buyer.ID, fx.ledger.product.ID, 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestComplete_BySeller(t *testing.T) {
	fx := newFixture(t)
	tr := fx.pendingTransaction()
	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()

	got, err := fx.svc.Complete(context.Background(), tr.ID, fx.seller.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, []uuid.UUID{tr.ID}, fx.ledger.commits)
	require.Len(t, fx.dispatcher.sets, 1)
	assert.Equal(t, "transaction.completed", fx.dispatcher.sets[0].WebhookEvent)
}

func TestComplete_BuyerIsForbidden(t *testing.T) {
	fx := newFixture(t)
	tr := fx.pendingTransaction()

	_, err := fx.svc.Complete(context.Background(), tr.ID, fx.buyer.ID)
	require.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, fx.ledger.commits)
	assert.Empty(t, fx.dispatcher.sets)
}

func TestComplete_AdminAllowed(t *testing.T) {
	fx := newFixture(t)
	admin := user.User{ID: uuid.New(), Role: user.RoleAdmin}
	fx.dir.users[admin.ID] = admin
	tr := fx.pendingTransaction()
	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()

	_, err := fx.svc.Complete(context.Background(), tr.ID, admin.ID)
	require.NoError(t, err)
}

func TestComplete_TerminalStateIsIllegal(t *testing.T) {
	fx := newFixture(t)
	tr := fx.pendingTransaction()
	now := time.Now().UTC()
	fx.orders.byID[tr.ID].Status = StatusCancelled
	fx.orders.byID[tr.ID].CancelledAt = &now

	_, err := fx.svc.Complete(context.Background(), tr.ID, fx.seller.ID)
	require.ErrorIs(t, err, ErrIllegalTransition)
	assert.Empty(t, fx.ledger.commits)
	assert.Empty(t, fx.dispatcher.sets)
}

func TestComplete_LostRaceIsIllegal(t *testing.T) {
	fx := newFixture(t)
	tr := fx.pendingTransaction()
	fx.orders.flipOK = false
	fx.mock.ExpectBegin()
	fx.mock.ExpectRollback()

	_, err := fx.svc.Complete(context.Background(), tr.ID, fx.seller.ID)
	require.ErrorIs(t, err, ErrIllegalTransition)
	assert.Empty(t, fx.ledger.commits)
	assert.Empty(t, fx.dispatcher.sets)
}

func TestComplete_LargeTransactionFansOutToAdmins(t *testing.T) {
	fx := newFixture(t)
	fx.dir.admins = []user.User{
		{ID: uuid.New(), Role: user.RoleAdmin},
		{ID: uuid.New(), Role: user.RoleAdmin},
	}
	tr := fx.pendingTransaction()
	fx.orders.byID[tr.ID].Quantity = 500
	fx.orders.byID[tr.ID].RecomputeTotal() // 1 250 000 FCFA
	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()

	_, err := fx.svc.Complete(context.Background(), tr.ID, fx.seller.ID)
	require.NoError(t, err)

	require.Len(t, fx.dispatcher.sets, 1)
	var adminNotes int
	for _, n := range fx.dispatcher.sets[0].Notifications {
		if n.Type == "large_transaction" {
			adminNotes++
		}
	}
	assert.Equal(t, 2, adminNotes)
}

func TestCancel_ByBuyerReleasesStock(t *testing.T) {
	fx := newFixture(t)
	tr := fx.pendingTransaction()
	fx.mock.ExpectBegin()
	fx.mock.ExpectCommit()

	got, err := fx.svc.Cancel(context.Background(), tr.ID, fx.buyer.ID, "changed my mind")
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, "changed my mind", got.CancellationReason)
	assert.Equal(t, []uuid.UUID{tr.ID}, fx.ledger.releases)
	require.Len(t, fx.dispatcher.sets, 1)
	assert.Equal(t, "transaction.cancelled", fx.dispatcher.sets[0].WebhookEvent)
}

func TestCancel_StrangerIsForbidden(t *testing.T) {
	fx := newFixture(t)
	stranger := user.User{ID: uuid.New(), Role: user.RoleAcheteur}
	fx.dir.users[stranger.ID] = stranger
	tr := fx.pendingTransaction()

	_, err := fx.svc.Cancel(context.Background(), tr.ID, stranger.ID, "")
	require.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, fx.ledger.releases)
}

func TestCancel_TerminalStateIsIllegal(t *testing.T) {
	fx := newFixture(t)
	tr := fx.pendingTransaction()
	now := time.Now().UTC()
	fx.orders.byID[tr.ID].Status = StatusCompleted
	fx.orders.byID[tr.ID].CompletedAt = &now

	_, err := fx.svc.Cancel(context.Background(), tr.ID, fx.buyer.ID, "")
	require.ErrorIs(t, err, ErrIllegalTransition)
	assert.Empty(t, fx.ledger.releases)
	assert.Empty(t, fx.dispatcher.sets)
}

func TestCancel_UnknownTransaction(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.Cancel(context.Background(), uuid.New(), fx.buyer.ID, "")
	require.ErrorIs(t, err, ErrNotFound)
}
