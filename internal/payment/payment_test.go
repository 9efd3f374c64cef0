package payment_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"testing"
	"time"

	"github.com/d9705996/clientportal/internal/db/dbtest"
	"github.com/d9705996/clientportal/internal/dossier"
	"github.com/d9705996/clientportal/internal/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/gorm"
)

const webhookSecret = "whsec_test_secret"

type mockSessions struct{ mock.Mock }

func (m *mockSessions) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	args := m.Called(ctx, params)
	sess, _ := args.Get(0).(*stripe.CheckoutSession)
	return sess, args.Error(1)
}

type fixture struct {
	db        *gorm.DB
	dossiers  *dossier.Service
	sessions  *mockSessions
	initiator *payment.Initiator
	receiver  *payment.Receiver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	svc := dossier.NewService(db)
	sessions := &mockSessions{}
	log := slog.New(slog.DiscardHandler)
	prices := map[string]string{"t1": "price_t1", "ta": "price_ta", "t2": "price_t2"}
	return &fixture{
		db:        db,
		dossiers:  svc,
		sessions:  sessions,
		initiator: payment.NewInitiator(sessions, svc, prices, "https://portal.test/", log, nil),
		receiver:  payment.NewReceiver(db, webhookSecret, svc, log, nil),
	}
}

func (f *fixture) createDossier(t *testing.T, ct string) *dossier.Dossier {
	t.Helper()
	d, err := f.dossiers.Create(context.Background(), dossier.CreateParams{OwnerID: "owner-1", CaseType: ct, Lang: "fr"})
	require.NoError(t, err)
	return d
}

func TestCheckout_BalanceNeverReachesProcessor(t *testing.T) {
	f := newFixture(t)
	for _, ct := range []string{"t1", "ta", "t2"} {
		d := f.createDossier(t, ct)
		for _, mode := range []string{"balance", "solde", "BALANCE"} {
			_, err := f.initiator.Checkout(context.Background(), payment.CheckoutRequest{
				DossierID: d.ID, CaseType: ct, FeeCategory: mode, Lang: "fr", OwnerID: "owner-1",
			})
			require.ErrorIs(t, err, payment.ErrBalanceUnsupported, "%s/%s", ct, mode)
		}
		got, err := f.dossiers.Get(context.Background(), d.ID)
		require.NoError(t, err)
		assert.Empty(t, got.CaseCode)
	}
	f.sessions.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
}

func TestCheckout_CreatesSession(t *testing.T) {
	f := newFixture(t)
	d := f.createDossier(t, "t1")

	var captured *stripe.CheckoutSessionParams
	f.sessions.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*stripe.CheckoutSessionParams) }).
		Return(&stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.test/cs_test_1"}, nil).
		Once()

	u, err := f.initiator.Checkout(context.Background(), payment.CheckoutRequest{
		DossierID: d.ID, CaseType: "t1", FeeCategory: "acompte", Lang: "en", OwnerID: "owner-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.test/cs_test_1", u)
	f.sessions.AssertExpectations(t)

	got, err := f.dossiers.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Regexp(t, dossier.CaseCodePattern, got.CaseCode)

	require.NotNil(t, captured)
	assert.Equal(t, "payment", *captured.Mode)
	require.Len(t, captured.LineItems, 1)
	assert.Equal(t, "price_t1", *captured.LineItems[0].Price)
	assert.Equal(t, int64(1), *captured.LineItems[0].Quantity)
	assert.Equal(t, d.ID, *captured.ClientReferenceID)
	assert.Equal(t, got.CaseCode, captured.Metadata["case_code"])
	assert.Equal(t, d.ID, captured.Metadata["dossier_id"])
	assert.Equal(t, "deposit", captured.Metadata["fee_category"])
	assert.Equal(t, "checkout:"+d.ID+":t1:deposit", *captured.IdempotencyKey)

	success, err := url.Parse(*captured.SuccessURL)
	require.NoError(t, err)
	assert.Equal(t, "/paiement/succes", success.Path)
	assert.Equal(t, d.ID, success.Query().Get("fid"))
	assert.Equal(t, "t1", success.Query().Get("type"))
	assert.Equal(t, "deposit", success.Query().Get("mode"))
	assert.Equal(t, "en", success.Query().Get("lang"))
	assert.Contains(t, *captured.CancelURL, "https://portal.test/paiement/annule?")
}

func TestCheckout_Validation(t *testing.T) {
	f := newFixture(t)
	d := f.createDossier(t, "t1")
	ctx := context.Background()

	var verr *payment.ValidationError
	_, err := f.initiator.Checkout(ctx, payment.CheckoutRequest{DossierID: d.ID, CaseType: "t9", FeeCategory: "deposit", OwnerID: "owner-1"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "type", verr.Field)

	_, err = f.initiator.Checkout(ctx, payment.CheckoutRequest{DossierID: d.ID, CaseType: "t1", FeeCategory: "tip", OwnerID: "owner-1"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "mode", verr.Field)

	_, err = f.initiator.Checkout(ctx, payment.CheckoutRequest{DossierID: d.ID, CaseType: "t2", FeeCategory: "deposit", OwnerID: "owner-1"})
	require.ErrorAs(t, err, &verr)

	_, err = f.initiator.Checkout(ctx, payment.CheckoutRequest{DossierID: d.ID, CaseType: "t1", FeeCategory: "deposit", OwnerID: "someone-else"})
	require.ErrorIs(t, err, dossier.ErrNotFound)

	f.sessions.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
}

func TestCheckout_MissingPrice(t *testing.T) {
	db := dbtest.Open(t)
	svc := dossier.NewService(db)
	sessions := &mockSessions{}
	initiator := payment.NewInitiator(sessions, svc, map[string]string{}, "https://portal.test", slog.New(slog.DiscardHandler), nil)
	d, err := svc.Create(context.Background(), dossier.CreateParams{OwnerID: "owner-1", CaseType: "ta"})
	require.NoError(t, err)

	_, err = initiator.Checkout(context.Background(), payment.CheckoutRequest{DossierID: d.ID, CaseType: "ta", FeeCategory: "deposit", OwnerID: "owner-1"})
	require.ErrorIs(t, err, payment.ErrPriceNotConfigured)
	sessions.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
}

func TestCheckout_ProcessorErrorMessageSurfaces(t *testing.T) {
	f := newFixture(t)
	d := f.createDossier(t, "t2")
	f.sessions.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Return(nil, &stripe.Error{Msg: "No such price: 'price_t2'"})

	_, err := f.initiator.Checkout(context.Background(), payment.CheckoutRequest{DossierID: d.ID, CaseType: "t2", FeeCategory: "deposit", OwnerID: "owner-1"})
	require.ErrorIs(t, err, payment.ErrProcessor)
	assert.Contains(t, err.Error(), "No such price")
}

func TestCheckout_NotConfigured(t *testing.T) {
	db := dbtest.Open(t)
	svc := dossier.NewService(db)
	initiator := payment.NewInitiator(nil, svc, nil, "https://portal.test", slog.New(slog.DiscardHandler), nil)

	_, err := initiator.Checkout(context.Background(), payment.CheckoutRequest{DossierID: "x", CaseType: "t1", FeeCategory: "deposit", OwnerID: "owner-1"})
	require.ErrorIs(t, err, payment.ErrNotConfigured)
}

func checkoutCompletedEvent(eventID, dossierID, paymentStatus string) []byte {
	return []byte(fmt.Sprintf(`{
  "id": %q,
  "object": "event",
  "type": "checkout.session.completed",
  "data": {"object": {
    "id": "cs_test_42",
    "object": "checkout.session",
    "client_reference_id": %q,
    "payment_status": %q,
    "metadata": {"dossier_id": %q, "fee_category": "deposit", "case_type": "t1"}
  }}
}`, eventID, dossierID, paymentStatus, dossierID))
}

func sign(payload []byte) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    webhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Header
}

func TestWebhook_InvalidSignatureMutatesNothing(t *testing.T) {
	f := newFixture(t)
	d := f.createDossier(t, "t1")
	payload := checkoutCompletedEvent("evt_1", d.ID, "paid")

	for _, header := range []string{"", "t=1,v1=deadbeef", sign([]byte(`{"id":"evt_other"}`))} {
		err := f.receiver.Handle(context.Background(), payload, header)
		require.ErrorIs(t, err, payment.ErrInvalidSignature)
	}

	got, err := f.dossiers.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.False(t, got.DepositPaid())
}

func TestWebhook_CheckoutCompletedMarksDeposit(t *testing.T) {
	f := newFixture(t)
	d := f.createDossier(t, "t1")
	payload := checkoutCompletedEvent("evt_2", d.ID, "paid")

	require.NoError(t, f.receiver.Handle(context.Background(), payload, sign(payload)))
	got, err := f.dossiers.Get(context.Background(), d.ID)
	require.NoError(t, err)
	require.True(t, got.DepositPaid())
	paidAt := *got.DepositPaidAt

	// Redelivery is acknowledged without reapplying.
	require.NoError(t, f.receiver.Handle(context.Background(), payload, sign(payload)))
	got, err = f.dossiers.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.True(t, paidAt.Equal(*got.DepositPaidAt))
}

func TestWebhook_UnpaidOrUnknownIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	d := f.createDossier(t, "t1")

	unpaid := checkoutCompletedEvent("evt_3", d.ID, "unpaid")
	require.NoError(t, f.receiver.Handle(context.Background(), unpaid, sign(unpaid)))
	got, err := f.dossiers.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.False(t, got.DepositPaid())

	unknown := checkoutCompletedEvent("evt_4", "no-such-dossier", "paid")
	require.NoError(t, f.receiver.Handle(context.Background(), unknown, sign(unknown)))

	other := []byte(`{"id":"evt_5","object":"event","type":"invoice.paid","data":{"object":{}}}`)
	require.NoError(t, f.receiver.Handle(context.Background(), other, sign(other)))
}

func TestWebhook_NotConfigured(t *testing.T) {
	r := payment.NewReceiver(dbtest.Open(t), "", nil, slog.New(slog.DiscardHandler), nil)
	err := r.Handle(context.Background(), []byte(`{}`), "")
	require.True(t, errors.Is(err, payment.ErrNotConfigured))
}
