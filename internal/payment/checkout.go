// Package payment creates hosted checkout sessions for dossier deposits and
// applies the processor's webhook events.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/d9705996/clientportal/internal/dossier"
	"github.com/d9705996/clientportal/internal/lang"
	"github.com/d9705996/clientportal/internal/observability"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

var (
	// ErrBalanceUnsupported rejects balance checkouts: the balance is billed
	// later at an amount not known when the dossier is opened.
	ErrBalanceUnsupported = errors.New("balance payments are billed later and cannot be paid online yet")
	// ErrPriceNotConfigured means no deposit price exists for the case type.
	ErrPriceNotConfigured = errors.New("deposit price is not configured for this case type")
	// ErrNotConfigured means the processor credentials are missing.
	ErrNotConfigured = errors.New("payment processor is not configured")
	// ErrAlreadyPaid is returned when the deposit was already confirmed.
	ErrAlreadyPaid = errors.New("deposit has already been paid")
	// ErrProcessor wraps failures reported by the processor.
	ErrProcessor = errors.New("payment processor error")
)

// Fee categories.
const (
	FeeDeposit = "deposit"
	FeeBalance = "balance"
)

var feeAliases = map[string]string{
	"deposit": FeeDeposit,
	"acompte": FeeDeposit,
	"balance": FeeBalance,
	"solde":   FeeBalance,
}

// ValidationError reports a rejected checkout input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }

// SessionCreator creates hosted checkout sessions.
type SessionCreator interface {
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeSessions is the SessionCreator backed by the Stripe API.
type StripeSessions struct {
	api *client.API
}

// NewStripeSessions returns a client authenticated with secretKey.
func NewStripeSessions(secretKey string) *StripeSessions {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeSessions{api: api}
}

func (s *StripeSessions) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	params.Context = ctx
	return s.api.CheckoutSessions.New(params)
}

// Dossiers is the slice of the dossier store the initiator needs.
type Dossiers interface {
	GetOwned(ctx context.Context, id, ownerID string) (*dossier.Dossier, error)
	EnsureCaseCode(ctx context.Context, id string) (string, error)
}

// CheckoutRequest is one "pay the deposit" click.
type CheckoutRequest struct {
	DossierID   string
	CaseType    string
	FeeCategory string
	Lang        string
	OwnerID     string
}

// Initiator turns a checkout request into a hosted checkout URL.
type Initiator struct {
	sessions   SessionCreator
	dossiers   Dossiers
	prices     map[string]string
	siteOrigin string
	log        *slog.Logger
	inst       *observability.Instruments
}

// NewInitiator creates an Initiator. sessions may be nil when no secret key is
// configured; Checkout then fails with ErrNotConfigured.
func NewInitiator(sessions SessionCreator, dossiers Dossiers, prices map[string]string, siteOrigin string, log *slog.Logger, inst *observability.Instruments) *Initiator {
	return &Initiator{
		sessions:   sessions,
		dossiers:   dossiers,
		prices:     prices,
		siteOrigin: strings.TrimRight(siteOrigin, "/"),
		log:        log,
		inst:       inst,
	}
}

// Checkout validates the request, assigns the case code and asks the
// processor for a session. It returns the hosted checkout URL.
func (i *Initiator) Checkout(ctx context.Context, req CheckoutRequest) (string, error) {
	if strings.TrimSpace(req.DossierID) == "" {
		return "", &ValidationError{Field: "fid", Message: "dossier id is required"}
	}
	ct, ok := dossier.ParseCaseType(req.CaseType)
	if !ok {
		return "", &ValidationError{Field: "type", Message: "must be one of t1, ta, t2"}
	}
	fee, ok := feeAliases[strings.ToLower(strings.TrimSpace(req.FeeCategory))]
	if !ok {
		return "", &ValidationError{Field: "mode", Message: "must be deposit"}
	}
	if fee == FeeBalance {
		return "", ErrBalanceUnsupported
	}
	if i.sessions == nil {
		return "", ErrNotConfigured
	}

	d, err := i.dossiers.GetOwned(ctx, req.DossierID, req.OwnerID)
	if err != nil {
		return "", err
	}
	if d.CaseType != ct {
		return "", &ValidationError{Field: "type", Message: "does not match the dossier case type"}
	}
	if d.DepositPaid() {
		return "", ErrAlreadyPaid
	}

	code, err := i.dossiers.EnsureCaseCode(ctx, d.ID)
	if err != nil {
		return "", fmt.Errorf("ensure case code: %w", err)
	}
	price := i.prices[string(ct)]
	if price == "" {
		return "", fmt.Errorf("%w: %s", ErrPriceNotConfigured, ct)
	}

	l := lang.OrDefault(req.Lang)
	q := url.Values{
		"fid":  {d.ID},
		"type": {string(ct)},
		"mode": {fee},
		"lang": {string(l)},
	}.Encode()

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(price), Quantity: stripe.Int64(1)},
		},
		ClientReferenceID: stripe.String(d.ID),
		SuccessURL:        stripe.String(i.siteOrigin + "/paiement/succes?" + q),
		CancelURL:         stripe.String(i.siteOrigin + "/paiement/annule?" + q),
	}
	params.AddMetadata("dossier_id", d.ID)
	params.AddMetadata("case_code", code)
	params.AddMetadata("case_type", string(ct))
	params.AddMetadata("fee_category", fee)
	params.AddMetadata("lang", string(l))
	params.SetIdempotencyKey(IdempotencyKey(d.ID, string(ct), fee))

	sess, err := i.sessions.CreateCheckoutSession(ctx, params)
	if err != nil {
		i.inst.CheckoutSession(ctx, string(ct), "error")
		var se *stripe.Error
		if errors.As(err, &se) && se.Msg != "" {
			return "", fmt.Errorf("%w: %s", ErrProcessor, se.Msg)
		}
		return "", fmt.Errorf("%w: %v", ErrProcessor, err)
	}
	i.inst.CheckoutSession(ctx, string(ct), "created")
	i.log.Info("checkout session created", "dossier_id", d.ID, "case_code", code, "session_id", sess.ID)
	return sess.URL, nil
}

// IdempotencyKey is the processor idempotency key for one (dossier, type,
// fee) triple, so repeated clicks reuse the same session.
func IdempotencyKey(dossierID, caseType, fee string) string {
	return fmt.Sprintf("checkout:%s:%s:%s", dossierID, caseType, fee)
}
