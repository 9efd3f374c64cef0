package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/d9705996/clientportal/internal/dossier"
	"github.com/d9705996/clientportal/internal/model"
	"github.com/d9705996/clientportal/internal/observability"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalidSignature is returned for unsigned or badly signed deliveries.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// DepositMarker records confirmed deposits.
type DepositMarker interface {
	MarkDepositPaid(ctx context.Context, id, sessionID string) (bool, error)
}

// Receiver verifies and applies processor webhook events. Each event id is
// applied at most once.
type Receiver struct {
	db       *gorm.DB
	secret   string
	dossiers DepositMarker
	log      *slog.Logger
	inst     *observability.Instruments
	now      func() time.Time
}

// NewReceiver creates a Receiver verifying deliveries with secret.
func NewReceiver(db *gorm.DB, secret string, dossiers DepositMarker, log *slog.Logger, inst *observability.Instruments) *Receiver {
	return &Receiver{db: db, secret: secret, dossiers: dossiers, log: log, inst: inst, now: time.Now}
}

// Handle verifies payload against the signature header and applies it. The
// payload is not parsed before the signature has been checked.
func (r *Receiver) Handle(ctx context.Context, payload []byte, sigHeader string) error {
	if r.secret == "" {
		return ErrNotConfigured
	}
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, r.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		r.inst.WebhookEvent(ctx, "unknown", "rejected")
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	eventType := string(event.Type)

	var seen int64
	if err := r.db.WithContext(ctx).Model(&model.WebhookEvent{}).
		Where("id = ?", event.ID).Count(&seen).Error; err != nil {
		return fmt.Errorf("check webhook event: %w", err)
	}
	if seen > 0 {
		r.inst.WebhookEvent(ctx, eventType, "duplicate")
		return nil
	}

	outcome := "ignored"
	switch eventType {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		applied, err := r.checkoutCompleted(ctx, event)
		if err != nil {
			r.inst.WebhookEvent(ctx, eventType, "error")
			return err
		}
		if applied {
			outcome = "applied"
		}
	}

	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.WebhookEvent{ID: event.ID, Type: eventType, ReceivedAt: r.now().UTC()}).Error; err != nil {
		return fmt.Errorf("record webhook event: %w", err)
	}
	r.inst.WebhookEvent(ctx, eventType, outcome)
	return nil
}

func (r *Receiver) checkoutCompleted(ctx context.Context, event stripe.Event) (bool, error) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return false, fmt.Errorf("decode checkout session: %w", err)
	}
	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		r.log.Info("checkout completed without payment", "session_id", sess.ID, "payment_status", sess.PaymentStatus)
		return false, nil
	}
	if sess.Metadata["fee_category"] != FeeDeposit {
		return false, nil
	}
	id := sess.Metadata["dossier_id"]
	if id == "" {
		id = sess.ClientReferenceID
	}
	if id == "" {
		r.log.Warn("checkout session carries no dossier id", "session_id", sess.ID)
		return false, nil
	}

	changed, err := r.dossiers.MarkDepositPaid(ctx, id, sess.ID)
	if errors.Is(err, dossier.ErrNotFound) {
		r.log.Warn("checkout session for unknown dossier", "dossier_id", id, "session_id", sess.ID)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if changed {
		r.log.Info("deposit confirmed", "dossier_id", id, "session_id", sess.ID)
	}
	return changed, nil
}
