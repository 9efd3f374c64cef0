// Package dossier implements the case file store: creation by clients and by
// staff, typed intake answers, the status workflow, case codes and payment
// markers.
package dossier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/d9705996/clientportal/internal/lang"
	"github.com/d9705996/clientportal/internal/model"
	"github.com/d9705996/clientportal/internal/observability"
	"gorm.io/gorm"
)

// Dossier is the read model returned to callers.
type Dossier struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"ownerId,omitempty"`
	Email         string          `json:"email,omitempty"`
	CaseType      CaseType        `json:"caseType"`
	Lang          lang.Lang       `json:"lang"`
	Status        Status          `json:"status"`
	Answers       json.RawMessage `json:"answers,omitempty"`
	CaseCode      string          `json:"caseCode,omitempty"`
	DepositPaidAt *time.Time      `json:"depositPaidAt,omitempty"`
	PaymentWaived bool            `json:"paymentWaived"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// DepositPaid reports whether the deposit was confirmed by the processor.
func (d *Dossier) DepositPaid() bool { return d.DepositPaidAt != nil }

// CreateParams holds the raw creation inputs; the service validates them.
type CreateParams struct {
	OwnerID  string
	CaseType string
	Lang     string
	Email    string
}

// Service is the Dossier Store.
type Service struct {
	db    *gorm.DB
	codes CodeGenerator
	inst  *observability.Instruments
	now   func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithCodeGenerator replaces the default counter-backed case code generator.
func WithCodeGenerator(g CodeGenerator) Option {
	return func(s *Service) { s.codes = g }
}

// WithInstruments records creation metrics.
func WithInstruments(i *observability.Instruments) Option {
	return func(s *Service) { s.inst = i }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service backed by db.
func NewService(db *gorm.DB, opts ...Option) *Service {
	s := &Service{db: db, codes: NewCounterCodes(db), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create opens a client self-service dossier in draft status. The caller
// must be authenticated: an empty owner is refused.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Dossier, error) {
	if strings.TrimSpace(p.OwnerID) == "" {
		return nil, ErrOwnerRequired
	}
	return s.create(ctx, p, StatusDraft, "client", "")
}

// CreateWalkIn opens a dossier on behalf of a client met in person. It starts
// in received status and may have no owner yet.
func (s *Service) CreateWalkIn(ctx context.Context, p CreateParams, staffID string) (*Dossier, error) {
	return s.create(ctx, p, StatusReceived, "walk_in", staffID)
}

func (s *Service) create(ctx context.Context, p CreateParams, status Status, origin, actor string) (*Dossier, error) {
	ct, ok := ParseCaseType(p.CaseType)
	if !ok {
		return nil, invalid("caseType", "must be one of t1, ta, t2")
	}
	now := s.now().UTC()
	row := &model.Dossier{
		CaseType:  string(ct),
		Lang:      string(lang.OrDefault(p.Lang)),
		Status:    string(status),
		Email:     NormalizeEmail(p.Email),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if owner := strings.TrimSpace(p.OwnerID); owner != "" {
		row.OwnerID = &owner
	}
	if actor != "" {
		row.StatusChangedAt = &now
		row.StatusChangedBy = &actor
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("insert dossier: %w", err)
	}
	s.inst.DossierCreated(ctx, string(ct), origin)
	return toDossier(row), nil
}

// NormalizeEmail lower-cases and trims e. Values without both "@" and "."
// are dropped (nil); deliverability is not checked.
func NormalizeEmail(e string) *string {
	e = strings.ToLower(strings.TrimSpace(e))
	if e == "" || !strings.Contains(e, "@") || !strings.Contains(e, ".") {
		return nil
	}
	return &e
}

// Get loads a dossier by id without ownership scoping (staff paths).
func (s *Service) Get(ctx context.Context, id string) (*Dossier, error) {
	row, err := s.load(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return toDossier(row), nil
}

// GetOwned loads a dossier only if ownerID owns it. Another owner's dossier
// is reported as not found.
func (s *Service) GetOwned(ctx context.Context, id, ownerID string) (*Dossier, error) {
	var row model.Dossier
	err := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load dossier: %w", err)
	}
	return toDossier(&row), nil
}

// ListByOwner returns the owner's dossiers, newest first.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]Dossier, error) {
	var rows []model.Dossier
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list dossiers: %w", err)
	}
	return toDossiers(rows), nil
}

// ListByStatus returns dossiers for an admin console tab, newest first. An
// empty status lists everything.
func (s *Service) ListByStatus(ctx context.Context, status Status) ([]Dossier, error) {
	q := s.db.WithContext(ctx).Order("updated_at DESC")
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	var rows []model.Dossier
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list dossiers: %w", err)
	}
	return toDossiers(rows), nil
}

// UpdateAnswers merges partial over the stored answers, validates the result
// against the dossier's case type form, and stores it together with the
// language. Status is not changed.
func (s *Service) UpdateAnswers(ctx context.Context, id string, partial json.RawMessage, language string) (*Dossier, error) {
	var out *model.Dossier
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if !Status(row.Status).answersEditable() {
			return ErrLocked
		}
		merged, err := mergeAnswers(CaseType(row.CaseType), row.Answers, partial)
		if err != nil {
			return err
		}
		l := lang.Lang(row.Lang)
		if parsed, ok := lang.Parse(language); ok {
			l = parsed
		}
		row.Answers = merged
		row.Lang = string(l)
		row.UpdatedAt = s.now().UTC()
		if err := tx.Model(&model.Dossier{}).Where("id = ?", id).Updates(map[string]any{
			"answers":    row.Answers,
			"lang":       row.Lang,
			"updated_at": row.UpdatedAt,
		}).Error; err != nil {
			return fmt.Errorf("update answers: %w", err)
		}
		out = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toDossier(out), nil
}

// AdvanceStatus moves the dossier to next if the workflow allows it. Writing
// the current status again is a no-op. The write is conditional on the status
// read, so two staff members racing on the same dossier cannot both win.
func (s *Service) AdvanceStatus(ctx context.Context, id string, next Status, actorID string) (*Dossier, error) {
	row, err := s.load(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	from := Status(row.Status)
	if from == next {
		return toDossier(row), nil
	}
	if !CanTransition(from, next) {
		return nil, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, next)
	}
	if err := s.writeStatus(ctx, row, from, next, actorID, nil); err != nil {
		return nil, err
	}
	return toDossier(row), nil
}

// Submit hands a client's draft to staff. The deposit must be confirmed (or
// waived by staff) and the intake form complete.
func (s *Service) Submit(ctx context.Context, id, ownerID string) (*Dossier, error) {
	row, err := s.load(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if row.OwnerID == nil || *row.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	if Status(row.Status) != StatusDraft {
		return nil, fmt.Errorf("%w: dossier is already %s", ErrInvalidTransition, row.Status)
	}
	if row.DepositPaidAt == nil && !row.PaymentWaived {
		return nil, ErrPaymentRequired
	}
	answers, err := DecodeAnswers(CaseType(row.CaseType), row.Answers)
	if err != nil {
		return nil, err
	}
	if missing := answers.Missing(); len(missing) > 0 {
		return nil, invalid("answers", "missing required fields: %s", strings.Join(missing, ", "))
	}
	if err := s.writeStatus(ctx, row, StatusDraft, StatusReceived, ownerID, nil); err != nil {
		return nil, err
	}
	return toDossier(row), nil
}

// SubmitWithoutPayment is the staff bypass for walk-in clients: the payment
// requirement is waived and a draft moves to received.
func (s *Service) SubmitWithoutPayment(ctx context.Context, id, staffID string) (*Dossier, error) {
	row, err := s.load(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	extra := map[string]any{"payment_waived": true}
	from := Status(row.Status)
	if from != StatusDraft {
		row.PaymentWaived = true
		row.UpdatedAt = s.now().UTC()
		extra["updated_at"] = row.UpdatedAt
		if err := s.db.WithContext(ctx).Model(&model.Dossier{}).Where("id = ?", id).Updates(extra).Error; err != nil {
			return nil, fmt.Errorf("waive payment: %w", err)
		}
		return toDossier(row), nil
	}
	row.PaymentWaived = true
	if err := s.writeStatus(ctx, row, StatusDraft, StatusReceived, staffID, extra); err != nil {
		return nil, err
	}
	return toDossier(row), nil
}

func (s *Service) writeStatus(ctx context.Context, row *model.Dossier, from, to Status, actorID string, extra map[string]any) error {
	now := s.now().UTC()
	updates := map[string]any{
		"status":            string(to),
		"status_changed_at": now,
		"updated_at":        now,
	}
	if actorID != "" {
		updates["status_changed_by"] = actorID
	}
	for k, v := range extra {
		updates[k] = v
	}
	res := s.db.WithContext(ctx).Model(&model.Dossier{}).
		Where("id = ? AND status = ?", row.ID, string(from)).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	row.Status = string(to)
	row.StatusChangedAt = &now
	row.UpdatedAt = now
	if actorID != "" {
		row.StatusChangedBy = &actorID
	}
	return nil
}

// EnsureCaseCode returns the dossier's case code, generating and storing one
// on first use. The store is a compare-and-swap on an empty (or foreign)
// code: when two callers race, the loser discards its fresh code and returns
// the winner's, so every caller sees the same stable code.
func (s *Service) EnsureCaseCode(ctx context.Context, id string) (string, error) {
	row, err := s.load(ctx, s.db, id)
	if err != nil {
		return "", err
	}
	if row.CaseCode != nil && strings.HasPrefix(*row.CaseCode, CaseCodePrefix) {
		return *row.CaseCode, nil
	}
	code, err := s.codes.Next(ctx)
	if err != nil {
		return "", fmt.Errorf("generate case code: %w", err)
	}
	res := s.db.WithContext(ctx).Model(&model.Dossier{}).
		Where("id = ? AND (case_code IS NULL OR case_code NOT LIKE ?)", id, CaseCodePrefix+"%").
		Updates(map[string]any{"case_code": code, "updated_at": s.now().UTC()})
	if res.Error != nil {
		return "", fmt.Errorf("store case code: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return code, nil
	}
	row, err = s.load(ctx, s.db, id)
	if err != nil {
		return "", err
	}
	if row.CaseCode == nil {
		return "", fmt.Errorf("case code for %s vanished after concurrent write", id)
	}
	return *row.CaseCode, nil
}

// MarkDepositPaid records a confirmed deposit. It is idempotent: changed is
// false when the deposit was already recorded.
func (s *Service) MarkDepositPaid(ctx context.Context, id, sessionID string) (changed bool, err error) {
	now := s.now().UTC()
	res := s.db.WithContext(ctx).Model(&model.Dossier{}).
		Where("id = ? AND deposit_paid_at IS NULL", id).
		Updates(map[string]any{
			"deposit_paid_at":     now,
			"checkout_session_id": sessionID,
			"updated_at":          now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("mark deposit paid: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}
	if _, err := s.load(ctx, s.db, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Service) load(ctx context.Context, db *gorm.DB, id string) (*model.Dossier, error) {
	var row model.Dossier
	err := db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load dossier: %w", err)
	}
	return &row, nil
}

func toDossier(row *model.Dossier) *Dossier {
	d := &Dossier{
		ID:            row.ID,
		CaseType:      CaseType(row.CaseType),
		Lang:          lang.Lang(row.Lang),
		Status:        Status(row.Status),
		DepositPaidAt: row.DepositPaidAt,
		PaymentWaived: row.PaymentWaived,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
	if row.OwnerID != nil {
		d.OwnerID = *row.OwnerID
	}
	if row.Email != nil {
		d.Email = *row.Email
	}
	if row.CaseCode != nil {
		d.CaseCode = *row.CaseCode
	}
	if len(row.Answers) > 0 {
		d.Answers = json.RawMessage(row.Answers)
	}
	return d
}

func toDossiers(rows []model.Dossier) []Dossier {
	out := make([]Dossier, 0, len(rows))
	for i := range rows {
		out = append(out, *toDossier(&rows[i]))
	}
	return out
}
