// Package document stores client attachments: metadata rows in the database
// and the bytes in the object store.
//
// Uploads and deletions are two-phase so the two stores cannot silently
// diverge. An upload first writes its row as pending, then the object, then
// flips the row to complete; a deletion marks the row deleting, removes the
// object, then the row. Rows left pending or deleting by a crash are found
// and cleaned by SweepPending. Only complete rows are ever listed or opened.
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/d9705996/clientportal/internal/model"
	"github.com/d9705996/clientportal/internal/observability"
	"github.com/d9705996/clientportal/internal/storage"
	"github.com/gabriel-vasile/mimetype"
	"gorm.io/gorm"
)

// ErrNotFound is returned when no complete document matches.
var ErrNotFound = errors.New("document not found")

// Document is the read model of a stored file.
type Document struct {
	ID          string    `json:"id"`
	DossierID   string    `json:"dossierId"`
	OwnerID     string    `json:"ownerId"`
	Filename    string    `json:"filename"`
	StoragePath string    `json:"storagePath"`
	ContentType string    `json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	CreatedAt   time.Time `json:"createdAt"`
}

// UploadInput describes one file to store.
type UploadInput struct {
	DossierID   string
	OwnerID     string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Service is the Document Store.
type Service struct {
	db       *gorm.DB
	store    storage.ObjectStore
	log      *slog.Logger
	inst     *observability.Instruments
	maxBytes int64
	urlTTL   time.Duration
	now      func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithMaxBytes overrides MaxUploadBytes.
func WithMaxBytes(n int64) Option { return func(s *Service) { s.maxBytes = n } }

// WithURLTTL overrides the signed URL lifetime.
func WithURLTTL(d time.Duration) Option { return func(s *Service) { s.urlTTL = d } }

// WithInstruments records upload metrics.
func WithInstruments(i *observability.Instruments) Option {
	return func(s *Service) { s.inst = i }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates a Service.
func NewService(db *gorm.DB, store storage.ObjectStore, log *slog.Logger, opts ...Option) *Service {
	s := &Service{
		db:       db,
		store:    store,
		log:      log,
		maxBytes: MaxUploadBytes,
		urlTTL:   10 * time.Minute,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// MaxBytes is the upload ceiling in force.
func (s *Service) MaxBytes() int64 { return s.maxBytes }

// Upload validates and stores one file. Validation happens before anything
// is written to either store.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*Document, error) {
	if in.DossierID == "" || in.OwnerID == "" {
		return nil, errors.New("upload requires a dossier and an owner")
	}
	if err := CheckFile(in.Filename, in.Size, s.maxBytes); err != nil {
		return nil, err
	}
	body, sniffed, err := sniff(in.Body)
	if err != nil {
		return nil, err
	}
	in.Body = body
	if in.ContentType == "" || in.ContentType == "application/octet-stream" {
		if byExt := ContentType("", in.Filename); byExt != "application/octet-stream" {
			in.ContentType = byExt
		} else {
			in.ContentType = sniffed
		}
	}

	row, err := s.insertPending(ctx, in)
	if err != nil {
		return nil, err
	}

	if err := s.store.Put(ctx, row.StoragePath, in.Body, in.Size, row.ContentType); err != nil {
		if derr := s.deleteRow(ctx, row.ID); derr != nil {
			s.log.Warn("pending document row left for sweep", "document_id", row.ID, "err", derr)
		}
		return nil, fmt.Errorf("store object: %w", err)
	}

	now := s.now().UTC()
	if err := s.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ? AND status = ?", row.ID, model.DocumentPending).
		Updates(map[string]any{"status": model.DocumentComplete, "updated_at": now}).Error; err != nil {
		s.compensate(ctx, row)
		return nil, fmt.Errorf("complete document: %w", err)
	}
	row.Status = model.DocumentComplete
	s.inst.DocumentStored(ctx, in.Size)
	return toDocument(row), nil
}

// insertPending writes the pending row. The storage path is unique; on a
// collision (same name, same millisecond) the timestamp is bumped.
func (s *Service) insertPending(ctx context.Context, in UploadInput) (*model.Document, error) {
	ms := s.now().UnixMilli()
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		now := s.now().UTC()
		row := &model.Document{
			DossierID:   in.DossierID,
			OwnerID:     in.OwnerID,
			Filename:    in.Filename,
			StoragePath: StoragePath(in.OwnerID, in.DossierID, ms+int64(attempt), in.Filename),
			ContentType: ContentType(in.ContentType, in.Filename),
			SizeBytes:   in.Size,
			Status:      model.DocumentPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		err := s.db.WithContext(ctx).Create(row).Error
		if err == nil {
			return row, nil
		}
		if !isDuplicate(err) {
			return nil, fmt.Errorf("insert document: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("insert document: %w", lastErr)
}

// compensate removes the object and then the row after a failed completion.
// Anything that still fails is logged and left for SweepPending.
func (s *Service) compensate(ctx context.Context, row *model.Document) {
	if err := s.store.Delete(ctx, row.StoragePath); err != nil {
		s.log.Warn("orphaned object left for sweep", "path", row.StoragePath, "err", err)
		return
	}
	if err := s.deleteRow(ctx, row.ID); err != nil {
		s.log.Warn("pending document row left for sweep", "document_id", row.ID, "err", err)
	}
}

// List returns the complete documents of a dossier, newest first.
func (s *Service) List(ctx context.Context, dossierID string) ([]Document, error) {
	var rows []model.Document
	if err := s.db.WithContext(ctx).
		Where("dossier_id = ? AND status = ?", dossierID, model.DocumentComplete).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	out := make([]Document, 0, len(rows))
	for i := range rows {
		out = append(out, *toDocument(&rows[i]))
	}
	return out, nil
}

// Get returns one complete document.
func (s *Service) Get(ctx context.Context, id string) (*Document, error) {
	row, err := s.load(ctx, id, model.DocumentComplete)
	if err != nil {
		return nil, err
	}
	return toDocument(row), nil
}

// OpenURL returns a short-lived signed URL for the document. The content is
// never proxied.
func (s *Service) OpenURL(ctx context.Context, id string) (string, error) {
	row, err := s.load(ctx, id, model.DocumentComplete)
	if err != nil {
		return "", err
	}
	u, err := s.store.SignedURL(ctx, row.StoragePath, s.urlTTL)
	if err != nil {
		return "", fmt.Errorf("sign url: %w", err)
	}
	return u, nil
}

// Delete removes the object and then the row. If the object cannot be
// removed the row is restored to complete, so a listed document always has
// its object.
func (s *Service) Delete(ctx context.Context, id string) error {
	row, err := s.load(ctx, id, model.DocumentComplete)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ? AND status = ?", id, model.DocumentComplete).
		Updates(map[string]any{"status": model.DocumentDeleting, "updated_at": s.now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("mark document deleting: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	if err := s.store.Delete(ctx, row.StoragePath); err != nil {
		if rerr := s.db.WithContext(ctx).Model(&model.Document{}).
			Where("id = ?", id).
			Updates(map[string]any{"status": model.DocumentComplete, "updated_at": s.now().UTC()}).Error; rerr != nil {
			s.log.Error("restore document after failed delete", "document_id", id, "err", rerr)
		}
		return fmt.Errorf("delete object: %w", err)
	}
	if err := s.deleteRow(ctx, id); err != nil {
		return fmt.Errorf("delete document row: %w", err)
	}
	return nil
}

// SweepPending cleans rows stuck in pending or deleting for longer than
// olderThan, removing their object first. It returns how many rows it removed.
func (s *Service) SweepPending(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().UTC().Add(-olderThan)
	var rows []model.Document
	if err := s.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []string{model.DocumentPending, model.DocumentDeleting}, cutoff).
		Find(&rows).Error; err != nil {
		return 0, fmt.Errorf("find stale documents: %w", err)
	}
	removed := 0
	for _, row := range rows {
		if err := s.store.Delete(ctx, row.StoragePath); err != nil {
			s.log.Warn("sweep: delete object", "path", row.StoragePath, "err", err)
			continue
		}
		if err := s.deleteRow(ctx, row.ID); err != nil {
			s.log.Warn("sweep: delete row", "document_id", row.ID, "err", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.log.Info("swept stale documents", "count", removed)
	}
	return removed, nil
}

func (s *Service) load(ctx context.Context, id, status string) (*model.Document, error) {
	var row model.Document
	err := s.db.WithContext(ctx).Where("id = ? AND status = ?", id, status).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	return &row, nil
}

func (s *Service) deleteRow(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Document{}).Error
}

// executableTypes are rejected whatever the file is called.
var executableTypes = []string{
	"application/vnd.microsoft.portable-executable",
	"application/x-msdownload",
	"application/x-elf",
	"application/x-mach-binary",
}

// sniff detects the content type from the first bytes of body and rejects
// executables. The returned reader yields the whole body again; seekable
// bodies are rewound so the object store can still sign them.
func sniff(body io.Reader) (io.Reader, string, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	mt := mimetype.Detect(head)
	for m := mt; m != nil; m = m.Parent() {
		for _, exe := range executableTypes {
			if m.Is(exe) {
				return nil, "", invalid("file", "executable content is not accepted")
			}
		}
	}
	if seeker, ok := body.(io.Seeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return nil, "", fmt.Errorf("rewind upload: %w", err)
		}
		return body, mt.String(), nil
	}
	return io.MultiReader(bytes.NewReader(head), body), mt.String(), nil
}

const sniffLen = 3072

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

func toDocument(row *model.Document) *Document {
	return &Document{
		ID:          row.ID,
		DossierID:   row.DossierID,
		OwnerID:     row.OwnerID,
		Filename:    row.Filename,
		StoragePath: row.StoragePath,
		ContentType: row.ContentType,
		SizeBytes:   row.SizeBytes,
		CreatedAt:   row.CreatedAt,
	}
}
