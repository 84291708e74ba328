// Package service implements the claim lifecycle: create, read, list, update,
// and attachment upload, gated by per-claim edit tokens.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/claimdesk/claimdesk/internal/dates"
	"github.com/claimdesk/claimdesk/internal/model"
	"github.com/claimdesk/claimdesk/internal/queue"
	"github.com/claimdesk/claimdesk/internal/repository"
	"github.com/claimdesk/claimdesk/internal/token"
)

// ClaimStore is the relational store contract the lifecycle depends on.
// Implementations assign id, public id and edit token on insert.
type ClaimStore interface {
	InsertClaim(ctx context.Context, c *model.Claim) error
	GetClaimByID(ctx context.Context, id string) (*model.Claim, error)
	GetClaimByPublicID(ctx context.Context, publicID string) (*model.Claim, error)
	ListClaims(ctx context.Context, f model.ClaimFilter) ([]model.Claim, int, error)
	UpdateClaim(ctx context.Context, id string, patch model.ClaimPatch) (*model.Claim, error)
	InsertAttachment(ctx context.Context, a *model.Attachment) error
	ListAttachments(ctx context.Context, claimID string) ([]model.Attachment, error)
}

// ObjectStore is the object-storage contract: raw byte upload plus signed
// retrieval URLs.
type ObjectStore interface {
	Upload(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error
	PresignURL(ctx context.Context, objectName string, ttl time.Duration) (string, error)
}

// Enqueuer schedules background text extraction. May be nil; uploads then
// leave extraction pending.
type Enqueuer interface {
	EnqueueExtract(ctx context.Context, payload queue.ExtractPayload) error
}

// Limits carries the tunables the lifecycle needs from config.
type Limits struct {
	MaxUploadBytes int64
	UploadURLTTL   time.Duration
	FileURLTTL     time.Duration
}

// Service wires the store, object storage and queue into the lifecycle
// operations.
type Service struct {
	store   ClaimStore
	objects ObjectStore
	enqueue Enqueuer
	limits  Limits
	logger  *zap.SugaredLogger
}

// New constructs a Service. enqueue may be nil.
func New(store ClaimStore, objects ObjectStore, enqueue Enqueuer, limits Limits, logger *zap.SugaredLogger) *Service {
	return &Service{
		store:   store,
		objects: objects,
		enqueue: enqueue,
		limits:  limits,
		logger:  logger,
	}
}

// CreateInput is the draft-shaped payload accepted at creation. Status is
// deliberately absent: callers cannot choose it.
type CreateInput struct {
	IncidentDate      string
	DamageDescription string
	Policyholder      *model.Policyholder
	Vehicle           *model.Vehicle
	Extra             json.RawMessage
}

// CreateResult is what the submitting client needs to remember: the
// identifiers plus the one-time chance to capture the edit token.
type CreateResult struct {
	ID        string `json:"id"`
	PublicID  string `json:"publicId"`
	EditToken string `json:"editToken"`
}

// Create persists a new draft claim. The incident date is normalized to ISO;
// unparseable input becomes null rather than an error.
func (s *Service) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	claim := &model.Claim{
		IncidentDate:      normalizeDate(in.IncidentDate),
		DamageDescription: in.DamageDescription,
		Policyholder:      in.Policyholder,
		Vehicle:           in.Vehicle,
		Extra:             in.Extra,
	}
	if err := s.store.InsertClaim(ctx, claim); err != nil {
		return nil, fmt.Errorf("insert claim: %w", err)
	}
	return &CreateResult{ID: claim.ID, PublicID: claim.PublicID, EditToken: claim.EditToken}, nil
}

// Get fetches a claim by public id together with its attachments in
// chronological order. No token required: read access is public by link.
func (s *Service) Get(ctx context.Context, publicID string) (*model.Claim, []model.Attachment, error) {
	claim, err := s.store.GetClaimByPublicID(ctx, publicID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("get claim: %w", err)
	}
	files, err := s.store.ListAttachments(ctx, claim.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list attachments: %w", err)
	}
	return claim, files, nil
}

// List returns one page of claims, newest first, plus the total count for
// the active filter.
func (s *Service) List(ctx context.Context, f model.ClaimFilter) ([]model.Claim, int, error) {
	claims, total, err := s.store.ListClaims(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list claims: %w", err)
	}
	return claims, total, nil
}

// Update applies a partial patch after edit-token authorization. Status may
// only move from draft to submitted; same-value status patches are dropped as
// no-ops, everything else is rejected.
func (s *Service) Update(ctx context.Context, id, editToken string, patch model.ClaimPatch) (*model.Claim, error) {
	claim, err := s.authorize(ctx, id, editToken)
	if err != nil {
		return nil, err
	}
	if patch.Status != nil {
		switch {
		case !patch.Status.Valid():
			return nil, ErrBadTransition
		case *patch.Status == claim.Status:
			patch.Status = nil
		case claim.Status == model.StatusDraft && *patch.Status == model.StatusSubmitted:
			// allowed
		default:
			return nil, ErrBadTransition
		}
	}
	if patch.IncidentDate != nil {
		patch.IncidentDate = normalizeDatePtr(*patch.IncidentDate)
	}
	if patch.Empty() {
		return nil, ErrEmptyPatch
	}
	updated, err := s.store.UpdateClaim(ctx, id, patch)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update claim: %w", err)
	}
	return updated, nil
}

// UploadInput describes one incoming attachment.
type UploadInput struct {
	ClaimID   string
	EditToken string
	Filename  string
	MIME      string
	Size      int64
	Content   io.Reader
}

// UploadResult is returned to the uploader: the recorded attachment plus a
// signed preview URL.
type UploadResult struct {
	Attachment model.Attachment `json:"file"`
	URL        string           `json:"url"`
	Path       string           `json:"path"`
}

// Upload stores the file bytes, records the attachment row, signs a
// retrieval URL, and schedules text extraction for PDFs. The three effects
// run as a best-effort sequence: a metadata failure after the object write
// leaves an orphaned object, which is logged for later sweeping.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	claim, err := s.authorize(ctx, in.ClaimID, in.EditToken)
	if err != nil {
		return nil, err
	}
	if in.Size > s.limits.MaxUploadBytes {
		return nil, ErrTooLarge
	}
	mime := in.MIME
	if mime == "" {
		mime = "application/octet-stream"
	}
	objectName := objectNameFor(claim.PublicID, in.Filename)
	if err := s.objects.Upload(ctx, objectName, in.Content, in.Size, mime); err != nil {
		return nil, fmt.Errorf("store object: %w", err)
	}
	att := &model.Attachment{
		ClaimID:     claim.ID,
		StoragePath: objectName,
		MIME:        mime,
		Filename:    in.Filename,
		SizeBytes:   in.Size,
	}
	if err := s.store.InsertAttachment(ctx, att); err != nil {
		s.logger.Errorw("attachment insert failed, object orphaned",
			"claim_id", claim.ID, "object", objectName, "error", err)
		return nil, fmt.Errorf("record attachment: %w", err)
	}
	url, err := s.objects.PresignURL(ctx, objectName, s.limits.UploadURLTTL)
	if err != nil {
		// The attachment is recorded; a missing preview URL is not worth
		// failing the upload over.
		s.logger.Warnw("presign failed after upload", "object", objectName, "error", err)
		url = ""
	}
	s.maybeEnqueueExtract(ctx, att)
	return &UploadResult{Attachment: *att, URL: url, Path: objectName}, nil
}

// FileURL signs a short-lived retrieval URL for a stored object path.
func (s *Service) FileURL(ctx context.Context, path string) (string, error) {
	url, err := s.objects.PresignURL(ctx, path, s.limits.FileURLTTL)
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return url, nil
}

// authorize fetches the claim by internal id and compares the supplied token
// against the stored one. Unknown id reports not-found before the token is
// ever compared; a mismatch on an existing claim reports forbidden.
func (s *Service) authorize(ctx context.Context, id, supplied string) (*model.Claim, error) {
	claim, err := s.store.GetClaimByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get claim: %w", err)
	}
	if !token.Verify(claim.EditToken, supplied) {
		return nil, ErrForbidden
	}
	return claim, nil
}

func (s *Service) maybeEnqueueExtract(ctx context.Context, att *model.Attachment) {
	if s.enqueue == nil || att.MIME != "application/pdf" {
		return
	}
	payload := queue.ExtractPayload{
		AttachmentID: att.ID,
		ObjectPath:   att.StoragePath,
		Filename:     att.Filename,
	}
	if err := s.enqueue.EnqueueExtract(ctx, payload); err != nil {
		s.logger.Warnw("enqueue extraction failed", "attachment_id", att.ID, "error", err)
	}
}

// objectNameFor namespaces objects per claim and keeps them collision free:
// <publicId>/<random uuid><ext>.
func objectNameFor(publicID, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".bin"
	}
	return fmt.Sprintf("%s/%s%s", publicID, uuid.NewString(), ext)
}

func normalizeDate(raw string) *string {
	if iso, ok := dates.Normalize(raw); ok {
		return &iso
	}
	return nil
}

// normalizeDatePtr keeps a nil result distinct from "clear the date": an
// unparseable patch value clears the stored date rather than erroring, the
// same leniency Create applies.
func normalizeDatePtr(raw string) *string {
	if iso, ok := dates.Normalize(raw); ok {
		return &iso
	}
	empty := ""
	return &empty
}
