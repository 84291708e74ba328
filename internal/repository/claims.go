// Package repository wraps all SQL used throughout the API and worker.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/claimdesk/claimdesk/internal/model"
	"github.com/claimdesk/claimdesk/internal/token"
)

// ErrNotFound is returned when a claim or attachment row does not exist.
var ErrNotFound = errors.New("row not found")

const claimColumns = `id, public_id, edit_token, status, incident_date, COALESCE(damage_description,''), policyholder, vehicle, extra, created_at, updated_at`

// ClaimRepository is the Postgres-backed claim store.
type ClaimRepository struct {
	pool *pgxpool.Pool
}

// NewClaimRepository constructs a repository.
func NewClaimRepository(pool *pgxpool.Pool) *ClaimRepository {
	return &ClaimRepository{pool: pool}
}

// InsertClaim persists a new draft claim. Identifier generation lives here:
// the row gets its id, public id and edit token on the way in, and the status
// is always draft regardless of what the caller put in the struct.
func (r *ClaimRepository) InsertClaim(ctx context.Context, c *model.Claim) error {
	now := time.Now().UTC()
	c.ID = uuid.NewString()
	c.PublicID = uuid.NewString()
	c.EditToken = token.New()
	c.Status = model.StatusDraft
	c.CreatedAt = now
	c.UpdatedAt = now

	ph, err := marshalNullable(c.Policyholder)
	if err != nil {
		return fmt.Errorf("encode policyholder: %w", err)
	}
	veh, err := marshalNullable(c.Vehicle)
	if err != nil {
		return fmt.Errorf("encode vehicle: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO damage_reports (id, public_id, edit_token, status, incident_date, damage_description, policyholder, vehicle, extra, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, c.ID, c.PublicID, c.EditToken, c.Status, c.IncidentDate, c.DamageDescription, ph, veh, rawOrNil(c.Extra), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert claim: %w", err)
	}
	return nil
}

// GetClaimByID returns a claim by its internal id.
func (r *ClaimRepository) GetClaimByID(ctx context.Context, id string) (*model.Claim, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+claimColumns+` FROM damage_reports WHERE id=$1`, id)
	return scanClaim(row)
}

// GetClaimByPublicID returns a claim by its shareable public id.
func (r *ClaimRepository) GetClaimByPublicID(ctx context.Context, publicID string) (*model.Claim, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+claimColumns+` FROM damage_reports WHERE public_id=$1`, publicID)
	return scanClaim(row)
}

// ListClaims returns one page ordered newest-created first, plus the total
// row count for the same filter. Nonsensical limit/offset values are clamped
// here rather than handed to Postgres.
func (r *ClaimRepository) ListClaims(ctx context.Context, f model.ClaimFilter) ([]model.Claim, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	where := ""
	args := []any{}
	if f.Status != nil {
		where = " WHERE status=$1"
		args = append(args, *f.Status)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM damage_reports`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count claims: %w", err)
	}

	query := fmt.Sprintf(`SELECT `+claimColumns+` FROM damage_reports%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("select claims: %w", err)
	}
	defer rows.Close()

	claims := make([]model.Claim, 0, limit)
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, 0, err
		}
		claims = append(claims, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate claims: %w", err)
	}
	return claims, total, nil
}

// UpdateClaim applies a partial patch and refreshes updated_at. Immutable
// columns (edit_token, public_id, created_at) are not reachable from
// ClaimPatch. An empty incident date in the patch clears the stored value.
func (r *ClaimRepository) UpdateClaim(ctx context.Context, id string, patch model.ClaimPatch) (*model.Claim, error) {
	set := []string{}
	args := []any{}
	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s=$%d", column, len(args)))
	}

	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.IncidentDate != nil {
		if *patch.IncidentDate == "" {
			set = append(set, "incident_date=NULL")
		} else {
			add("incident_date", *patch.IncidentDate)
		}
	}
	if patch.DamageDescription != nil {
		add("damage_description", *patch.DamageDescription)
	}
	if patch.Policyholder != nil {
		ph, err := json.Marshal(patch.Policyholder)
		if err != nil {
			return nil, fmt.Errorf("encode policyholder: %w", err)
		}
		add("policyholder", ph)
	}
	if patch.Vehicle != nil {
		veh, err := json.Marshal(patch.Vehicle)
		if err != nil {
			return nil, fmt.Errorf("encode vehicle: %w", err)
		}
		add("vehicle", veh)
	}
	if patch.Extra != nil {
		add("extra", []byte(patch.Extra))
	}
	add("updated_at", time.Now().UTC())

	args = append(args, id)
	query := fmt.Sprintf("UPDATE damage_reports SET %s WHERE id=$%d", strings.Join(set, ", "), len(args))
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update claim: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return r.GetClaimByID(ctx, id)
}

// InsertAttachment records the metadata row for a stored object.
func (r *ClaimRepository) InsertAttachment(ctx context.Context, a *model.Attachment) error {
	a.ID = uuid.NewString()
	a.TextStatus = model.ExtractPending
	a.CreatedAt = time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO report_files (id, report_id, storage_path, mime, filename, size_bytes, text_status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, a.ID, a.ClaimID, a.StoragePath, a.MIME, a.Filename, a.SizeBytes, a.TextStatus, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

// ListAttachments returns a claim's attachments in insertion order.
func (r *ClaimRepository) ListAttachments(ctx context.Context, claimID string) ([]model.Attachment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, report_id, storage_path, COALESCE(mime,''), COALESCE(filename,''), size_bytes, text_status, COALESCE(text_excerpt,''), created_at
		FROM report_files WHERE report_id=$1 ORDER BY created_at, id
	`, claimID)
	if err != nil {
		return nil, fmt.Errorf("select attachments: %w", err)
	}
	defer rows.Close()

	var atts []model.Attachment
	for rows.Next() {
		var a model.Attachment
		if err := rows.Scan(&a.ID, &a.ClaimID, &a.StoragePath, &a.MIME, &a.Filename, &a.SizeBytes, &a.TextStatus, &a.TextExcerpt, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		atts = append(atts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	if atts == nil {
		atts = []model.Attachment{}
	}
	return atts, nil
}

// MarkAttachmentProcessing flags the row while extraction runs.
func (r *ClaimRepository) MarkAttachmentProcessing(ctx context.Context, id string) error {
	return r.setAttachmentText(ctx, id, model.ExtractProcessing, nil)
}

// MarkAttachmentFailed records an extraction failure.
func (r *ClaimRepository) MarkAttachmentFailed(ctx context.Context, id string) error {
	return r.setAttachmentText(ctx, id, model.ExtractFailed, nil)
}

// MarkAttachmentSkipped records that the file type is not extractable.
func (r *ClaimRepository) MarkAttachmentSkipped(ctx context.Context, id string) error {
	return r.setAttachmentText(ctx, id, model.ExtractSkipped, nil)
}

// SetAttachmentExcerpt stores the extracted text excerpt.
func (r *ClaimRepository) SetAttachmentExcerpt(ctx context.Context, id, excerpt string) error {
	return r.setAttachmentText(ctx, id, model.ExtractDone, &excerpt)
}

func (r *ClaimRepository) setAttachmentText(ctx context.Context, id string, status model.ExtractStatus, excerpt *string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE report_files SET text_status=$1, text_excerpt=COALESCE($2, text_excerpt) WHERE id=$3
	`, status, excerpt, id)
	if err != nil {
		return fmt.Errorf("update attachment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(row rowScanner) (*model.Claim, error) {
	var (
		c            model.Claim
		incidentDate sql.NullString
		ph, veh      []byte
		extra        []byte
	)
	err := row.Scan(&c.ID, &c.PublicID, &c.EditToken, &c.Status, &incidentDate, &c.DamageDescription, &ph, &veh, &extra, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan claim: %w", err)
	}
	if incidentDate.Valid {
		d := incidentDate.String
		c.IncidentDate = &d
	}
	if len(ph) > 0 {
		c.Policyholder = &model.Policyholder{}
		if err := json.Unmarshal(ph, c.Policyholder); err != nil {
			return nil, fmt.Errorf("decode policyholder: %w", err)
		}
	}
	if len(veh) > 0 {
		c.Vehicle = &model.Vehicle{}
		if err := json.Unmarshal(veh, c.Vehicle); err != nil {
			return nil, fmt.Errorf("decode vehicle: %w", err)
		}
	}
	if len(extra) > 0 {
		c.Extra = json.RawMessage(extra)
	}
	return &c, nil
}

func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func rawOrNil(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
