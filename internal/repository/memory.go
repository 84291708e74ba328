package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/claimdesk/claimdesk/internal/model"
	"github.com/claimdesk/claimdesk/internal/token"
)

// MemoryStore is an in-memory claim store guarded by an RWMutex. It mirrors
// the Postgres repository's behavior closely enough for the service and
// handler tests to run without a database.
type MemoryStore struct {
	mu          sync.RWMutex
	claims      map[string]*model.Claim
	attachments map[string][]model.Attachment
	// clock lets tests advance time to observe updated_at changes.
	clock func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		claims:      make(map[string]*model.Claim),
		attachments: make(map[string][]model.Attachment),
		clock:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source.
func (m *MemoryStore) SetClock(clock func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = clock
}

// InsertClaim assigns identifiers and persists the claim as a draft.
func (m *MemoryStore) InsertClaim(_ context.Context, c *model.Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock()
	c.ID = uuid.NewString()
	c.PublicID = uuid.NewString()
	c.EditToken = token.New()
	c.Status = model.StatusDraft
	c.CreatedAt = now
	c.UpdatedAt = now
	cp := *c
	m.claims[c.ID] = &cp
	return nil
}

// GetClaimByID returns a claim copy by internal id.
func (m *MemoryStore) GetClaimByID(_ context.Context, id string) (*model.Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.claims[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// GetClaimByPublicID returns a claim copy by public id.
func (m *MemoryStore) GetClaimByPublicID(_ context.Context, publicID string) (*model.Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.claims {
		if c.PublicID == publicID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// ListClaims pages through claims newest-created first.
func (m *MemoryStore) ListClaims(_ context.Context, f model.ClaimFilter) ([]model.Claim, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]model.Claim, 0, len(m.claims))
	for _, c := range m.claims {
		if f.Status != nil && c.Status != *f.Status {
			continue
		}
		matched = append(matched, *c)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []model.Claim{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

// UpdateClaim applies a partial patch and refreshes updated_at.
func (m *MemoryStore) UpdateClaim(_ context.Context, id string, patch model.ClaimPatch) (*model.Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.claims[id]
	if !ok {
		return nil, ErrNotFound
	}
	if patch.Status != nil {
		c.Status = *patch.Status
	}
	if patch.IncidentDate != nil {
		if *patch.IncidentDate == "" {
			c.IncidentDate = nil
		} else {
			d := *patch.IncidentDate
			c.IncidentDate = &d
		}
	}
	if patch.DamageDescription != nil {
		c.DamageDescription = *patch.DamageDescription
	}
	if patch.Policyholder != nil {
		ph := *patch.Policyholder
		c.Policyholder = &ph
	}
	if patch.Vehicle != nil {
		veh := *patch.Vehicle
		c.Vehicle = &veh
	}
	if patch.Extra != nil {
		c.Extra = append([]byte(nil), patch.Extra...)
	}
	c.UpdatedAt = m.clock()
	cp := *c
	return &cp, nil
}

// InsertAttachment records an attachment for an existing claim.
func (m *MemoryStore) InsertAttachment(_ context.Context, a *model.Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.claims[a.ClaimID]; !ok {
		return ErrNotFound
	}
	a.ID = uuid.NewString()
	a.TextStatus = model.ExtractPending
	a.CreatedAt = m.clock()
	m.attachments[a.ClaimID] = append(m.attachments[a.ClaimID], *a)
	return nil
}

// ListAttachments returns attachments in insertion order.
func (m *MemoryStore) ListAttachments(_ context.Context, claimID string) ([]model.Attachment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Attachment, len(m.attachments[claimID]))
	copy(out, m.attachments[claimID])
	return out, nil
}
