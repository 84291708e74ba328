// Package worker runs the background text extraction for PDF attachments.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	pdfutil "github.com/claimdesk/claimdesk/internal/pdf"
	"github.com/claimdesk/claimdesk/internal/queue"
	"github.com/claimdesk/claimdesk/internal/repository"
	"github.com/claimdesk/claimdesk/internal/s3storage"
)

// excerptRunes bounds how much extracted text lands on the attachment row.
const excerptRunes = 2000

// Processor is plugged into the asynq worker loop.
type Processor struct {
	repo   *repository.ClaimRepository
	store  *s3storage.Storage
	logger *zap.SugaredLogger
}

// NewProcessor constructs a worker processor.
func NewProcessor(repo *repository.ClaimRepository, store *s3storage.Storage, logger *zap.SugaredLogger) *Processor {
	return &Processor{repo: repo, store: store, logger: logger}
}

// Handler registers the extract job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ExtractAttachmentTask, p.handleExtract)
	return mux
}

func (p *Processor) handleExtract(ctx context.Context, task *asynq.Task) error {
	var payload queue.ExtractPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	failure := func(err error) error {
		p.logger.Errorw("extraction failed", "attachment_id", payload.AttachmentID, "error", err)
		_ = p.repo.MarkAttachmentFailed(ctx, payload.AttachmentID)
		return err
	}
	if !strings.HasSuffix(strings.ToLower(payload.ObjectPath), ".pdf") {
		// Only PDFs are extractable; anything else was enqueued by mistake.
		return p.repo.MarkAttachmentSkipped(ctx, payload.AttachmentID)
	}
	if err := p.repo.MarkAttachmentProcessing(ctx, payload.AttachmentID); err != nil {
		return failure(err)
	}
	data, err := p.store.Download(ctx, payload.ObjectPath)
	if err != nil {
		return failure(err)
	}
	text, err := pdfutil.ExtractText(data)
	if err != nil {
		return failure(err)
	}
	excerpt := pdfutil.Excerpt(text, excerptRunes)
	if err := p.repo.SetAttachmentExcerpt(ctx, payload.AttachmentID, excerpt); err != nil {
		return failure(err)
	}
	p.logger.Infow("attachment extracted", "attachment_id", payload.AttachmentID, "excerpt_len", len(excerpt))
	return nil
}
