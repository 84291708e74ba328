package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// ExtractAttachmentTask is scheduled each time a PDF attachment lands.
	ExtractAttachmentTask = "attachment:extract"
)

// ExtractPayload is serialized into the task payload so the worker knows
// which object to download and which attachment row to update.
type ExtractPayload struct {
	AttachmentID string `json:"attachment_id"`
	ObjectPath   string `json:"object_path"`
	Filename     string `json:"filename"`
}

// Client wraps the asynq client behind the service's Enqueuer contract.
type Client struct {
	inner *asynq.Client
}

// NewClient builds a queue client for the given Redis connection.
func NewClient(redisAddr, redisPassword string, redisDB int) *Client {
	return &Client{inner: asynq.NewClient(asynq.RedisClientOpt{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})}
}

// Close releases the underlying Redis connection.
func (c *Client) Close() error {
	return c.inner.Close()
}

// EnqueueExtract enqueues a text extraction job.
func (c *Client) EnqueueExtract(ctx context.Context, payload ExtractPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(ExtractAttachmentTask, data)
	if _, err := c.inner.EnqueueContext(ctx, task, asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("enqueue extract task: %w", err)
	}
	return nil
}
