// Package ingestion drives uploaded documents through the
// extract -> chunk -> embed -> persist pipeline.
package ingestion

import (
	"context"
	"time"
)

// Ingestor accepts document IDs and processes them in the background.
// Enqueueing decouples "record was created" from "processing started":
// the upload handler publishes a task and workers consume it.
type Ingestor interface {
	Start(ctx context.Context, numWorkers int)
	Enqueue(docID string)
	ProcessOne(ctx context.Context, docID string) error
}

// Config tunes one ingestor instance.
//
// EmbedConcurrency: how many chunk embedding calls run at once per document.
// EmbedMaxAttempts: attempts per chunk embedding call before the whole
//                   document fails (only transient errors are retried).
// RetryBaseDelay:   backoff seed; delay doubles per retry.
// EmbedDim:         expected vector dimension; mismatched vectors fail the run.
// DocTimeout:       hard ceiling for one document's pipeline.
type Config struct {
	EmbedConcurrency int
	EmbedMaxAttempts int
	RetryBaseDelay   time.Duration
	EmbedDim         int
	DocTimeout       time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.EmbedConcurrency <= 0 {
		out.EmbedConcurrency = 4
	}
	if out.EmbedMaxAttempts <= 0 {
		out.EmbedMaxAttempts = 3
	}
	if out.RetryBaseDelay <= 0 {
		out.RetryBaseDelay = 500 * time.Millisecond
	}
	if out.DocTimeout <= 0 {
		out.DocTimeout = 5 * time.Minute
	}
	return out
}
