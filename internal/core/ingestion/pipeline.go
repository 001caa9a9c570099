package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/paperpilot/paperpilot/internal/core"
	"github.com/paperpilot/paperpilot/internal/core/chunker"
	"github.com/paperpilot/paperpilot/internal/core/llm"
	"github.com/paperpilot/paperpilot/internal/errs"
	"github.com/paperpilot/paperpilot/internal/models"
	"github.com/paperpilot/paperpilot/internal/storage"
)

// DocumentIngestor runs the pipeline for one document at a time per worker.
// Independent documents may process concurrently; nothing is shared between
// them except the remote API quota.
type DocumentIngestor struct {
	db        core.DbClient
	store     storage.Store
	embedder  core.Embedder
	extractor core.Extractor
	chunker   *chunker.Chunker
	cfg       Config
	logger    *zap.Logger
	jobs      chan string
}

func NewDocumentIngestor(
	db core.DbClient,
	store storage.Store,
	embedder core.Embedder,
	extractor core.Extractor,
	ch *chunker.Chunker,
	cfg Config,
	logger *zap.Logger,
	queueSize int,
) *DocumentIngestor {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &DocumentIngestor{
		db:        db,
		store:     store,
		embedder:  embedder,
		extractor: extractor,
		chunker:   ch,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		jobs:      make(chan string, queueSize),
	}
}

var _ Ingestor = (*DocumentIngestor)(nil)

// Start launches numWorkers goroutines that drain the jobs channel until ctx
// is cancelled.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	for w := 1; w <= numWorkers; w++ {
		go func(w int) {
			log := i.logger.With(zap.Int("worker", w))
			for {
				select {
				case <-ctx.Done():
					log.Info("ingest worker shutting down")
					return
				case docID := <-i.jobs:
					log.Info("processing document", zap.String("document_id", docID))
					if err := i.ProcessOne(ctx, docID); err != nil {
						log.Error("document processing failed",
							zap.String("document_id", docID), zap.Error(err))
					}
				}
			}
		}(w)
	}
}

// Enqueue schedules a document ID for ingestion. Blocks when the queue is
// full until space frees up.
func (i *DocumentIngestor) Enqueue(docID string) {
	i.jobs <- docID
}

// ProcessOne runs the whole pipeline for one document and finalizes its
// status. It never returns component errors to the HTTP layer; any failure
// ends as a failed document with lastError set and its chunks removed.
func (i *DocumentIngestor) ProcessOne(ctx context.Context, docID string) error {
	ctx, cancel := context.WithTimeout(ctx, i.cfg.DocTimeout)
	defer cancel()

	doc, err := i.db.GetDocumentByID(ctx, docID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		return errs.Wrapf(errs.ErrNotFound, "document %s", docID)
	}

	attempt, err := i.db.BeginIngestAttempt(ctx, docID)
	if err != nil {
		return fmt.Errorf("begin attempt: %w", err)
	}
	log := i.logger.With(zap.String("document_id", docID), zap.Int("attempt", attempt))

	// Clear leftovers from a previous attempt so chunk_index stays unique.
	if err := i.db.DeleteChunksForAttempt(ctx, docID, attempt); err != nil {
		return i.fail(ctx, log, docID, attempt, errs.Wrap(errs.ErrPersistence, err))
	}

	pages, chunks, err := i.extractAndChunk(ctx, doc)
	if err != nil {
		return i.fail(ctx, log, docID, attempt, err)
	}

	records, err := i.embedChunks(ctx, docID, chunks)
	if err != nil {
		return i.fail(ctx, log, docID, attempt, err)
	}

	if err := i.db.InsertDocumentChunks(ctx, records); err != nil {
		return i.fail(ctx, log, docID, attempt, errs.Wrap(errs.ErrPersistence, err))
	}

	if err := i.db.MarkDocumentReady(ctx, docID, attempt, len(pages), len(chunks)); err != nil {
		return i.fail(ctx, log, docID, attempt, errs.Wrap(errs.ErrPersistence, err))
	}

	log.Info("document ready",
		zap.Int("total_pages", len(pages)), zap.Int("total_chunks", len(chunks)))
	return nil
}

func (i *DocumentIngestor) extractAndChunk(ctx context.Context, doc *models.Document) ([]core.Page, []chunker.Chunk, error) {
	path, cleanup, err := i.store.Fetch(ctx, doc.StorageKey)
	if err != nil {
		return nil, nil, errs.Wrap(errs.ErrExtraction, fmt.Errorf("fetch stored file: %w", err))
	}
	defer cleanup()

	pages, err := i.extractor.Extract(ctx, path)
	if err != nil {
		return nil, nil, err
	}

	chunks, err := i.chunker.ChunkPages(pages)
	if err != nil {
		return nil, nil, err
	}
	if len(chunks) == 0 {
		return nil, nil, errs.Wrapf(errs.ErrEmptyContent, "no text found in PDF")
	}
	return pages, chunks, nil
}

// embedChunks requests one embedding per chunk, all concurrently with bounded
// parallelism. If any chunk ultimately fails, the whole batch fails; there is
// no partial persistence.
func (i *DocumentIngestor) embedChunks(ctx context.Context, docID string, chunks []chunker.Chunk) ([]models.DocumentChunk, error) {
	records := make([]models.DocumentChunk, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.cfg.EmbedConcurrency)

	for idx, ch := range chunks {
		g.Go(func() error {
			vec, err := i.embedWithRetry(gctx, ch.Text)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", ch.Index, err)
			}
			if len(vec) != i.cfg.EmbedDim {
				return errs.Wrapf(errs.ErrEmbedding,
					"chunk %d: got vector of dimension %d, want %d", ch.Index, len(vec), i.cfg.EmbedDim)
			}
			records[idx] = models.DocumentChunk{
				ID:         uuid.NewString(),
				DocumentID: docID,
				ChunkIndex: ch.Index,
				Text:       ch.Text,
				PageNumber: ch.PageNumber,
				Embedding:  vec,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

// embedWithRetry retries transient embedding failures with doubling backoff.
// Permanent errors fail on the first attempt.
func (i *DocumentIngestor) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	delay := i.cfg.RetryBaseDelay

	for attempt := 1; attempt <= i.cfg.EmbedMaxAttempts; attempt++ {
		vec, err := i.embedder.Embed(ctx, text, llm.TaskDocument)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if !errs.IsTransient(err) {
			return nil, err
		}
		if attempt == i.cfg.EmbedMaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, lastErr
}

// fail converts any pipeline error into a terminal failed state: record the
// message, then remove whatever chunks this document has so no partial set
// survives. Status and cleanup are attempt-scoped; a newer attempt's writes
// win.
func (i *DocumentIngestor) fail(ctx context.Context, log *zap.Logger, docID string, attempt int, cause error) error {
	log.Warn("marking document failed", zap.Error(cause))

	// The pipeline context is often already dead here (timeouts land in this
	// path); finalization still has to write the terminal state.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := i.db.MarkDocumentFailed(ctx, docID, attempt, cause.Error()); err != nil {
		log.Error("failed to record document failure", zap.Error(err))
	}
	if err := i.db.DeleteChunksForAttempt(ctx, docID, attempt); err != nil {
		log.Error("failed to clean up partial chunks", zap.Error(err))
	}
	return cause
}
