package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html"
	"mime"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/corpus/internal/core/domain"
	"github.com/custodia-labs/corpus/internal/core/ports/driven"
	"github.com/custodia-labs/corpus/internal/core/ports/driving"
	"github.com/custodia-labs/corpus/internal/logger"
)

// Ensure IngestOrchestrator implements the interface.
var _ driving.IngestService = (*IngestOrchestrator)(nil)

const (
	// DefaultEmbedWorkers bounds concurrent embedding batch requests.
	DefaultEmbedWorkers = 4

	// DefaultEmbedBatchSize is the number of chunks per embedding batch.
	DefaultEmbedBatchSize = 64

	// DefaultMinContentRunes is the minimum number of non-whitespace
	// runes a normalised document must contain.
	DefaultMinContentRunes = 20
)

// extensionMIME maps file extensions of uploads to MIME types when no
// content type was declared.
var extensionMIME = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".html":     "text/html",
	".htm":      "text/html",
	".pdf":      "application/pdf",
	".csv":      "text/csv",
	".txt":      "text/plain",
	".docx":     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// runningJob tracks a job's cancellation handle and completion signal.
type runningJob struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// IngestOrchestrator runs the asynchronous ingestion pipeline:
// fetch, normalise, chunk, persist, embed, index.
type IngestOrchestrator struct {
	fetcher  driven.ContentFetcher
	registry driven.NormaliserRegistry
	pipeline driven.PostProcessorPipeline
	docStore driven.DocumentStore
	jobStore driven.JobStore
	embedder driven.EmbeddingService
	vector   driven.VectorIndex
	lexical  driven.LexicalIndex
	cooccur  driven.CooccurrenceIndex

	embedWorkers    int
	embedBatchSize  int
	minContentRunes int

	mu      sync.Mutex
	running map[string]*runningJob
	subs    map[string]map[int]chan domain.ProgressEvent
	nextSub int
}

// IngestOption configures the orchestrator.
type IngestOption func(*IngestOrchestrator)

// WithEmbedWorkers sets the bound on concurrent embedding batches.
func WithEmbedWorkers(workers int) IngestOption {
	return func(o *IngestOrchestrator) {
		if workers > 0 {
			o.embedWorkers = workers
		}
	}
}

// WithEmbedBatchSize sets the number of chunks per embedding batch.
func WithEmbedBatchSize(size int) IngestOption {
	return func(o *IngestOrchestrator) {
		if size > 0 {
			o.embedBatchSize = size
		}
	}
}

// WithMinContentRunes sets the minimum non-whitespace content length.
func WithMinContentRunes(runes int) IngestOption {
	return func(o *IngestOrchestrator) {
		if runes >= 0 {
			o.minContentRunes = runes
		}
	}
}

// NewIngestOrchestrator creates the ingestion service.
func NewIngestOrchestrator(
	fetcher driven.ContentFetcher,
	registry driven.NormaliserRegistry,
	pipeline driven.PostProcessorPipeline,
	docStore driven.DocumentStore,
	jobStore driven.JobStore,
	embedder driven.EmbeddingService,
	vector driven.VectorIndex,
	lexical driven.LexicalIndex,
	cooccur driven.CooccurrenceIndex,
	opts ...IngestOption,
) *IngestOrchestrator {
	o := &IngestOrchestrator{
		fetcher:         fetcher,
		registry:        registry,
		pipeline:        pipeline,
		docStore:        docStore,
		jobStore:        jobStore,
		embedder:        embedder,
		vector:          vector,
		lexical:         lexical,
		cooccur:         cooccur,
		embedWorkers:    DefaultEmbedWorkers,
		embedBatchSize:  DefaultEmbedBatchSize,
		minContentRunes: DefaultMinContentRunes,
		running:         make(map[string]*runningJob),
		subs:            make(map[string]map[int]chan domain.ProgressEvent),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Submit validates the request and starts an asynchronous ingestion job.
func (o *IngestOrchestrator) Submit(ctx context.Context, req driving.IngestRequest) (*driving.IngestReceipt, error) {
	if err := validateIngestRequest(req); err != nil {
		return nil, err
	}

	sourceURI := req.URL
	if sourceURI == "" {
		sourceURI = req.Filename
	}

	// Re-ingestion reuses the existing document identity.
	documentID := uuid.New().String()
	if existing, err := o.docStore.GetDocumentBySourceURI(ctx, sourceURI); err == nil {
		documentID = existing.ID
	}

	now := time.Now()
	job := &domain.IngestJob{
		ID:         uuid.New().String(),
		DocumentID: documentID,
		Status:     domain.JobPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := o.jobStore.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}

	// The job context is detached from the request context: submission
	// returns immediately and the pipeline outlives the request.
	jobCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.running[job.ID] = &runningJob{cancel: cancel, done: make(chan struct{})}
	o.mu.Unlock()

	go o.run(jobCtx, job, req, sourceURI)

	return &driving.IngestReceipt{
		JobID:      job.ID,
		DocumentID: documentID,
		Status:     domain.JobPending,
	}, nil
}

// JobStatus returns the current state of a job.
func (o *IngestOrchestrator) JobStatus(ctx context.Context, jobID string) (*domain.IngestJob, error) {
	return o.jobStore.GetJob(ctx, jobID)
}

// Cancel halts a running job.
func (o *IngestOrchestrator) Cancel(ctx context.Context, jobID string) error {
	o.mu.Lock()
	r, ok := o.running[jobID]
	o.mu.Unlock()

	if !ok {
		if _, err := o.jobStore.GetJob(ctx, jobID); err != nil {
			return err
		}
		return fmt.Errorf("%w: job is not running", domain.ErrInvalidInput)
	}

	r.cancel()
	return nil
}

// Subscribe returns a progress event channel for a job. The channel
// closes when the job finishes; subscribing to a finished or unknown
// job returns an already-closed channel.
func (o *IngestOrchestrator) Subscribe(jobID string) (<-chan domain.ProgressEvent, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch := make(chan domain.ProgressEvent, 16)

	if _, ok := o.running[jobID]; !ok {
		close(ch)
		return ch, func() {}
	}

	if o.subs[jobID] == nil {
		o.subs[jobID] = make(map[int]chan domain.ProgressEvent)
	}
	id := o.nextSub
	o.nextSub++
	o.subs[jobID][id] = ch

	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if sub, ok := o.subs[jobID][id]; ok {
			delete(o.subs[jobID], id)
			close(sub)
		}
	}
}

// Wait blocks until the job reaches a terminal status or ctx is done.
func (o *IngestOrchestrator) Wait(ctx context.Context, jobID string) (*domain.IngestJob, error) {
	o.mu.Lock()
	r, ok := o.running[jobID]
	o.mu.Unlock()

	if ok {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-r.done:
		}
	}

	return o.jobStore.GetJob(ctx, jobID)
}

// run executes the pipeline for one job.
//
//nolint:gocyclo // Orchestration function with necessary sequential steps
func (o *IngestOrchestrator) run(ctx context.Context, job *domain.IngestJob, req driving.IngestRequest, sourceURI string) {
	defer o.finish(job.ID)

	o.updateJob(job, domain.JobProcessing, 0.05, "loading content", 0, 0)

	raw, err := o.load(ctx, req, sourceURI)
	if err != nil {
		o.failJob(job, fmt.Errorf("load content: %w", err))
		return
	}

	hash := contentHash(raw.Content)

	existing, err := o.docStore.GetDocumentBySourceURI(ctx, sourceURI)
	if err != nil {
		existing = nil
	}

	// Identical content short-circuits re-ingestion.
	if existing != nil && existing.RawContentHash == hash && existing.Status != domain.DocumentFailed {
		logger.Info("Content unchanged for %s, skipping", sourceURI)
		o.updateJob(job, domain.JobCompleted, 1, "content unchanged", 0, 0)
		return
	}

	o.updateJob(job, domain.JobProcessing, 0.15, "normalising", 0, 0)

	result, err := o.registry.Normalise(ctx, raw)
	if err != nil {
		o.failJob(job, fmt.Errorf("normalise: %w", err))
		return
	}

	doc := result.Document
	if nonWhitespaceRunes(doc.Content) < o.minContentRunes {
		// Second chance before declaring a parse failure: a wholesale
		// tag strip recovers prose the normaliser treated as
		// boilerplate.
		fallback := rawTextStrip(raw.Content)
		if nonWhitespaceRunes(fallback) < o.minContentRunes {
			o.failJob(job, fmt.Errorf("%w: content below minimum length", domain.ErrParseFailure))
			return
		}
		logger.Warn("Normalised content for %s below minimum, using raw-text fallback", sourceURI)
		job.Errors = append(job.Errors, "normalised content below minimum length, raw-text fallback used")
		doc.Content = fallback
		// Heading offsets point into the discarded content.
		delete(doc.Metadata, domain.MetadataHeadings)
	}

	doc.ID = job.DocumentID
	doc.SourceURI = sourceURI
	doc.RawContentHash = hash
	doc.Status = domain.DocumentPending
	doc.FetchedAt = time.Now()
	if existing != nil {
		doc.CreatedAt = existing.CreatedAt
	}

	chunks, err := o.pipeline.Process(ctx, &doc)
	if err != nil {
		o.failJob(job, fmt.Errorf("chunk: %w", err))
		return
	}

	// Changed content invalidates the previous chunks everywhere
	// before the replacements are committed.
	if existing != nil {
		if err := o.invalidateChunks(ctx, existing.ID); err != nil {
			logger.Warn("Invalidate chunks for %s: %v", existing.ID, err)
		}
	}

	job.ChunksTotal = len(chunks)
	o.updateJob(job, domain.JobProcessing, 0.25, "indexing", 0, len(chunks))

	if err := o.docStore.SaveDocument(ctx, &doc); err != nil {
		o.failJob(job, fmt.Errorf("save document: %w", err))
		return
	}
	if err := o.docStore.SaveChunks(ctx, chunks); err != nil {
		o.failJob(job, fmt.Errorf("save chunks: %w", err))
		return
	}

	// Lexical and co-occurrence indexing never depend on embeddings,
	// so the document stays searchable through an embedding outage.
	for i := range chunks {
		if err := o.lexical.Index(ctx, chunks[i]); err != nil {
			job.Errors = append(job.Errors, fmt.Sprintf("lexical index chunk %s: %v", chunks[i].ID, err))
		}
	}
	if err := o.cooccur.IndexDocument(ctx, doc.ID, chunks); err != nil {
		job.Errors = append(job.Errors, fmt.Sprintf("cooccurrence index: %v", err))
	}

	embedded := o.embedChunks(ctx, job, chunks)

	if ctx.Err() != nil {
		o.cancelledJob(job, &doc, chunks)
		return
	}

	bg := context.Background()
	if err := o.docStore.SaveChunks(bg, chunks); err != nil {
		job.Errors = append(job.Errors, fmt.Sprintf("save embeddings: %v", err))
	}

	doc.Status = domain.DocumentReady
	if embedded < len(chunks) {
		doc.Status = domain.DocumentPartial
	}
	doc.UpdatedAt = time.Now()
	if err := o.docStore.SaveDocument(bg, &doc); err != nil {
		job.Errors = append(job.Errors, fmt.Sprintf("save document: %v", err))
	}

	job.ChunksEmbedded = embedded
	logger.Info("Ingested %s: %d chunks, %d embedded, %d errors",
		sourceURI, len(chunks), embedded, len(job.Errors))
	o.updateJob(job, domain.JobCompleted, 1, "completed", embedded, len(chunks))
}

// load produces the raw document from either a URL fetch or an upload.
func (o *IngestOrchestrator) load(ctx context.Context, req driving.IngestRequest, sourceURI string) (*domain.RawDocument, error) {
	if req.URL != "" {
		return o.fetcher.Fetch(ctx, req.URL)
	}

	mimeType := req.ContentType
	if mimeType == "" {
		mimeType = detectMIME(req.Filename, req.Content)
	}
	if parsed, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = parsed
	}

	return &domain.RawDocument{
		SourceURI: sourceURI,
		MIMEType:  mimeType,
		Content:   req.Content,
	}, nil
}

// embedChunks runs bounded-concurrency embedding over chunk batches,
// upserting successful vectors and recording per-chunk failures on the
// job. Returns the number of chunks embedded and indexed.
func (o *IngestOrchestrator) embedChunks(ctx context.Context, job *domain.IngestJob, chunks []domain.Chunk) int {
	if len(chunks) == 0 {
		return 0
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.embedWorkers)

	var (
		mu        sync.Mutex
		embedded  int
		processed int
	)

	for start := 0; start < len(chunks); start += o.embedBatchSize {
		end := start + o.embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			texts := make([]string, len(batch))
			for i := range batch {
				texts[i] = embeddingText(batch[i])
			}

			vectors, errs, batchErr := o.embedder.EmbedBatch(gctx, texts)

			mu.Lock()
			defer mu.Unlock()
			for i := range batch {
				processed++
				switch {
				case batchErr != nil:
					job.Errors = append(job.Errors, fmt.Sprintf("embed chunk %s: %v", batch[i].ID, batchErr))
				case errs[i] != nil:
					job.Errors = append(job.Errors, fmt.Sprintf("embed chunk %s: %v", batch[i].ID, errs[i]))
				default:
					if err := o.vector.Upsert(gctx, batch[i].ID, vectors[i]); err != nil {
						job.Errors = append(job.Errors, fmt.Sprintf("vector index chunk %s: %v", batch[i].ID, err))
						continue
					}
					batch[i].Embedding = vectors[i]
					batch[i].Embedded = true
					embedded++
				}
			}

			progress := 0.3 + 0.7*float64(processed)/float64(len(chunks))
			o.updateJob(job, domain.JobProcessing, progress, "embedding", processed, len(chunks))
			return nil
		})
	}

	_ = g.Wait()
	return embedded
}

// invalidateChunks removes a document's chunks from all three indexes
// and from storage.
func (o *IngestOrchestrator) invalidateChunks(ctx context.Context, documentID string) error {
	old, err := o.docStore.GetChunks(ctx, documentID)
	if err != nil {
		return fmt.Errorf("get chunks: %w", err)
	}

	ids := make([]string, len(old))
	for i, c := range old {
		ids[i] = c.ID
		if err := o.vector.Delete(ctx, c.ID); err != nil {
			logger.Warn("Vector delete %s: %v", c.ID, err)
		}
		if err := o.lexical.Delete(ctx, c.ID); err != nil {
			logger.Warn("Lexical delete %s: %v", c.ID, err)
		}
	}
	if err := o.cooccur.DeleteDocument(ctx, documentID); err != nil {
		logger.Warn("Cooccurrence delete %s: %v", documentID, err)
	}

	return o.docStore.DeleteChunks(ctx, ids)
}

// cancelledJob records an explicit cancellation. Chunks committed
// before the cancel stay valid; the document is marked failed so it is
// never silently ready with missing coverage.
func (o *IngestOrchestrator) cancelledJob(job *domain.IngestJob, doc *domain.Document, chunks []domain.Chunk) {
	bg := context.Background()

	if err := o.docStore.SaveChunks(bg, chunks); err != nil {
		logger.Warn("Save chunks after cancel: %v", err)
	}

	doc.Status = domain.DocumentFailed
	doc.UpdatedAt = time.Now()
	if err := o.docStore.SaveDocument(bg, doc); err != nil {
		logger.Warn("Save document after cancel: %v", err)
	}

	job.Errors = append(job.Errors, domain.ErrJobCancelled.Error())
	logger.Info("Ingestion job %s cancelled", job.ID)
	o.updateJob(job, domain.JobFailed, job.Progress, "cancelled", job.ChunksEmbedded, job.ChunksTotal)
}

// failJob marks the job failed with the given error.
func (o *IngestOrchestrator) failJob(job *domain.IngestJob, err error) {
	logger.Warn("Ingestion job %s failed: %v", job.ID, err)
	job.Errors = append(job.Errors, err.Error())
	o.updateJob(job, domain.JobFailed, job.Progress, err.Error(), 0, 0)
}

// updateJob persists the job state and publishes a progress event.
// Persistence uses a background context so terminal states survive a
// cancelled job context.
func (o *IngestOrchestrator) updateJob(job *domain.IngestJob, status domain.JobStatus, progress float64, message string, completed, total int) {
	job.Status = status
	job.Progress = progress
	job.UpdatedAt = time.Now()
	if err := o.jobStore.SaveJob(context.Background(), job); err != nil {
		logger.Warn("Save job %s: %v", job.ID, err)
	}

	o.publish(domain.ProgressEvent{
		JobID:     job.ID,
		Status:    status,
		Progress:  progress,
		Message:   message,
		Completed: completed,
		Total:     total,
		Errors:    len(job.Errors),
	})
}

// publish delivers an event to all subscribers, dropping it for any
// subscriber whose buffer is full.
func (o *IngestOrchestrator) publish(event domain.ProgressEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, ch := range o.subs[event.JobID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// finish releases the job's tracking state and closes its subscriber
// channels.
func (o *IngestOrchestrator) finish(jobID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if r, ok := o.running[jobID]; ok {
		close(r.done)
		delete(o.running, jobID)
	}
	for id, ch := range o.subs[jobID] {
		delete(o.subs[jobID], id)
		close(ch)
	}
	delete(o.subs, jobID)
}

// validateIngestRequest checks that exactly one content source is given.
func validateIngestRequest(req driving.IngestRequest) error {
	hasURL := req.URL != ""
	hasContent := len(req.Content) > 0

	switch {
	case hasURL && hasContent:
		return fmt.Errorf("%w: url and content are mutually exclusive", domain.ErrInvalidInput)
	case !hasURL && !hasContent:
		return fmt.Errorf("%w: url or content required", domain.ErrInvalidInput)
	case hasContent && req.Filename == "":
		return fmt.Errorf("%w: uploads require a filename", domain.ErrInvalidInput)
	}
	return nil
}

// detectMIME resolves an upload's MIME type from its extension, falling
// back to content sniffing.
func detectMIME(filename string, content []byte) string {
	if mimeType, ok := extensionMIME[strings.ToLower(filepath.Ext(filename))]; ok {
		return mimeType
	}
	return http.DetectContentType(content)
}

// embeddingText is the text embedded for a chunk: the structural
// context primes the vector the same way it primes the lexical index.
func embeddingText(chunk domain.Chunk) string {
	if chunk.StructuralContext == "" {
		return chunk.Text
	}
	return chunk.StructuralContext + "\n" + chunk.Text
}

// contentHash is the hex SHA-256 of the raw bytes, used for idempotent
// re-ingestion.
func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

var (
	markupTags  = regexp.MustCompile(`<[^>]+>`)
	runOfSpaces = regexp.MustCompile(`[ \t]+`)
)

// rawTextStrip reduces raw bytes to plain text: markup tags removed,
// entities unescaped, whitespace collapsed to one line per text run.
func rawTextStrip(content []byte) string {
	text := markupTags.ReplaceAllString(string(content), "\n")
	text = html.UnescapeString(text)
	text = runOfSpaces.ReplaceAllString(text, " ")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// nonWhitespaceRunes counts the runes that carry content.
func nonWhitespaceRunes(text string) int {
	n := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
