package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"housing_search/internal/config"
	"housing_search/internal/domain"
	"housing_search/internal/lib/logger/sl"
	"housing_search/internal/lib/metrics"
	"housing_search/internal/services/embedding"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/samber/lo"
)

// ErrRunInProgress — проход догрузки уже выполняется.
var ErrRunInProgress = errors.New("embedding backfill already running")

// ListingSource — чтение объявлений для догрузки эмбеддингов.
type ListingSource interface {
	GetByID(ctx context.Context, id int64) (domain.Listing, error)
	GetMany(ctx context.Context, ids []int64) (map[int64]domain.Listing, error)
	ListMissingEmbeddings(ctx context.Context, modelName string, afterID int64, limit int) ([]domain.Listing, error)
}

// EmbeddingWriter — кодирование и сохранение эмбеддингов.
type EmbeddingWriter interface {
	ModelName() string
	Ready(ctx context.Context) error
	EncodeDocuments(ctx context.Context, texts []string) ([][]float32, error)
	Save(ctx context.Context, listingID int64, vector []float32) error
}

// Report — итог одного прохода.
type Report struct {
	RunID     string        `json:"run_id"`
	Model     string        `json:"model"`
	Scanned   int           `json:"scanned"`
	Embedded  int           `json:"embedded"`
	Failed    int           `json:"failed"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// Job — фоновая догрузка эмбеддингов объявлений. Только upsert, работает параллельно с поиском.
type Job struct {
	listings ListingSource
	store    EmbeddingWriter
	cfg      config.MaintenanceConfig
	metrics  *metrics.SearchMetrics
	log      *slog.Logger

	pool       *ants.Pool
	newBackOff func() backoff.BackOff

	queue     chan int64
	pendingMu sync.Mutex
	pending   map[int64]struct{}

	running    atomic.Bool
	lastReport atomic.Pointer[Report]

	ctx    context.Context
	cancel context.CancelFunc
}

func NewJob(
	listings ListingSource,
	store EmbeddingWriter,
	cfg config.MaintenanceConfig,
	m *metrics.SearchMetrics,
	log *slog.Logger,
) (*Job, error) {
	const op = "maintenance.NewJob"

	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}

	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	j := &Job{
		listings: listings,
		store:    store,
		cfg:      cfg,
		metrics:  m,
		log:      log,
		pool:     pool,
		queue:    make(chan int64, cfg.QueueSize),
		pending:  make(map[int64]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	j.newBackOff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 200 * time.Millisecond
		b.MaxInterval = 5 * time.Second
		b.MaxElapsedTime = time.Minute
		return b
	}

	return j, nil
}

// Release останавливает фоновые проходы и освобождает пул воркеров.
func (j *Job) Release() {
	j.cancel()
	j.pool.Release()
}

// LastReport — итог последнего завершённого прохода.
func (j *Job) LastReport() (Report, bool) {
	r := j.lastReport.Load()
	if r == nil {
		return Report{}, false
	}
	return *r, true
}

// Run выполняет проход при старте и по таймеру, между проходами обрабатывает очередь.
func (j *Job) Run(ctx context.Context) {
	const op = "maintenance.Job.Run"
	log := j.log.With(slog.String("op", op))

	log.Info("embedding maintenance started", slog.Duration("interval", j.cfg.Interval))

	j.runLogged(ctx)

	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("embedding maintenance stopped")
			return
		case <-j.ctx.Done():
			log.Info("embedding maintenance released")
			return
		case <-ticker.C:
			j.runLogged(ctx)
		case id := <-j.queue:
			ids := j.drain(id)
			if err := j.reindexIDs(ctx, ids); err != nil {
				log.Warn("failed to reindex queued listings", slog.Int("count", len(ids)), sl.Err(err))
			}
		}
	}
}

func (j *Job) runLogged(ctx context.Context) {
	if _, err := j.RunOnce(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
		j.log.Error("embedding backfill failed", sl.Err(err))
	}
}

// Enqueue ставит объявления в очередь на пересчёт. Не блокирует; повторы схлопываются,
// при переполненной очереди id отбрасываются до следующего прохода.
func (j *Job) Enqueue(ids ...int64) {
	j.pendingMu.Lock()
	defer j.pendingMu.Unlock()

	dropped := 0
	for _, id := range ids {
		if _, ok := j.pending[id]; ok {
			continue
		}
		select {
		case j.queue <- id:
			j.pending[id] = struct{}{}
		default:
			dropped++
		}
	}

	if dropped > 0 {
		j.log.Debug("maintenance queue is full", slog.Int("dropped", dropped))
	}
}

// drain забирает из очереди всё, что есть, но не больше BatchSize.
func (j *Job) drain(first int64) []int64 {
	ids := []int64{first}
loop:
	for len(ids) < j.cfg.BatchSize {
		select {
		case id := <-j.queue:
			ids = append(ids, id)
		default:
			break loop
		}
	}

	j.pendingMu.Lock()
	for _, id := range ids {
		delete(j.pending, id)
	}
	j.pendingMu.Unlock()

	return ids
}

// StartBackfill запускает проход асинхронно и сразу возвращает его id.
func (j *Job) StartBackfill() (string, error) {
	if !j.running.CompareAndSwap(false, true) {
		return "", ErrRunInProgress
	}

	runID := uuid.NewString()
	go func() {
		defer j.running.Store(false)
		if _, err := j.runOnce(j.ctx, runID); err != nil {
			j.log.Error("embedding backfill failed", slog.String("run_id", runID), sl.Err(err))
		}
	}()

	return runID, nil
}

// RunOnce проходит по всем объявлениям без эмбеддинга текущей модели.
// Ошибки отдельных объявлений учитываются в отчёте и не прерывают проход.
func (j *Job) RunOnce(ctx context.Context) (Report, error) {
	if !j.running.CompareAndSwap(false, true) {
		return Report{}, ErrRunInProgress
	}
	defer j.running.Store(false)

	return j.runOnce(ctx, uuid.NewString())
}

func (j *Job) runOnce(ctx context.Context, runID string) (Report, error) {
	const op = "maintenance.Job.RunOnce"

	log := j.log.With(
		slog.String("op", op),
		slog.String("run_id", runID),
	)

	report := Report{
		RunID:     runID,
		Model:     j.store.ModelName(),
		StartedAt: time.Now(),
	}
	defer func() {
		report.Duration = time.Since(report.StartedAt)
		j.lastReport.Store(&report)
	}()

	if err := j.store.Ready(ctx); err != nil {
		report.Error = err.Error()
		return report, fmt.Errorf("%s: %w", op, err)
	}

	var afterID int64
	for {
		page, err := j.listings.ListMissingEmbeddings(ctx, j.store.ModelName(), afterID, j.cfg.BatchSize)
		if err != nil {
			report.Error = err.Error()
			return report, fmt.Errorf("%s: %w", op, err)
		}
		if len(page) == 0 {
			break
		}
		afterID = page[len(page)-1].ID

		embedded, failed := j.processBatch(ctx, page)
		report.Scanned += len(page)
		report.Embedded += embedded
		report.Failed += failed

		if err := ctx.Err(); err != nil {
			report.Error = err.Error()
			return report, fmt.Errorf("%s: %w", op, err)
		}

		if len(page) < j.cfg.BatchSize {
			break
		}
	}

	log.Info("embedding backfill finished",
		slog.Int("scanned", report.Scanned),
		slog.Int("embedded", report.Embedded),
		slog.Int("failed", report.Failed),
	)

	return report, nil
}

// ReindexListing синхронно пересчитывает эмбеддинг одного объявления.
func (j *Job) ReindexListing(ctx context.Context, id int64) error {
	const op = "maintenance.Job.ReindexListing"

	listing, err := j.listings.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	vecs, err := j.encodeWithRetry(ctx, []string{listing.EmbeddingText()})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = j.store.Save(ctx, id, vecs[0])
	j.metrics.RecordEmbeddingSaved(err)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	j.log.Info("listing reindexed", slog.String("op", op), slog.Int64("listing_id", id))
	return nil
}

func (j *Job) reindexIDs(ctx context.Context, ids []int64) error {
	// ошибка загрузки модели запомнена, очередь до следующего прохода не трогаем
	if err := j.store.Ready(ctx); err != nil {
		return err
	}

	found, err := j.listings.GetMany(ctx, ids)
	if err != nil {
		return err
	}

	listings := lo.Values(found)
	slices.SortFunc(listings, func(a, b domain.Listing) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	embedded, failed := j.processBatch(ctx, listings)
	j.log.Debug("queued listings reindexed",
		slog.Int("requested", len(ids)),
		slog.Int("embedded", embedded),
		slog.Int("failed", failed),
	)
	return nil
}

// processBatch делит пачку между воркерами пула. Возвращает число сохранённых и упавших объявлений.
func (j *Job) processBatch(ctx context.Context, listings []domain.Listing) (int, int) {
	if len(listings) == 0 {
		return 0, 0
	}

	chunkSize := (len(listings) + j.cfg.Workers - 1) / j.cfg.Workers

	var (
		wg       sync.WaitGroup
		embedded atomic.Int64
		failed   atomic.Int64
	)

	for _, chunk := range lo.Chunk(listings, chunkSize) {
		wg.Add(1)
		err := j.pool.Submit(func() {
			defer wg.Done()
			ok, bad := j.processChunk(ctx, chunk)
			embedded.Add(int64(ok))
			failed.Add(int64(bad))
		})
		if err != nil {
			wg.Done()
			failed.Add(int64(len(chunk)))
			j.log.Error("failed to submit embedding task", sl.Err(err))
		}
	}

	wg.Wait()
	return int(embedded.Load()), int(failed.Load())
}

func (j *Job) processChunk(ctx context.Context, chunk []domain.Listing) (int, int) {
	texts := lo.Map(chunk, func(l domain.Listing, _ int) string { return l.EmbeddingText() })

	vecs, err := j.encodeWithRetry(ctx, texts)
	if err != nil {
		j.log.Warn("failed to encode listings, skipping",
			slog.Int("count", len(chunk)),
			slog.Int64("first_listing_id", chunk[0].ID),
			sl.Err(err),
		)
		return 0, len(chunk)
	}

	ok, bad := 0, 0
	for i, l := range chunk {
		err := j.store.Save(ctx, l.ID, vecs[i])
		j.metrics.RecordEmbeddingSaved(err)
		if err != nil {
			j.log.Warn("failed to save embedding", slog.Int64("listing_id", l.ID), sl.Err(err))
			bad++
			continue
		}
		ok++
	}
	return ok, bad
}

func (j *Job) encodeWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32

	operation := func() error {
		// не загрузившаяся модель не загрузится и при повторе
		if err := j.store.Ready(ctx); err != nil {
			return backoff.Permanent(err)
		}

		var err error
		vecs, err = j.store.EncodeDocuments(ctx, texts)
		if err == nil {
			return nil
		}
		if errors.Is(err, embedding.ErrDimensionMismatch) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(j.newBackOff(), j.cfg.MaxRetries), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return nil, err
	}
	return vecs, nil
}
