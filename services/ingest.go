package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/PaIIermo/DIP-compass-gamification/models"
	"github.com/PaIIermo/DIP-compass-gamification/providers"
)

// CitationTarget ist eine Publikation, deren Zitierungen geladen werden.
type CitationTarget struct {
	PublicationID uint
	Identifier    string
	AuthorNames   []string
}

// FetchPolicy sind die Rate-Limits gegenüber der externen Quelle.
type FetchPolicy struct {
	Concurrency          int
	Spacing              time.Duration
	Timeout              time.Duration
	MaxAttempts          int
	BaseDelay            time.Duration
	VerificationAttempts int
	FailureThreshold     int
}

// DefaultFetchPolicy: 5 parallel, 500ms Abstand, 10s Timeout, Abbruch bei mehr als 20 Fehlschlägen in Folge.
func DefaultFetchPolicy() FetchPolicy {
	return FetchPolicy{
		Concurrency:          5,
		Spacing:              500 * time.Millisecond,
		Timeout:              10 * time.Second,
		MaxAttempts:          4,
		BaseDelay:            time.Second,
		VerificationAttempts: 2,
		FailureThreshold:     20,
	}
}

// FailureCounter zählt aufeinanderfolgende Fehlschläge eines Batches.
type FailureCounter struct {
	mu          sync.Mutex
	threshold   int
	consecutive int
	total       int
}

// NewFailureCounter erstellt einen Zähler mit Schwelle threshold.
func NewFailureCounter(threshold int) *FailureCounter {
	return &FailureCounter{threshold: threshold}
}

// Success setzt die Serie zurück.
func (c *FailureCounter) Success() {
	c.mu.Lock()
	c.consecutive = 0
	c.mu.Unlock()
}

// Failure zählt einen Fehlschlag und meldet, ob die Schwelle überschritten ist.
func (c *FailureCounter) Failure() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutive++
	c.total++
	return c.threshold > 0 && c.consecutive > c.threshold
}

// Consecutive liefert die aktuelle Serie.
func (c *FailureCounter) Consecutive() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consecutive
}

// Total liefert alle Fehlschläge seit Erstellung.
func (c *FailureCounter) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// IngestReport fasst einen Citation-Batch zusammen.
type IngestReport struct {
	Targets   int   `json:"targets"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Inserted  int64 `json:"inserted"`
	Aborted   bool  `json:"aborted"`
}

// CitationIngestor lädt Zitierungen mit begrenzter Parallelität.
type CitationIngestor struct {
	Store  *Store
	Source providers.CitationSource
	Policy FetchPolicy
	Logger *zap.Logger

	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewCitationIngestor erstellt einen Ingestor mit Rate-Limiter nach policy.Spacing.
func NewCitationIngestor(store *Store, source providers.CitationSource, policy FetchPolicy, logger *zap.Logger) *CitationIngestor {
	limit := rate.Inf
	if policy.Spacing > 0 {
		limit = rate.Every(policy.Spacing)
	}
	return &CitationIngestor{
		Store:   store,
		Source:  source,
		Policy:  policy,
		Logger:  logger.With(zap.String("source", source.Name())),
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Ingest verarbeitet alle Ziele. Überschreitet die Fehlerserie die Schwelle,
// wird der Batch abgebrochen; bereits verarbeitete Publikationen behalten
// ihre Zitierungen und ErrBatchAborted wird zurückgegeben.
func (i *CitationIngestor) Ingest(ctx context.Context, targets []CitationTarget, counter *FailureCounter) (IngestReport, error) {
	report := IngestReport{Targets: len(targets)}
	if counter == nil {
		counter = NewFailureCounter(i.Policy.FailureThreshold)
	}
	conc := i.Policy.Concurrency
	if conc < 1 {
		conc = 1
	}

	var processed, failed, inserted atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(conc)

	for _, t := range targets {
		if gctx.Err() != nil {
			break
		}
		t := t
		g.Go(func() error {
			log := i.Logger.With(zap.Uint("publication_id", t.PublicationID), zap.String("identifier", t.Identifier))
			recs, err := i.fetchVerified(gctx, t.Identifier)
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				failed.Add(1)
				fetchResults.WithLabelValues("failed").Inc()
				if counter.Failure() {
					log.Error("Zu viele Fehlschläge in Folge, Batch wird abgebrochen",
						zap.Int("consecutive", counter.Consecutive()), zap.Error(err))
					return ErrBatchAborted
				}
				log.Warn("Zitierungen nicht abrufbar, letzter Stand bleibt erhalten", zap.Error(err))
				return nil
			}
			counter.Success()
			fetchResults.WithLabelValues("ok").Inc()

			n, err := i.Store.InsertCitations(ctx, toCitations(t, recs))
			if err != nil {
				failed.Add(1)
				log.Error("Zitierungen konnten nicht gespeichert werden", zap.Error(err))
				return nil
			}
			processed.Add(1)
			inserted.Add(n)
			if n > 0 {
				log.Debug("Neue Zitierungen gespeichert", zap.Int64("inserted", n))
			}
			return nil
		})
	}

	err := g.Wait()
	report.Processed = processed.Load()
	report.Failed = failed.Load()
	report.Inserted = inserted.Load()
	citationsInserted.Add(float64(report.Inserted))

	if errors.Is(err, ErrBatchAborted) {
		report.Aborted = true
		return report, ErrBatchAborted
	}
	if err != nil {
		return report, err
	}
	if ctx.Err() != nil {
		return report, ctx.Err()
	}
	i.Logger.Info("Citation-Batch abgeschlossen",
		zap.Int("targets", report.Targets),
		zap.Int64("processed", report.Processed),
		zap.Int64("failed", report.Failed),
		zap.Int64("inserted", report.Inserted))
	return report, nil
}

// fetchVerified ruft die Quelle mehrfach ab und nimmt die größte Antwort,
// da die Quelle gelegentlich unvollständige Listen liefert.
func (i *CitationIngestor) fetchVerified(ctx context.Context, identifier string) ([]providers.CitationRecord, error) {
	rounds := i.Policy.VerificationAttempts
	if rounds < 1 {
		rounds = 1
	}
	var best []providers.CitationRecord
	successes := 0
	for r := 0; r < rounds; r++ {
		recs, err := i.fetchWithRetry(ctx, identifier)
		if err != nil {
			if successes == 0 {
				return nil, err
			}
			break
		}
		successes++
		if best == nil || len(recs) > len(best) {
			best = recs
		}
	}
	return best, nil
}

func (i *CitationIngestor) fetchWithRetry(ctx context.Context, identifier string) ([]providers.CitationRecord, error) {
	attempts := i.Policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := i.wait(ctx, backoff(i.Policy.BaseDelay, attempt)); err != nil {
				return nil, err
			}
		}
		if err := i.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		recs, err := i.fetchOnce(ctx, identifier)
		if err == nil {
			return recs, nil
		}
		lastErr = err
		var fe *providers.FetchError
		if errors.As(err, &fe) && !fe.Temporary() {
			return nil, err
		}
	}
	return nil, lastErr
}

func (i *CitationIngestor) fetchOnce(ctx context.Context, identifier string) ([]providers.CitationRecord, error) {
	if i.Policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.Policy.Timeout)
		defer cancel()
	}
	return i.Source.FetchCitations(ctx, identifier)
}

func (i *CitationIngestor) wait(ctx context.Context, d time.Duration) error {
	if i.sleep != nil {
		return i.sleep(ctx, d)
	}
	return sleepCtx(ctx, d)
}

// toCitations übernimmt die Quelldaten und markiert Selbstzitierungen, wenn
// die Quelle es meldet oder die Autorenlisten sich überschneiden.
func toCitations(t CitationTarget, recs []providers.CitationRecord) []models.Citation {
	out := make([]models.Citation, 0, len(recs))
	for _, r := range recs {
		if r.ExternalID == "" || r.CreatedDate.IsZero() {
			continue
		}
		out = append(out, models.Citation{
			PublicationID:  t.PublicationID,
			ExternalID:     r.ExternalID,
			CitingWork:     r.CitingIdentifier,
			CitedAt:        r.CreatedDate.UTC(),
			IsSelfCitation: r.IsSelfCitation || providers.SharesAuthor(t.AuthorNames, r.CitingAuthors),
		})
	}
	return out
}

// backoff verdoppelt base pro Versuch, höchstens 32x.
func backoff(base time.Duration, attempt int) time.Duration {
	if attempt <= 0 || base <= 0 {
		return 0
	}
	if attempt > 6 {
		attempt = 6
	}
	return base << (attempt - 1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
