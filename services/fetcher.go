package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/PaIIermo/DIP-compass-gamification/models"
	"github.com/PaIIermo/DIP-compass-gamification/providers"
)

// discoveryOverlap lässt den Feed etwas vor dem letzten bekannten Datum
// beginnen; bereits bekannte Einreichungen werden beim Upsert übersprungen.
const discoveryOverlap = 7 * 24 * time.Hour

// FetchService holt neue Publikationen aus allen Publikationsquellen.
type FetchService struct {
	Store   *Store
	Sources []providers.PublicationSource
	Logger  *zap.Logger
}

// NewFetchService erstellt eine neue Instanz des FetchService.
func NewFetchService(store *Store, logger *zap.Logger, sources ...providers.PublicationSource) *FetchService {
	return &FetchService{Store: store, Sources: sources, Logger: logger}
}

// DiscoveryReport fasst die Publikations-Discovery zusammen.
type DiscoveryReport struct {
	Seen    int `json:"seen"`
	Created int `json:"created"`
	Failed  int `json:"failed"`
}

// DiscoverPublications fragt jede Quelle ab, dedupliziert über die
// Submission-ID und legt neue Publikationen an. Eine fehlerhafte Quelle
// wird protokolliert, die übrigen laufen weiter.
func (f *FetchService) DiscoverPublications(ctx context.Context) (DiscoveryReport, error) {
	var report DiscoveryReport
	since, err := f.latestPublished(ctx)
	if err != nil {
		return report, err
	}

	all := make(map[string]providers.SubmissionRecord) // De-duplizierung
	var order []string
	for _, src := range f.Sources {
		recs, err := src.Discover(ctx, since)
		if err != nil {
			f.Logger.Error("Publikationsquelle fehlgeschlagen", zap.String("source", src.Name()), zap.Error(err))
			continue
		}
		f.Logger.Info("Quelle hat Ergebnisse geliefert", zap.String("source", src.Name()), zap.Int("count", len(recs)))
		for _, r := range recs {
			if _, exists := all[r.SubmissionID]; !exists {
				order = append(order, r.SubmissionID)
			}
			all[r.SubmissionID] = r
		}
	}
	report.Seen = len(all)

	for _, id := range order {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		created, err := f.Store.UpsertSubmission(ctx, all[id])
		if err != nil {
			report.Failed++
			f.Logger.Error("Einreichung konnte nicht gespeichert werden", zap.String("submission_id", id), zap.Error(err))
			continue
		}
		if created {
			report.Created++
		}
	}
	publicationsDiscovered.Add(float64(report.Created))
	f.Logger.Info("Discovery abgeschlossen", zap.Int("seen", report.Seen), zap.Int("created", report.Created))
	return report, nil
}

// latestPublished liefert das Startdatum für den Feed oder nil bei leerer Datenbank.
func (f *FetchService) latestPublished(ctx context.Context) (*time.Time, error) {
	var pubs []models.Publication
	err := f.Store.DB.WithContext(ctx).Select("date_published").
		Where("date_published IS NOT NULL").Find(&pubs).Error
	if err != nil {
		return nil, fmt.Errorf("latest publication date: %w", err)
	}
	var latest *time.Time
	for _, p := range pubs {
		if latest == nil || p.DatePublished.After(*latest) {
			latest = p.DatePublished
		}
	}
	if latest == nil {
		return nil, nil
	}
	since := latest.UTC().Add(-discoveryOverlap)
	return &since, nil
}
