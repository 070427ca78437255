package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/PaIIermo/DIP-compass-gamification/models"
	"github.com/PaIIermo/DIP-compass-gamification/providers"
	"github.com/PaIIermo/DIP-compass-gamification/scoring"
)

// Store kapselt alle Datenbankzugriffe der Pipeline.
type Store struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewStore erstellt einen neuen Store.
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{DB: db, Logger: logger}
}

// Migrate legt alle Tabellen an.
func (s *Store) Migrate() error {
	return s.DB.AutoMigrate(models.All()...)
}

// SeedDecayLookup schreibt die vorberechnete Decay-Tabelle (idempotent).
func (s *Store) SeedDecayLookup(ctx context.Context) error {
	table := scoring.DecayTable()
	rows := make([]models.DecayLookup, len(table))
	for d, f := range table {
		rows[d] = models.DecayLookup{Days: d, Factor: f}
	}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "days"}},
		DoUpdates: clause.AssignmentColumns([]string{"factor"}),
	}).CreateInBatches(&rows, 500).Error
	if err != nil {
		return fmt.Errorf("seed decay lookup: %w", err)
	}
	s.Logger.Info("Decay lookup seeded", zap.Int("rows", len(rows)))
	return nil
}

// Ping ist der leichtgewichtige Health-Check vor jeder Transaktion.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// CheckPreconditions prüft, dass alle Tabellen existieren und die
// Decay-Tabelle vollständig ist.
func (s *Store) CheckPreconditions(ctx context.Context) error {
	db := s.DB.WithContext(ctx)
	for _, m := range models.All() {
		if !db.Migrator().HasTable(m) {
			return fmt.Errorf("%w: table for %T missing", ErrPrecondition, m)
		}
	}
	var n int64
	if err := db.Model(&models.DecayLookup{}).Count(&n).Error; err != nil {
		return fmt.Errorf("%w: count decay lookup: %v", ErrPrecondition, err)
	}
	if n != scoring.MaxDecayDays+1 {
		return fmt.Errorf("%w: decay lookup has %d rows, want %d", ErrPrecondition, n, scoring.MaxDecayDays+1)
	}
	return nil
}

// LoadFacts lädt alle Rohdaten einer Pipeline in je einer Abfrage pro Tabelle.
func (s *Store) LoadFacts(ctx context.Context, db *gorm.DB) (*scoring.Facts, error) {
	if db == nil {
		db = s.DB
	}
	db = db.WithContext(ctx)
	f := &scoring.Facts{}

	var pubs []models.Publication
	if err := db.Select("id", "venue_id", "review_score", "date_published").Order("id").Find(&pubs).Error; err != nil {
		return nil, fmt.Errorf("load publications: %w", err)
	}
	for _, p := range pubs {
		f.Publications = append(f.Publications, scoring.PublicationFact{
			ID: p.ID, VenueID: p.VenueID, ReviewScore: p.ReviewScore, DatePublished: utcPtr(p.DatePublished),
		})
	}

	var auth []models.Authorship
	if err := db.Find(&auth).Error; err != nil {
		return nil, fmt.Errorf("load authorships: %w", err)
	}
	for _, a := range auth {
		f.Authorships = append(f.Authorships, scoring.AuthorshipFact{PublicationID: a.PublicationID, ResearcherID: a.ResearcherID})
	}

	var cites []models.Citation
	if err := db.Select("publication_id", "cited_at", "is_self_citation").Find(&cites).Error; err != nil {
		return nil, fmt.Errorf("load citations: %w", err)
	}
	for _, c := range cites {
		f.Citations = append(f.Citations, scoring.CitationFact{PublicationID: c.PublicationID, CreatedAt: c.CitedAt.UTC(), SelfCitation: c.IsSelfCitation})
	}

	var topics []models.PublicationTopic
	if err := db.Find(&topics).Error; err != nil {
		return nil, fmt.Errorf("load publication topics: %w", err)
	}
	for _, t := range topics {
		f.Topics = append(f.Topics, scoring.TopicFact{PublicationID: t.PublicationID, TopicID: t.TopicID})
	}
	return f, nil
}

// RefreshCitationCounts setzt citation_count mengenbasiert auf die Anzahl
// der Fremdzitierungen.
func (s *Store) RefreshCitationCounts(tx *gorm.DB) error {
	sub := tx.Model(&models.Citation{}).Select("COUNT(*)").
		Where("citations.publication_id = publications.id AND citations.is_self_citation = ?", false)
	return tx.Model(&models.Publication{}).Where("1 = 1").
		UpdateColumn("citation_count", sub).Error
}

// CitationCounts liest die gecachten Zitierzahlen.
func (s *Store) CitationCounts(tx *gorm.DB) (map[uint]int, error) {
	var rows []models.Publication
	if err := tx.Select("id", "citation_count").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[uint]int, len(rows))
	for _, r := range rows {
		out[r.ID] = r.CitationCount
	}
	return out, nil
}

// SaveHIndexes schreibt die h-Indizes; Autoren ohne Eintrag bekommen 0.
func (s *Store) SaveHIndexes(tx *gorm.DB, h map[uint]int) error {
	if err := tx.Model(&models.Researcher{}).Where("h_index <> ?", 0).UpdateColumn("h_index", 0).Error; err != nil {
		return err
	}
	for id, v := range h {
		if v == 0 {
			continue
		}
		if err := tx.Model(&models.Researcher{}).Where("id = ?", id).UpdateColumn("h_index", v).Error; err != nil {
			return fmt.Errorf("update h_index of researcher %d: %w", id, err)
		}
	}
	return nil
}

// HIndexes liest die gespeicherten h-Indizes.
func (s *Store) HIndexes(tx *gorm.DB) (map[uint]int, error) {
	var rows []models.Researcher
	if err := tx.Select("id", "h_index").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[uint]int, len(rows))
	for _, r := range rows {
		out[r.ID] = r.HIndex
	}
	return out, nil
}

// SaveVenueValues schreibt die Venue-Werte.
func (s *Store) SaveVenueValues(tx *gorm.DB, values map[uint]float64) error {
	for id, v := range values {
		if err := tx.Model(&models.Venue{}).Where("id = ?", id).UpdateColumn("value", v).Error; err != nil {
			return fmt.Errorf("update value of venue %d: %w", id, err)
		}
	}
	return nil
}

// VenueValues liest die gespeicherten Venue-Werte.
func (s *Store) VenueValues(tx *gorm.DB) (map[uint]float64, error) {
	var rows []models.Venue
	if err := tx.Select("id", "value").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[uint]float64, len(rows))
	for _, r := range rows {
		out[r.ID] = r.Value
	}
	return out, nil
}

// SaveScores schreibt Overall-Score und Zitierzahl je Publikation.
func (s *Store) SaveScores(tx *gorm.DB, scores map[uint]scoring.PublicationScore) error {
	for id, sc := range scores {
		err := tx.Model(&models.Publication{}).Where("id = ?", id).UpdateColumns(map[string]any{
			"overall_score":  sc.Overall,
			"citation_count": sc.CitationCount,
		}).Error
		if err != nil {
			return fmt.Errorf("update score of publication %d: %w", id, err)
		}
	}
	return nil
}

// PublicationsWithoutSnapshots liefert Publikationen ohne jeden Snapshot,
// die vor ref erschienen sind.
func (s *Store) PublicationsWithoutSnapshots(ctx context.Context, ref time.Time) ([]scoring.PublicationFact, error) {
	var pubs []models.Publication
	err := s.DB.WithContext(ctx).Select("id", "venue_id", "date_published").
		Where("NOT EXISTS (SELECT 1 FROM publication_snapshots ps WHERE ps.publication_id = publications.id)").
		Where("date_published IS NOT NULL").
		Order("id").Find(&pubs).Error
	if err != nil {
		return nil, fmt.Errorf("discover snapshot gaps: %w", err)
	}
	var out []scoring.PublicationFact
	for _, p := range pubs {
		if p.DatePublished.Before(ref) {
			out = append(out, scoring.PublicationFact{ID: p.ID, VenueID: p.VenueID, DatePublished: utcPtr(p.DatePublished)})
		}
	}
	return out, nil
}

// Coverage ist die wachsende Menge bereits geschriebener Publikations-Snapshots.
type Coverage map[string]map[uint]struct{}

// Add markiert die Publikationen als zum Stichtag d geschrieben.
func (c Coverage) Add(d time.Time, ids ...uint) {
	k := scoring.DateKey(d)
	if c[k] == nil {
		c[k] = make(map[uint]struct{}, len(ids))
	}
	for _, id := range ids {
		c[k][id] = struct{}{}
	}
}

// Complete meldet, ob zum Stichtag d alle übergebenen Publikationen schon
// einen Snapshot haben.
func (c Coverage) Complete(d time.Time, pubs []scoring.PublicationFact) bool {
	have := c[scoring.DateKey(d)]
	for _, p := range pubs {
		if _, ok := have[p.ID]; !ok {
			return false
		}
	}
	return true
}

// SnapshotCoverage lädt die vorhandenen (publication, date)-Schlüssel.
func (s *Store) SnapshotCoverage(ctx context.Context) (Coverage, error) {
	var rows []models.PublicationSnapshot
	if err := s.DB.WithContext(ctx).Select("publication_id", "date").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load snapshot coverage: %w", err)
	}
	c := Coverage{}
	for _, r := range rows {
		c.Add(r.Date, r.PublicationID)
	}
	return c, nil
}

// NearestSnapshotDate liefert den letzten Publikations-Stichtag <= d.
func (s *Store) NearestSnapshotDate(tx *gorm.DB, d time.Time) (time.Time, bool, error) {
	var dates []time.Time
	err := tx.Model(&models.PublicationSnapshot{}).Distinct("date").
		Where("date <= ?", d).Order("date DESC").Limit(1).Pluck("date", &dates).Error
	if err != nil {
		return time.Time{}, false, err
	}
	if len(dates) == 0 {
		return time.Time{}, false, nil
	}
	return dates[0].UTC(), true, nil
}

// SnapshotValues liest alle Publikations-Snapshot-Werte eines Stichtags.
func (s *Store) SnapshotValues(tx *gorm.DB, d time.Time) (map[uint]float64, error) {
	var rows []models.PublicationSnapshot
	if err := tx.Where("date = ?", d).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[uint]float64, len(rows))
	for _, r := range rows {
		out[r.PublicationID] = r.Value
	}
	return out, nil
}

// UpsertPublicationSnapshots schreibt die Snapshots idempotent.
func (s *Store) UpsertPublicationSnapshots(tx *gorm.DB, rows []models.PublicationSnapshot) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "publication_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).CreateInBatches(&rows, 500).Error
}

// UpsertTopicSnapshots schreibt die Topic-Rollups idempotent.
func (s *Store) UpsertTopicSnapshots(tx *gorm.DB, rows []models.TopicSnapshot) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "topic_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"mean_value"}),
	}).CreateInBatches(&rows, 500).Error
}

// UpsertUserTopicSnapshots schreibt die Autor-pro-Topic-Rollups idempotent.
func (s *Store) UpsertUserTopicSnapshots(tx *gorm.DB, rows []models.UserTopicSnapshot) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "topic_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"mean_value"}),
	}).CreateInBatches(&rows, 500).Error
}

// UpsertUserOverallSnapshots schreibt die Autor-Gesamt-Rollups idempotent.
func (s *Store) UpsertUserOverallSnapshots(tx *gorm.DB, rows []models.UserOverallSnapshot) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"mean_value"}),
	}).CreateInBatches(&rows, 500).Error
}

// UpsertSubmission legt eine neu entdeckte Publikation samt Venue, Autoren
// und Topics an. Bereits bekannte Einreichungen werden nicht verändert.
func (s *Store) UpsertSubmission(ctx context.Context, rec providers.SubmissionRecord) (bool, error) {
	created := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Publication
		err := tx.Where("submission_id = ?", rec.SubmissionID).First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		venue := models.Venue{ExternalID: rec.VenueExternalID, Name: rec.VenueName, Value: scoring.MinVenueValue}
		if err := tx.Where(models.Venue{ExternalID: rec.VenueExternalID}).FirstOrCreate(&venue).Error; err != nil {
			return fmt.Errorf("venue %s: %w", rec.VenueExternalID, err)
		}

		pub := models.Publication{
			SubmissionID:  rec.SubmissionID,
			DOI:           rec.DOIPtr(),
			Title:         rec.Title,
			VenueID:       venue.ID,
			ReviewScore:   rec.ReviewScore,
			DatePublished: utcPtr(rec.DatePublished),
		}
		if err := tx.Create(&pub).Error; err != nil {
			return fmt.Errorf("create publication %s: %w", rec.SubmissionID, err)
		}

		for _, a := range rec.Authors {
			r := models.Researcher{ExternalID: a.ExternalID, Name: a.Name}
			if err := tx.Where(models.Researcher{ExternalID: a.ExternalID}).FirstOrCreate(&r).Error; err != nil {
				return fmt.Errorf("researcher %s: %w", a.ExternalID, err)
			}
			link := models.Authorship{PublicationID: pub.ID, ResearcherID: r.ID}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
				return err
			}
		}
		for _, name := range rec.Topics {
			name = providers.NormalizeTopic(name)
			if name == "" {
				continue
			}
			t := models.Topic{Name: name}
			if err := tx.Where(models.Topic{Name: name}).FirstOrCreate(&t).Error; err != nil {
				return fmt.Errorf("topic %s: %w", name, err)
			}
			link := models.PublicationTopic{PublicationID: pub.ID, TopicID: t.ID}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
				return err
			}
		}
		created = true
		return nil
	})
	return created, err
}

// CitationTargets lädt alle Publikationen mit den Namen ihrer Autoren.
func (s *Store) CitationTargets(ctx context.Context) ([]CitationTarget, error) {
	var pubs []models.Publication
	if err := s.DB.WithContext(ctx).Order("id").Find(&pubs).Error; err != nil {
		return nil, err
	}
	type row struct {
		PublicationID uint
		Name          string
	}
	var names []row
	err := s.DB.WithContext(ctx).Table("publication_authors pa").
		Select("pa.publication_id AS publication_id, r.name AS name").
		Joins("JOIN researchers r ON r.id = pa.user_id").
		Scan(&names).Error
	if err != nil {
		return nil, err
	}
	byPub := make(map[uint][]string)
	for _, n := range names {
		byPub[n.PublicationID] = append(byPub[n.PublicationID], n.Name)
	}
	out := make([]CitationTarget, 0, len(pubs))
	for _, p := range pubs {
		out = append(out, CitationTarget{PublicationID: p.ID, Identifier: p.Identifier(), AuthorNames: byPub[p.ID]})
	}
	return out, nil
}

// InsertCitations fügt neue Zitierungen ein; bekannte ExternalIDs werden übersprungen.
func (s *Store) InsertCitations(ctx context.Context, rows []models.Citation) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoNothing: true,
	}).CreateInBatches(&rows, 500)
	return res.RowsAffected, res.Error
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
