package models

import (
	"time"
)

// Publication repräsentiert eine veröffentlichte Einreichung und deren aktuellen Score.
type Publication struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SubmissionID  string     `json:"submission_id" gorm:"uniqueIndex;not null"`
	DOI           *string    `json:"doi,omitempty" gorm:"column:doi;index"`
	Title         string     `json:"title"`
	VenueID       uint       `json:"venue_id" gorm:"index;not null"`
	ReviewScore   float64    `json:"review_score" gorm:"type:numeric(6,3)"`
	DatePublished *time.Time `json:"date_published,omitempty" gorm:"index"`

	// Gecachte Werte, bei jedem Lauf neu berechnet
	CitationCount int     `json:"citation_count" gorm:"not null;default:0"`
	OverallScore  float64 `json:"overall_score" gorm:"type:numeric(12,3);not null;default:0"`
}

// TableName gibt explizit den Tabellennamen an.
func (Publication) TableName() string {
	return "publications"
}

// Identifier liefert die ID, unter der externe Quellen die Publikation kennen.
func (p Publication) Identifier() string {
	if p.DOI != nil && *p.DOI != "" {
		return *p.DOI
	}
	return p.SubmissionID
}

// Authorship verknüpft Publikationen mit ihren Autoren.
type Authorship struct {
	PublicationID uint `json:"publication_id" gorm:"primaryKey;autoIncrement:false"`
	ResearcherID  uint `json:"researcher_id" gorm:"column:user_id;primaryKey;autoIncrement:false;index"`
}

func (Authorship) TableName() string { return "publication_authors" }

// PublicationTopic ist die Bridge-Tabelle zwischen Publikationen und Topics.
type PublicationTopic struct {
	PublicationID uint `json:"publication_id" gorm:"primaryKey;autoIncrement:false"`
	TopicID       uint `json:"topic_id" gorm:"primaryKey;autoIncrement:false;index"`
}

func (PublicationTopic) TableName() string { return "publication_topics" }
