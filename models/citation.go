package models

import "time"

// Citation ist eine eingehende Zitierung einer Publikation. Append-only;
// Duplikate werden beim Insert über ExternalID verworfen.
type Citation struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	PublicationID  uint      `json:"publication_id" gorm:"index;not null"`
	ExternalID     string    `json:"external_id" gorm:"uniqueIndex;not null"`
	CitingWork     string    `json:"citing_work"`
	CitedAt        time.Time `json:"cited_at" gorm:"index;not null"`
	IsSelfCitation bool      `json:"is_self_citation" gorm:"not null;default:false"`
}

func (Citation) TableName() string { return "citations" }
