package models

import "time"

// Venue (Event) ist der Veranstaltungsort einer Publikation. Value ist der
// Durchschnitt der h-Indizes seiner Autoren, begrenzt auf [1, 100].
type Venue struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	ExternalID string    `json:"external_id" gorm:"uniqueIndex;not null"`
	Name       string    `json:"name"`
	Value      float64   `json:"value" gorm:"type:numeric(12,3);not null;default:1"`
}

func (Venue) TableName() string { return "venues" }

// Researcher (User) ist ein Autor mit seinem aktuellen h-Index (max. 100).
type Researcher struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	ExternalID string    `json:"external_id" gorm:"uniqueIndex;not null"`
	Name       string    `json:"name"`
	HIndex     int       `json:"h_index" gorm:"column:h_index;not null;default:0"`
}

func (Researcher) TableName() string { return "researchers" }

// Topic gruppiert Publikationen thematisch.
type Topic struct {
	ID   uint   `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"uniqueIndex;not null"`
}

func (Topic) TableName() string { return "topics" }

// DecayLookup ist die vorberechnete Tabelle Tage -> Decay-Faktor.
type DecayLookup struct {
	Days   int     `json:"days" gorm:"primaryKey;autoIncrement:false"`
	Factor float64 `json:"factor" gorm:"type:numeric(14,12);not null"`
}

func (DecayLookup) TableName() string { return "decay_lookups" }
