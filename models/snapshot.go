package models

import "time"

// PublicationSnapshot speichert den Overall-Score einer Publikation zu einem Stichtag.
type PublicationSnapshot struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	PublicationID uint      `json:"publication_id" gorm:"uniqueIndex:idx_publication_snapshot_key;not null"`
	Date          time.Time `json:"date" gorm:"uniqueIndex:idx_publication_snapshot_key;not null"`
	Value         float64   `json:"value" gorm:"type:numeric(12,3);not null"`
}

func (PublicationSnapshot) TableName() string { return "publication_snapshots" }

// TopicSnapshot speichert den gewichteten Mittelwert eines Topics.
type TopicSnapshot struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	TopicID   uint      `json:"topic_id" gorm:"uniqueIndex:idx_topic_snapshot_key;not null"`
	Date      time.Time `json:"date" gorm:"uniqueIndex:idx_topic_snapshot_key;not null"`
	MeanValue float64   `json:"mean_value" gorm:"type:numeric(12,3);not null"`
}

func (TopicSnapshot) TableName() string { return "topic_snapshots" }

// UserTopicSnapshot speichert den Score eines Autors innerhalb eines Topics.
type UserTopicSnapshot struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	ResearcherID uint      `json:"user_id" gorm:"column:user_id;uniqueIndex:idx_user_topic_snapshot_key;not null"`
	TopicID      uint      `json:"topic_id" gorm:"uniqueIndex:idx_user_topic_snapshot_key;not null"`
	Date         time.Time `json:"date" gorm:"uniqueIndex:idx_user_topic_snapshot_key;not null"`
	MeanValue    float64   `json:"mean_value" gorm:"type:numeric(12,3);not null"`
}

func (UserTopicSnapshot) TableName() string { return "user_topic_snapshots" }

// UserOverallSnapshot speichert den Gesamt-Score eines Autors.
type UserOverallSnapshot struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	ResearcherID uint      `json:"user_id" gorm:"column:user_id;uniqueIndex:idx_user_overall_snapshot_key;not null"`
	Date         time.Time `json:"date" gorm:"uniqueIndex:idx_user_overall_snapshot_key;not null"`
	MeanValue    float64   `json:"mean_value" gorm:"type:numeric(12,3);not null"`
}

func (UserOverallSnapshot) TableName() string { return "user_overall_snapshots" }
