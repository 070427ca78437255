package models

import (
	"time"

	"gorm.io/datatypes"
)

// PipelineRun protokolliert einen Lauf der Punkte-Pipeline.
type PipelineRun struct {
	ID         string     `json:"id" gorm:"primaryKey;size:36"`
	StartedAt  time.Time  `json:"started_at" gorm:"index"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	RunMode   string `json:"run_mode"`
	Frequency string `json:"frequency"`
	MockData  bool   `json:"mock_data"`
	State     string `json:"state" gorm:"index"` // running, done, failed, aborted
	Error     string `json:"error,omitempty" gorm:"type:text"`

	Stats datatypes.JSON `json:"stats" gorm:"type:jsonb"`
}

func (PipelineRun) TableName() string { return "pipeline_runs" }

// All listet alle Modelle für die Auto-Migration.
func All() []any {
	return []any{
		&Venue{}, &Researcher{}, &Topic{},
		&Publication{}, &Authorship{}, &PublicationTopic{}, &Citation{},
		&PublicationSnapshot{}, &TopicSnapshot{}, &UserTopicSnapshot{}, &UserOverallSnapshot{},
		&DecayLookup{}, &PipelineRun{},
	}
}
