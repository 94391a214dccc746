package sql

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
)

// JobEntity is the waves_jobs row.
type JobEntity struct {
	ID               string `gorm:"primaryKey"`
	Slug             string
	Title            string
	Service          string
	Status           model.JobStatus
	NbRetry          int
	RemoteJobID      string
	RemoteHistoryID  string
	ExitCode         int
	CommandLine      string
	Adaptor          model.AdaptorBinding `gorm:"type:text"`
	WorkingDir       string
	Inputs           jsonColumn[[]model.JobInput]  `gorm:"type:text"`
	Outputs          jsonColumn[[]model.JobOutput] `gorm:"type:text"`
	ResultsAvailable bool
	Notify           bool
	EmailTo          string
	LeaseOwner       string
	LeaseExpiresAt   *time.Time
	Version          int
	CreatedAt        time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime:false"`
}

func (JobEntity) TableName() string {
	return "waves_jobs"
}

// HistoryEntity is the waves_job_history row.
type HistoryEntity struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	JobID     string
	Status    model.JobStatus
	Message   string
	Timestamp time.Time
	IsAdmin   bool
}

func (HistoryEntity) TableName() string {
	return "waves_job_history"
}

// jsonColumn stores V as a JSON document. A nil value is stored as NULL.
type jsonColumn[V any] struct {
	Val V
}

func (c jsonColumn[V]) Value() (driver.Value, error) {
	data, err := json.Marshal(c.Val)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return nil, nil
	}
	return string(data), nil
}

func (c *jsonColumn[V]) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		var zero V
		c.Val = zero
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type for JSON column: %T", value)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, &c.Val)
}
