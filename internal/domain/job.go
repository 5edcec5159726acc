package domain

import (
	"encoding/json"
	"time"
)

// JobStatus represents the lifecycle state of a scrape job.
// Values include JobStatusQueued, JobStatusProcessing, JobStatusCompleted, and JobStatusFailed.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no transition can leave s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransitionTo reports whether s -> next is a legal transition.
// Queued -> Processing, Processing -> Completed and Processing -> Failed are the only ones.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return next == JobStatusProcessing
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed
	default:
		return false
	}
}

// Job is one requested import. The claim is the Processing status plus WorkerID.
type Job struct {
	ID          string      `gorm:"type:text;primaryKey" json:"id"`
	Status      JobStatus   `gorm:"type:text;not null;default:queued;index:idx_scrape_jobs_claim,priority:1" json:"status"`
	SourceURL   string      `gorm:"column:source_url;type:text;not null" json:"source_url"`
	Title       string      `gorm:"type:text" json:"title,omitempty"`
	Description string      `gorm:"type:text" json:"description,omitempty"`
	Tags        StringArray `gorm:"column:tags" json:"tags"`
	UserID      *int32      `gorm:"column:user_id;index" json:"user_id,omitempty"`
	WorkerID    string      `gorm:"column:worker_id;type:text" json:"worker_id,omitempty"`

	// Set on Completed.
	VideoID      *int64 `gorm:"column:video_id" json:"video_id,omitempty"`
	ResultTitle  string `gorm:"column:result_title;type:text" json:"result_title,omitempty"`
	S3Key        string `gorm:"column:s3_key;type:text" json:"s3_key,omitempty"`
	ThumbnailKey string `gorm:"column:thumbnail_key;type:text" json:"thumbnail_key,omitempty"`
	Duration     int    `gorm:"column:duration_seconds;default:0" json:"duration_seconds,omitempty"`

	// Set on Failed.
	ErrorMessage string `gorm:"column:error_message;type:text" json:"error_message,omitempty"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `gorm:"index:idx_scrape_jobs_claim,priority:2" json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Job.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Job) TableName() string {
	return "scrape_jobs"
}

// JobResult is what a successful pipeline run hands to the job store.
type JobResult struct {
	VideoID      int64  `json:"video_id"`
	Title        string `json:"title"`
	S3Key        string `json:"s3_key"`
	ThumbnailURL string `json:"thumbnail_url"`
	Duration     int    `json:"-"`
}

// JobView is the polling representation of a job. It marshals to exactly one of
// {"Queued":null}, {"Processing":null}, {"Completed":{...}} or {"Failed":"msg"}.
type JobView struct {
	Status JobStatus
	Result *JobResult
	Error  string
}

// View maps a stored job to its wire representation.
func (j *Job) View() JobView {
	v := JobView{Status: j.Status}
	switch j.Status {
	case JobStatusCompleted:
		res := &JobResult{
			Title:        j.ResultTitle,
			S3Key:        j.S3Key,
			ThumbnailURL: j.ThumbnailKey,
		}
		if j.VideoID != nil {
			res.VideoID = *j.VideoID
		}
		v.Result = res
	case JobStatusFailed:
		v.Error = j.ErrorMessage
	}
	return v
}

// MarshalJSON implements json.Marshaler.
func (v JobView) MarshalJSON() ([]byte, error) {
	switch v.Status {
	case JobStatusCompleted:
		res := v.Result
		if res == nil {
			res = &JobResult{}
		}
		return json.Marshal(map[string]*JobResult{"Completed": res})
	case JobStatusFailed:
		return json.Marshal(map[string]string{"Failed": v.Error})
	case JobStatusProcessing:
		return []byte(`{"Processing":null}`), nil
	default:
		return []byte(`{"Queued":null}`), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler. Clients polling the API use it.
func (v *JobView) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = JobView{Status: JobStatusQueued}
	if body, ok := raw["Completed"]; ok {
		var res JobResult
		if err := json.Unmarshal(body, &res); err != nil {
			return err
		}
		v.Status = JobStatusCompleted
		v.Result = &res
		return nil
	}
	if body, ok := raw["Failed"]; ok {
		v.Status = JobStatusFailed
		return json.Unmarshal(body, &v.Error)
	}
	if _, ok := raw["Processing"]; ok {
		v.Status = JobStatusProcessing
	}
	return nil
}

// JobStats counts jobs per status.
type JobStats struct {
	Queued     int64 `json:"queued"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}
