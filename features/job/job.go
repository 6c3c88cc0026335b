package job

import (
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = errors.New("job not found")

// Job is a pipeline request that failed and can be re-published.
type Job struct {
	ID        string          `json:"id"`
	Handler   string          `json:"handler"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error"`
	Retries   int             `json:"retries"`
	CreatedAt time.Time       `json:"created_at"`
}

// RunRequest holds the fields of a pipeline request payload worth showing.
type RunRequest struct {
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

// Request decodes the payload. Anything that is not a pipeline request gives the zero value.
func (j Job) Request() RunRequest {
	var r RunRequest
	_ = json.Unmarshal(j.Payload, &r)
	return r
}

// FailedRun is the API view of a Job.
type FailedRun struct {
	ID          string     `json:"id"`
	Reason      string     `json:"reason"`
	RequestedAt *time.Time `json:"requested_at,omitempty"`
	FailedAt    time.Time  `json:"failed_at"`
	Error       string     `json:"error"`
	Retries     int        `json:"retries"`
}

func (j Job) FailedRun() FailedRun {
	req := j.Request()
	run := FailedRun{
		ID:       j.ID,
		Reason:   req.Reason,
		FailedAt: j.CreatedAt,
		Error:    j.Error,
		Retries:  j.Retries,
	}
	if !req.RequestedAt.IsZero() {
		run.RequestedAt = &req.RequestedAt
	}
	return run
}
