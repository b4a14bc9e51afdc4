package app

import "time"

const (
	HealthUp       = "up"
	HealthDegraded = "degraded"
)

type HealthStatus struct {
	Status     string    `json:"status"`
	LastBuild  string    `json:"last_build,omitempty"`
	BuildID    string    `json:"build_id,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Health reports the outcome of the most recent build. Before the first
// build finishes the status is up.
func (b *Builder) Health() HealthStatus {
	b.mu.Lock()
	last := b.last
	b.mu.Unlock()

	if last == nil {
		return HealthStatus{Status: HealthUp}
	}
	status := HealthStatus{
		Status:     HealthUp,
		LastBuild:  last.Status,
		BuildID:    last.ID,
		FinishedAt: last.StartedAt.Add(last.Duration),
	}
	if last.Err != nil {
		status.Status = HealthDegraded
		status.Error = last.Err.Error()
	}
	return status
}
