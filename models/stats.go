package models

import "time"

// BatchStats summarizes one ingestion pass.
type BatchStats struct {
	BatchID         string
	Kind            string
	Subscribed      int
	Consumed        int
	Kept            int
	Filtered        int
	Synthesized     int
	Persisted       int
	PersistFailures int
	Unmatched       int
	EndedEarly      bool
	StartedAt       time.Time
	FinishedAt      time.Time
}

func (s BatchStats) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
