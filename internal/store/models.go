package store

import "time"

// RunRecord is one persisted pipeline run.
type RunRecord struct {
	ID            string
	Repo          string
	Branch        string
	Trigger       string
	Transformer   string
	State         string
	Outcome       string // "noop", "committed", "failed"; empty while running
	BaseRevision  string
	CommitHash    string
	CandidateHash string
	Summary       string
	Error         string
	StartedAt     time.Time
	FinishedAt    time.Time // zero while running
}

// ArtifactState is the last published hash of one path.
type ArtifactState struct {
	Path       string
	Hash       string
	CommitHash string
	RunID      string
	UpdatedAt  time.Time
}

// Lease is an exclusive, expiring claim on a key.
type Lease struct {
	Key        string
	Holder     string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// RunModel represents the database row for the runs table.
// Fields map directly to SQL columns with Unix timestamps for time values.
type RunModel struct {
	ID            string
	Repo          string
	Branch        string
	Trigger       string
	Transformer   string
	State         string
	Outcome       string
	BaseRevision  string
	CommitHash    string
	CandidateHash string
	Summary       string
	Error         string
	StartedAt     int64  // Unix timestamp
	FinishedAt    *int64 // Unix timestamp, nullable
}

func toRunModel(r *RunRecord) *RunModel {
	return &RunModel{
		ID:            r.ID,
		Repo:          r.Repo,
		Branch:        r.Branch,
		Trigger:       r.Trigger,
		Transformer:   r.Transformer,
		State:         r.State,
		Outcome:       r.Outcome,
		BaseRevision:  r.BaseRevision,
		CommitHash:    r.CommitHash,
		CandidateHash: r.CandidateHash,
		Summary:       r.Summary,
		Error:         r.Error,
		StartedAt:     r.StartedAt.Unix(),
		FinishedAt:    timeToUnixPtr(r.FinishedAt),
	}
}

func (m *RunModel) toRecord() *RunRecord {
	return &RunRecord{
		ID:            m.ID,
		Repo:          m.Repo,
		Branch:        m.Branch,
		Trigger:       m.Trigger,
		Transformer:   m.Transformer,
		State:         m.State,
		Outcome:       m.Outcome,
		BaseRevision:  m.BaseRevision,
		CommitHash:    m.CommitHash,
		CandidateHash: m.CandidateHash,
		Summary:       m.Summary,
		Error:         m.Error,
		StartedAt:     time.Unix(m.StartedAt, 0),
		FinishedAt:    unixPtrToTime(m.FinishedAt),
	}
}

func timeToUnixPtr(t time.Time) *int64 {
	if t.IsZero() {
		return nil
	}
	u := t.Unix()
	return &u
}

func unixPtrToTime(u *int64) time.Time {
	if u == nil {
		return time.Time{}
	}
	return time.Unix(*u, 0)
}
