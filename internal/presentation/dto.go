package presentation

import (
	"time"

	"github.com/zjrosen/georefresh/internal/git"
	"github.com/zjrosen/georefresh/internal/store"
)

// RunDTO represents a recorded pipeline run for presentation
type RunDTO struct {
	ID          string     `json:"id"`
	Trigger     string     `json:"trigger"`
	Transformer string     `json:"transformer"`
	State       string     `json:"state"`
	Outcome     string     `json:"outcome"`
	Base        string     `json:"base_revision,omitempty"`
	Commit      string     `json:"commit,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	DurationMs  int64      `json:"duration_ms,omitempty"`
}

// CommitDTO represents one commit of the published branch
type CommitDTO struct {
	Hash    string    `json:"hash"`
	Subject string    `json:"subject"`
	Author  string    `json:"author"`
	Date    time.Time `json:"date"`
}

// FromRunRecord converts a stored run to a DTO.
func FromRunRecord(r *store.RunRecord) RunDTO {
	dto := RunDTO{
		ID:          r.ID,
		Trigger:     r.Trigger,
		Transformer: r.Transformer,
		State:       r.State,
		Outcome:     r.Outcome,
		Base:        r.BaseRevision,
		Commit:      r.CommitHash,
		Summary:     r.Summary,
		Error:       r.Error,
		StartedAt:   r.StartedAt,
	}
	if !r.FinishedAt.IsZero() {
		finished := r.FinishedAt
		dto.FinishedAt = &finished
		dto.DurationMs = finished.Sub(r.StartedAt).Milliseconds()
	}
	return dto
}

// FromRunRecords converts a slice of stored runs to DTOs
func FromRunRecords(runs []*store.RunRecord) []RunDTO {
	dtos := make([]RunDTO, len(runs))
	for i, r := range runs {
		dtos[i] = FromRunRecord(r)
	}
	return dtos
}

// FromCommits converts git log entries to DTOs
func FromCommits(commits []git.CommitInfo) []CommitDTO {
	dtos := make([]CommitDTO, len(commits))
	for i, c := range commits {
		dtos[i] = CommitDTO{Hash: c.Hash, Subject: c.Subject, Author: c.Author, Date: c.Date}
	}
	return dtos
}
