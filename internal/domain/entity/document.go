package entity

import (
	"errors"
	"fmt"
	"time"
)

// ErrDocumentNotFound is returned by repositories when no document matches.
var ErrDocumentNotFound = errors.New("document not found")

type DocumentStatus string

const (
	StatusPending DocumentStatus = "PENDING"
	StatusRunning DocumentStatus = "RUNNING"
	StatusSuccess DocumentStatus = "SUCCESS"
	StatusFailed  DocumentStatus = "FAILED"
)

// CanTransitionTo reports whether the status machine allows moving to next.
// SUCCESS and FAILED are terminal for the workflow; only a resubmission
// re-enters RUNNING from a terminal state.
func (s DocumentStatus) CanTransitionTo(next DocumentStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning
	case StatusRunning:
		return next == StatusSuccess || next == StatusFailed || next == StatusRunning
	case StatusSuccess, StatusFailed:
		return next == StatusRunning
	default:
		return false
	}
}

// Document is the durable record of one summarization request.
// Name and URL are each unique across all documents; together they form
// the natural key used for idempotent resubmission. Generation counts
// resubmissions: every reset bumps it, and workflow writes carry the
// generation they loaded so a stale run cannot overwrite a newer one.
type Document struct {
	DocumentID string         `gorm:"primaryKey;type:uuid" json:"document_id"`
	Name       string         `gorm:"not null;uniqueIndex" json:"name"`
	URL        string         `gorm:"not null;uniqueIndex" json:"url"`
	Status     DocumentStatus `gorm:"not null;type:text" json:"status"`
	Summary    string         `gorm:"type:text" json:"summary"`
	Error      string         `gorm:"type:text" json:"error"`
	Progress   float64        `json:"progress"`
	Generation int64          `gorm:"not null;default:1" json:"-"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// ResetForRun clears the outcome of a previous run, bumps the run
// generation and puts the document back into RUNNING. Used by
// resubmission; the new generation invalidates writes from any run
// still in flight.
func (d *Document) ResetForRun() error {
	if err := d.transition(StatusRunning); err != nil {
		return err
	}
	d.Generation++
	d.Summary = ""
	d.Error = ""
	d.Progress = 0
	return nil
}

// MarkRunning flips the document into RUNNING. Idempotent when the
// document is already RUNNING.
func (d *Document) MarkRunning() error {
	return d.transition(StatusRunning)
}

// MarkSuccess records the final summary. Summary is only ever set together
// with SUCCESS; a previous error is cleared.
func (d *Document) MarkSuccess(summary string) error {
	if err := d.transition(StatusSuccess); err != nil {
		return err
	}
	d.Summary = summary
	d.Error = ""
	d.Progress = 1.0
	return nil
}

// MarkFailed records the failure cause. Error is only ever set together
// with FAILED; a previous summary is cleared.
func (d *Document) MarkFailed(cause string) error {
	if err := d.transition(StatusFailed); err != nil {
		return err
	}
	d.Summary = ""
	d.Error = cause
	return nil
}

func (d *Document) transition(next DocumentStatus) error {
	if !d.Status.CanTransitionTo(next) {
		return fmt.Errorf("illegal status transition %s -> %s", d.Status, next)
	}
	d.Status = next
	d.UpdatedAt = time.Now()
	return nil
}
