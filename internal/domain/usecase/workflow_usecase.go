package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/davdis/summarizer-api-sqlite/internal/domain/entity"
	"github.com/davdis/summarizer-api-sqlite/internal/ollama"
)

type ContentExtractor interface {
	Extract(ctx context.Context, url string) (string, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, articleText string, progress ollama.ProgressFunc) (string, error)
}

// WorkflowUseCase is the body of a dispatched run: extract the article
// behind the document's URL, stream a summary out of the generation
// service, and persist the outcome. Every failure is converted into a
// durable FAILED status here; nothing propagates past this boundary.
type WorkflowUseCase struct {
	Repo       DocumentRepo
	Tracker    ProgressTracker
	Extractor  ContentExtractor
	Summarizer Summarizer
	Log        *logrus.Entry
}

func NewWorkflowUseCase(repo DocumentRepo, tracker ProgressTracker, ex ContentExtractor, sum Summarizer, log *logrus.Entry) *WorkflowUseCase {
	return &WorkflowUseCase{
		Repo:       repo,
		Tracker:    tracker,
		Extractor:  ex,
		Summarizer: sum,
		Log:        log,
	}
}

func (u *WorkflowUseCase) Process(ctx context.Context, documentID string) error {
	log := u.Log.WithField("document_id", documentID)

	doc, err := u.Repo.GetByID(ctx, documentID)
	if errors.Is(err, entity.ErrDocumentNotFound) {
		// Deleted out-of-band between enqueue and run; reported, not fatal.
		log.Warn("document vanished before processing")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	// A terminal document is only revived through resubmission, which
	// resets it to RUNNING before enqueueing. A dispatch that still sees
	// SUCCESS or FAILED is a leftover duplicate and must not reset it.
	if doc.Status == entity.StatusSuccess || doc.Status == entity.StatusFailed {
		log.WithField("status", doc.Status).Info("skipping dispatch for terminal document")
		return nil
	}

	// Every write below is conditional on the generation loaded above.
	// A resubmission bumps the generation, so a run it overtook cannot
	// overwrite the reset row with its stale outcome.
	if err := doc.MarkRunning(); err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	ok, err := u.Repo.SaveIfGeneration(ctx, doc)
	if err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	if !ok {
		log.Info("run superseded by a resubmission")
		return nil
	}
	log.Info("summarization started")

	articleText, err := u.Extractor.Extract(ctx, doc.URL)
	if err != nil {
		log.WithError(err).Error("extraction failed")
		return u.fail(ctx, doc, err)
	}

	summary, err := u.Summarizer.Summarize(ctx, articleText, func(fraction float64) {
		if trackErr := u.Tracker.SetProgress(ctx, documentID, fraction); trackErr != nil {
			log.WithError(trackErr).Warn("progress write failed")
		}
	})
	if err != nil {
		log.WithError(err).Error("summarization failed")
		return u.fail(ctx, doc, err)
	}

	if err := doc.MarkSuccess(summary); err != nil {
		return fmt.Errorf("mark success: %w", err)
	}
	ok, err = u.Repo.SaveIfGeneration(ctx, doc)
	if err != nil {
		return fmt.Errorf("persist success: %w", err)
	}
	if !ok {
		// The resubmitted run owns the document and its progress key now.
		log.Info("discarding outcome of a superseded run")
		return nil
	}
	u.clearProgress(ctx, documentID)
	log.Info("summarization succeeded")
	return nil
}

func (u *WorkflowUseCase) fail(ctx context.Context, doc *entity.Document, cause error) error {
	if err := doc.MarkFailed(cause.Error()); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	ok, err := u.Repo.SaveIfGeneration(ctx, doc)
	if err != nil {
		return fmt.Errorf("persist failure: %w", err)
	}
	if !ok {
		u.Log.WithField("document_id", doc.DocumentID).Info("discarding outcome of a superseded run")
		return nil
	}
	u.clearProgress(ctx, doc.DocumentID)
	return nil
}

func (u *WorkflowUseCase) clearProgress(ctx context.Context, documentID string) {
	if err := u.Tracker.ClearProgress(ctx, documentID); err != nil {
		// The TTL bounds staleness if cleanup is skipped.
		u.Log.WithField("document_id", documentID).WithError(err).Warn("progress cleanup failed")
	}
}
