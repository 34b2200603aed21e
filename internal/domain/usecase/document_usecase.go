package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/davdis/summarizer-api-sqlite/internal/domain/entity"
)

var (
	// ErrConflict means the name or URL collides with a different
	// existing document.
	ErrConflict = errors.New("document name or url already in use")
	ErrNotFound = errors.New("document not found")
)

type DocumentRepo interface {
	Create(ctx context.Context, doc *entity.Document) error
	GetByID(ctx context.Context, documentID string) (*entity.Document, error)
	GetExact(ctx context.Context, name, url string) (*entity.Document, error)
	FindColliding(ctx context.Context, name, url string) (*entity.Document, error)
	Save(ctx context.Context, doc *entity.Document) error
	// SaveIfGeneration writes only if the stored row still carries the
	// generation in doc; false means a resubmission got there first.
	SaveIfGeneration(ctx context.Context, doc *entity.Document) (bool, error)
}

type ProgressTracker interface {
	SetProgress(ctx context.Context, documentID string, fraction float64) error
	GetProgress(ctx context.Context, documentID string) (float64, bool, error)
	ClearProgress(ctx context.Context, documentID string) error
}

type Dispatcher interface {
	Enqueue(documentID string) error
}

// DocumentView is what the API reports for a document. Progress is nil
// when no run is in flight and the document is not in a terminal SUCCESS;
// absence before start and absence after completion are different things
// and neither is 0.0.
type DocumentView struct {
	Document *entity.Document
	Progress *float64
}

// DocumentUseCase implements submission, resubmission and the status read
// path. The workflow itself runs in the dispatcher, after Submit returns.
type DocumentUseCase struct {
	Repo       DocumentRepo
	Tracker    ProgressTracker
	Dispatcher Dispatcher
	Log        *logrus.Entry
}

func NewDocumentUseCase(repo DocumentRepo, tracker ProgressTracker, dispatcher Dispatcher, log *logrus.Entry) *DocumentUseCase {
	return &DocumentUseCase{
		Repo:       repo,
		Tracker:    tracker,
		Dispatcher: dispatcher,
		Log:        log,
	}
}

// Submit creates or resets the document for (name, url) and enqueues a
// run. The checks run in a fixed order: exact match first (resubmission),
// then partial collision (conflict), then create. Checking the collision
// first would wrongly reject legitimate resubmissions.
func (u *DocumentUseCase) Submit(ctx context.Context, name, url string) (*entity.Document, error) {
	doc, err := u.Repo.GetExact(ctx, name, url)
	if err == nil {
		if err := doc.ResetForRun(); err != nil {
			return nil, fmt.Errorf("reset document: %w", err)
		}
		if err := u.Repo.Save(ctx, doc); err != nil {
			return nil, fmt.Errorf("reset document: %w", err)
		}
		u.Log.WithField("document_id", doc.DocumentID).Info("re-summarization triggered")
		if err := u.Dispatcher.Enqueue(doc.DocumentID); err != nil {
			return nil, fmt.Errorf("enqueue document: %w", err)
		}
		return doc, nil
	}
	if !errors.Is(err, entity.ErrDocumentNotFound) {
		return nil, fmt.Errorf("lookup document: %w", err)
	}

	if _, err := u.Repo.FindColliding(ctx, name, url); err == nil {
		u.Log.WithFields(logrus.Fields{"name": name, "url": url}).Warn("submission conflicts with existing document")
		return nil, ErrConflict
	} else if !errors.Is(err, entity.ErrDocumentNotFound) {
		return nil, fmt.Errorf("lookup collision: %w", err)
	}

	now := time.Now()
	doc = &entity.Document{
		DocumentID: uuid.New().String(),
		Name:       name,
		URL:        url,
		Status:     entity.StatusPending,
		Generation: 1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := u.Repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	u.Log.WithField("document_id", doc.DocumentID).Info("new document submitted")

	if err := u.Dispatcher.Enqueue(doc.DocumentID); err != nil {
		return nil, fmt.Errorf("enqueue document: %w", err)
	}
	return doc, nil
}

// Get is the status read path. It never touches the dispatcher: the store
// is authoritative for terminal success (progress 1.0 unconditionally),
// the tracker is authoritative while a run is in flight.
func (u *DocumentUseCase) Get(ctx context.Context, documentID string) (*DocumentView, error) {
	doc, err := u.Repo.GetByID(ctx, documentID)
	if errors.Is(err, entity.ErrDocumentNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	view := &DocumentView{Document: doc}
	if doc.Status == entity.StatusSuccess {
		one := 1.0
		view.Progress = &one
		return view, nil
	}

	fraction, ok, err := u.Tracker.GetProgress(ctx, documentID)
	if err != nil {
		// Progress is best-effort UX; a tracker outage must not break
		// status reads.
		u.Log.WithField("document_id", documentID).WithError(err).Warn("progress lookup failed")
		return view, nil
	}
	if ok {
		view.Progress = &fraction
	}
	return view, nil
}
