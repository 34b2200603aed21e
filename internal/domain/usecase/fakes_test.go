package usecase

import (
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/davdis/summarizer-api-sqlite/internal/domain/entity"
	"github.com/davdis/summarizer-api-sqlite/internal/ollama"
)

func testLog() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// fakeRepo is an in-memory DocumentRepo.
type fakeRepo struct {
	mu   sync.Mutex
	docs map[string]entity.Document

	createErr error
	saveErr   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{docs: make(map[string]entity.Document)}
}

func (r *fakeRepo) Create(_ context.Context, doc *entity.Document) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.DocumentID] = *doc
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, documentID string) (*entity.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[documentID]
	if !ok {
		return nil, entity.ErrDocumentNotFound
	}
	copied := doc
	return &copied, nil
}

func (r *fakeRepo) GetExact(_ context.Context, name, url string) (*entity.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, doc := range r.docs {
		if doc.Name == name && doc.URL == url {
			copied := doc
			return &copied, nil
		}
	}
	return nil, entity.ErrDocumentNotFound
}

func (r *fakeRepo) FindColliding(_ context.Context, name, url string) (*entity.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, doc := range r.docs {
		if doc.Name == name || doc.URL == url {
			copied := doc
			return &copied, nil
		}
	}
	return nil, entity.ErrDocumentNotFound
}

func (r *fakeRepo) Save(_ context.Context, doc *entity.Document) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.DocumentID] = *doc
	return nil
}

func (r *fakeRepo) SaveIfGeneration(_ context.Context, doc *entity.Document) (bool, error) {
	if r.saveErr != nil {
		return false, r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.docs[doc.DocumentID]
	if !ok || stored.Generation != doc.Generation {
		return false, nil
	}
	r.docs[doc.DocumentID] = *doc
	return true, nil
}

func (r *fakeRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.docs)
}

// fakeTracker is an in-memory ProgressTracker recording every write.
type fakeTracker struct {
	mu      sync.Mutex
	entries map[string]float64
	writes  []float64
	getErr  error
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{entries: make(map[string]float64)}
}

func (t *fakeTracker) SetProgress(_ context.Context, documentID string, fraction float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[documentID] = fraction
	t.writes = append(t.writes, fraction)
	return nil
}

func (t *fakeTracker) GetProgress(_ context.Context, documentID string) (float64, bool, error) {
	if t.getErr != nil {
		return 0, false, t.getErr
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	fraction, ok := t.entries[documentID]
	return fraction, ok, nil
}

func (t *fakeTracker) ClearProgress(_ context.Context, documentID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, documentID)
	return nil
}

func (t *fakeTracker) has(documentID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[documentID]
	return ok
}

// fakeQueue records enqueued ids without running anything.
type fakeQueue struct {
	enqueued []string
	err      error
}

func (q *fakeQueue) Enqueue(documentID string) error {
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, documentID)
	return nil
}

// fakeExtractor returns canned text or a canned error.
type fakeExtractor struct {
	text string
	err  error
	urls []string
}

func (e *fakeExtractor) Extract(_ context.Context, url string) (string, error) {
	e.urls = append(e.urls, url)
	if e.err != nil {
		return "", e.err
	}
	return e.text, nil
}

// gatedSummarizer signals when a run has reached summarization and holds
// it there until the gate is closed, so tests can interleave other calls.
type gatedSummarizer struct {
	summary string
	started chan struct{}
	gate    chan struct{}
}

func (s *gatedSummarizer) Summarize(_ context.Context, _ string, _ ollama.ProgressFunc) (string, error) {
	close(s.started)
	<-s.gate
	return s.summary, nil
}

// fakeSummarizer returns a canned summary and drives the progress callback
// the way the real client does.
type fakeSummarizer struct {
	summary string
	err     error
}

func (s *fakeSummarizer) Summarize(_ context.Context, _ string, progress ollama.ProgressFunc) (string, error) {
	if progress != nil {
		progress(0.5)
	}
	if s.err != nil {
		return "", s.err
	}
	if progress != nil {
		progress(1.0)
	}
	return s.summary, nil
}
