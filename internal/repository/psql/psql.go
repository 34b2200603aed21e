package psql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/davdis/summarizer-api-sqlite/internal/domain/entity"
)

type GormDocumentRepo struct {
	DB *gorm.DB
}

func NewGormDocumentRepo(db *gorm.DB) *GormDocumentRepo {
	return &GormDocumentRepo{DB: db}
}

func (r *GormDocumentRepo) Create(ctx context.Context, doc *entity.Document) error {
	return r.DB.WithContext(ctx).Create(doc).Error
}

func (r *GormDocumentRepo) GetByID(ctx context.Context, documentID string) (*entity.Document, error) {
	doc := &entity.Document{}
	err := r.DB.WithContext(ctx).First(doc, "document_id = ?", documentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, entity.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	return doc, nil
}

// GetExact returns the document matching both name and URL, the natural
// key of a resubmission.
func (r *GormDocumentRepo) GetExact(ctx context.Context, name, url string) (*entity.Document, error) {
	doc := &entity.Document{}
	err := r.DB.WithContext(ctx).First(doc, "name = ? AND url = ?", name, url).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, entity.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	return doc, nil
}

// FindColliding returns a document whose name or URL matches. Callers check
// for an exact match first, so a hit here is a uniqueness conflict.
func (r *GormDocumentRepo) FindColliding(ctx context.Context, name, url string) (*entity.Document, error) {
	doc := &entity.Document{}
	err := r.DB.WithContext(ctx).First(doc, "name = ? OR url = ?", name, url).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, entity.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	return doc, nil
}

func (r *GormDocumentRepo) Save(ctx context.Context, doc *entity.Document) error {
	return r.DB.WithContext(ctx).Save(doc).Error
}

// SaveIfGeneration writes the run outcome only if the row still carries
// the generation the caller loaded. A false result means a resubmission
// reset the row in the meantime and this writer's copy is stale.
func (r *GormDocumentRepo) SaveIfGeneration(ctx context.Context, doc *entity.Document) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&entity.Document{}).
		Where("document_id = ? AND generation = ?", doc.DocumentID, doc.Generation).
		Updates(map[string]any{
			"status":     doc.Status,
			"summary":    doc.Summary,
			"error":      doc.Error,
			"progress":   doc.Progress,
			"updated_at": doc.UpdatedAt,
		})
	if res.Error != nil {
		return false, fmt.Errorf("conditional save: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// FailStaleRunning marks every document left RUNNING from before the given
// cutoff as FAILED. Run once at startup: a single-process service cannot
// have a live run older than its own boot.
func (r *GormDocumentRepo) FailStaleRunning(ctx context.Context, before time.Time, reason string) (int64, error) {
	res := r.DB.WithContext(ctx).Model(&entity.Document{}).
		Where("status = ? AND updated_at < ?", entity.StatusRunning, before).
		Updates(map[string]any{
			"status":     entity.StatusFailed,
			"summary":    "",
			"error":      reason,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("fail stale running: %w", res.Error)
	}
	return res.RowsAffected, nil
}
