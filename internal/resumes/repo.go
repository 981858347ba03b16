package resumes

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/resumeloft/backend/pkg/db/models"
	"github.com/resumeloft/backend/pkg/enums"
	"github.com/resumeloft/backend/pkg/pagination"
	"gorm.io/gorm"
)

// CreateResumeDTO carries the columns written when a resume is created.
type CreateResumeDTO struct {
	UserID   uuid.UUID
	Title    string
	Template enums.ResumeTemplate
	Content  json.RawMessage
}

// ListParams bounds a cursor query over one user's resumes.
type ListParams struct {
	UserID uuid.UUID
	Limit  int
	Cursor *pagination.Cursor
}

// Repository handles resume persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, dto CreateResumeDTO) (*models.Resume, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Resume, error)
	FindEarliestFreeTemplate(ctx context.Context, userID uuid.UUID) (*models.Resume, error)
	List(ctx context.Context, params ListParams) ([]models.Resume, *pagination.Cursor, error)
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a resume repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, dto CreateResumeDTO) (*models.Resume, error) {
	resume := &models.Resume{
		ID:            uuid.New(),
		UserID:        dto.UserID,
		Title:         dto.Title,
		Template:      dto.Template,
		Content:       dto.Content,
		PaymentStatus: enums.PaymentStatusNone,
	}
	if err := r.db.WithContext(ctx).Create(resume).Error; err != nil {
		return nil, err
	}
	return resume, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Resume, error) {
	var resume models.Resume
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&resume).Error; err != nil {
		return nil, err
	}
	return &resume, nil
}

// FindEarliestFreeTemplate returns the first free-template resume the user
// created. Ordering is creation time ascending with the id as a
// deterministic tie breaker.
func (r *repository) FindEarliestFreeTemplate(ctx context.Context, userID uuid.UUID) (*models.Resume, error) {
	var resume models.Resume
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND template = ?", userID, enums.FreeTemplate).
		Order("created_at ASC, id ASC").
		First(&resume).Error; err != nil {
		return nil, err
	}
	return &resume, nil
}

func (r *repository) List(ctx context.Context, params ListParams) ([]models.Resume, *pagination.Cursor, error) {
	normalized := pagination.NormalizeLimit(params.Limit)
	limit := pagination.LimitWithBuffer(params.Limit)

	query := r.db.WithContext(ctx).
		Model(&models.Resume{}).
		Where("user_id = ?", params.UserID)
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var rows []models.Resume
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	if len(rows) > normalized {
		next := rows[normalized]
		rows = rows[:normalized]
		return rows, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return rows, nil, nil
}

func (r *repository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	fields["updated_at"] = time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.Resume{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.Resume{}).Error
}
