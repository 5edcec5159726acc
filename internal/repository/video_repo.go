package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/harrisong/VideoStreaming-sub000/internal/domain"
	"gorm.io/gorm"
)

// VideoRepository persists finished videos.
type VideoRepository struct {
	db *gorm.DB
}

// NewVideoRepository creates a new VideoRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *VideoRepository: repository instance bound to db.
func NewVideoRepository(db *gorm.DB) *VideoRepository {
	return &VideoRepository{db: db}
}

// WithTx returns a repository that runs its queries inside tx.
func (r *VideoRepository) WithTx(tx *gorm.DB) *VideoRepository {
	return &VideoRepository{db: tx}
}

// Create inserts a video record and fills in its generated ID. Only
// domain.VideoInsertColumns are written so the catalog's defaults apply to the rest.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - video: video record to persist.
// Returns:
//   - error: ErrPersistenceFailed-wrapped error if the insert fails.
func (r *VideoRepository) Create(ctx context.Context, video *domain.Video) error {
	if video.Tags == nil {
		video.Tags = domain.StringArray{}
	}
	if err := r.db.WithContext(ctx).Select(domain.VideoInsertColumns).Create(video).Error; err != nil {
		return fmt.Errorf("%w: insert video: %v", domain.ErrPersistenceFailed, err)
	}
	return nil
}

// GetByID retrieves a video by its ID.
func (r *VideoRepository) GetByID(ctx context.Context, id int64) (*domain.Video, error) {
	var video domain.Video
	if err := r.db.WithContext(ctx).First(&video, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrVideoNotFound
		}
		return nil, err
	}
	return &video, nil
}

// Count returns the number of stored videos.
func (r *VideoRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Video{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
