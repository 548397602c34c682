package repository

import (
	"context"

	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ResultRepository persists the outputs of enrichment, extraction, and
// scoring jobs. Every write is an upsert on the subject's unique index, so a
// re-run replaces the previous result.
type ResultRepository struct {
	db *gorm.DB
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(db *gorm.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// UpsertProfile stores or replaces the enrichment profile for a subject.
func (r *ResultRepository) UpsertProfile(ctx context.Context, rec *domain.CompanyProfileRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "subject_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"summary", "industry", "headquarters", "employee_range", "signals", "updated_at",
		}),
	}).Create(rec).Error
}

// GetProfile retrieves the enrichment profile for a subject.
func (r *ResultRepository) GetProfile(ctx context.Context, subjectKey string) (*domain.CompanyProfileRecord, error) {
	var rec domain.CompanyProfileRecord
	if err := r.db.WithContext(ctx).First(&rec, "subject_key = ?", subjectKey).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpsertCriteria stores or replaces the extracted criteria for a buyer.
func (r *ResultRepository) UpsertCriteria(ctx context.Context, rec *domain.BuyerCriteriaRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "buyer_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"criteria", "updated_at"}),
	}).Create(rec).Error
}

// GetCriteria retrieves the extracted criteria for a buyer.
func (r *ResultRepository) GetCriteria(ctx context.Context, buyerID string) (*domain.BuyerCriteriaRecord, error) {
	var rec domain.BuyerCriteriaRecord
	if err := r.db.WithContext(ctx).First(&rec, "buyer_id = ?", buyerID).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpsertScore stores or replaces one fit score.
func (r *ResultRepository) UpsertScore(ctx context.Context, rec *domain.FitScoreRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "universe_id"}, {Name: "buyer_id"}, {Name: "score_kind"}},
		DoUpdates: clause.AssignmentColumns([]string{"score", "updated_at"}),
	}).Create(rec).Error
}

// UpsertGuide stores or replaces the guide pointer for a deal and template.
func (r *ResultRepository) UpsertGuide(ctx context.Context, rec *domain.GuideDocumentRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "deal_id"}, {Name: "template"}},
		DoUpdates: clause.AssignmentColumns([]string{"storage_key", "url", "generated_at", "updated_at"}),
	}).Create(rec).Error
}

// GetGuide retrieves the latest guide pointer for a deal and template.
func (r *ResultRepository) GetGuide(ctx context.Context, dealID, template string) (*domain.GuideDocumentRecord, error) {
	var rec domain.GuideDocumentRecord
	if err := r.db.WithContext(ctx).First(&rec, "deal_id = ? AND template = ?", dealID, template).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetScore retrieves one fit score.
func (r *ResultRepository) GetScore(ctx context.Context, universeID, buyerID, scoreKind string) (*domain.FitScoreRecord, error) {
	var rec domain.FitScoreRecord
	if err := r.db.WithContext(ctx).
		First(&rec, "universe_id = ? AND buyer_id = ? AND score_kind = ?", universeID, buyerID, scoreKind).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}
