package domain

import "time"

// CompanyProfileRecord is the persisted output of an enrichment job, one row
// per enriched subject. Re-enrichment overwrites the row in place.
type CompanyProfileRecord struct {
	ID            string    `gorm:"type:text;primaryKey" json:"id"`
	SubjectKey    string    `gorm:"type:text;not null;uniqueIndex:idx_company_profiles_subject" json:"subject_key"`
	Summary       string    `gorm:"type:text" json:"summary"`
	Industry      string    `gorm:"type:text" json:"industry"`
	Headquarters  string    `gorm:"type:text" json:"headquarters"`
	EmployeeRange string    `gorm:"type:text" json:"employee_range"`
	Signals       string    `gorm:"type:text" json:"signals"` // JSON array
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for CompanyProfileRecord.
func (CompanyProfileRecord) TableName() string {
	return "company_profiles"
}

// BuyerCriteriaRecord is the persisted output of a criteria-extraction job.
type BuyerCriteriaRecord struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	BuyerID   string    `gorm:"type:text;not null;uniqueIndex:idx_buyer_criteria_buyer" json:"buyer_id"`
	Criteria  string    `gorm:"type:text" json:"criteria"` // JSON object
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for BuyerCriteriaRecord.
func (BuyerCriteriaRecord) TableName() string {
	return "buyer_criteria"
}

// FitScoreRecord is the persisted output of a fit-scoring job, one row per
// (universe, buyer, score kind). Re-scoring overwrites the row in place.
type FitScoreRecord struct {
	ID         string    `gorm:"type:text;primaryKey" json:"id"`
	UniverseID string    `gorm:"type:text;not null;uniqueIndex:idx_fit_scores_triple" json:"universe_id"`
	BuyerID    string    `gorm:"type:text;not null;uniqueIndex:idx_fit_scores_triple" json:"buyer_id"`
	ScoreKind  string    `gorm:"type:text;not null;uniqueIndex:idx_fit_scores_triple" json:"score_kind"`
	Score      float64   `json:"score"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for FitScoreRecord.
func (FitScoreRecord) TableName() string {
	return "fit_scores"
}

// GuideDocumentRecord points at the latest archived guide for a deal and
// template. The document body lives in object storage under StorageKey.
type GuideDocumentRecord struct {
	ID          string    `gorm:"type:text;primaryKey" json:"id"`
	DealID      string    `gorm:"type:text;not null;uniqueIndex:idx_guide_documents_deal_template" json:"deal_id"`
	Template    string    `gorm:"type:text;not null;uniqueIndex:idx_guide_documents_deal_template" json:"template"`
	StorageKey  string    `gorm:"type:text;not null" json:"storage_key"`
	URL         string    `gorm:"type:text" json:"url"`
	GeneratedAt time.Time `json:"generated_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for GuideDocumentRecord.
func (GuideDocumentRecord) TableName() string {
	return "guide_documents"
}
