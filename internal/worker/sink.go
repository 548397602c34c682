package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/domain"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/provider"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/repository"
	"gorm.io/gorm"
)

// RepoSink persists handler results through the result repository.
type RepoSink struct {
	results *repository.ResultRepository
}

// NewRepoSink creates a RepoSink.
func NewRepoSink(results *repository.ResultRepository) *RepoSink {
	return &RepoSink{results: results}
}

// SaveProfile stores an enrichment profile for a subject.
func (s *RepoSink) SaveProfile(ctx context.Context, subjectKey string, profile *CompanyProfile) error {
	signals, err := json.Marshal(profile.Signals)
	if err != nil {
		return err
	}
	return s.results.UpsertProfile(ctx, &domain.CompanyProfileRecord{
		SubjectKey:    subjectKey,
		Summary:       profile.Summary,
		Industry:      profile.Industry,
		Headquarters:  profile.Headquarters,
		EmployeeRange: profile.EmployeeRange,
		Signals:       string(signals),
	})
}

// SaveCriteria stores extracted acquisition criteria for a buyer.
func (s *RepoSink) SaveCriteria(ctx context.Context, buyerID string, criteria *AcquisitionCriteria) error {
	blob, err := json.Marshal(criteria)
	if err != nil {
		return err
	}
	return s.results.UpsertCriteria(ctx, &domain.BuyerCriteriaRecord{
		BuyerID:  buyerID,
		Criteria: string(blob),
	})
}

// SaveScore stores one fit score.
func (s *RepoSink) SaveScore(ctx context.Context, universeID, buyerID, scoreKind string, score float64) error {
	return s.results.UpsertScore(ctx, &domain.FitScoreRecord{
		UniverseID: universeID,
		BuyerID:    buyerID,
		ScoreKind:  scoreKind,
		Score:      score,
	})
}

// SaveGuide stores the archive pointer for a generated guide.
func (s *RepoSink) SaveGuide(ctx context.Context, dealID, template, storageKey, url string, generatedAt time.Time) error {
	return s.results.UpsertGuide(ctx, &domain.GuideDocumentRecord{
		DealID:      dealID,
		Template:    template,
		StorageKey:  storageKey,
		URL:         url,
		GeneratedAt: generatedAt,
	})
}

const scoringSystemPrompt = `You rate how well a buyer fits a target universe on the requested dimension.
Given the buyer's enrichment profile and acquisition criteria, return a JSON object:
{"score": number}
where score is between 0 and 1. Output only the JSON object.`

// ModelScorer scores fit via the extraction model, grounding the prompt on
// the buyer's stored profile and criteria.
type ModelScorer struct {
	extract *provider.ExtractionClient
	results *repository.ResultRepository
}

// NewModelScorer creates a ModelScorer.
func NewModelScorer(extract *provider.ExtractionClient, results *repository.ResultRepository) *ModelScorer {
	return &ModelScorer{extract: extract, results: results}
}

// Score rates one (universe, buyer, kind) triple. A buyer with no stored
// profile or criteria cannot be scored and fails permanently; the operator
// runs enrichment first.
func (s *ModelScorer) Score(ctx context.Context, universeID, buyerID, scoreKind string) (float64, error) {
	profile, err := s.results.GetProfile(ctx, buyerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, domain.Permanent("scoring", fmt.Errorf("buyer %s has no enrichment profile", buyerID))
		}
		return 0, domain.Transient("scoring", err)
	}

	criteriaBlob := "{}"
	criteria, err := s.results.GetCriteria(ctx, buyerID)
	if err == nil {
		criteriaBlob = criteria.Criteria
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, domain.Transient("scoring", err)
	}

	user := fmt.Sprintf(
		"Universe: %s\nDimension: %s\n\nBuyer profile:\nsummary: %s\nindustry: %s\nheadquarters: %s\nemployees: %s\n\nBuyer criteria:\n%s",
		universeID, scoreKind,
		profile.Summary, profile.Industry, profile.Headquarters, profile.EmployeeRange,
		criteriaBlob,
	)

	var out struct {
		Score float64 `json:"score"`
	}
	if err := s.extract.ExtractJSON(ctx, scoringSystemPrompt, user, &out); err != nil {
		return 0, err
	}
	if out.Score < 0 || out.Score > 1 {
		return 0, domain.Permanent("scoring", fmt.Errorf("model returned out-of-range score %f", out.Score))
	}
	return out.Score, nil
}
