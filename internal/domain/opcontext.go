package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// DealEnrichmentContext describes a bulk deal-enrichment run.
type DealEnrichmentContext struct {
	DealIDs []string `json:"deal_ids"`
}

// BuyerEnrichmentContext describes a bulk buyer-enrichment run within a universe.
type BuyerEnrichmentContext struct {
	UniverseID string   `json:"universe_id"`
	BuyerIDs   []string `json:"buyer_ids"`
}

// CriteriaExtractionContext describes a criteria-extraction run over buyers.
type CriteriaExtractionContext struct {
	BuyerIDs []string `json:"buyer_ids"`
	Source   string   `json:"source,omitempty"`
}

// FitScoringContext describes a fit-scoring run: every buyer in the universe
// is scored once per score kind.
type FitScoringContext struct {
	UniverseID string `json:"universe_id"`
	ScoreKind  string `json:"score_kind"`
}

// GuideGenerationContext describes a guide-document generation run for a deal.
type GuideGenerationContext struct {
	DealID   string `json:"deal_id"`
	Template string `json:"template,omitempty"`
}

// OperationContext is the typed payload of an operation, keyed by operation
// type. Exactly one member is set; producers and consumers share the struct
// per kind of work instead of an open schemaless blob.
type OperationContext struct {
	DealEnrichment     *DealEnrichmentContext     `json:"deal_enrichment,omitempty"`
	BuyerEnrichment    *BuyerEnrichmentContext    `json:"buyer_enrichment,omitempty"`
	CriteriaExtraction *CriteriaExtractionContext `json:"criteria_extraction,omitempty"`
	FitScoring         *FitScoringContext         `json:"fit_scoring,omitempty"`
	GuideGeneration    *GuideGenerationContext    `json:"guide_generation,omitempty"`
}

// Value implements the driver.Valuer interface for database serialization.
func (c OperationContext) Value() (driver.Value, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (c *OperationContext) Scan(value interface{}) error {
	if value == nil {
		*c = OperationContext{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan OperationContext")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, c)
}

// Validate checks that the context carries exactly the member matching the
// operation type and nothing else.
func (c OperationContext) Validate(t OperationType) error {
	set := 0
	var matches bool
	if c.DealEnrichment != nil {
		set++
		matches = matches || t == OperationDealEnrichment
	}
	if c.BuyerEnrichment != nil {
		set++
		matches = matches || t == OperationBuyerEnrichment
	}
	if c.CriteriaExtraction != nil {
		set++
		matches = matches || t == OperationCriteriaExtraction
	}
	if c.FitScoring != nil {
		set++
		matches = matches || t == OperationFitScoring
	}
	if c.GuideGeneration != nil {
		set++
		matches = matches || t == OperationGuideGeneration
	}
	if set == 0 {
		return fmt.Errorf("operation context is empty, expected %s context", t)
	}
	if set > 1 {
		return fmt.Errorf("operation context sets %d members, expected exactly one", set)
	}
	if !matches {
		return fmt.Errorf("operation context does not match operation type %s", t)
	}
	return nil
}
