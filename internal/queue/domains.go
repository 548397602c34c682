package queue

import (
	"fmt"
	"strings"

	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/config"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/repository"
)

// Domain queue names. Each matches the operation type whose items it carries.
const (
	QueueDealEnrichment     = "deal_enrichment"
	QueueBuyerEnrichment    = "buyer_enrichment"
	QueueCriteriaExtraction = "criteria_extraction"
	QueueFitScoring         = "fit_scoring"
	QueueGuideGeneration    = "guide_generation"
)

// ScoringSubjectKey builds the composite subject key for a fit-scoring job.
// Scoring is unique per (universe, buyer, kind) rather than per entity, so
// the same buyer can be scored concurrently in different universes.
func ScoringSubjectKey(universeID, buyerID, scoreKind string) string {
	return universeID + "|" + buyerID + "|" + scoreKind
}

// ParseScoringSubjectKey splits a composite fit-scoring subject key.
func ParseScoringSubjectKey(key string) (universeID, buyerID, scoreKind string, err error) {
	parts := strings.SplitN(key, "|", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("malformed scoring subject key %q", key)
	}
	return parts[0], parts[1], parts[2], nil
}

// Registry holds every domain queue, keyed by name.
type Registry struct {
	queues map[string]*Queue
	order  []string
}

// NewRegistry builds the five domain queues from configuration.
// Parameters:
//   - cfg: per-queue tuning.
//   - jobs: shared job record repository.
// Returns:
//   - *Registry: registry with all domain queues.
func NewRegistry(cfg *config.QueuesConfig, jobs *repository.JobRepository) *Registry {
	r := &Registry{queues: make(map[string]*Queue)}
	for _, entry := range []struct {
		name string
		cfg  config.QueueConfig
	}{
		{QueueDealEnrichment, cfg.DealEnrichment},
		{QueueBuyerEnrichment, cfg.BuyerEnrichment},
		{QueueCriteriaExtraction, cfg.CriteriaExtraction},
		{QueueFitScoring, cfg.FitScoring},
		{QueueGuideGeneration, cfg.GuideGeneration},
	} {
		r.queues[entry.name] = New(entry.name, entry.cfg, jobs)
		r.order = append(r.order, entry.name)
	}
	return r
}

// Get returns the queue with the given name, or nil when unknown.
func (r *Registry) Get(name string) *Queue {
	return r.queues[name]
}

// All returns every queue in registration order.
func (r *Registry) All() []*Queue {
	out := make([]*Queue, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.queues[name])
	}
	return out
}

// Names returns the queue names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
