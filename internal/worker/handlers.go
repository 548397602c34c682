package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/domain"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/logger"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/provider"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/queue"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/storage"
)

const enrichmentSystemPrompt = `You extract structured company intelligence from web search snippets.
Given snippets about a company, return a JSON object with these fields:
{"summary": string, "industry": string, "headquarters": string, "employee_range": string, "signals": [string]}
Use null for fields the snippets do not support. Output only the JSON object.`

const criteriaSystemPrompt = `You extract acquisition criteria from unstructured buyer notes.
Return a JSON object:
{"industries": [string], "geographies": [string], "revenue_min": number, "revenue_max": number, "ebitda_min": number, "deal_types": [string]}
Use null for unknown fields. Output only the JSON object.`

// CompanyProfile is the structured output of an enrichment extraction.
type CompanyProfile struct {
	Summary       string   `json:"summary"`
	Industry      string   `json:"industry"`
	Headquarters  string   `json:"headquarters"`
	EmployeeRange string   `json:"employee_range"`
	Signals       []string `json:"signals"`
}

// AcquisitionCriteria is the structured output of a criteria extraction.
type AcquisitionCriteria struct {
	Industries  []string `json:"industries"`
	Geographies []string `json:"geographies"`
	RevenueMin  *float64 `json:"revenue_min"`
	RevenueMax  *float64 `json:"revenue_max"`
	EbitdaMin   *float64 `json:"ebitda_min"`
	DealTypes   []string `json:"deal_types"`
}

// ProfileSink receives finished enrichment and extraction results. The wider
// platform persists them; this subsystem only produces them.
type ProfileSink interface {
	SaveProfile(ctx context.Context, subjectKey string, profile *CompanyProfile) error
	SaveCriteria(ctx context.Context, buyerID string, criteria *AcquisitionCriteria) error
	SaveScore(ctx context.Context, universeID, buyerID, scoreKind string, score float64) error
	SaveGuide(ctx context.Context, dealID, template, storageKey, url string, generatedAt time.Time) error
}

// Scorer computes one fit score. The scoring model is pluggable; the queue
// only guarantees each (universe, buyer, kind) is scored by one worker at a
// time.
type Scorer interface {
	Score(ctx context.Context, universeID, buyerID, scoreKind string) (float64, error)
}

// Handlers bundles the domain job handlers with their dependencies.
type Handlers struct {
	search  *provider.SearchClient
	extract *provider.ExtractionClient
	archive storage.DocumentArchive
	sink    ProfileSink
	scorer  Scorer
}

// NewHandlers creates the handler set.
func NewHandlers(search *provider.SearchClient, extract *provider.ExtractionClient, archive storage.DocumentArchive, sink ProfileSink, scorer Scorer) *Handlers {
	return &Handlers{
		search:  search,
		extract: extract,
		archive: archive,
		sink:    sink,
		scorer:  scorer,
	}
}

// RegisterAll binds every domain handler to its queue.
func (h *Handlers) RegisterAll(d *Dispatcher) {
	d.Register(queue.QueueDealEnrichment, h.EnrichDeal)
	d.Register(queue.QueueBuyerEnrichment, h.EnrichBuyer)
	d.Register(queue.QueueCriteriaExtraction, h.ExtractCriteria)
	d.Register(queue.QueueFitScoring, h.ScoreFit)
	d.Register(queue.QueueGuideGeneration, h.GenerateGuide)
}

// EnrichDeal enriches one deal company from web search.
// Payload: {"company_name": string, "website": string}.
func (h *Handlers) EnrichDeal(ctx context.Context, job *domain.JobRecord) error {
	return h.enrichCompany(ctx, job, "deal")
}

// EnrichBuyer enriches one buyer company from web search.
// Payload: {"company_name": string, "website": string}.
func (h *Handlers) EnrichBuyer(ctx context.Context, job *domain.JobRecord) error {
	return h.enrichCompany(ctx, job, "buyer")
}

// enrichCompany fans search queries out per company and extracts a profile
// from the combined snippets.
func (h *Handlers) enrichCompany(ctx context.Context, job *domain.JobRecord, kind string) error {
	name := payloadString(job.Payload, "company_name")
	if name == "" {
		return domain.Permanent("enrich", fmt.Errorf("payload has no company_name"))
	}
	website := payloadString(job.Payload, "website")

	queries := []string{
		fmt.Sprintf("%q company overview", name),
		fmt.Sprintf("%q acquisition OR merger OR funding", name),
	}
	if website != "" {
		queries = append(queries, fmt.Sprintf("site:%s about", website))
	}

	var snippets []string
	for _, q := range queries {
		results, err := h.search.Search(ctx, q, 5)
		if err != nil {
			return err
		}
		for _, r := range results {
			snippets = append(snippets, r.Title+": "+r.Snippet)
		}
	}
	if len(snippets) == 0 {
		return domain.Permanent("enrich", fmt.Errorf("no search results for %s", name))
	}

	var profile CompanyProfile
	user := fmt.Sprintf("Company: %s\n\nSnippets:\n%s", name, strings.Join(snippets, "\n"))
	if err := h.extract.ExtractJSON(ctx, enrichmentSystemPrompt, user, &profile); err != nil {
		return err
	}

	if err := h.sink.SaveProfile(ctx, job.SubjectKey, &profile); err != nil {
		return domain.Transient("enrich", err)
	}
	logger.With(logger.Fields{logger.FieldSubjectKey: job.SubjectKey}).
		Info(ctx, "Enriched %s %s (%s)", kind, name, profile.Industry)
	return nil
}

// ExtractCriteria turns a buyer's unstructured notes into structured
// acquisition criteria.
// Payload: {"notes": string, "source": string}.
func (h *Handlers) ExtractCriteria(ctx context.Context, job *domain.JobRecord) error {
	notes := payloadString(job.Payload, "notes")
	if notes == "" {
		return domain.Permanent("criteria", fmt.Errorf("payload has no notes"))
	}

	var criteria AcquisitionCriteria
	if err := h.extract.ExtractJSON(ctx, criteriaSystemPrompt, notes, &criteria); err != nil {
		return err
	}

	if err := h.sink.SaveCriteria(ctx, job.SubjectKey, &criteria); err != nil {
		return domain.Transient("criteria", err)
	}
	logger.With(logger.Fields{logger.FieldSubjectKey: job.SubjectKey}).
		Info(ctx, "Extracted criteria for buyer %s", job.SubjectKey)
	return nil
}

// ScoreFit scores one (universe, buyer, kind) triple via the pluggable
// scorer.
func (h *Handlers) ScoreFit(ctx context.Context, job *domain.JobRecord) error {
	universeID, buyerID, scoreKind, err := queue.ParseScoringSubjectKey(job.SubjectKey)
	if err != nil {
		return domain.Permanent("scoring", err)
	}

	score, err := h.scorer.Score(ctx, universeID, buyerID, scoreKind)
	if err != nil {
		return err
	}
	if err := h.sink.SaveScore(ctx, universeID, buyerID, scoreKind, score); err != nil {
		return domain.Transient("scoring", err)
	}
	logger.With(logger.Fields{logger.FieldSubjectKey: job.SubjectKey}).
		Info(ctx, "Scored buyer %s in universe %s: %s=%.3f", buyerID, universeID, scoreKind, score)
	return nil
}

// GenerateGuide renders a deal guide document and archives it.
// Payload: {"deal_name": string, "template": string, "sections": {..}}.
func (h *Handlers) GenerateGuide(ctx context.Context, job *domain.JobRecord) error {
	dealName := payloadString(job.Payload, "deal_name")
	if dealName == "" {
		dealName = job.SubjectKey
	}
	template := payloadString(job.Payload, "template")
	if template == "" {
		template = "default"
	}

	now := time.Now()
	doc := renderGuide(dealName, job.Payload, now)
	key := storage.GuideKey(job.SubjectKey, template, now)

	if err := h.archive.Put(ctx, key, strings.NewReader(doc), int64(len(doc)), "text/markdown"); err != nil {
		return domain.Transient("guide", err)
	}
	if err := h.sink.SaveGuide(ctx, job.SubjectKey, template, key, h.archive.URL(key), now); err != nil {
		return domain.Transient("guide", err)
	}
	logger.With(logger.Fields{logger.FieldSubjectKey: job.SubjectKey}).
		Info(ctx, "Archived guide for %s at %s", dealName, key)
	return nil
}

// renderGuide produces the markdown guide body.
func renderGuide(dealName string, payload domain.JobPayload, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Deal Guide: %s\n\n", dealName)
	fmt.Fprintf(&b, "Generated: %s\n\n", now.Format(time.RFC3339))

	if sections, ok := payload["sections"].(map[string]interface{}); ok {
		for title, body := range sections {
			fmt.Fprintf(&b, "## %s\n\n%v\n\n", title, body)
		}
	}
	return b.String()
}

// payloadString reads a string field from a job payload, tolerating absence.
func payloadString(p domain.JobPayload, key string) string {
	if p == nil {
		return ""
	}
	s, _ := p[key].(string)
	return s
}
