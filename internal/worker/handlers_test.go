package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/config"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/domain"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/provider"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/repository"
)

type memorySink struct {
	mu       sync.Mutex
	profiles map[string]*CompanyProfile
	criteria map[string]*AcquisitionCriteria
	scores   map[string]float64
	guides   map[string]string
}

func newMemorySink() *memorySink {
	return &memorySink{
		profiles: make(map[string]*CompanyProfile),
		criteria: make(map[string]*AcquisitionCriteria),
		scores:   make(map[string]float64),
		guides:   make(map[string]string),
	}
}

func (s *memorySink) SaveProfile(ctx context.Context, subjectKey string, profile *CompanyProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[subjectKey] = profile
	return nil
}

func (s *memorySink) SaveCriteria(ctx context.Context, buyerID string, criteria *AcquisitionCriteria) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.criteria[buyerID] = criteria
	return nil
}

func (s *memorySink) SaveScore(ctx context.Context, universeID, buyerID, scoreKind string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[universeID+"|"+buyerID+"|"+scoreKind] = score
	return nil
}

func (s *memorySink) SaveGuide(ctx context.Context, dealID, template, storageKey, url string, generatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guides[dealID+"|"+template] = storageKey
	return nil
}

type memoryArchive struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func newMemoryArchive() *memoryArchive {
	return &memoryArchive{docs: make(map[string][]byte)}
}

func (a *memoryArchive) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	body, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.docs[key] = body
	return nil
}

func (a *memoryArchive) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return io.NopCloser(bytes.NewReader(a.docs[key])), nil
}

func (a *memoryArchive) URL(key string) string { return "memory://" + key }

func (a *memoryArchive) Exists(ctx context.Context, key string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.docs[key]
	return ok, nil
}

// fakeProviders serves both the search and the extraction API, answering
// every search with one organic result and every completion with content.
func fakeProviders(t *testing.T, completion string) (*provider.SearchClient, *provider.ExtractionClient) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/search":
			w.Write([]byte(`{"organic":[{"title":"Acme Corp","link":"https://acme.example","snippet":"Acme builds widgets in Ohio"}]}`))
		case "/chat/completions":
			resp := map[string]interface{}{
				"choices": []map[string]interface{}{
					{"message": map[string]interface{}{"content": completion}},
				},
			}
			if err := writeJSON(w, resp); err != nil {
				t.Errorf("failed to write completion: %v", err)
			}
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	t.Cleanup(srv.Close)

	search := provider.NewSearchClient(&config.SearchProviderConfig{
		BaseURL: srv.URL,
		APIKey:  "k",
		Timeout: 5 * time.Second,
	})
	extract := provider.NewExtractionClient(&config.ExtractionProviderConfig{
		BaseURL: srv.URL,
		APIKey:  "k",
		Model:   "test-model",
		Timeout: 5 * time.Second,
	})
	return search, extract
}

func writeJSON(w http.ResponseWriter, v interface{}) error {
	return json.NewEncoder(w).Encode(v)
}

func TestEnrichDealSavesProfile(t *testing.T) {
	search, extract := fakeProviders(t,
		`{"summary":"Widget maker","industry":"Manufacturing","headquarters":"Columbus, OH","employee_range":"51-200","signals":["raised series B"]}`)
	sink := newMemorySink()
	h := NewHandlers(search, extract, newMemoryArchive(), sink, nil)

	job := &domain.JobRecord{
		Queue:      "deal_enrichment",
		SubjectKey: "deal-1",
		Payload:    domain.JobPayload{"company_name": "Acme Corp", "website": "acme.example"},
	}
	if err := h.EnrichDeal(context.Background(), job); err != nil {
		t.Fatalf("enrich failed: %v", err)
	}

	profile := sink.profiles["deal-1"]
	if profile == nil {
		t.Fatal("profile not saved")
	}
	if profile.Industry != "Manufacturing" {
		t.Errorf("industry = %s", profile.Industry)
	}
	if len(profile.Signals) != 1 {
		t.Errorf("signals = %v", profile.Signals)
	}
}

func TestEnrichDealWithoutCompanyNameIsPermanent(t *testing.T) {
	search, extract := fakeProviders(t, `{}`)
	h := NewHandlers(search, extract, newMemoryArchive(), newMemorySink(), nil)

	job := &domain.JobRecord{Queue: "deal_enrichment", SubjectKey: "deal-1"}
	err := h.EnrichDeal(context.Background(), job)
	if err == nil {
		t.Fatal("enrich succeeded without company_name")
	}
	if !domain.IsPermanent(err) {
		t.Errorf("error not permanent: %v", err)
	}
}

func TestExtractCriteriaSavesStructuredResult(t *testing.T) {
	search, extract := fakeProviders(t,
		`{"industries":["HVAC","Plumbing"],"geographies":["Midwest"],"revenue_min":5000000,"revenue_max":null,"ebitda_min":1000000,"deal_types":["majority"]}`)
	sink := newMemorySink()
	h := NewHandlers(search, extract, newMemoryArchive(), sink, nil)

	job := &domain.JobRecord{
		Queue:      "criteria_extraction",
		SubjectKey: "buyer-7",
		Payload:    domain.JobPayload{"notes": "Looking for HVAC or plumbing in the Midwest, $5M+ revenue"},
	}
	if err := h.ExtractCriteria(context.Background(), job); err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	criteria := sink.criteria["buyer-7"]
	if criteria == nil {
		t.Fatal("criteria not saved")
	}
	if len(criteria.Industries) != 2 {
		t.Errorf("industries = %v", criteria.Industries)
	}
	if criteria.RevenueMin == nil || *criteria.RevenueMin != 5000000 {
		t.Errorf("revenue_min = %v", criteria.RevenueMin)
	}
	if criteria.RevenueMax != nil {
		t.Errorf("revenue_max = %v, want nil", criteria.RevenueMax)
	}
}

type staticScorer struct{ score float64 }

func (s staticScorer) Score(ctx context.Context, universeID, buyerID, scoreKind string) (float64, error) {
	return s.score, nil
}

func TestScoreFitParsesSubjectAndSaves(t *testing.T) {
	sink := newMemorySink()
	h := NewHandlers(nil, nil, newMemoryArchive(), sink, staticScorer{score: 0.82})

	job := &domain.JobRecord{
		Queue:      "fit_scoring",
		SubjectKey: "u1|b9|composite",
	}
	if err := h.ScoreFit(context.Background(), job); err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if got := sink.scores["u1|b9|composite"]; got != 0.82 {
		t.Errorf("score = %f, want 0.82", got)
	}
}

func TestScoreFitRejectsMalformedSubject(t *testing.T) {
	h := NewHandlers(nil, nil, newMemoryArchive(), newMemorySink(), staticScorer{})

	job := &domain.JobRecord{Queue: "fit_scoring", SubjectKey: "not-a-triple"}
	err := h.ScoreFit(context.Background(), job)
	if err == nil {
		t.Fatal("score succeeded with malformed subject key")
	}
	if !domain.IsPermanent(err) {
		t.Errorf("error not permanent: %v", err)
	}
}

func TestGenerateGuideArchivesDocument(t *testing.T) {
	archive := newMemoryArchive()
	sink := newMemorySink()
	h := NewHandlers(nil, nil, archive, sink, nil)

	job := &domain.JobRecord{
		Queue:      "guide_generation",
		SubjectKey: "deal-3",
		Payload: domain.JobPayload{
			"deal_name": "Acme Corp",
			"template":  "teaser",
			"sections":  map[string]interface{}{"Overview": "Widgets."},
		},
	}
	if err := h.GenerateGuide(context.Background(), job); err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	archive.mu.Lock()
	defer archive.mu.Unlock()
	if len(archive.docs) != 1 {
		t.Fatalf("archived %d documents, want 1", len(archive.docs))
	}
	for key, body := range archive.docs {
		if !strings.Contains(key, "deal-3-teaser.md") {
			t.Errorf("key = %s, want deal-3-teaser.md suffix", key)
		}
		if !strings.Contains(string(body), "# Deal Guide: Acme Corp") {
			t.Errorf("document missing title:\n%s", body)
		}
		if !strings.Contains(string(body), "## Overview") {
			t.Errorf("document missing section:\n%s", body)
		}
	}

	// The sink holds the archive pointer for the (deal, template) pair.
	if key := sink.guides["deal-3|teaser"]; !strings.Contains(key, "deal-3-teaser.md") {
		t.Errorf("guide pointer = %q, want deal-3-teaser.md suffix", key)
	}
}

func TestModelScorerRequiresProfile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	results := repository.NewResultRepository(env.db)
	_, extract := fakeProviders(t, `{"score": 0.5}`)
	scorer := NewModelScorer(extract, results)

	_, err := scorer.Score(ctx, "u1", "b1", "composite")
	if err == nil {
		t.Fatal("score succeeded without a stored profile")
	}
	if !domain.IsPermanent(err) {
		t.Errorf("error not permanent: %v", err)
	}
}

func TestModelScorerScoresStoredProfile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	results := repository.NewResultRepository(env.db)
	_, extract := fakeProviders(t, `{"score": 0.64}`)

	sink := NewRepoSink(results)
	if err := sink.SaveProfile(ctx, "b1", &CompanyProfile{
		Summary:  "Regional HVAC roll-up",
		Industry: "HVAC",
	}); err != nil {
		t.Fatalf("save profile failed: %v", err)
	}

	scorer := NewModelScorer(extract, results)
	score, err := scorer.Score(ctx, "u1", "b1", "composite")
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if score != 0.64 {
		t.Errorf("score = %f, want 0.64", score)
	}
}

func TestModelScorerRejectsOutOfRangeScore(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	results := repository.NewResultRepository(env.db)
	_, extract := fakeProviders(t, `{"score": 7}`)

	sink := NewRepoSink(results)
	if err := sink.SaveProfile(ctx, "b1", &CompanyProfile{Summary: "s"}); err != nil {
		t.Fatalf("save profile failed: %v", err)
	}

	scorer := NewModelScorer(extract, results)
	_, err := scorer.Score(ctx, "u1", "b1", "composite")
	if err == nil {
		t.Fatal("score accepted out-of-range value")
	}
	if !domain.IsPermanent(err) {
		t.Errorf("error not permanent: %v", err)
	}
}
