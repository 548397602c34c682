package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/config"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/domain"
)

func searchClientFor(url string) *SearchClient {
	return NewSearchClient(&config.SearchProviderConfig{
		BaseURL: url,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	})
}

func extractionClientFor(url string) *ExtractionClient {
	return NewExtractionClient(&config.ExtractionProviderConfig{
		BaseURL: url,
		APIKey:  "test-key",
		Model:   "test-model",
		Timeout: 5 * time.Second,
	})
}

func TestSearchParsesOrganicResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("path = %s, want /search", r.URL.Path)
		}
		if r.Header.Get("X-API-KEY") != "test-key" {
			t.Errorf("missing API key header")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"organic":[{"title":"Acme","link":"https://acme.example","snippet":"Acme makes widgets"}]}`))
	}))
	defer srv.Close()

	results, err := searchClientFor(srv.URL).Search(context.Background(), "acme", 5)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Title != "Acme" {
		t.Errorf("title = %s", results[0].Title)
	}
}

func TestSearchErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		retryAfter  string
		permanent   bool
		rateLimited bool
		wantDelay   time.Duration
	}{
		{"rate limited with retry-after", http.StatusTooManyRequests, "42", false, true, 42 * time.Second},
		{"rate limited without retry-after", http.StatusTooManyRequests, "", false, true, 0},
		{"bad request", http.StatusBadRequest, "", true, false, 0},
		{"unauthorized", http.StatusUnauthorized, "", true, false, 0},
		{"server error", http.StatusInternalServerError, "", false, false, 0},
		{"bad gateway", http.StatusBadGateway, "", false, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := searchClientFor(srv.URL).Search(context.Background(), "acme", 5)
			if err == nil {
				t.Fatal("search succeeded, want error")
			}
			if got := domain.IsPermanent(err); got != tt.permanent {
				t.Errorf("IsPermanent = %v, want %v", got, tt.permanent)
			}
			delay, limited := domain.IsRateLimited(err)
			if limited != tt.rateLimited {
				t.Errorf("IsRateLimited = %v, want %v", limited, tt.rateLimited)
			}
			if delay != tt.wantDelay {
				t.Errorf("retry delay = %s, want %s", delay, tt.wantDelay)
			}
		})
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantErr   bool
		permanent bool
	}{
		{
			name: "plain json",
			body: `{"choices":[{"message":{"content":"{\"score\": 0.7}"}}]}`,
		},
		{
			name: "fenced json",
			body: `{"choices":[{"message":{"content":"` + "```json\\n{\\\"score\\\": 0.7}\\n```" + `"}}]}`,
		},
		{
			name:      "non-json output",
			body:      `{"choices":[{"message":{"content":"I cannot do that"}}]}`,
			wantErr:   true,
			permanent: true,
		},
		{
			name:    "no choices",
			body:    `{"choices":[]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/chat/completions" {
					t.Errorf("path = %s, want /chat/completions", r.URL.Path)
				}
				if r.Header.Get("Authorization") != "Bearer test-key" {
					t.Errorf("missing bearer token")
				}
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			var out struct {
				Score float64 `json:"score"`
			}
			err := extractionClientFor(srv.URL).ExtractJSON(context.Background(), "system", "user", &out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if got := domain.IsPermanent(err); got != tt.permanent {
					t.Errorf("IsPermanent = %v, want %v", got, tt.permanent)
				}
				return
			}
			if out.Score != 0.7 {
				t.Errorf("score = %f, want 0.7", out.Score)
			}
		})
	}
}

func TestTransportErrorIsTransient(t *testing.T) {
	// Point at a closed server to force a connection error.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := searchClientFor(srv.URL).Search(context.Background(), "acme", 5)
	if err == nil {
		t.Fatal("search succeeded against closed server")
	}
	if domain.IsPermanent(err) {
		t.Error("transport error classified permanent, want transient")
	}
}
