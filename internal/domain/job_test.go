package domain

import (
	"testing"
)

func TestJobStatusTerminal(t *testing.T) {
	tests := []struct {
		status   JobStatus
		terminal bool
	}{
		{JobStatusPending, false},
		{JobStatusProcessing, false},
		{JobStatusRateLimited, false},
		{JobStatusCompleted, true},
		{JobStatusFailed, true},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestIsValidJobTransition(t *testing.T) {
	tests := []struct {
		name  string
		from  JobStatus
		to    JobStatus
		valid bool
	}{
		{"claim", JobStatusPending, JobStatusProcessing, true},
		{"complete", JobStatusProcessing, JobStatusCompleted, true},
		{"fail", JobStatusProcessing, JobStatusFailed, true},
		{"retry", JobStatusProcessing, JobStatusPending, true},
		{"park", JobStatusProcessing, JobStatusRateLimited, true},
		{"promote", JobStatusRateLimited, JobStatusPending, true},
		{"revive completed", JobStatusCompleted, JobStatusPending, true},
		{"revive failed", JobStatusFailed, JobStatusPending, true},
		{"pending to completed", JobStatusPending, JobStatusCompleted, false},
		{"pending to failed", JobStatusPending, JobStatusFailed, false},
		{"completed to processing", JobStatusCompleted, JobStatusProcessing, false},
		{"rate_limited to processing", JobStatusRateLimited, JobStatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidJobTransition(tt.from, tt.to); got != tt.valid {
				t.Errorf("IsValidJobTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.valid)
			}
		})
	}
}

func TestJobPayloadRoundTrip(t *testing.T) {
	payload := JobPayload{
		"company_name": "Acme Industrial",
		"website":      "acme.example",
	}

	value, err := payload.Value()
	if err != nil {
		t.Fatalf("Value() error: %v", err)
	}

	var decoded JobPayload
	if err := decoded.Scan(value); err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if decoded["company_name"] != "Acme Industrial" {
		t.Errorf("company_name = %v, want Acme Industrial", decoded["company_name"])
	}
}

func TestJobPayloadScanNil(t *testing.T) {
	var payload JobPayload
	if err := payload.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) error: %v", err)
	}
	if payload == nil {
		t.Error("Scan(nil) left payload nil, want empty map")
	}
}
