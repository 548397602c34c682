package domain

import (
	"testing"
)

func TestOperationStatusTerminal(t *testing.T) {
	tests := []struct {
		status   OperationStatus
		terminal bool
	}{
		{OperationQueued, false},
		{OperationRunning, false},
		{OperationPaused, false},
		{OperationCompleted, true},
		{OperationFailed, true},
		{OperationCancelled, true},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestIsValidOperationTransition(t *testing.T) {
	tests := []struct {
		name  string
		from  OperationStatus
		to    OperationStatus
		valid bool
	}{
		{"admit", OperationQueued, OperationRunning, true},
		{"cancel queued", OperationQueued, OperationCancelled, true},
		{"pause", OperationRunning, OperationPaused, true},
		{"complete", OperationRunning, OperationCompleted, true},
		{"abort", OperationRunning, OperationFailed, true},
		{"cancel running", OperationRunning, OperationCancelled, true},
		{"resume to queued", OperationPaused, OperationQueued, true},
		{"cancel paused", OperationPaused, OperationCancelled, true},
		{"resume straight to running", OperationPaused, OperationRunning, false},
		{"queued to paused", OperationQueued, OperationPaused, false},
		{"completed to running", OperationCompleted, OperationRunning, false},
		{"cancelled to queued", OperationCancelled, OperationQueued, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidOperationTransition(tt.from, tt.to); got != tt.valid {
				t.Errorf("IsValidOperationTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.valid)
			}
		})
	}
}

func TestOperationContextValidate(t *testing.T) {
	tests := []struct {
		name    string
		opType  OperationType
		ctx     OperationContext
		wantErr bool
	}{
		{
			name:   "matching deal enrichment",
			opType: OperationDealEnrichment,
			ctx:    OperationContext{DealEnrichment: &DealEnrichmentContext{DealIDs: []string{"d1"}}},
		},
		{
			name:   "matching fit scoring",
			opType: OperationFitScoring,
			ctx:    OperationContext{FitScoring: &FitScoringContext{UniverseID: "u1", ScoreKind: "composite"}},
		},
		{
			name:    "empty context",
			opType:  OperationDealEnrichment,
			ctx:     OperationContext{},
			wantErr: true,
		},
		{
			name:    "wrong member",
			opType:  OperationDealEnrichment,
			ctx:     OperationContext{BuyerEnrichment: &BuyerEnrichmentContext{UniverseID: "u1"}},
			wantErr: true,
		},
		{
			name:   "two members",
			opType: OperationDealEnrichment,
			ctx: OperationContext{
				DealEnrichment:  &DealEnrichmentContext{DealIDs: []string{"d1"}},
				BuyerEnrichment: &BuyerEnrichmentContext{UniverseID: "u1"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ctx.Validate(tt.opType)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%s) error = %v, wantErr %v", tt.opType, err, tt.wantErr)
			}
		})
	}
}

func TestOperationContextRoundTrip(t *testing.T) {
	ctx := OperationContext{
		BuyerEnrichment: &BuyerEnrichmentContext{
			UniverseID: "u-42",
			BuyerIDs:   []string{"b1", "b2"},
		},
	}

	value, err := ctx.Value()
	if err != nil {
		t.Fatalf("Value() error: %v", err)
	}

	var decoded OperationContext
	if err := decoded.Scan(value); err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if decoded.BuyerEnrichment == nil {
		t.Fatal("BuyerEnrichment member lost in round trip")
	}
	if decoded.BuyerEnrichment.UniverseID != "u-42" {
		t.Errorf("UniverseID = %s, want u-42", decoded.BuyerEnrichment.UniverseID)
	}
	if len(decoded.BuyerEnrichment.BuyerIDs) != 2 {
		t.Errorf("BuyerIDs length = %d, want 2", len(decoded.BuyerEnrichment.BuyerIDs))
	}
}
