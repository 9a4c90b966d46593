package alerts

import (
	"strings"
	"testing"

	"github.com/calm-red-fox/aitrail/internal/models"
)

func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }

func TestRuleValidate(t *testing.T) {
	tests := []struct {
		name    string
		rule    *Rule
		wantErr string
	}{
		{
			name: "valid threshold",
			rule: &Rule{
				Name:      "high-error-rate",
				Type:      RuleTypeThreshold,
				Title:     "error rate high",
				Condition: Condition{Field: "error_rate", Operator: OpGT, Threshold: 20},
			},
		},
		{
			name: "valid between",
			rule: &Rule{
				Name:  "mid-confidence",
				Type:  RuleTypeThreshold,
				Title: "confidence in gray zone",
				Condition: Condition{
					Field: "confidence_score", Operator: OpBetween,
					Threshold: 40, UpperThreshold: floatPtr(60),
				},
			},
		},
		{
			name: "valid pattern",
			rule: &Rule{
				Name:      "timeout-errors",
				Type:      RuleTypePattern,
				Title:     "timeout seen",
				Condition: Condition{Field: "error_message", Pattern: `timeout|deadline`},
			},
		},
		{
			name: "valid custom",
			rule: &Rule{
				Name:      "costly-failures",
				Type:      RuleTypeCustom,
				Title:     "expensive failure",
				Condition: Condition{Expression: `status == "error" && estimated_cost > 0.5`},
			},
		},
		{
			name:    "missing name",
			rule:    &Rule{Type: RuleTypeThreshold, Title: "t"},
			wantErr: "name is required",
		},
		{
			name:    "missing title",
			rule:    &Rule{Name: "r", Type: RuleTypeThreshold},
			wantErr: "title is required",
		},
		{
			name:    "missing type",
			rule:    &Rule{Name: "r", Title: "t"},
			wantErr: "rule type is required",
		},
		{
			name: "bad operator",
			rule: &Rule{
				Name: "r", Type: RuleTypeThreshold, Title: "t",
				Condition: Condition{Field: "f", Operator: "above"},
			},
			wantErr: "invalid operator",
		},
		{
			name: "between without upper bound",
			rule: &Rule{
				Name: "r", Type: RuleTypeThreshold, Title: "t",
				Condition: Condition{Field: "f", Operator: OpBetween, Threshold: 10},
			},
			wantErr: "upper_threshold",
		},
		{
			name: "between with inverted bounds",
			rule: &Rule{
				Name: "r", Type: RuleTypeThreshold, Title: "t",
				Condition: Condition{
					Field: "f", Operator: OpBetween,
					Threshold: 10, UpperThreshold: floatPtr(5),
				},
			},
			wantErr: "upper bound below lower bound",
		},
		{
			name: "bad regex",
			rule: &Rule{
				Name: "r", Type: RuleTypePattern, Title: "t",
				Condition: Condition{Field: "f", Pattern: `[unclosed`},
			},
			wantErr: "invalid pattern",
		},
		{
			name: "bad expression",
			rule: &Rule{
				Name: "r", Type: RuleTypeCustom, Title: "t",
				Condition: Condition{Expression: `&& broken`},
			},
			wantErr: "invalid expression",
		},
		{
			name: "valid suppression overrides",
			rule: &Rule{
				Name: "r", Type: RuleTypeThreshold, Title: "t",
				Condition:                Condition{Field: "f", Operator: OpGT},
				AggregationWindowMinutes: 5,
				MaxAlertsPerWindow:       1,
			},
		},
		{
			name: "negative aggregation window",
			rule: &Rule{
				Name: "r", Type: RuleTypeThreshold, Title: "t",
				Condition:                Condition{Field: "f", Operator: OpGT},
				AggregationWindowMinutes: -5,
			},
			wantErr: "aggregation_window_minutes",
		},
		{
			name: "negative alert cap",
			rule: &Rule{
				Name: "r", Type: RuleTypeThreshold, Title: "t",
				Condition:          Condition{Field: "f", Operator: OpGT},
				MaxAlertsPerWindow: -1,
			},
			wantErr: "max_alerts_per_window",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestRuleValidateDefaults(t *testing.T) {
	rule := &Rule{
		Name:      "r",
		Type:      RuleTypeThreshold,
		Title:     "t",
		Condition: Condition{Field: "f", Operator: OpGT},
	}
	if err := rule.Validate(); err != nil {
		t.Fatal(err)
	}
	if rule.Severity != models.SeverityMedium {
		t.Errorf("severity = %q, want medium default", rule.Severity)
	}
	if rule.AlertType != models.AlertCustom {
		t.Errorf("alert type = %q, want custom default", rule.AlertType)
	}
}

func TestThresholdMatches(t *testing.T) {
	tests := []struct {
		name     string
		operator string
		thresh   float64
		upper    *float64
		value    any
		want     bool
	}{
		{"gt above", OpGT, 20, nil, 25.0, true},
		{"gt equal", OpGT, 20, nil, 20.0, false},
		{"lt below", OpLT, 50, nil, 49.9, true},
		{"gte equal", OpGTE, 50, nil, 50.0, true},
		{"lte above", OpLTE, 50, nil, 50.1, false},
		{"eq", OpEQ, 3, nil, 3, true},
		{"between inside", OpBetween, 40, floatPtr(60), 55.0, true},
		{"between lower bound", OpBetween, 40, floatPtr(60), 40.0, true},
		{"between outside", OpBetween, 40, floatPtr(60), 61.0, false},
		{"int value", OpGT, 10, nil, int64(11), true},
		{"float32 value", OpGT, 10, nil, float32(11), true},
		{"non-numeric value", OpGT, 10, nil, "11", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &Rule{
				Name: "r", Type: RuleTypeThreshold, Title: "t",
				Condition: Condition{
					Field: "value", Operator: tt.operator,
					Threshold: tt.thresh, UpperThreshold: tt.upper,
				},
			}
			if err := rule.Validate(); err != nil {
				t.Fatal(err)
			}
			got, err := rule.Matches(map[string]any{"value": tt.value})
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestThresholdMissingFieldNoMatch(t *testing.T) {
	rule := &Rule{
		Name: "r", Type: RuleTypeThreshold, Title: "t",
		Condition: Condition{Field: "error_rate", Operator: OpGT, Threshold: 1},
	}
	if err := rule.Validate(); err != nil {
		t.Fatal(err)
	}
	got, err := rule.Matches(map[string]any{"other": 99.0})
	if err != nil || got {
		t.Errorf("Matches = %v, %v; missing field must not match", got, err)
	}
}

func TestPatternMatches(t *testing.T) {
	rule := &Rule{
		Name: "r", Type: RuleTypePattern, Title: "t",
		Condition: Condition{Field: "error_message", Pattern: `context deadline`},
	}
	if err := rule.Validate(); err != nil {
		t.Fatal(err)
	}

	got, _ := rule.Matches(map[string]any{"error_message": "rpc: Context Deadline exceeded"})
	if !got {
		t.Error("case-insensitive by default, want match")
	}

	sensitive := &Rule{
		Name: "r", Type: RuleTypePattern, Title: "t",
		Condition: Condition{Field: "error_message", Pattern: `context deadline`, CaseSensitive: true},
	}
	if err := sensitive.Validate(); err != nil {
		t.Fatal(err)
	}
	got, _ = sensitive.Matches(map[string]any{"error_message": "rpc: Context Deadline exceeded"})
	if got {
		t.Error("case-sensitive pattern matched wrong case")
	}
}

func TestCustomExpressionMatches(t *testing.T) {
	rule := &Rule{
		Name: "r", Type: RuleTypeCustom, Title: "t",
		Condition: Condition{Expression: `status == "error" && execution_time_ms > 1000`},
	}
	if err := rule.Validate(); err != nil {
		t.Fatal(err)
	}

	got, err := rule.Matches(map[string]any{"status": "error", "execution_time_ms": 1500})
	if err != nil {
		t.Fatal(err)
	}
	if !got {
		t.Error("want match")
	}

	got, err = rule.Matches(map[string]any{"status": "success", "execution_time_ms": 1500})
	if err != nil {
		t.Fatal(err)
	}
	if got {
		t.Error("want no match")
	}
}

func TestRuleEnabled(t *testing.T) {
	rule := &Rule{Name: "r"}
	if !rule.IsEnabled() {
		t.Error("nil Enabled must default to true")
	}
	rule.Enabled = boolPtr(false)
	if rule.IsEnabled() {
		t.Error("disabled rule reported enabled")
	}
}
