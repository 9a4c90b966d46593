// Package alerts provides the alert lifecycle manager and the rule
// evaluation engine. Rules are operator-authored: threshold comparisons,
// regex patterns, and expr-lang expressions over evaluation contexts.
package alerts

import (
	"fmt"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/calm-red-fox/aitrail/internal/models"
)

// RuleType defines the kind of alert rule.
type RuleType string

const (
	// RuleTypeThreshold triggers on a numeric comparison.
	RuleTypeThreshold RuleType = "threshold"
	// RuleTypePattern triggers on a regex match.
	RuleTypePattern RuleType = "pattern"
	// RuleTypeCustom triggers on an expr-lang expression.
	RuleTypeCustom RuleType = "custom"
)

// Threshold comparison operators.
const (
	OpGT      = "gt"
	OpLT      = "lt"
	OpGTE     = "gte"
	OpLTE     = "lte"
	OpEQ      = "eq"
	OpBetween = "between"
)

// Condition defines when a rule triggers.
type Condition struct {
	// Field names the evaluation-context key the rule inspects.
	Field string `yaml:"field,omitempty"`

	// Operator is the threshold comparison: gt, lt, gte, lte, eq,
	// between.
	Operator string `yaml:"operator,omitempty"`

	// Threshold is the comparison value. For between it is the lower
	// bound.
	Threshold float64 `yaml:"threshold,omitempty"`

	// UpperThreshold is the inclusive upper bound for between.
	UpperThreshold *float64 `yaml:"upper_threshold,omitempty"`

	// Pattern is the regex for pattern rules.
	Pattern string `yaml:"pattern,omitempty"`

	// CaseSensitive controls pattern matching case sensitivity.
	CaseSensitive bool `yaml:"case_sensitive,omitempty"`

	// Expression is the expr-lang source for custom rules. Compiled
	// once at rule load; rules files sit behind the operator trust
	// boundary.
	Expression string `yaml:"expression,omitempty"`

	// compiledPattern is the compiled regex (internal use).
	compiledPattern *regexp.Regexp
	// matcher is the compiled expression (internal use).
	matcher *ExprMatcher
}

// Rule is a single operator-authored alert rule.
type Rule struct {
	// Name is the unique identifier for the rule.
	Name string `yaml:"name"`
	// Description provides details about what the rule detects.
	Description string `yaml:"description,omitempty"`
	// Type is threshold, pattern, or custom.
	Type RuleType `yaml:"type"`
	// Condition defines when the rule triggers.
	Condition Condition `yaml:"condition"`
	// AlertType classifies alerts created by this rule.
	AlertType models.AlertType `yaml:"alert_type,omitempty"`
	// Severity of alerts created by this rule.
	Severity models.Severity `yaml:"severity"`
	// Title and Message are templates; {{key}} placeholders resolve
	// against the evaluation context.
	Title   string `yaml:"title"`
	Message string `yaml:"message"`
	// Channels lists notification channels for triggered alerts.
	Channels []string `yaml:"channels,omitempty"`
	// AggregationWindowMinutes overrides the manager-wide suppression
	// window for alerts created by this rule. Zero means the manager
	// default applies.
	AggregationWindowMinutes int `yaml:"aggregation_window_minutes,omitempty"`
	// MaxAlertsPerWindow overrides the manager-wide cap on alerts per
	// window for this rule. Zero means the manager default applies.
	MaxAlertsPerWindow int `yaml:"max_alerts_per_window,omitempty"`
	// Enabled controls whether the rule is evaluated. Nil means true.
	Enabled *bool `yaml:"enabled,omitempty"`

	// triggerCount and lastTriggered track rule activity. Atomics:
	// evaluation can run concurrently with rule inspection.
	triggerCount  atomic.Int64
	lastTriggered atomic.Int64 // unix nanos, 0 = never
}

// IsEnabled returns whether the rule is evaluated.
func (r *Rule) IsEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

// TriggerCount returns how many times the rule has fired.
func (r *Rule) TriggerCount() int64 {
	return r.triggerCount.Load()
}

// LastTriggered returns when the rule last fired, zero if never.
func (r *Rule) LastTriggered() time.Time {
	ns := r.lastTriggered.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// recordTrigger bumps the trigger counter and timestamp.
func (r *Rule) recordTrigger(at time.Time) {
	r.triggerCount.Add(1)
	r.lastTriggered.Store(at.UnixNano())
}

// Validate checks the rule and compiles its pattern or expression.
func (r *Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if r.Title == "" {
		return fmt.Errorf("title is required for rule %q", r.Name)
	}

	switch r.Type {
	case RuleTypeThreshold:
		if r.Condition.Field == "" {
			return fmt.Errorf("field is required for threshold rule %q", r.Name)
		}
		switch r.Condition.Operator {
		case OpGT, OpLT, OpGTE, OpLTE, OpEQ:
		case OpBetween:
			if r.Condition.UpperThreshold == nil {
				return fmt.Errorf("between rule %q requires upper_threshold", r.Name)
			}
			if *r.Condition.UpperThreshold < r.Condition.Threshold {
				return fmt.Errorf("between rule %q has upper bound below lower bound", r.Name)
			}
		case "":
			return fmt.Errorf("operator is required for threshold rule %q", r.Name)
		default:
			return fmt.Errorf("invalid operator %q for rule %q", r.Condition.Operator, r.Name)
		}

	case RuleTypePattern:
		if r.Condition.Pattern == "" {
			return fmt.Errorf("pattern is required for pattern rule %q", r.Name)
		}
		if r.Condition.Field == "" {
			return fmt.Errorf("field is required for pattern rule %q", r.Name)
		}
		flags := ""
		if !r.Condition.CaseSensitive {
			flags = "(?i)"
		}
		compiled, err := regexp.Compile(flags + r.Condition.Pattern)
		if err != nil {
			return fmt.Errorf("invalid pattern %q for rule %q: %w", r.Condition.Pattern, r.Name, err)
		}
		r.Condition.compiledPattern = compiled

	case RuleTypeCustom:
		if r.Condition.Expression == "" {
			return fmt.Errorf("expression is required for custom rule %q", r.Name)
		}
		matcher, err := NewExprMatcher(r.Condition.Expression)
		if err != nil {
			return fmt.Errorf("invalid expression for rule %q: %w", r.Name, err)
		}
		r.Condition.matcher = matcher

	case "":
		return fmt.Errorf("rule type is required for rule %q", r.Name)
	default:
		return fmt.Errorf("invalid rule type %q for rule %q", r.Type, r.Name)
	}

	if r.AggregationWindowMinutes < 0 {
		return fmt.Errorf("aggregation_window_minutes must not be negative for rule %q", r.Name)
	}
	if r.MaxAlertsPerWindow < 0 {
		return fmt.Errorf("max_alerts_per_window must not be negative for rule %q", r.Name)
	}
	if r.Severity == "" {
		r.Severity = models.SeverityMedium
	}
	if r.AlertType == "" {
		r.AlertType = models.AlertCustom
	}
	return nil
}

// Matches evaluates the rule condition against an evaluation context.
func (r *Rule) Matches(evalCtx map[string]any) (bool, error) {
	switch r.Type {
	case RuleTypeThreshold:
		value, ok := numericField(evalCtx, r.Condition.Field)
		if !ok {
			return false, nil
		}
		return compareThreshold(r.Condition, value), nil

	case RuleTypePattern:
		raw, ok := evalCtx[r.Condition.Field]
		if !ok {
			return false, nil
		}
		return r.Condition.compiledPattern.MatchString(fmt.Sprintf("%v", raw)), nil

	case RuleTypeCustom:
		return r.Condition.matcher.Match(evalCtx)

	default:
		return false, fmt.Errorf("rule %q has unknown type %q", r.Name, r.Type)
	}
}

func compareThreshold(c Condition, value float64) bool {
	switch c.Operator {
	case OpGT:
		return value > c.Threshold
	case OpLT:
		return value < c.Threshold
	case OpGTE:
		return value >= c.Threshold
	case OpLTE:
		return value <= c.Threshold
	case OpEQ:
		return value == c.Threshold
	case OpBetween:
		return value >= c.Threshold && value <= *c.UpperThreshold
	default:
		return false
	}
}

// numericField pulls a numeric value out of the evaluation context.
func numericField(evalCtx map[string]any, field string) (float64, bool) {
	raw, ok := evalCtx[field]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
