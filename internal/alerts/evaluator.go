package alerts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"sync"
	"time"
)

// RuleSet holds the active rules behind a mutex so the fsnotify
// watcher can swap them atomically.
type RuleSet struct {
	mu    sync.RWMutex
	rules []*Rule
}

// NewRuleSet creates a rule set, validating every rule first.
func NewRuleSet(rules []*Rule) (*RuleSet, error) {
	for i, rule := range rules {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("invalid rule at index %d: %w", i, err)
		}
	}
	return &RuleSet{rules: rules}, nil
}

// Rules returns the current rules.
func (s *RuleSet) Rules() []*Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rules
}

// Replace swaps in a new set of already-validated rules.
func (s *RuleSet) Replace(rules []*Rule) {
	s.mu.Lock()
	s.rules = rules
	s.mu.Unlock()
}

// Evaluator runs rules over evaluation contexts and turns matches into
// alerts.
type Evaluator struct {
	rules   *RuleSet
	manager *Manager
}

// NewEvaluator creates an evaluator over a rule set.
func NewEvaluator(rules *RuleSet, manager *Manager) *Evaluator {
	return &Evaluator{rules: rules, manager: manager}
}

// EvaluateRules runs every enabled rule against the context. Each match
// creates one alert; suppressed alerts still count as triggers. The
// returned slice holds the created alert ids.
func (e *Evaluator) EvaluateRules(ctx context.Context, evalCtx map[string]any) ([]string, error) {
	now := e.manager.clock.Now()

	var created []string
	for _, rule := range e.rules.Rules() {
		if !rule.IsEnabled() {
			continue
		}

		matched, err := rule.Matches(evalCtx)
		if err != nil {
			log.Printf("warning: rule %q evaluation failed: %v", rule.Name, err)
			continue
		}
		if !matched {
			continue
		}

		rule.recordTrigger(now)

		params := &CreateParams{
			Type:               rule.AlertType,
			Severity:           rule.Severity,
			Title:              renderTemplate(rule.Title, evalCtx),
			Message:            renderTemplate(rule.Message, evalCtx),
			ModelName:          stringField(evalCtx, "model_name"),
			Channels:           rule.Channels,
			Metadata:           map[string]string{"rule": rule.Name},
			AggregationWindow:  time.Duration(rule.AggregationWindowMinutes) * time.Minute,
			MaxAlertsPerWindow: rule.MaxAlertsPerWindow,
		}

		id, err := e.manager.Create(ctx, params)
		switch {
		case errors.Is(err, ErrSuppressed):
			continue
		case err != nil:
			return created, fmt.Errorf("create alert for rule %q: %w", rule.Name, err)
		}
		created = append(created, id)
	}
	return created, nil
}

var templateField = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// renderTemplate substitutes {{key}} placeholders with values from the
// evaluation context. Unknown keys render as-is so broken templates are
// visible in the alert text instead of silently blank.
func renderTemplate(tmpl string, evalCtx map[string]any) string {
	return templateField.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := templateField.FindStringSubmatch(match)[1]
		if value, ok := evalCtx[key]; ok {
			return fmt.Sprintf("%v", value)
		}
		return match
	})
}

func stringField(evalCtx map[string]any, key string) string {
	if v, ok := evalCtx[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
