package detectors

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Rules evaluates operator-authored CEL rules. Each rule that evaluates to
// true raises one flag with the rule's configured category, severity and
// confidence.
type Rules struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// NewRules creates an empty rule set with the activity variables declared.
func NewRules() (*Rules, error) {
	env, err := cel.NewEnv(
		cel.Variable("kind", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("weekday", cel.IntType),
		cel.Variable("has_location", cel.BoolType),
		cel.Variable("lat", cel.DoubleType),
		cel.Variable("lng", cel.DoubleType),
		cel.Variable("accuracy", cel.DoubleType),
		cel.Variable("has_photo", cel.BoolType),
		cel.Variable("customer_id", cel.StringType),
		cel.Variable("duration", cel.DoubleType),
		cel.Variable("visits_today", cel.IntType),
		cel.Variable("activities_last_hour", cel.IntType),
		cel.Variable("avg_sale", cel.DoubleType),
		cel.Variable("avg_visit_duration", cel.DoubleType),
		cel.Variable("metadata", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Rules{
		env:      env,
		compiled: make(map[string]*CompiledRule),
	}, nil
}

// Name implements Detector.
func (r *Rules) Name() string { return NameCustom }

// Validate compiles and checks a rule without loading it.
func (r *Rules) Validate(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}
	_, err := r.compile(cfg)
	return err
}

// Load compiles and loads one rule, replacing any rule with the same ID.
// Disabled rules are removed.
func (r *Rules) Load(cfg *domain.RuleConfig) error {
	if !cfg.Enabled {
		r.mu.Lock()
		delete(r.compiled, cfg.ID)
		r.mu.Unlock()
		return nil
	}

	compiled, err := r.compile(cfg)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.compiled[cfg.ID] = compiled
	r.mu.Unlock()
	return nil
}

// Reload replaces all loaded rules. On error the previous set stays active.
func (r *Rules) Reload(configs []*domain.RuleConfig) error {
	next := make(map[string]*CompiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := r.compile(cfg)
		if err != nil {
			return err
		}
		next[cfg.ID] = compiled
	}

	r.mu.Lock()
	r.compiled = next
	r.mu.Unlock()
	return nil
}

// Loaded returns the active rule configurations ordered by ID.
func (r *Rules) Loaded() []*domain.RuleConfig {
	rules := r.snapshot()
	out := make([]*domain.RuleConfig, len(rules))
	for i, c := range rules {
		out[i] = c.Config
	}
	return out
}

// Count returns the number of loaded rules.
func (r *Rules) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.compiled)
}

// Detect implements Detector. A rule that fails to evaluate is logged and
// skipped; the remaining rules still run.
func (r *Rules) Detect(in *Input) ([]domain.Flag, error) {
	rules := r.snapshot()
	if len(rules) == 0 {
		return nil, nil
	}

	activation := Activation(in)

	var flags []domain.Flag
	for _, rule := range rules {
		out, _, err := rule.Program.Eval(activation)
		if err != nil {
			slog.Warn("custom rule evaluation failed",
				"rule_id", rule.Config.ID,
				"event_id", in.Event.ID,
				"error", err,
			)
			continue
		}
		if hit, ok := out.(types.Bool); !ok || !bool(hit) {
			continue
		}
		flags = append(flags, domain.Flag{
			Category:    rule.Config.Category,
			Severity:    rule.Config.Severity,
			Description: ruleDescription(rule.Config),
			Confidence:  rule.Config.Confidence,
			Evidence: map[string]any{
				"rule_id":    rule.Config.ID,
				"expression": rule.Config.Expression,
			},
		})
	}
	return flags, nil
}

// Activation builds the CEL variables for an event.
func Activation(in *Input) map[string]any {
	e := in.Event
	local := in.LocalTime()

	vars := map[string]any{
		"kind":                 string(e.Kind),
		"amount":               0.0,
		"hour":                 int64(local.Hour()),
		"weekday":              int64(local.Weekday()),
		"has_location":         e.Location != nil,
		"lat":                  0.0,
		"lng":                  0.0,
		"accuracy":             0.0,
		"has_photo":            e.Photo != nil,
		"customer_id":          e.CustomerID,
		"duration":             0.0,
		"visits_today":         int64(in.SameDayCount()),
		"activities_last_hour": int64(in.TrailingHourCount()),
		"avg_sale":             in.Profile.AverageSaleAmount,
		"avg_visit_duration":   in.Profile.AverageVisitDuration,
		"metadata":             map[string]any{},
	}
	if e.Amount != nil {
		vars["amount"] = e.Amount.InexactFloat64()
	}
	if e.Location != nil {
		vars["lat"] = e.Location.Latitude
		vars["lng"] = e.Location.Longitude
		vars["accuracy"] = e.Location.Accuracy
	}
	if e.DurationSeconds != nil {
		vars["duration"] = *e.DurationSeconds
	}
	if e.Metadata != nil {
		vars["metadata"] = e.Metadata
	}
	return vars
}

func (r *Rules) snapshot() []*CompiledRule {
	r.mu.RLock()
	rules := make([]*CompiledRule, 0, len(r.compiled))
	for _, c := range r.compiled {
		rules = append(rules, c)
	}
	r.mu.RUnlock()

	sort.Slice(rules, func(i, j int) bool { return rules[i].Config.ID < rules[j].Config.ID })
	return rules
}

func (r *Rules) compile(cfg *domain.RuleConfig) (*CompiledRule, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("rule id is required")
	}
	if !cfg.Category.Valid() {
		return nil, fmt.Errorf("rule %s: invalid category %q", cfg.ID, cfg.Category)
	}
	if !cfg.Severity.Valid() {
		return nil, fmt.Errorf("rule %s: invalid severity %q", cfg.ID, cfg.Severity)
	}
	if cfg.Confidence <= 0 || cfg.Confidence > 1 {
		return nil, fmt.Errorf("rule %s: confidence must be in (0, 1], got %v", cfg.ID, cfg.Confidence)
	}

	ast, issues := r.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := r.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{Config: cfg, Program: program}, nil
}

func ruleDescription(cfg *domain.RuleConfig) string {
	if cfg.Description != "" {
		return cfg.Description
	}
	if cfg.Name != "" {
		return cfg.Name
	}
	return "custom rule " + cfg.ID
}
