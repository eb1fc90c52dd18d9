// Package rules evaluates user-defined tag rules against customers and their
// order metrics.
package rules

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/normalizers"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/tracing"
)

// RuleSource loads the active tag rules.
type RuleSource interface {
	ListActive(ctx context.Context) ([]models.TagRule, error)
}

// Result is the outcome of evaluating every active rule for one customer.
type Result struct {
	AutoTags []models.AutoTag
	// VIPMatched is set when any matching rule has SetVIP.
	VIPMatched bool
	// VIPRulesPresent is set when any active rule has SetVIP, matching or not.
	VIPRulesPresent bool
}

type compiledRule struct {
	rule       models.TagRule
	tagKey     string
	conditions []condition
}

type ruleSet struct {
	rules           []compiledRule
	vipRulesPresent bool
}

// Engine holds the compiled rule set. Refresh swaps it atomically so
// evaluations in flight keep the set they started with.
type Engine struct {
	source RuleSource
	logger ectologger.Logger
	clock  func() time.Time
	set    atomic.Pointer[ruleSet]
}

type Option func(*Engine)

// WithClock overrides the clock used for day counts and relative datetimes.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// NewEngine creates an engine with an empty rule set; call Refresh to load rules.
func NewEngine(source RuleSource, logger ectologger.Logger, opts ...Option) *Engine {
	e := &Engine{
		source: source,
		logger: logger,
		clock:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	e.set.Store(&ruleSet{})
	return e
}

// Refresh reloads the rules from the source. On error the previous set stays active.
func (e *Engine) Refresh(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "rules.Engine.Refresh")
	defer span.End()

	rules, err := e.source.ListActive(ctx)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to load tag rules")
		return err
	}

	set := compileRules(rules)
	e.set.Store(set)
	invalid := 0
	for _, rule := range set.rules {
		for _, c := range rule.conditions {
			if c.err != nil {
				invalid++
				e.logger.WithContext(ctx).WithError(c.err).WithFields(map[string]any{
					"rule_id":  rule.rule.ID,
					"tag_key":  rule.tagKey,
					"field":    c.path,
					"operator": c.op,
				}).Warn("Tag rule condition is malformed and will never match")
			}
		}
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"rules":              len(set.rules),
		"invalid_conditions": invalid,
		"vip_rules_present":  set.vipRulesPresent,
	}).Info("Loaded tag rules")
	return nil
}

// Load compiles and activates rules without going through the source.
func (e *Engine) Load(rules []models.TagRule) {
	e.set.Store(compileRules(rules))
}

// Rules returns the active rules in evaluation order.
func (e *Engine) Rules() []models.TagRule {
	set := e.set.Load()
	out := make([]models.TagRule, len(set.rules))
	for i, rule := range set.rules {
		out[i] = rule.rule
	}
	return out
}

// Evaluate runs every active rule in priority order. The first matching rule
// owns a tag key; later matches for the same key add nothing.
func (e *Engine) Evaluate(customer models.Customer, metrics *models.CustomerMetric) Result {
	set := e.set.Load()
	subject := Subject{Customer: customer, Metrics: metrics, Now: e.clock()}

	result := Result{VIPRulesPresent: set.vipRulesPresent, AutoTags: []models.AutoTag{}}
	owned := map[string]struct{}{}
	for _, rule := range set.rules {
		if !rule.matches(subject) {
			continue
		}
		if rule.rule.SetVIP {
			result.VIPMatched = true
		}
		if _, taken := owned[rule.tagKey]; taken {
			continue
		}
		owned[rule.tagKey] = struct{}{}
		result.AutoTags = append(result.AutoTags, models.AutoTag{
			Key:    rule.tagKey,
			Label:  rule.rule.Label,
			Color:  rule.rule.Color,
			RuleID: rule.rule.ID,
		})
	}
	return result
}

func (r compiledRule) matches(s Subject) bool {
	if len(r.conditions) == 0 {
		return true
	}
	if r.rule.MatchType == models.MatchTypeAny {
		for _, c := range r.conditions {
			if c.evaluate(s) {
				return true
			}
		}
		return false
	}
	for _, c := range r.conditions {
		if !c.evaluate(s) {
			return false
		}
	}
	return true
}

func compileRules(rules []models.TagRule) *ruleSet {
	set := &ruleSet{}
	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		key := normalizers.Fold(rule.TagKey)
		if key == "" {
			key = normalizers.Slugify(rule.Label)
		}
		if key == "" {
			continue
		}
		compiled := compiledRule{rule: rule, tagKey: key}
		if strings.EqualFold(string(rule.MatchType), string(models.MatchTypeAny)) {
			compiled.rule.MatchType = models.MatchTypeAny
		} else {
			compiled.rule.MatchType = models.MatchTypeAll
		}
		for _, c := range rule.Conditions {
			compiled.conditions = append(compiled.conditions, compileCondition(c))
		}
		set.rules = append(set.rules, compiled)
		if rule.SetVIP {
			set.vipRulesPresent = true
		}
	}

	sort.SliceStable(set.rules, func(i, j int) bool {
		a, b := set.rules[i].rule, set.rules[j].rule
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		la, lb := normalizers.Fold(a.Label), normalizers.Fold(b.Label)
		if la != lb {
			return la < lb
		}
		return a.ID < b.ID
	})
	return set
}
