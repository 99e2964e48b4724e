package rules

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	celgo "github.com/google/cel-go/cel"

	"filterchain/internal/config"
	"filterchain/internal/constants"
	"filterchain/internal/logger"
	"filterchain/pkg/cel"
	"filterchain/pkg/metrics"
	"filterchain/pkg/models"
	"filterchain/pkg/tracing"
)

type errorHandlingStatus int

const (
	errorHandlingFail errorHandlingStatus = iota
	errorHandlingSkip
	errorHandlingDeny
)

type compiledRule struct {
	Rule
	program celgo.Program
}

// Verdict is the outcome of running the rule set over one message.
type Verdict struct {
	Matched bool
	Rule    Rule
	// Fallback is set when the match came from on_error=deny.
	Fallback bool
}

type Service struct {
	repo      Repository
	cfg       config.RulesConfig
	evaluator *cel.Evaluator
	logger    logger.Logger

	rulesMu sync.RWMutex
	rules   []compiledRule
}

func NewService(repo Repository, cfg config.RulesConfig, log logger.Logger) (*Service, error) {
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL evaluator: %w", err)
	}

	return &Service{
		repo:      repo,
		cfg:       cfg,
		evaluator: evaluator,
		logger:    log,
	}, nil
}

// Evaluate runs the active rules in priority order and stops at the first
// one that matches.
func (s *Service) Evaluate(ctx context.Context, msg *models.FilterMessage) (Verdict, error) {
	ctx, span := tracing.GetTracer("rule-filter").Start(ctx, "rules.evaluate")
	defer span.End()

	for _, rule := range s.activeRules() {
		matched, err := cel.Run(ctx, rule.program, msg)
		if err != nil {
			switch s.handleEvaluationError(ctx, rule.Rule, err) {
			case errorHandlingSkip:
				continue
			case errorHandlingDeny:
				return Verdict{Matched: true, Rule: rule.Rule, Fallback: true}, nil
			default:
				return Verdict{}, fmt.Errorf("rule %s: %w", rule.Name, err)
			}
		}

		if matched {
			metrics.IncRuleEvaluation(rule.ID, rule.Name, "match")
			return Verdict{Matched: true, Rule: rule.Rule}, nil
		}
		metrics.IncRuleEvaluation(rule.ID, rule.Name, "no_match")
	}

	return Verdict{}, nil
}

func (s *Service) activeRules() []compiledRule {
	s.rulesMu.RLock()
	defer s.rulesMu.RUnlock()
	return s.rules
}

func (s *Service) RuleCount() int {
	return len(s.activeRules())
}

func (s *Service) handleEvaluationError(ctx context.Context, rule Rule, err error) errorHandlingStatus {
	metrics.IncRuleEvaluation(rule.ID, rule.Name, "error")
	s.logger.ErrorwCtx(ctx, "Rule evaluation error",
		"rule_id", rule.ID,
		"rule_name", rule.Name,
		"error", err,
	)

	switch strings.ToLower(s.cfg.Fallback.OnError) {
	case constants.FallbackAllow:
		metrics.FallbackUsageTotal.WithLabelValues("rule-filter", "allow_on_error", "evaluation_error").Inc()
		return errorHandlingSkip
	case constants.FallbackDeny:
		metrics.FallbackUsageTotal.WithLabelValues("rule-filter", "deny_on_error", "evaluation_error").Inc()
		return errorHandlingDeny
	default:
		return errorHandlingFail
	}
}

// Reload loads the rules at once, without jitter.
func (s *Service) Reload(ctx context.Context) error {
	return s.ReloadRules(ctx, true)
}

func (s *Service) ReloadRules(ctx context.Context, skipJitter ...bool) error {
	shouldSkipJitter := len(skipJitter) > 0 && skipJitter[0]

	if err := s.applyJitter(ctx, shouldSkipJitter); err != nil {
		return err
	}

	s.logger.DebugwCtx(ctx, "Loading rules from database")
	rules, err := s.repo.GetActiveRules(ctx)
	if err != nil {
		return err
	}

	s.updateRules(ctx, s.compile(ctx, rules))
	return nil
}

func (s *Service) applyJitter(ctx context.Context, skipJitter bool) error {
	if skipJitter || s.cfg.Reload.JitterMaxMilliseconds <= 0 {
		return nil
	}

	jitter := time.Duration(rand.Intn(s.cfg.Reload.JitterMaxMilliseconds)) * time.Millisecond
	s.logger.DebugwCtx(ctx, "Reload scheduled with jitter",
		"jitter_ms", jitter.Milliseconds(),
	)

	select {
	case <-time.After(jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// compile drops rules that do not compile; the rest still load.
func (s *Service) compile(ctx context.Context, rules []Rule) []compiledRule {
	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		program, err := s.evaluator.CompileFilter(rule.Expression)
		if err != nil {
			s.logger.ErrorwCtx(ctx, "Skipping invalid rule",
				"rule_id", rule.ID,
				"rule_name", rule.Name,
				"error", err,
			)
			continue
		}
		compiled = append(compiled, compiledRule{Rule: rule, program: program})
	}
	return compiled
}

func (s *Service) updateRules(ctx context.Context, rules []compiledRule) {
	s.rulesMu.Lock()
	s.rules = rules
	s.rulesMu.Unlock()

	metrics.SetActiveRules(len(rules))
	s.logger.InfowCtx(ctx, "Successfully reloaded rules",
		"rules_count", len(rules),
	)
}

func (s *Service) StartReloader(ctx context.Context) error {
	interval := time.Duration(s.cfg.Reload.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = constants.DefaultReloadInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.ReloadRules(ctx); err != nil && ctx.Err() == nil {
				s.logger.ErrorwCtx(ctx, "Failed to reload rules",
					"error", err,
				)
			}
		case <-ctx.Done():
			return nil
		}
	}
}
