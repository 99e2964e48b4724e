package rules

import (
	"context"

	"filterchain/internal/stage"
	"filterchain/pkg/models"
)

type evaluator interface {
	Evaluate(ctx context.Context, msg *models.FilterMessage) (Verdict, error)
}

// Hook marks messages matched by a rule as spam and forwards the rest.
type Hook struct {
	rules evaluator
}

func NewHook(rules evaluator) *Hook {
	return &Hook{rules: rules}
}

func (h *Hook) Handle(ctx context.Context, out *stage.Outlet, msg *models.FilterMessage) error {
	verdict, err := h.rules.Evaluate(ctx, msg)
	if err != nil {
		return err
	}

	if !verdict.Matched {
		return out.ToNext(ctx, msg)
	}

	msg.ResultInfo.SpamPattern1 = verdict.Rule.Name
	id := verdict.Rule.ID
	msg.ResultInfo.SpamPattern2 = &id
	return out.ToResult(ctx, msg, models.SMPPResultSpam, models.ResultCodeSpam, models.RuleMatchSpam)
}
