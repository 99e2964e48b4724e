package auth

import (
	"context"

	"filterchain/internal/constants"
	"filterchain/internal/logger"
	"filterchain/internal/stage"
	apperrors "filterchain/pkg/errors"
	"filterchain/pkg/models"
)

type trapChecker interface {
	Contains(mdn string) bool
}

// Hook is the auth filter: trap numbers are spam, unknown customers fail,
// everyone else goes on with their customer record attached.
type Hook struct {
	traps     trapChecker
	customers CustomerRepository
	logger    logger.Logger
}

func NewHook(traps trapChecker, customers CustomerRepository, log logger.Logger) *Hook {
	return &Hook{traps: traps, customers: customers, logger: log}
}

func (h *Hook) Handle(ctx context.Context, out *stage.Outlet, msg *models.FilterMessage) error {
	if err := models.ValidateForRouting(msg); err != nil {
		return apperrors.Wrap(err, apperrors.ErrValidation)
	}
	dest := msg.MessageInfo.DestinationMdn

	if h.traps.Contains(dest) {
		msg.ResultInfo.SpamPattern1 = dest
		return out.ToResult(ctx, msg, models.SMPPResultSpam, models.ResultCodeSpam, models.TrapCustomerSpam)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, constants.CustomerLookupTimeout)
	defer cancel()

	customer, err := h.customers.FindByMdn(lookupCtx, dest)
	if err != nil {
		h.logger.DebugwCtx(ctx, "Customer lookup failed", "error", err, "destination", dest)
		pattern := err.Error()
		if apperrors.IsNotFound(err) {
			pattern = "not found destinationMdn: " + dest
		}
		msg.ResultInfo.SpamPattern1 = truncate(pattern, constants.DefaultTruncateLen)
		return out.ToResult(ctx, msg, models.SMPPResultHam, models.ResultCodeHamFail, models.SystemDBError)
	}

	msg.CustomerInfo = *customer
	return out.ToNext(ctx, msg)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
