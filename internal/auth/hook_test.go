package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filterchain/internal/broker"
	"filterchain/internal/config"
	"filterchain/internal/logger"
	"filterchain/internal/stage"
	apperrors "filterchain/pkg/errors"
	"filterchain/pkg/models"
)

type capturePublisher struct {
	mu   sync.Mutex
	msgs []*models.FilterMessage
}

func (p *capturePublisher) Publish(_ context.Context, _ string, payload []byte) error {
	msg, err := models.ParseFilterMessage(payload)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

type staticTraps map[string]bool

func (s staticTraps) Contains(mdn string) bool { return s[mdn] }

func runAuth(t *testing.T, hook *Hook, dest string) (next, result []*models.FilterMessage) {
	t.Helper()

	nextPub, resultPub := &capturePublisher{}, &capturePublisher{}
	s := stage.New(stage.Config{Name: "auth-filter", Workers: 1, QueueSize: 10}, hook,
		stage.NewLimits(config.DiscardConfig{TimeoutMs: 3000, QueueSize: 10, EnqueueTPS: 100, DequeueTPS: 100}),
		nextPub, resultPub, logger.NopLogger())
	require.NoError(t, s.Start())

	payload := models.NewFilterMessageBuilder().
		WithMessageID("m-1").
		WithDestination(dest).
		WithStartTime(time.Now()).
		BuildJSON()
	require.NoError(t, s.Push(context.Background(), broker.Envelope{Subject: "filter.auth", Payload: payload}))
	s.Stop()

	return nextPub.msgs, resultPub.msgs
}

func TestHook_TrapNumberIsSpam(t *testing.T) {
	repo := &fakeCustomerRepo{}
	hook := NewHook(staticTraps{"0100": true}, repo, logger.NopLogger())

	next, result := runAuth(t, hook, "0100")

	assert.Empty(t, next)
	require.Len(t, result, 1)
	r := result[0].ResultInfo
	assert.Equal(t, models.SMPPResultSpam, r.SMPPResult)
	assert.Equal(t, models.ResultCodeSpam, r.ResultCode)
	assert.Equal(t, models.TrapCustomerSpam, r.ReasonCode)
	assert.Equal(t, "0100", r.SpamPattern1)
	assert.Equal(t, 0, repo.calls)
}

func TestHook_KnownCustomerGoesNext(t *testing.T) {
	repo := &fakeCustomerRepo{customers: map[string]models.CustomerInfo{
		"0101": {CustomerID: "c-1", Mdn: "0101", TraceFlag: 1},
	}}
	hook := NewHook(staticTraps{}, repo, logger.NopLogger())

	next, result := runAuth(t, hook, "0101")

	assert.Empty(t, result)
	require.Len(t, next, 1)
	assert.Equal(t, "c-1", next[0].CustomerInfo.CustomerID)
	assert.Equal(t, int32(1), next[0].CustomerInfo.TraceFlag)
	assert.Contains(t, next[0].ResultInfo.FilteringTime, "auth-filter")
}

func TestHook_LookupFailures(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantPattern string
	}{
		{name: "unknown customer", wantPattern: "not found destinationMdn: 0102"},
		{name: "database error", err: apperrors.Wrap(errors.New("bad connection"), apperrors.ErrDatabase), wantPattern: "DATABASE_ERROR: database error (caused by: bad connection)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeCustomerRepo{err: tt.err}
			hook := NewHook(staticTraps{}, repo, logger.NopLogger())

			next, result := runAuth(t, hook, "0102")

			assert.Empty(t, next)
			require.Len(t, result, 1)
			r := result[0].ResultInfo
			assert.Equal(t, models.SMPPResultHam, r.SMPPResult)
			assert.Equal(t, models.ResultCodeHamFail, r.ResultCode)
			assert.Equal(t, models.SystemDBError, r.ReasonCode)
			assert.Equal(t, tt.wantPattern, r.SpamPattern1)
		})
	}
}

func TestHook_MissingDestinationIsSystemError(t *testing.T) {
	repo := &fakeCustomerRepo{}
	hook := NewHook(staticTraps{}, repo, logger.NopLogger())

	next, result := runAuth(t, hook, "")

	assert.Empty(t, next)
	require.Len(t, result, 1)
	r := result[0].ResultInfo
	assert.Equal(t, models.SMPPResultHam, r.SMPPResult)
	assert.Equal(t, models.ResultCodeHamFail, r.ResultCode)
	assert.Equal(t, models.SystemError, r.ReasonCode)
	assert.Equal(t, 0, repo.calls)
}
