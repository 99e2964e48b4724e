package stage

import (
	"sync/atomic"

	"filterchain/internal/config"
)

// Limits are the admission knobs. Each field is loaded and stored on its
// own, so a reload may be observed half applied.
type Limits struct {
	ingressTPS atomic.Uint32
	egressTPS  atomic.Uint32
	maxAgeMs   atomic.Uint32
	queueSize  atomic.Uint32
}

func NewLimits(cfg config.DiscardConfig) *Limits {
	l := &Limits{}
	l.Store(cfg)
	return l
}

func (l *Limits) Store(cfg config.DiscardConfig) {
	l.ingressTPS.Store(cfg.EnqueueTPS)
	l.egressTPS.Store(cfg.DequeueTPS)
	l.maxAgeMs.Store(cfg.TimeoutMs)
	l.queueSize.Store(cfg.QueueSize)
}

func (l *Limits) IngressTPS() uint32 { return l.ingressTPS.Load() }
func (l *Limits) EgressTPS() uint32  { return l.egressTPS.Load() }
func (l *Limits) MaxAgeMs() uint32   { return l.maxAgeMs.Load() }
func (l *Limits) QueueSize() uint32  { return l.queueSize.Load() }
