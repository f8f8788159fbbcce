package staking

import (
	"context"
	"sync"
	"time"

	"github.com/MarketForge/settlement_layer/pkg/logger"
)

// BufferSweeper periodically drains unallocated buffers across all pools so
// buffered income reaches stakers without anyone calling the flush endpoint.
type BufferSweeper struct {
	svc      *Service
	interval time.Duration
	log      *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewBufferSweeper builds a sweeper over the staking service. A zero or
// negative interval defaults to one minute.
func NewBufferSweeper(svc *Service, interval time.Duration, log *logger.Logger) *BufferSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = logger.NewDefault("buffer-sweeper")
	}
	return &BufferSweeper{svc: svc, interval: interval, log: log}
}

// Name implements system.Service.
func (b *BufferSweeper) Name() string { return "staking-buffer-sweeper" }

// Start launches the sweep loop.
func (b *BufferSweeper) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cancel != nil {
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.loop(loopCtx)
	b.log.WithField("interval", b.interval.String()).Info("buffer sweeper started")
	return nil
}

// Stop halts the loop and waits for the in-flight sweep to finish.
func (b *BufferSweeper) Stop(ctx context.Context) error {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.cancel = nil
	b.done = nil
	b.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (b *BufferSweeper) loop(ctx context.Context) {
	defer close(b.done)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.sweep(ctx)
		}
	}
}

func (b *BufferSweeper) sweep(ctx context.Context) {
	pools, err := b.svc.ListPools(ctx)
	if err != nil {
		b.log.WithError(err).Warn("list pools for sweep failed")
		return
	}
	for _, p := range pools {
		if p.TotalShares == 0 {
			continue
		}
		hasBuffered := false
		for _, amount := range p.Buffer {
			if amount != nil && amount.Sign() > 0 {
				hasBuffered = true
				break
			}
		}
		if !hasBuffered {
			continue
		}
		if err := b.svc.FlushBuffer(ctx, p.ID); err != nil {
			b.log.WithError(err).WithField("pool_id", p.ID).Warn("buffer flush failed")
		}
	}
}
