package relay

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wtask/relay/internal/metrics"
)

// DefaultBroadcastInterval - period of broadcast tick if not configured.
const DefaultBroadcastInterval = 5 * time.Second

// TickReport - outcome of single broadcast tick.
type TickReport struct {
	Messages  int // lines drained from the queue
	Delivered int // sessions which got the packet
	Failed    int // sessions failed to write the packet
	Pruned    int // dead sessions removed from registry
}

// Broadcaster - drains the queue on a fixed period and sends one packet to every live session.
type Broadcaster struct {
	queue    *Queue
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewBroadcaster - builds broadcaster for the queue. It does nothing until Start.
func NewBroadcaster(queue *Queue, interval time.Duration, clock clockwork.Clock, logger *slog.Logger) *Broadcaster {
	if interval <= 0 {
		interval = DefaultBroadcastInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		queue:    queue,
		interval: interval,
		clock:    clock,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Interval - broadcast period.
func (b *Broadcaster) Interval() time.Duration {
	return b.interval
}

// Start - launches tick loop in background. Only the first call has effect,
// and Start after Stop is no-op.
func (b *Broadcaster) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		ctx, b.cancel = context.WithCancel(ctx)
		go b.run(ctx)
	})
}

// Stop - cancels tick loop and waits until the tick in progress is finished.
func (b *Broadcaster) Stop() {
	b.halt()
	<-b.done
}

// halt - cancels tick loop without waiting for it. The tick in progress keeps
// writing until its sessions are stopped.
func (b *Broadcaster) halt() {
	b.stopOnce.Do(func() {
		b.startOnce.Do(func() { close(b.done) })
		if b.cancel != nil {
			b.cancel()
		}
	})
}

func (b *Broadcaster) run(ctx context.Context) {
	defer close(b.done)

	ticker := b.clock.NewTicker(b.interval)
	defer ticker.Stop()

	b.logger.Info("Broadcaster started", "interval", b.interval)
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Broadcaster stopped")
			return
		case <-ticker.Chan():
			b.safeTick()
		}
	}
}

func (b *Broadcaster) safeTick() {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Broadcast tick panic recovered", "panic", r)
		}
	}()
	b.Tick()
}

// Tick - makes single broadcast pass. Empty queue means no-op: nothing is sent and nothing pruned.
// Otherwise dead sessions are pruned and stopped, and the packet is written to every live session.
func (b *Broadcaster) Tick() TickReport {
	start := b.clock.Now()
	packet, live, dead, ok := b.queue.collect()
	if !ok {
		return TickReport{}
	}
	defer func() {
		metrics.TickDuration.Observe(b.clock.Since(start).Seconds())
	}()

	report := TickReport{Messages: packet.Len(), Pruned: len(dead)}
	for _, s := range dead {
		s.Stop()
		b.logger.Info("Session pruned", "session", s.ID(), "remaining", len(live))
	}
	metrics.SessionsPruned.Add(float64(len(dead)))

	if len(live) == 0 {
		metrics.PacketsDiscarded.Inc()
		b.logger.Debug("Packet discarded, no live sessions", "messages", report.Messages)
		return report
	}

	text := packet.String()
	var delivered, failed atomic.Int64
	wg := sync.WaitGroup{}
	for _, s := range live {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			if err := s.SendLine(text); err != nil {
				failed.Add(1)
				metrics.Deliveries.WithLabelValues("error").Inc()
				return
			}
			delivered.Add(1)
			metrics.Deliveries.WithLabelValues("ok").Inc()
		}(s)
	}
	wg.Wait()

	report.Delivered = int(delivered.Load())
	report.Failed = int(failed.Load())
	metrics.PacketsBroadcast.Inc()
	b.logger.Info("Broadcast done",
		"messages", report.Messages,
		"delivered", report.Delivered,
		"failed", report.Failed,
		"pruned", report.Pruned,
	)
	return report
}
