package relay

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtask/relay/internal/logging"
)

func newTestBroadcaster(clock clockwork.Clock) (*Broadcaster, *Queue) {
	q := NewQueue(clock)
	return NewBroadcaster(q, time.Second, clock, logging.Discard()), q
}

func TestBroadcaster_EmptyTick(t *testing.T) {
	b, q := newTestBroadcaster(clockwork.NewFakeClock())
	s, _ := pipeSession(t, q, sessionConfig{})
	q.Register(s)

	assert.Equal(t, TickReport{}, b.Tick())
	assert.Equal(t, 1, q.SessionCount())
}

func TestBroadcaster_TickSendsSamePacketToAll(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC))
	b, q := newTestBroadcaster(clock)

	a, clientA := pipeSession(t, q, sessionConfig{})
	c, clientC := pipeSession(t, q, sessionConfig{})
	q.Register(a)
	q.Register(c)
	packetsA, packetsC := packetReader(clientA), packetReader(clientC)

	q.Enqueue("10.0.0.1:1000: x")
	q.Enqueue("10.0.0.2:2000: y")

	report := b.Tick()
	assert.Equal(t, TickReport{Messages: 2, Delivered: 2}, report)

	expected := []string{
		packetHeader,
		"Time: 2024-05-06T07:08:09Z",
		"Messages: 2",
		"1. 10.0.0.1:1000: x",
		"2. 10.0.0.2:2000: y",
		packetTrailer,
	}
	assert.Equal(t, expected, waitPacket(t, packetsA))
	assert.Equal(t, expected, waitPacket(t, packetsC))
	assert.Zero(t, q.Len())
}

func TestBroadcaster_PrunesOnlyOnNonEmptyTick(t *testing.T) {
	b, q := newTestBroadcaster(clockwork.NewFakeClock())
	alive, client := pipeSession(t, q, sessionConfig{})
	dead, _ := pipeSession(t, q, sessionConfig{})
	q.Register(alive)
	q.Register(dead)
	require.NoError(t, dead.Stop())

	b.Tick()
	assert.Equal(t, 2, q.SessionCount(), "empty tick must keep dead sessions")

	packets := packetReader(client)
	q.Enqueue("a: b")
	report := b.Tick()
	assert.Equal(t, TickReport{Messages: 1, Delivered: 1, Pruned: 1}, report)
	assert.Equal(t, []*Session{alive}, q.Sessions())
	waitPacket(t, packets)
}

func TestBroadcaster_FailedWritePrunedNextTick(t *testing.T) {
	b, q := newTestBroadcaster(clockwork.NewFakeClock())
	s, client := pipeSession(t, q, sessionConfig{})
	q.Register(s)
	require.NoError(t, client.Close())

	q.Enqueue("a: 1")
	assert.Equal(t, TickReport{Messages: 1, Failed: 1}, b.Tick())
	assert.Equal(t, 1, q.SessionCount())

	q.Enqueue("a: 2")
	assert.Equal(t, TickReport{Messages: 1, Pruned: 1}, b.Tick())
	assert.Zero(t, q.SessionCount())
}

func TestBroadcaster_NoLiveSessions(t *testing.T) {
	b, q := newTestBroadcaster(clockwork.NewFakeClock())
	q.Enqueue("a: lost")

	assert.Equal(t, TickReport{Messages: 1}, b.Tick())
	assert.Zero(t, q.Len(), "packet without receivers must be discarded")

	// sessions connected later get nothing of it
	s, client := pipeSession(t, q, sessionConfig{})
	q.Register(s)
	packets := packetReader(client)
	q.Enqueue("a: next")
	b.Tick()
	lines := waitPacket(t, packets)
	assert.Equal(t, "Messages: 1", lines[2])
	assert.Equal(t, "1. a: next", lines[3])
}

func TestBroadcaster_StartTicksOnInterval(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClock()
	b, q := newTestBroadcaster(clock)
	s, client := pipeSession(t, q, sessionConfig{})
	q.Register(s)
	packets := packetReader(client)

	b.Start(ctx)
	b.Start(ctx)
	defer b.Stop()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	q.Enqueue("a: tick")
	clock.Advance(b.Interval())

	lines := waitPacket(t, packets)
	assert.Equal(t, "1. a: tick", lines[3])
	assert.Eventually(t, func() bool { return q.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestBroadcaster_Stop(t *testing.T) {
	t.Run("not started", func(t *testing.T) {
		b, _ := newTestBroadcaster(clockwork.NewFakeClock())
		b.Stop()
		b.Stop()
		b.Start(context.Background())
	})

	t.Run("started", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		b, q := newTestBroadcaster(clock)
		b.Start(context.Background())
		b.Stop()
		b.Stop()

		q.Enqueue("a: b")
		clock.Advance(b.Interval())
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, 1, q.Len(), "stopped broadcaster must not tick")
	})

	t.Run("canceled context", func(t *testing.T) {
		b, _ := newTestBroadcaster(clockwork.NewFakeClock())
		ctx, cancel := context.WithCancel(context.Background())
		b.Start(ctx)
		cancel()
		select {
		case <-b.done:
		case <-time.After(2 * time.Second):
			t.Fatal("broadcaster did not exit")
		}
		b.Stop()
	})
}

func TestNewBroadcaster_Defaults(t *testing.T) {
	b := NewBroadcaster(NewQueue(nil), 0, nil, nil)
	assert.Equal(t, DefaultBroadcastInterval, b.Interval())
}
