package connection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mcoot/triviasync/internal/dependencies/mocks"
	"github.com/mcoot/triviasync/internal/model"
	"github.com/mcoot/triviasync/internal/services/loop"
	"github.com/mcoot/triviasync/internal/services/state"
	"github.com/mcoot/triviasync/internal/testutil"
	"github.com/stretchr/testify/suite"
)

var errAbnormal = errors.New("connection reset by peer")

type fakeChannel struct {
	inbound chan model.PushMessage
	failure chan error
	done    chan struct{}

	mu        sync.Mutex
	sent      []model.PushMessage
	closed    bool
	writing   int
	overlaps  int
	sendDelay time.Duration
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		inbound: make(chan model.PushMessage, 16),
		failure: make(chan error, 1),
		done:    make(chan struct{}),
	}
}

func (c *fakeChannel) Send(_ context.Context, msg model.PushMessage) error {
	c.mu.Lock()
	c.writing++
	if c.writing > 1 {
		c.overlaps++
	}
	delay := c.sendDelay
	c.mu.Unlock()

	time.Sleep(delay)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.writing--
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeChannel) Receive(ctx context.Context) (model.PushMessage, error) {
	select {
	case msg := <-c.inbound:
		return msg, nil
	case err := <-c.failure:
		return model.PushMessage{}, err
	case <-c.done:
		return model.PushMessage{}, errors.New("closed")
	case <-ctx.Done():
		return model.PushMessage{}, ctx.Err()
	}
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type dialResult struct {
	channel *fakeChannel
	err     error
}

type fakeDialer struct {
	mu      sync.Mutex
	results []dialResult
	dials   int
}

func (d *fakeDialer) queue(results ...dialResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, results...)
}

func (d *fakeDialer) Dial(context.Context, model.RoomID, model.GuestID) (Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.results) == 0 {
		return nil, errors.New("connection refused")
	}
	next := d.results[0]
	d.results = d.results[1:]
	if next.err != nil {
		return nil, next.err
	}
	return next.channel, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type recordingListener struct {
	states []model.ConnectionState
	delays []time.Duration
	lost   []*model.Failure
}

func (l *recordingListener) OnConnectionState(s model.ConnectionState) {
	l.states = append(l.states, s)
}

func (l *recordingListener) OnReconnectScheduled(_ int, delay time.Duration) {
	l.delays = append(l.delays, delay)
}

func (l *recordingListener) OnConnectionLost(f *model.Failure) {
	l.lost = append(l.lost, f)
}

type ManagerSuite struct {
	suite.Suite
	clock    *mocks.MockClock
	loop     *loop.Loop
	dialer   *fakeDialer
	store    *state.GameSessionState
	listener *recordingListener
	manager  *Manager
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.loop = loop.New(s.clock, testutil.NopLogger())
	s.dialer = &fakeDialer{}
	s.store = state.New()
	s.listener = &recordingListener{}
	s.manager = s.newManager(DefaultConfig())
}

func (s *ManagerSuite) newManager(cfg Config) *Manager {
	return NewManager(s.loop, s.dialer, s.store, s.listener, cfg, testutil.NopLogger())
}

// advance steps the clock and runs everything that became due
func (s *ManagerSuite) advance(d time.Duration) {
	s.clock.Advance(d)
	s.loop.Settle()
}

// failChannel makes the channel's reader see err and waits for the manager to
// process it
func (s *ManagerSuite) failChannel(ch *fakeChannel, err error) {
	ch.failure <- err
	s.Eventually(func() bool {
		s.loop.Settle()
		return !s.manager.IsConnected()
	}, time.Second, time.Millisecond)
}

// Connect tests

func (s *ManagerSuite) TestConnectOpensChannel() {
	ch := newFakeChannel()
	s.dialer.queue(dialResult{channel: ch})

	s.manager.Connect("room-1", 1)
	s.loop.Settle()

	s.True(s.manager.IsConnected())
	s.Equal(ModePush, s.manager.Mode())
	s.Equal(0, s.manager.State().ReconnectAttempts)
	s.Equal(s.clock.Now(), s.manager.State().LastMessageAt)
	s.True(s.store.Snapshot().Connection.IsConnected)
}

func (s *ManagerSuite) TestConnectWhileConnectedKeepsOneChannel() {
	first := newFakeChannel()
	second := newFakeChannel()
	s.dialer.queue(dialResult{channel: first}, dialResult{channel: second})

	s.manager.Connect("room-1", 1)
	s.loop.Settle()
	s.manager.Connect("room-1", 1)
	s.loop.Settle()

	s.True(first.isClosed())
	s.False(second.isClosed())
	s.True(s.manager.IsConnected())
	s.Equal(2, s.dialer.dialCount())
}

func (s *ManagerSuite) TestPushUnavailableEntersPollingMode() {
	s.dialer.queue(dialResult{err: ErrPushUnavailable})

	s.manager.Connect("room-1", 1)
	s.loop.Settle()

	s.Equal(ModePolling, s.manager.Mode())
	s.False(s.manager.IsConnected())
	s.Empty(s.listener.lost)
	s.Empty(s.listener.delays)

	// Later connects don't even try
	s.manager.Connect("room-2", 1)
	s.loop.Settle()
	s.Equal(1, s.dialer.dialCount())
}

// Receive tests

func (s *ManagerSuite) TestMessagesReachHandlers() {
	ch := newFakeChannel()
	s.dialer.queue(dialResult{channel: ch})
	var got []model.PushMessage
	s.manager.OnMessage(func(msg model.PushMessage) { got = append(got, msg) })

	s.manager.Connect("room-1", 1)
	s.loop.Settle()

	ch.inbound <- model.PushMessage{Type: model.MessageUserJoined, RoomID: "room-1"}
	s.Eventually(func() bool {
		s.loop.Flush()
		return len(got) == 1
	}, time.Second, time.Millisecond)

	s.Equal(model.MessageUserJoined, got[0].Type)
}

// Heartbeat tests

func (s *ManagerSuite) TestSilentChannelGoesStale() {
	ch := newFakeChannel()
	s.dialer.queue(dialResult{channel: ch})

	s.manager.Connect("room-1", 1)
	s.loop.Settle()

	s.advance(44 * time.Second)
	s.True(s.manager.IsConnected())

	s.advance(time.Second)
	s.False(s.manager.IsConnected())
	s.True(ch.isClosed())
	s.Equal([]time.Duration{time.Second}, s.listener.delays)
}

func (s *ManagerSuite) TestInboundMessageResetsHeartbeat() {
	ch := newFakeChannel()
	s.dialer.queue(dialResult{channel: ch})
	received := 0
	s.manager.OnMessage(func(model.PushMessage) { received++ })

	s.manager.Connect("room-1", 1)
	s.loop.Settle()

	s.advance(30 * time.Second)
	ch.inbound <- model.PushMessage{Type: model.MessagePing}
	s.Eventually(func() bool {
		s.loop.Flush()
		return received == 1
	}, time.Second, time.Millisecond)

	s.advance(30 * time.Second)
	s.True(s.manager.IsConnected())

	s.advance(15 * time.Second)
	s.False(s.manager.IsConnected())
}

// Reconnect tests

func (s *ManagerSuite) TestReconnectBackoffThenTerminalFailure() {
	s.manager = s.newManager(Config{
		HeartbeatTimeout: 45 * time.Second,
		BaseDelay:        time.Second,
		MaxDelay:         30 * time.Second,
		MaxAttempts:      3,
	})
	ch := newFakeChannel()
	s.dialer.queue(dialResult{channel: ch})

	s.manager.Connect("room-1", 1)
	s.loop.Settle()
	s.failChannel(ch, errAbnormal)

	s.Equal([]time.Duration{time.Second}, s.listener.delays)

	s.advance(time.Second)
	s.Equal([]time.Duration{time.Second, 2 * time.Second}, s.listener.delays)

	s.advance(2 * time.Second)
	s.Equal([]time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, s.listener.delays)
	s.Empty(s.listener.lost)

	s.advance(4 * time.Second)
	s.Len(s.listener.delays, 3)
	s.Require().Len(s.listener.lost, 1)
	s.Equal(model.FailureConnection, s.listener.lost[0].Kind)
	s.Equal(4, s.dialer.dialCount())

	// Nothing else is scheduled
	s.advance(time.Hour)
	s.Equal(4, s.dialer.dialCount())
	s.Len(s.listener.lost, 1)
}

func (s *ManagerSuite) TestBackoffIsCappedAtMaxDelay() {
	s.manager = s.newManager(Config{
		HeartbeatTimeout: 45 * time.Second,
		BaseDelay:        time.Second,
		MaxDelay:         3 * time.Second,
		MaxAttempts:      10,
	})
	s.dialer.queue(dialResult{err: errAbnormal})

	s.manager.Connect("room-1", 1)
	s.loop.Settle()
	for i := 0; i < 3; i++ {
		s.advance(3 * time.Second)
	}

	s.Equal([]time.Duration{
		time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second,
	}, s.listener.delays)
}

func (s *ManagerSuite) TestSuccessfulReconnectResetsAttempts() {
	first := newFakeChannel()
	second := newFakeChannel()
	s.dialer.queue(dialResult{channel: first}, dialResult{channel: second})

	s.manager.Connect("room-1", 1)
	s.loop.Settle()
	s.failChannel(first, errAbnormal)
	s.Equal(1, s.manager.State().ReconnectAttempts)

	s.advance(time.Second)
	s.True(s.manager.IsConnected())
	s.Equal(0, s.manager.State().ReconnectAttempts)

	s.failChannel(second, errAbnormal)
	s.Equal([]time.Duration{time.Second, time.Second}, s.listener.delays)
}

func (s *ManagerSuite) TestNormalClosureDoesNotReconnect() {
	ch := newFakeChannel()
	s.dialer.queue(dialResult{channel: ch})

	s.manager.Connect("room-1", 1)
	s.loop.Settle()
	s.failChannel(ch, ErrNormalClosure)

	s.advance(time.Minute)
	s.Empty(s.listener.delays)
	s.Equal(1, s.dialer.dialCount())
}

// Disconnect tests

func (s *ManagerSuite) TestDisconnectCancelsPendingReconnect() {
	ch := newFakeChannel()
	s.dialer.queue(dialResult{channel: ch})

	s.manager.Connect("room-1", 1)
	s.loop.Settle()
	s.failChannel(ch, errAbnormal)

	s.manager.Disconnect()
	s.manager.Disconnect()
	s.advance(time.Minute)

	s.Equal(1, s.dialer.dialCount())
	s.False(s.manager.IsConnected())
	s.Equal(0, s.manager.State().ReconnectAttempts)
}

// Send tests

func (s *ManagerSuite) TestSendWhileDisconnectedIsDropped() {
	sent := s.manager.Send(model.PushMessage{Type: model.MessageTyping})
	s.False(sent)
}

func (s *ManagerSuite) TestSendWhileConnected() {
	ch := newFakeChannel()
	s.dialer.queue(dialResult{channel: ch})

	s.manager.Connect("room-1", 1)
	s.loop.Settle()

	s.True(s.manager.Send(model.PushMessage{Type: model.MessageSendMessage}))
	s.loop.Settle()

	s.Equal(1, ch.sentCount())
}

func (s *ManagerSuite) TestSendKeepsOrderWithOneWriteAtATime() {
	ch := newFakeChannel()
	ch.sendDelay = time.Millisecond
	s.dialer.queue(dialResult{channel: ch})

	s.manager.Connect("room-1", 1)
	s.loop.Settle()

	var want []model.MessageType
	for i := range 10 {
		typ := model.MessageTyping
		if i%2 == 1 {
			typ = model.MessageSendMessage
		}
		want = append(want, typ)
		s.Require().True(s.manager.Send(model.PushMessage{Type: typ, Timestamp: s.clock.Now().Add(time.Duration(i))}))
	}
	s.loop.Settle()

	ch.mu.Lock()
	defer ch.mu.Unlock()
	s.Zero(ch.overlaps)
	s.Require().Len(ch.sent, len(want))
	for i, msg := range ch.sent {
		s.Equal(want[i], msg.Type)
		s.Equal(s.clock.Now().Add(time.Duration(i)), msg.Timestamp)
	}
}

func (s *ManagerSuite) TestSendQueueIsBounded() {
	cfg := DefaultConfig()
	cfg.SendQueue = 2
	s.manager = s.newManager(cfg)
	ch := newFakeChannel()
	s.dialer.queue(dialResult{channel: ch})

	s.manager.Connect("room-1", 1)
	s.loop.Settle()

	// The first message is in flight, the next two wait, the fourth is dropped
	s.True(s.manager.Send(model.PushMessage{Type: model.MessageTyping}))
	s.True(s.manager.Send(model.PushMessage{Type: model.MessageTyping}))
	s.True(s.manager.Send(model.PushMessage{Type: model.MessageTyping}))
	s.False(s.manager.Send(model.PushMessage{Type: model.MessageTyping}))
	s.loop.Settle()

	s.Equal(3, ch.sentCount())
}

func (s *ManagerSuite) TestTeardownDropsQueuedMessages() {
	ch := newFakeChannel()
	ch.sendDelay = 10 * time.Millisecond
	s.dialer.queue(dialResult{channel: ch})

	s.manager.Connect("room-1", 1)
	s.loop.Settle()

	s.True(s.manager.Send(model.PushMessage{Type: model.MessageTyping}))
	s.True(s.manager.Send(model.PushMessage{Type: model.MessageTyping}))
	s.manager.Disconnect()
	s.loop.Settle()

	s.Equal(1, ch.sentCount())
	s.False(s.manager.Send(model.PushMessage{Type: model.MessageTyping}))
}
