package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/opensource-finance/pensionrules/internal/domain"
)

var errBusClosed = errors.New("bus is closed")

// route is a tenant's topic. Tenants never see each other's messages.
type route struct {
	tenantID string
	topic    string
}

// ChannelBus is an in-process EventBus. Each subscriber drains its own
// buffered channel on a dedicated goroutine.
// Used as the Community tier event bus.
type ChannelBus struct {
	bufferSize int
	dropped    atomic.Int64

	mu     sync.RWMutex
	routes map[route]map[string]*channelSubscription
	closed bool
}

type channelSubscription struct {
	id      string
	route   route
	handler domain.MessageHandler
	inbox   chan *domain.Message
	ctx     context.Context
	cancel  context.CancelFunc
	bus     *ChannelBus
}

// NewChannelBus creates a bus whose subscribers buffer bufferSize messages.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelBus{
		bufferSize: bufferSize,
		routes:     make(map[route]map[string]*channelSubscription),
	}
}

// Publish delivers to every subscriber of the tenant's topic. It never
// blocks: a subscriber whose buffer is full misses the message and the miss
// is counted in Dropped.
func (b *ChannelBus) Publish(ctx context.Context, tenantID string, topic string, payload []byte) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}
	return b.deliver(newEnvelope(tenantID, topic, payload))
}

func (b *ChannelBus) deliver(msg *domain.Message) error {
	// The read lock is held across sends so Close cannot close an inbox
	// mid-delivery.
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errBusClosed
	}

	for _, sub := range b.routes[route{msg.TenantID, msg.Topic}] {
		select {
		case sub.inbox <- msg:
		default:
			b.dropped.Add(1)
			slog.Warn("subscriber buffer full, dropping message",
				"tenant_id", msg.TenantID,
				"topic", msg.Topic,
				"message_id", msg.ID,
				"subscription_id", sub.id,
			)
		}
	}
	return nil
}

// Subscribe starts a handler goroutine for the tenant's topic. It runs until
// Unsubscribe, Close, or cancellation of ctx.
func (b *ChannelBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errBusClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &channelSubscription{
		id:      uuid.New().String(),
		route:   route{tenantID, topic},
		handler: handler,
		inbox:   make(chan *domain.Message, b.bufferSize),
		ctx:     subCtx,
		cancel:  cancel,
		bus:     b,
	}

	subs := b.routes[sub.route]
	if subs == nil {
		subs = make(map[string]*channelSubscription)
		b.routes[sub.route] = subs
	}
	subs[sub.id] = sub

	go sub.run()
	return sub, nil
}

func (s *channelSubscription) run() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-s.inbox:
			if !ok {
				return
			}
			s.handle(msg)
		}
	}
}

// handle runs the handler, containing panics to the one message.
func (s *channelSubscription) handle(msg *domain.Message) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("handler panic", "topic", msg.Topic, "message_id", msg.ID, "panic", r)
		}
	}()
	if err := s.handler(s.ctx, msg); err != nil {
		slog.Error("handler error",
			"topic", msg.Topic,
			"message_id", msg.ID,
			"error", err,
		)
	}
}

// Request publishes with a private reply topic and waits for the first
// reply, ctx cancellation, or the default request timeout. Responders
// answer with Reply.
func (b *ChannelBus) Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	ctx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()

	replies := make(chan []byte, 1)
	replyTopic := topic + ".reply." + uuid.New().String()
	sub, err := b.Subscribe(ctx, tenantID, replyTopic, func(_ context.Context, msg *domain.Message) error {
		select {
		case replies <- msg.Payload:
		default:
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	msg := newEnvelope(tenantID, topic, payload)
	msg.Metadata[MetaReplyTo] = replyTopic
	if err := b.deliver(msg); err != nil {
		return nil, err
	}

	select {
	case reply := <-replies:
		return reply, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("request %s: no reply: %w", topic, ctx.Err())
		}
		return nil, ctx.Err()
	}
}

// Reply answers a message received through Request.
func (b *ChannelBus) Reply(ctx context.Context, msg *domain.Message, payload []byte) error {
	replyTo := msg.Metadata[MetaReplyTo]
	if replyTo == "" {
		return fmt.Errorf("message %s has no reply topic", msg.ID)
	}
	return b.Publish(ctx, msg.TenantID, replyTo, payload)
}

// Dropped returns how many deliveries were skipped because a subscriber
// buffer was full.
func (b *ChannelBus) Dropped() int64 {
	return b.dropped.Load()
}

// Ping fails once the bus is closed.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errBusClosed
	}
	return nil
}

// Close stops every subscription and rejects further use.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	for _, subs := range b.routes {
		for _, sub := range subs {
			sub.cancel()
			close(sub.inbox)
		}
	}
	b.routes = nil
	return nil
}

// Unsubscribe stops delivery and detaches the subscription from the bus.
func (s *channelSubscription) Unsubscribe() error {
	s.cancel()

	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.routes[s.route]
	if !ok {
		return nil
	}
	if _, ok := subs[s.id]; ok {
		delete(subs, s.id)
		close(s.inbox)
	}
	if len(subs) == 0 {
		delete(b.routes, s.route)
	}
	return nil
}

// Topic returns the subscribed topic.
func (s *channelSubscription) Topic() string {
	return s.route.topic
}
