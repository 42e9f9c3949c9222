package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/opensource-finance/pensionrules/internal/domain"
)

// subjectPrefix roots every subject this service publishes.
const subjectPrefix = "pension"

// Envelope headers. The payload travels as the raw message body.
const (
	headerMsgID     = nats.MsgIdHdr
	headerTenant    = "Pension-Tenant"
	headerTopic     = "Pension-Topic"
	headerTimestamp = "Pension-Timestamp"
	headerMetaPfx   = "Pension-Meta-"
)

// queueTopics are work topics: with a queue group configured, each message
// is handled by one subscriber across every node.
var queueTopics = map[string]bool{
	domain.TopicAssessmentRequested: true,
}

// NATSBus implements EventBus using NATS.
// Used as the Pro tier event bus.
type NATSBus struct {
	conn       *nats.Conn
	queueGroup string

	mu   sync.Mutex
	subs map[*nats.Subscription]struct{}
}

type natsSubscription struct {
	topic string
	sub   *nats.Subscription
	bus   *NATSBus
}

// NewNATSBus connects to NATS. The initial connection is retried
// NATSMaxReconnects times; after that the client reconnects on its own.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	url := cfg.NATSUrl
	if url == "" {
		url = nats.DefaultURL
	}
	attempts := cfg.NATSMaxReconnects
	if attempts <= 0 {
		attempts = 10
	}
	wait := time.Duration(cfg.NATSReconnectWait) * time.Second
	if wait <= 0 {
		wait = 5 * time.Second
	}

	opts := []nats.Option{
		nats.Name("pensionrules"),
		nats.MaxReconnects(attempts),
		nats.ReconnectWait(wait),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			attrs := []any{"error", err}
			if sub != nil {
				attrs = append(attrs, "subject", sub.Subject)
			}
			slog.Error("NATS async error", attrs...)
		}),
	}
	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}

	conn, err := connectWithRetry(url, attempts, wait, opts)
	if err != nil {
		return nil, err
	}
	slog.Info("NATS connected",
		"url", conn.ConnectedUrl(),
		"server_id", conn.ConnectedServerId(),
		"queue_group", cfg.NATSQueueGroup,
	)

	return &NATSBus{
		conn:       conn,
		queueGroup: cfg.NATSQueueGroup,
		subs:       make(map[*nats.Subscription]struct{}),
	}, nil
}

func connectWithRetry(url string, attempts int, wait time.Duration, opts []nats.Option) (*nats.Conn, error) {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		conn, err := nats.Connect(url, opts...)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		slog.Warn("NATS connection attempt failed", "attempt", attempt, "max_attempts", attempts, "error", err)
		if attempt < attempts {
			time.Sleep(wait)
		}
	}
	return nil, fmt.Errorf("failed to connect to NATS after %d attempts: %w", attempts, lastErr)
}

// Publish sends payload to the tenant's subject for topic.
func (b *NATSBus) Publish(ctx context.Context, tenantID string, topic string, payload []byte) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}
	return b.conn.PublishMsg(toNATSMsg(newEnvelope(tenantID, topic, payload)))
}

// Subscribe registers a handler for the tenant's subject for topic. Requests
// arriving through NATS carry their inbox under MetaReplyTo.
func (b *NATSBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	cb := func(m *nats.Msg) {
		msg, err := fromNATSMsg(m)
		if err != nil {
			slog.Error("dropping malformed NATS message", "subject", m.Subject, "error", err)
			return
		}
		if err := handler(ctx, msg); err != nil {
			slog.Error("handler error",
				"subject", m.Subject,
				"message_id", msg.ID,
				"error", err,
			)
		}
	}

	subject := Subject(tenantID, topic)
	var sub *nats.Subscription
	var err error
	if b.queueGroup != "" && queueTopics[topic] {
		sub, err = b.conn.QueueSubscribe(subject, b.queueGroup, cb)
	} else {
		sub, err = b.conn.Subscribe(subject, cb)
	}
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return &natsSubscription{topic: topic, sub: sub, bus: b}, nil
}

// Request publishes payload and waits for the raw reply body. Without a
// deadline on ctx the default request timeout applies.
func (b *NATSBus) Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultRequestTimeout)
		defer cancel()
	}

	reply, err := b.conn.RequestMsgWithContext(ctx, toNATSMsg(newEnvelope(tenantID, topic, payload)))
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", topic, err)
	}
	return reply.Data, nil
}

// Reply answers a message received through Request.
func (b *NATSBus) Reply(ctx context.Context, msg *domain.Message, payload []byte) error {
	replyTo := msg.Metadata[MetaReplyTo]
	if replyTo == "" {
		return fmt.Errorf("message %s has no reply subject", msg.ID)
	}
	return b.conn.Publish(replyTo, payload)
}

// Ping round-trips to the server.
func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("NATS not connected: %s", b.conn.Status())
	}
	return b.conn.FlushWithContext(ctx)
}

// Close drains in-flight messages, then closes the connection.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	b.subs = make(map[*nats.Subscription]struct{})
	b.mu.Unlock()

	if err := b.conn.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		b.conn.Close()
		return err
	}
	return nil
}

// Stats returns NATS connection statistics.
func (b *NATSBus) Stats() nats.Statistics {
	return b.conn.Stats()
}

// Subject returns the NATS subject for a tenant's topic.
func Subject(tenantID, topic string) string {
	return subjectPrefix + "." + tenantID + "." + topic
}

// toNATSMsg maps an envelope onto headers so non-Go consumers can read the
// payload directly.
func toNATSMsg(msg *domain.Message) *nats.Msg {
	m := nats.NewMsg(Subject(msg.TenantID, msg.Topic))
	m.Data = msg.Payload
	m.Header.Set(headerMsgID, msg.ID)
	m.Header.Set(headerTenant, msg.TenantID)
	m.Header.Set(headerTopic, msg.Topic)
	m.Header.Set(headerTimestamp, strconv.FormatInt(msg.Timestamp, 10))
	for k, v := range msg.Metadata {
		m.Header.Set(headerMetaPfx+k, v)
	}
	return m
}

func fromNATSMsg(m *nats.Msg) (*domain.Message, error) {
	tenantID := m.Header.Get(headerTenant)
	topic := m.Header.Get(headerTopic)
	if tenantID == "" || topic == "" {
		return nil, fmt.Errorf("missing %s or %s header", headerTenant, headerTopic)
	}
	if Subject(tenantID, topic) != m.Subject {
		return nil, fmt.Errorf("headers name %s but message arrived on %s", Subject(tenantID, topic), m.Subject)
	}

	msg := &domain.Message{
		ID:       m.Header.Get(headerMsgID),
		TenantID: tenantID,
		Topic:    topic,
		Payload:  m.Data,
		Metadata: make(map[string]string),
	}
	if ts := m.Header.Get(headerTimestamp); ts != "" {
		n, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad %s header %q", headerTimestamp, ts)
		}
		msg.Timestamp = n
	}
	for k, vals := range m.Header {
		if name, ok := strings.CutPrefix(k, headerMetaPfx); ok && len(vals) > 0 {
			msg.Metadata[name] = vals[0]
		}
	}
	if m.Reply != "" {
		msg.Metadata[MetaReplyTo] = m.Reply
	}
	return msg, nil
}

// Unsubscribe stops delivery to this subscription.
func (s *natsSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.sub)
	s.bus.mu.Unlock()
	return s.sub.Unsubscribe()
}

// Topic returns the subscribed topic.
func (s *natsSubscription) Topic() string {
	return s.topic
}
