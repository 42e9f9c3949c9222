package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/opensource-finance/pensionrules/internal/domain"
)

func waitFor(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("PublishJSONAndDecode", func(t *testing.T) {
		done := make(chan struct{})
		var got domain.AssessmentEvent
		var envelope *domain.Message

		_, err := bus.Subscribe(ctx, tenantID, domain.TopicAssessmentCompleted, func(ctx context.Context, msg *domain.Message) error {
			envelope = msg
			err := Decode(msg, &got)
			close(done)
			return err
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		event := domain.AssessmentEvent{
			AssessmentID: "asm-1",
			MemberID:     "member-1",
			State:        domain.StateCA,
			BenefitType:  domain.BenefitService,
			Status:       domain.StatusEligible,
			TraceID:      "trace-1",
		}
		if err := PublishJSON(ctx, bus, tenantID, domain.TopicAssessmentCompleted, event); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
		waitFor(t, done)

		if got.AssessmentID != "asm-1" || got.State != domain.StateCA {
			t.Errorf("unexpected event: %+v", got)
		}
		if envelope.TenantID != tenantID {
			t.Errorf("expected tenantID %s, got %s", tenantID, envelope.TenantID)
		}
		if envelope.Metadata[MetaContentType] != "application/json" {
			t.Errorf("expected json content type, got %q", envelope.Metadata[MetaContentType])
		}
		if envelope.ID == "" || envelope.Timestamp == 0 {
			t.Error("expected envelope id and timestamp")
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		var received1, received2 atomic.Int32
		done := make(chan struct{})

		_, _ = bus.Subscribe(ctx, "tenant-a", "isolation.topic", func(ctx context.Context, msg *domain.Message) error {
			received1.Add(1)
			close(done)
			return nil
		})
		_, _ = bus.Subscribe(ctx, "tenant-b", "isolation.topic", func(ctx context.Context, msg *domain.Message) error {
			received2.Add(1)
			return nil
		})

		_ = bus.Publish(ctx, "tenant-a", "isolation.topic", []byte("msg1"))
		waitFor(t, done)
		time.Sleep(20 * time.Millisecond)

		if received1.Load() != 1 {
			t.Errorf("tenant-a should receive 1 message, got %d", received1.Load())
		}
		if received2.Load() != 0 {
			t.Errorf("tenant-b should receive 0 messages, got %d", received2.Load())
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if err := bus.Publish(ctx, "", "topic", []byte("data")); err == nil {
			t.Error("expected error for empty tenantID on publish")
		}
		_, err := bus.Subscribe(ctx, "", "topic", func(ctx context.Context, msg *domain.Message) error {
			return nil
		})
		if err == nil {
			t.Error("expected error for empty tenantID on subscribe")
		}
		if _, err := bus.Request(ctx, "", "topic", nil); err == nil {
			t.Error("expected error for empty tenantID on request")
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int32
		first := make(chan struct{})

		sub, _ := bus.Subscribe(ctx, tenantID, "unsub.topic", func(ctx context.Context, msg *domain.Message) error {
			if count.Add(1) == 1 {
				close(first)
			}
			return nil
		})

		_ = bus.Publish(ctx, tenantID, "unsub.topic", []byte("msg1"))
		waitFor(t, first)

		if err := sub.Unsubscribe(); err != nil {
			t.Fatalf("unsubscribe failed: %v", err)
		}
		// A second call is a no-op.
		_ = sub.Unsubscribe()

		_ = bus.Publish(ctx, tenantID, "unsub.topic", []byte("msg2"))
		time.Sleep(50 * time.Millisecond)

		if count.Load() != 1 {
			t.Errorf("expected 1 message after unsubscribe, got %d", count.Load())
		}
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(2)
		for i := 0; i < 2; i++ {
			_, _ = bus.Subscribe(ctx, tenantID, "multi.topic", func(ctx context.Context, msg *domain.Message) error {
				wg.Done()
				return nil
			})
		}

		_ = bus.Publish(ctx, tenantID, "multi.topic", []byte("broadcast"))

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		waitFor(t, done)
	})

	t.Run("RequestReply", func(t *testing.T) {
		_, err := bus.Subscribe(ctx, tenantID, "echo", func(ctx context.Context, msg *domain.Message) error {
			return bus.Reply(ctx, msg, append([]byte("re:"), msg.Payload...))
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		reqCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()

		reply, err := bus.Request(reqCtx, tenantID, "echo", []byte("ping"))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if string(reply) != "re:ping" {
			t.Errorf("expected 're:ping', got %q", string(reply))
		}
	})

	t.Run("ReplyWithoutReplyTopic", func(t *testing.T) {
		msg := &domain.Message{ID: "m-1", TenantID: tenantID, Metadata: map[string]string{}}
		if err := bus.Reply(ctx, msg, []byte("x")); err == nil {
			t.Error("expected error when message has no reply topic")
		}
	})

	t.Run("RequestContextCancelled", func(t *testing.T) {
		reqCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		if _, err := bus.Request(reqCtx, tenantID, "nobody.listens", []byte("x")); err == nil {
			t.Error("expected error when nobody replies")
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := bus.Ping(ctx); err != nil {
			t.Errorf("ping failed: %v", err)
		}
	})

	t.Run("SubscriptionTopic", func(t *testing.T) {
		sub, _ := bus.Subscribe(ctx, tenantID, domain.TopicIneligible, func(ctx context.Context, msg *domain.Message) error {
			return nil
		})
		if sub.Topic() != domain.TopicIneligible {
			t.Errorf("expected topic %s, got %s", domain.TopicIneligible, sub.Topic())
		}
	})
}

func TestChannelBusDropsWhenFull(t *testing.T) {
	bus := NewChannelBus(1)
	defer bus.Close()

	ctx := context.Background()
	release := make(chan struct{})

	_, _ = bus.Subscribe(ctx, "tenant-slow", "slow.topic", func(ctx context.Context, msg *domain.Message) error {
		<-release
		return nil
	})

	// One message can be in the handler and one in the buffer.
	for i := 0; i < 3; i++ {
		if err := bus.Publish(ctx, "tenant-slow", "slow.topic", []byte("msg")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
	}
	close(release)

	if bus.Dropped() < 1 {
		t.Errorf("expected at least one dropped delivery, got %d", bus.Dropped())
	}
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(100)
	ctx := context.Background()

	sub, _ := bus.Subscribe(ctx, "tenant-001", "close.topic", func(ctx context.Context, msg *domain.Message) error {
		return nil
	})

	if err := bus.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}

	// Unsubscribing after close must not panic.
	_ = sub.Unsubscribe()

	if err := bus.Publish(ctx, "tenant-001", "close.topic", []byte("data")); err == nil {
		t.Error("expected publish error after close")
	}
	if err := bus.Ping(ctx); err == nil {
		t.Error("expected ping error after close")
	}
	if _, err := bus.Subscribe(ctx, "tenant-001", "close.topic", nil); err == nil {
		t.Error("expected subscribe error after close")
	}
}

func TestDecode(t *testing.T) {
	var req domain.AssessmentRequest

	if err := Decode(nil, &req); err == nil {
		t.Error("expected error for nil message")
	}
	if err := Decode(&domain.Message{ID: "m", Topic: "t", Payload: []byte("{bad")}, &req); err == nil {
		t.Error("expected error for malformed payload")
	}

	msg := &domain.Message{Payload: []byte(`{"memberId":"m-9","benefitType":"early","asOf":"2024-06-30"}`)}
	if err := Decode(msg, &req); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if req.MemberID != "m-9" || req.BenefitType != "early" || req.AsOf != "2024-06-30" {
		t.Errorf("unexpected request: %+v", req)
	}
}

func TestSubject(t *testing.T) {
	got := Subject("tenant-001", domain.TopicAssessmentRequested)
	if got != "pension.tenant-001.assessment.requested" {
		t.Errorf("unexpected subject %s", got)
	}
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 50})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer b.Close()

		if _, ok := b.(*ChannelBus); !ok {
			t.Error("expected ChannelBus for channel type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

func TestChannelBusHighLoad(t *testing.T) {
	bus := NewChannelBus(1000)
	defer bus.Close()

	ctx := context.Background()
	const messageCount = 100

	var received atomic.Int32
	var wg sync.WaitGroup
	wg.Add(messageCount)

	_, _ = bus.Subscribe(ctx, "tenant-load", "load.topic", func(ctx context.Context, msg *domain.Message) error {
		received.Add(1)
		wg.Done()
		return nil
	})

	for i := 0; i < messageCount; i++ {
		_ = bus.Publish(ctx, "tenant-load", "load.topic", []byte("msg"))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if received.Load() != messageCount {
			t.Errorf("expected %d messages, got %d", messageCount, received.Load())
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout: received %d/%d messages", received.Load(), messageCount)
	}
}

func TestChannelBusHandlerPanic(t *testing.T) {
	bus := NewChannelBus(10)
	defer bus.Close()

	ctx := context.Background()
	second := make(chan struct{})
	var calls atomic.Int32

	_, _ = bus.Subscribe(ctx, "tenant-001", "panicky", func(ctx context.Context, msg *domain.Message) error {
		if calls.Add(1) == 1 {
			panic("first message blows up")
		}
		close(second)
		return nil
	})

	_ = bus.Publish(ctx, "tenant-001", "panicky", []byte("1"))
	_ = bus.Publish(ctx, "tenant-001", "panicky", []byte("2"))
	waitFor(t, second)
}

func TestNATSEnvelope(t *testing.T) {
	env := newEnvelope("tenant-001", domain.TopicAssessmentCompleted, []byte(`{"status":"ELIGIBLE"}`))
	env.Metadata["trace_id"] = "trace-9"

	m := toNATSMsg(env)
	if m.Subject != "pension.tenant-001.assessment.completed" {
		t.Errorf("unexpected subject %s", m.Subject)
	}
	if string(m.Data) != `{"status":"ELIGIBLE"}` {
		t.Errorf("expected raw payload as body, got %s", m.Data)
	}

	m.Reply = "_INBOX.abc"
	got, err := fromNATSMsg(m)
	if err != nil {
		t.Fatalf("fromNATSMsg failed: %v", err)
	}
	if got.ID != env.ID || got.TenantID != env.TenantID || got.Topic != env.Topic || got.Timestamp != env.Timestamp {
		t.Errorf("envelope changed in transit: %+v", got)
	}
	if got.Metadata["trace_id"] != "trace-9" || got.Metadata[MetaContentType] != "application/json" {
		t.Errorf("metadata lost: %v", got.Metadata)
	}
	if got.Metadata[MetaReplyTo] != "_INBOX.abc" {
		t.Errorf("expected reply inbox in metadata, got %q", got.Metadata[MetaReplyTo])
	}

	t.Run("SubjectMismatch", func(t *testing.T) {
		m := toNATSMsg(newEnvelope("tenant-001", "a.topic", nil))
		m.Subject = Subject("tenant-002", "a.topic")
		if _, err := fromNATSMsg(m); err == nil {
			t.Error("expected error when headers disagree with subject")
		}
	})

	t.Run("MissingHeaders", func(t *testing.T) {
		m := nats.NewMsg(Subject("tenant-001", "a.topic"))
		if _, err := fromNATSMsg(m); err == nil {
			t.Error("expected error for message without envelope headers")
		}
	})
}
