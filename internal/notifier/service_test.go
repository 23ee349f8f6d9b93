package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"postcal/internal/eventbus"
	"postcal/internal/transport"
	"postcal/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	fails int
	calls int
	sent  []string
	block chan struct{}
}

func (f *fakeSender) SendText(ctx context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return transport.MessageRef{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fails > 0 {
		f.fails--
		return transport.MessageRef{}, errors.New("boom")
	}
	f.sent = append(f.sent, text)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeSender) snapshot() (int, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, append([]string(nil), f.sent...)
}

func waitEvent(t *testing.T, ch <-chan eventbus.Event) eventbus.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
	}
	return eventbus.Event{}
}

func TestNotifyDisabledAndStopped(t *testing.T) {
	s := New(Config{Enabled: false}, &fakeSender{}, nil, logx.Nop())
	if err := s.Notify(context.Background(), Notification{Text: "x"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err=%v", err)
	}

	s = New(Config{Enabled: true}, &fakeSender{}, nil, logx.Nop())
	if err := s.Notify(context.Background(), Notification{Text: "x"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("not started: err=%v", err)
	}
	s.Start(context.Background())
	if err := s.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Notify(context.Background(), Notification{Text: "x"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("after stop: err=%v", err)
	}
}

func TestNotifyDelivers(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(8, "notifier.")
	defer unsub()

	f := &fakeSender{}
	s := New(Config{Enabled: true, RatePerSec: 100}, f, bus, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.Notify(context.Background(), Notification{Key: "k1", Target: transport.ChatTarget{ChatID: 7}, Text: "hello"}); err != nil {
		t.Fatal(err)
	}
	ev := waitEvent(t, ch)
	if ev.Type != EventSent {
		t.Fatalf("event=%s", ev.Type)
	}
	if d := ev.Data.(Event); d.Key != "k1" || d.ChatID != 7 || d.Attempts != 1 {
		t.Fatalf("data=%+v", d)
	}
	if _, sent := f.snapshot(); len(sent) != 1 || sent[0] != "hello" {
		t.Fatalf("sent=%v", sent)
	}
}

func TestNotifyRetries(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(8, "notifier.")
	defer unsub()

	f := &fakeSender{fails: 2}
	s := New(Config{Enabled: true, RatePerSec: 100, RetryMax: 2, RetryBase: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond}, f, bus, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	_ = s.Notify(context.Background(), Notification{Key: "r", Text: "x"})
	if ev := waitEvent(t, ch); ev.Type != EventSent || ev.Data.(Event).Attempts != 3 {
		t.Fatalf("ev=%+v", ev)
	}

	f.mu.Lock()
	f.fails = 10
	f.mu.Unlock()
	_ = s.Notify(context.Background(), Notification{Key: "f", Text: "y"})
	ev := waitEvent(t, ch)
	if ev.Type != EventFailed || ev.Data.(Event).Error == "" {
		t.Fatalf("ev=%+v", ev)
	}
}

func TestNotifyQueueFull(t *testing.T) {
	f := &fakeSender{block: make(chan struct{})}
	s := New(Config{Enabled: true, Workers: 1, QueueSize: 1, RatePerSec: 100}, f, nil, logx.Nop())
	s.Start(context.Background())

	var full bool
	for range 5 {
		if err := s.Notify(context.Background(), Notification{Text: "x"}); errors.Is(err, ErrQueueFull) {
			full = true
			break
		}
	}
	if !full {
		t.Fatal("expected ErrQueueFull")
	}
	close(f.block)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestRetryDelayBounded(t *testing.T) {
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt <= 10; attempt++ {
		d := retryDelay(cfg, attempt)
		if d <= 0 || d > time.Second {
			t.Fatalf("attempt %d: %v", attempt, d)
		}
	}
	if d := retryDelay(cfg, 1); d < 70*time.Millisecond || d > 130*time.Millisecond {
		t.Fatalf("first delay %v", d)
	}
}
