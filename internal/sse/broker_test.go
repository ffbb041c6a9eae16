package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishAnalyzedDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishAnalyzed("a.md", 2, 1)

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: note.analyzed") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"path":"a.md"`) {
			t.Errorf("missing path in %q", s)
		}
		if !strings.Contains(s, `"links_applied":2`) {
			t.Errorf("missing links count in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishBatchEvents(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishBatchProgress(3, 10, "c.md")
	b.PublishBatchCompleted(9, 1)

	got := make([]string, 0, 2)
	for len(got) < 2 {
		select {
		case msg := <-ch:
			got = append(got, string(msg))
		case <-time.After(time.Second):
			t.Fatalf("timeout, received %d events", len(got))
		}
	}

	if !strings.Contains(got[0], "event: batch.progress") || !strings.Contains(got[0], `"total":10`) {
		t.Errorf("unexpected progress event %q", got[0])
	}
	if !strings.Contains(got[1], "event: batch.completed") || !strings.Contains(got[1], `"failed":1`) {
		t.Errorf("unexpected completion event %q", got[1])
	}
}

func TestPublishNoteEvent_VaultThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// First event should trigger vault.changed.
	b.PublishNoteEvent("created", "a.md")
	// Second event immediately should NOT trigger another vault.changed.
	b.PublishNoteEvent("updated", "b.md")

	// Drain and count events.
	time.Sleep(50 * time.Millisecond)
	vaultCount := 0
	noteCount := 0
loop:
	for {
		select {
		case msg := <-ch:
			s := string(msg)
			if strings.Contains(s, "vault.changed") {
				vaultCount++
			} else {
				noteCount++
			}
		default:
			break loop
		}
	}

	if noteCount != 2 {
		t.Errorf("note events = %d, want 2", noteCount)
	}
	if vaultCount != 1 {
		t.Errorf("vault events = %d, want 1 (throttled)", vaultCount)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishRollback("abc123", "x.md")
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: change.rolled_back") {
		t.Errorf("handler output missing event: %q", body)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.PublishAnalyzed("x.md", 0, 0)
	b.PublishNoteEvent("updated", "x.md")
}
