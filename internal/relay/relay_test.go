package relay

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jfmyers9/crate/internal/store"
	"github.com/rs/zerolog"
)

// fakePublisher records published tags.
type fakePublisher struct {
	mu   sync.Mutex
	tags []string
	srcs []string
	err  error
}

func (f *fakePublisher) Publish(ctx context.Context, tagID, source string) (store.ScanEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return store.ScanEvent{}, f.err
	}
	f.tags = append(f.tags, tagID)
	f.srcs = append(f.srcs, source)
	return store.ScanEvent{ID: tagID + "-id", TagID: tagID, Source: source}, nil
}

func (f *fakePublisher) published() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tags...)
}

func newTestEvents(t *testing.T) *store.Events {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return store.NewEvents(s, "app")
}

func receive(t *testing.T, events <-chan store.ScanEvent) store.ScanEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return store.ScanEvent{}
	}
}

func TestPoller_DeliversPendingOnce(t *testing.T) {
	events := newTestEvents(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := events.Publish(ctx, "TAG1", store.SourceCLI)
	if err != nil {
		t.Fatal(err)
	}

	poller := NewPoller(events, 10*time.Millisecond, zerolog.Nop())
	out := make(chan store.ScanEvent)
	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx, out) }()

	if ev := receive(t, out); ev.ID != first.ID {
		t.Fatalf("expected %s, got %s", first.ID, ev.ID)
	}

	// Still pending, but already delivered: several polls must not resend it.
	select {
	case ev := <-out:
		t.Fatalf("unexpected redelivery of %s", ev.ID)
	case <-time.After(50 * time.Millisecond):
	}

	second, err := events.Publish(ctx, "TAG2", store.SourceCLI)
	if err != nil {
		t.Fatal(err)
	}
	if ev := receive(t, out); ev.ID != second.ID {
		t.Fatalf("expected %s, got %s", second.ID, ev.ID)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// stuckEvents always reports the same event as pending, as when its claim
// keeps failing.
type stuckEvents struct {
	ev store.ScanEvent
}

func (s stuckEvents) Pending(ctx context.Context, limit int) ([]store.ScanEvent, error) {
	return []store.ScanEvent{s.ev}, nil
}

func TestPoller_RedeliversUnclaimed(t *testing.T) {
	ev := store.ScanEvent{ID: "ev-1", TagID: "TAG1", Source: store.SourceMQTT}
	poller := NewPoller(stuckEvents{ev: ev}, time.Hour, zerolog.Nop())

	clock := time.Unix(1700000000, 0)
	poller.now = func() time.Time { return clock }

	out := make(chan store.ScanEvent, 4)
	ctx := context.Background()

	poller.poll(ctx, out)
	poller.poll(ctx, out)
	if len(out) != 1 {
		t.Fatalf("expected a single delivery before the redelivery delay, got %d", len(out))
	}

	clock = clock.Add(DefaultRedeliver - time.Second)
	poller.poll(ctx, out)
	if len(out) != 1 {
		t.Fatalf("expected no redelivery yet, got %d deliveries", len(out))
	}

	clock = clock.Add(2 * time.Second)
	poller.poll(ctx, out)
	if len(out) != 2 {
		t.Fatalf("expected the pending event to be redelivered, got %d deliveries", len(out))
	}

	// The redelivery restarts the delay.
	poller.poll(ctx, out)
	if len(out) != 2 {
		t.Errorf("expected one redelivery per delay, got %d deliveries", len(out))
	}
	for range 2 {
		if got := <-out; got.ID != ev.ID {
			t.Errorf("expected %s, got %s", ev.ID, got.ID)
		}
	}
}

func TestPoller_WakeOnPublish(t *testing.T) {
	events := newTestEvents(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A long interval: only the initial poll and wakes deliver anything.
	poller := NewPoller(events, time.Hour, zerolog.Nop())
	out := make(chan store.ScanEvent, 1)
	go func() { _ = poller.Run(ctx, out) }()

	pub := WakeOnPublish(events, poller)
	ev, err := pub.Publish(ctx, "TAG1", store.SourceHTTP)
	if err != nil {
		t.Fatal(err)
	}
	if got := receive(t, out); got.ID != ev.ID {
		t.Fatalf("expected %s, got %s", ev.ID, got.ID)
	}
}

func TestLineReader_Debounce(t *testing.T) {
	pub := &fakePublisher{}
	input := "TAG1\nTAG1\n\n  \nTAG2\nTAG1\nTAG1\n"
	reader := NewLineReader(strings.NewReader(input), pub, 3*time.Second, zerolog.Nop())

	// Each line advances the clock by one second.
	clock := time.Unix(1700000000, 0)
	reader.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	if err := reader.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// TAG1 at t+1, TAG1 at t+2 debounced, TAG2 at t+3, TAG1 at t+4 (new after
	// TAG2), TAG1 at t+5 debounced.
	want := []string{"TAG1", "TAG2", "TAG1"}
	got := pub.published()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, got)
	}
	for _, src := range pub.srcs {
		if src != store.SourceReader {
			t.Errorf("expected source reader, got %s", src)
		}
	}
}

func TestLineReader_DebounceExpires(t *testing.T) {
	pub := &fakePublisher{}
	reader := NewLineReader(strings.NewReader("TAG1\nTAG1\n"), pub, 3*time.Second, zerolog.Nop())

	clock := time.Unix(1700000000, 0)
	reader.now = func() time.Time {
		clock = clock.Add(5 * time.Second)
		return clock
	}

	if err := reader.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := pub.published(); len(got) != 2 {
		t.Errorf("expected both reads published, got %v", got)
	}
}

func TestLineReader_NoDebounce(t *testing.T) {
	pub := &fakePublisher{}
	reader := NewLineReader(strings.NewReader("A\nA\nA\n"), pub, 0, zerolog.Nop())
	if err := reader.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := pub.published(); len(got) != 3 {
		t.Errorf("expected 3 publishes, got %v", got)
	}
}

func TestLineReader_SkipsOversizedLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "noise then tags",
			input: strings.Repeat("x", 70*1024) + "\nTAG1\nTAG2\n",
			want:  []string{"TAG1", "TAG2"},
		},
		{
			name:  "noise between tags",
			input: "TAG1\n" + strings.Repeat("y", MaxLineLength*3) + "\nTAG2\n",
			want:  []string{"TAG1", "TAG2"},
		},
		{
			name:  "line at the limit is kept",
			input: strings.Repeat("Z", MaxLineLength-1) + "\nTAG1\n",
			want:  []string{strings.Repeat("Z", MaxLineLength-1), "TAG1"},
		},
		{
			name:  "unterminated noise",
			input: "TAG1\n" + strings.Repeat("x", 70*1024),
			want:  []string{"TAG1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			reader := NewLineReader(strings.NewReader(tt.input), pub, 0, zerolog.Nop())
			if err := reader.Run(context.Background()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := pub.published(); strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("published tags mismatch: expected %d, got %d", len(tt.want), len(got))
			}
		})
	}
}

// failingReader returns data once and then a read error.
type failingReader struct {
	data []byte
	err  error
}

func (f *failingReader) Read(p []byte) (int, error) {
	if len(f.data) > 0 {
		n := copy(p, f.data)
		f.data = f.data[n:]
		return n, nil
	}
	return 0, f.err
}

func TestLineReader_ReadError(t *testing.T) {
	errDevice := errors.New("device unplugged")
	pub := &fakePublisher{}
	reader := NewLineReader(&failingReader{data: []byte("TAG1\n"), err: errDevice}, pub, 0, zerolog.Nop())

	err := reader.Run(context.Background())
	if !errors.Is(err, errDevice) {
		t.Fatalf("expected device error, got %v", err)
	}
	if got := pub.published(); len(got) != 1 || got[0] != "TAG1" {
		t.Errorf("expected TAG1 before the error, got %v", got)
	}
}

func TestLineReader_StopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	pub := &fakePublisher{}
	reader := NewLineReader(pr, pub, 0, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reader.Run(ctx) }()

	if _, err := pw.Write([]byte("TAG1\n")); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(pub.published()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not stop after cancel")
	}

	if got := pub.published(); len(got) != 1 || got[0] != "TAG1" {
		t.Errorf("expected TAG1 published, got %v", got)
	}
}

func TestMQTTSource_HandleMessage(t *testing.T) {
	pub := &fakePublisher{}
	src := NewMQTTSource(MQTTConfig{Broker: "tcp://localhost:1883", Topic: "esp32/rfid_tags"}, pub, zerolog.Nop())

	src.handleMessage(context.Background(), "esp32/rfid_tags", []byte(" TAG123\r\n"))
	src.handleMessage(context.Background(), "esp32/rfid_tags", []byte("   "))
	src.handleMessage(context.Background(), "esp32/rfid_tags", nil)

	got := pub.published()
	if len(got) != 1 || got[0] != "TAG123" {
		t.Fatalf("expected only TAG123, got %v", got)
	}
	if pub.srcs[0] != store.SourceMQTT {
		t.Errorf("expected source mqtt, got %s", pub.srcs[0])
	}
	if src.cfg.ClientID != "crate" {
		t.Errorf("expected default client id, got %s", src.cfg.ClientID)
	}
}

func TestMQTTSource_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("disk full")}
	src := NewMQTTSource(MQTTConfig{}, pub, zerolog.Nop())

	// Must not panic; the failure is logged.
	src.handleMessage(context.Background(), "t", []byte("TAG1"))
	if len(pub.published()) != 0 {
		t.Error("expected nothing published")
	}
}
