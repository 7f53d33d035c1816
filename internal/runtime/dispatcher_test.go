package runtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/neoclaw-ai/geostream/internal/buffer"
)

const sampleStatus = `{"created_at":"Wed Oct 10 20:19:24 +0000 2018","text":"hello from the bay","user":{"screen_name":"alice"}}`

func TestDispatcherEmitsFieldsInOutletOrder(t *testing.T) {
	buf := buffer.New(buffer.DefaultCapacity)
	client := newFakeClient()
	out := &recordingOutputs{}
	d := NewDispatcher(buf, client, out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start dispatcher: %v", err)
	}
	buf.Put(ctx, sampleStatus)

	waitFor(t, time.Second, func() bool { return out.count() == 4 })
	cancel()
	d.Wait()

	want := []emission{
		{OutletScreenName, "alice"},
		{OutletText, "hello from the bay"},
		{OutletCreatedAt, "Wed Oct 10 20:19:24 +0000 2018"},
		{OutletRaw, sampleStatus},
	}
	got := out.snapshot()
	if len(got) != len(want) {
		t.Fatalf("expected %d emissions, got %#v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("emission %d: expected %#v, got %#v", i, want[i], got[i])
		}
	}
}

func TestDispatcherSkipsUndecodableRecords(t *testing.T) {
	buf := buffer.New(buffer.DefaultCapacity)
	client := newFakeClient()
	out := &recordingOutputs{}
	d := NewDispatcher(buf, client, out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start dispatcher: %v", err)
	}

	buf.Put(ctx, "not json")
	buf.Put(ctx, `{"limit":{"track":12}}`)
	buf.Put(ctx, `{"text":"no user","created_at":"now"}`)
	buf.Put(ctx, sampleStatus)

	waitFor(t, time.Second, func() bool { return d.Stats().Received == 4 })
	cancel()
	d.Wait()

	stats := d.Stats()
	if stats.Skipped != 3 || stats.Emitted != 1 {
		t.Fatalf("expected 3 skipped and 1 emitted, got %+v", stats)
	}
	got := out.snapshot()
	if len(got) != 4 || got[0].payload != "alice" {
		t.Fatalf("expected only the valid record to be emitted, got %#v", got)
	}
	if client.stops.Load() != 1 {
		t.Fatalf("expected client stopped once, got %d", client.stops.Load())
	}
}

func TestDispatcherExitsWhenClientTerminates(t *testing.T) {
	buf := buffer.New(buffer.DefaultCapacity)
	client := newFakeClient()
	out := &recordingOutputs{}
	d := NewDispatcher(buf, client, out)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start dispatcher: %v", err)
	}
	client.terminate()

	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatalf("dispatcher did not exit after client terminated")
	}
	if got := out.count(); got != 0 {
		t.Fatalf("expected no emissions, got %d", got)
	}
	if client.stops.Load() != 1 {
		t.Fatalf("expected client stopped once, got %d", client.stops.Load())
	}
}

func TestDispatcherEmitsNothingAfterCancel(t *testing.T) {
	buf := buffer.New(buffer.DefaultCapacity)
	client := newFakeClient()
	out := &recordingOutputs{}
	d := NewDispatcher(buf, client, out)

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start dispatcher: %v", err)
	}
	cancel()
	d.Wait()

	buf.Put(context.Background(), sampleStatus)
	time.Sleep(30 * time.Millisecond)
	if got := out.count(); got != 0 {
		t.Fatalf("expected no emissions after cancel, got %d", got)
	}
	if buf.Len() != 1 {
		t.Fatalf("expected record to stay in buffer, got len %d", buf.Len())
	}
}

func TestDispatcherFinishesRecordBeforeTakingNext(t *testing.T) {
	buf := buffer.New(buffer.DefaultCapacity)
	client := newFakeClient()
	firstEmit := make(chan struct{})
	release := make(chan struct{})
	var emitted atomic.Int32
	out := OutputsFunc(func(_ context.Context, _ Outlet, _ string) error {
		if emitted.Add(1) == 1 {
			close(firstEmit)
			<-release
		}
		return nil
	})
	d := NewDispatcher(buf, client, out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start dispatcher: %v", err)
	}
	buf.Put(ctx, sampleStatus)
	buf.Put(ctx, sampleStatus)

	<-firstEmit
	cancel()
	select {
	case <-d.Done():
		t.Fatalf("dispatcher exited in the middle of a record")
	case <-time.After(30 * time.Millisecond):
	}
	close(release)
	d.Wait()

	if got := emitted.Load(); got != 4 {
		t.Fatalf("expected exactly one full record (4 emissions), got %d", got)
	}
	if buf.Len() != 1 {
		t.Fatalf("expected second record left in buffer, got len %d", buf.Len())
	}
}

func TestDispatcherContinuesAfterEmitError(t *testing.T) {
	buf := buffer.New(buffer.DefaultCapacity)
	client := newFakeClient()
	var calls atomic.Int32
	out := OutputsFunc(func(_ context.Context, _ Outlet, _ string) error {
		calls.Add(1)
		return errors.New("host unavailable")
	})
	d := NewDispatcher(buf, client, out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start dispatcher: %v", err)
	}
	buf.Put(ctx, sampleStatus)
	buf.Put(ctx, sampleStatus)

	waitFor(t, time.Second, func() bool { return calls.Load() == 8 })
	if got := d.Stats().Emitted; got != 2 {
		t.Fatalf("expected 2 records dispatched, got %d", got)
	}
}

func TestDispatcherStartValidation(t *testing.T) {
	var nilDispatcher *Dispatcher
	if err := nilDispatcher.Start(context.Background()); err == nil {
		t.Fatalf("expected error for nil dispatcher")
	}
	if err := NewDispatcher(nil, newFakeClient(), &recordingOutputs{}).Start(context.Background()); err == nil {
		t.Fatalf("expected error for nil source")
	}

	d := NewDispatcher(buffer.New(1), newFakeClient(), &recordingOutputs{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start dispatcher: %v", err)
	}
	if err := d.Start(ctx); err == nil {
		t.Fatalf("expected error on second start")
	}
}

func TestFanoutJoinsErrors(t *testing.T) {
	first := &recordingOutputs{}
	failing := OutputsFunc(func(context.Context, Outlet, string) error { return errors.New("boom") })
	last := &recordingOutputs{}

	err := Fanout{first, nil, failing, last}.Emit(context.Background(), OutletText, "hi")
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected joined boom error, got %v", err)
	}
	if first.count() != 1 || last.count() != 1 {
		t.Fatalf("expected every host to receive the payload")
	}
}

func TestOutletString(t *testing.T) {
	names := []string{"screen_name", "text", "created_at", "raw"}
	for i, outlet := range Outlets {
		if outlet.String() != names[i] {
			t.Fatalf("outlet %d: expected %q, got %q", i, names[i], outlet.String())
		}
	}
	if got := Outlet(7).String(); got != "outlet(7)" {
		t.Fatalf("unexpected unknown outlet name %q", got)
	}
}

type emission struct {
	outlet  Outlet
	payload string
}

type recordingOutputs struct {
	mu   sync.Mutex
	seen []emission
}

func (o *recordingOutputs) Emit(_ context.Context, outlet Outlet, payload string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, emission{outlet: outlet, payload: payload})
	return nil
}

func (o *recordingOutputs) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.seen)
}

func (o *recordingOutputs) snapshot() []emission {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]emission(nil), o.seen...)
}

type fakeClient struct {
	done      chan struct{}
	closeOnce sync.Once
	stops     atomic.Int32
}

func newFakeClient() *fakeClient {
	return &fakeClient{done: make(chan struct{})}
}

func (c *fakeClient) terminate() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *fakeClient) IsDone() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *fakeClient) Done() <-chan struct{} { return c.done }

func (c *fakeClient) Stop() {
	c.stops.Add(1)
	c.terminate()
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestDispatcherStopWhileWaitingStopsClientOnce(t *testing.T) {
	buf := buffer.New(buffer.DefaultCapacity)
	client := newFakeClient()
	out := &recordingOutputs{}
	d := NewDispatcher(buf, client, out)

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start dispatcher: %v", err)
	}
	const record = `{"user":{"screen_name":"alice"},"text":"hi","created_at":"Wed Oct 01 12:00:00 +0000 2025"}`
	buf.Put(ctx, record)
	waitFor(t, time.Second, func() bool { return out.count() == 4 })

	// The buffer is empty again so the dispatcher is parked in Take.
	cancel()
	done := make(chan struct{})
	go func() {
		d.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not exit after cancel")
	}
	if client.stops.Load() != 1 {
		t.Fatalf("expected client stopped once, got %d", client.stops.Load())
	}
	if got := out.snapshot()[3].payload; got != record {
		t.Fatalf("expected raw outlet to carry the record verbatim, got %q", got)
	}
}
