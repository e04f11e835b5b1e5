package pool

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/throttlehq/throttle/internal/model"
)

type fakeRunner struct {
	mu      sync.Mutex
	runs    []string
	release chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{release: make(chan struct{})}
}

func (f *fakeRunner) Run(ctx context.Context, record *model.Record, rate func() int64) error {
	f.mu.Lock()
	f.runs = append(f.runs, record.ID)
	f.mu.Unlock()
	record.SetState(model.StateProbing)
	record.SetState(model.StateRunning)
	select {
	case <-f.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	record.SetState(model.StateFinalizing)
	record.SetState(model.StateDone)
	return nil
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

func TestAddClassifiesLargeAndSmall(t *testing.T) {
	runner := newFakeRunner()
	p := New(runner)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	largeID := p.Add(ctx, model.DownloadSpec{SourceURI: "http://x/big", DestPath: "/tmp/big", SizeHint: 2 << 30}, 1)
	smallID := p.Add(ctx, model.DownloadSpec{SourceURI: "http://x/small", DestPath: "/tmp/small", SizeHint: 1024}, 1)

	deadline := time.After(2 * time.Second)
	for {
		if runner.count() >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for both records to start, got %d", runner.count())
		case <-time.After(10 * time.Millisecond):
		}
	}

	close(runner.release)

	largeRec, _, ok := p.Get(largeID)
	if !ok {
		t.Fatal("expected large record tracked")
	}
	smallRec, _, ok := p.Get(smallID)
	if !ok {
		t.Fatal("expected small record tracked")
	}
	if !isLarge(largeRec.Spec) {
		t.Fatal("expected the 2 GiB record to be classified large")
	}
	if isLarge(smallRec.Spec) {
		t.Fatal("expected the 1 KiB record to be classified small")
	}
}

func TestPauseCancelsWorkerThenResumeRestartsOnce(t *testing.T) {
	runner := newFakeRunner()
	p := New(runner)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	id := p.Add(ctx, model.DownloadSpec{SourceURI: "http://x/big", DestPath: "/tmp/pause-big", SizeHint: 2 << 30}, 1)

	deadline := time.After(2 * time.Second)
	for runner.count() < 1 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for record to start")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if err := p.Pause(id); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	record, _, _ := p.Get(id)
	deadline = time.After(2 * time.Second)
	for record.State() != model.StatePaused {
		select {
		case <-deadline:
			t.Fatalf("record never reached paused, got %s", record.State())
		case <-time.After(10 * time.Millisecond):
		}
	}

	if err := p.Resume(ctx, id); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	deadline = time.After(2 * time.Second)
	for runner.count() < 2 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for resumed run, got %d runs", runner.count())
		case <-time.After(10 * time.Millisecond):
		}
	}

	close(runner.release)

	deadline = time.After(2 * time.Second)
	for record.State() != model.StateDone {
		select {
		case <-deadline:
			t.Fatalf("record never finished, got %s", record.State())
		case <-time.After(10 * time.Millisecond):
		}
	}

	if got := runner.count(); got != 2 {
		t.Fatalf("expected exactly 2 runs (pre-pause + resumed), got %d", got)
	}
}

func TestSpinDownThreadLowersHintWithoutRace(t *testing.T) {
	runner := newFakeRunner()
	close(runner.release)
	p := New(runner)
	ctx := context.Background()
	p.Start(ctx)

	id := p.Add(ctx, model.DownloadSpec{SourceURI: "http://x/c", DestPath: "/tmp/c", SizeHint: 2 << 30, ThreadCountHint: 4}, 1)

	if err := p.SpinDownThread(ctx, id, 3); err != nil {
		t.Fatalf("SpinDownThread: %v", err)
	}

	record, _, ok := p.Get(id)
	if !ok {
		t.Fatal("expected record tracked")
	}
	if got := record.Snapshot().Spec.ThreadCountHint; got != 1 {
		t.Fatalf("expected thread_count_hint floored at 1, got %d", got)
	}
}

func TestStatusReturnsAllRecords(t *testing.T) {
	runner := newFakeRunner()
	close(runner.release)
	p := New(runner)
	ctx := context.Background()
	p.Start(ctx)

	p.Add(ctx, model.DownloadSpec{SourceURI: "http://x/a", DestPath: "/tmp/a", SizeHint: 10}, 1)
	p.Add(ctx, model.DownloadSpec{SourceURI: "http://x/b", DestPath: "/tmp/b", SizeHint: 20}, 1)

	var dests []string
	deadline := time.After(2 * time.Second)
	for {
		records := p.Status().Records
		if len(records) == 2 {
			dests = make([]string, len(records))
			for i, r := range records {
				dests[i] = r.Spec.DestPath
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for records to register")
		case <-time.After(10 * time.Millisecond):
		}
	}

	sort.Strings(dests)
	want := []string{"/tmp/a", "/tmp/b"}
	if diff := cmp.Diff(want, dests); diff != "" {
		t.Fatalf("status dest paths mismatch (-want +got):\n%s", diff)
	}
}
