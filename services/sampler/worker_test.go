package sampler

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeAdaptor struct {
	id          string
	delay       time.Duration
	collectErrs int // consecutive ErrNotReady before success
	failErr     error
	invalidated int
}

func (f *fakeAdaptor) ID() string { return f.id }
func (f *fakeAdaptor) Identity(ctx context.Context) (Info, error) {
	return Info{"model": "fake"}, nil
}
func (f *fakeAdaptor) Trigger(ctx context.Context) (time.Duration, error) {
	if f.failErr != nil {
		return 0, f.failErr
	}
	return f.delay, nil
}
func (f *fakeAdaptor) Collect(ctx context.Context) (Sample, error) {
	if f.failErr != nil {
		return nil, f.failErr
	}
	if f.collectErrs > 0 {
		f.collectErrs--
		return nil, ErrNotReady
	}
	return Sample{reading("temperature", 21.5, "degC")}, nil
}
func (f *fakeAdaptor) InvalidateCache() { f.invalidated++ }

func TestWorkerSuccessWithRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan Result, 1)
	w := NewWorker(WorkerConfig{
		TriggerTimeout: 5 * time.Millisecond,
		CollectTimeout: 10 * time.Millisecond,
		RetryBackoff:   2 * time.Millisecond,
		MaxRetries:     5,
		QueueSize:      4,
	}, results)
	w.Start(ctx)

	ad := &fakeAdaptor{id: "bmp280", delay: time.Millisecond, collectErrs: 2}
	if !w.Submit(Request{ID: ad.id, Adaptor: ad}) {
		t.Fatal("submit failed")
	}

	select {
	case r := <-results:
		if r.Err != nil || len(r.Sample) == 0 {
			t.Fatalf("unexpected result: %+v", r)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for result")
	}
	if ad.invalidated != 0 {
		t.Fatalf("cache invalidated %d times on the success path", ad.invalidated)
	}
}

func TestWorkerInvalidatesCacheOnRetryExhaustion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan Result, 1)
	w := NewWorker(WorkerConfig{
		RetryBackoff: time.Millisecond,
		MaxRetries:   2,
	}, results)
	w.Start(ctx)

	// More not-ready answers than the retry budget allows.
	ad := &fakeAdaptor{id: "ccs811", delay: time.Millisecond, collectErrs: 100}
	if !w.Submit(Request{ID: ad.id, Adaptor: ad}) {
		t.Fatal("submit failed")
	}

	select {
	case r := <-results:
		if !errors.Is(r.Err, ErrNotReady) {
			t.Fatalf("err = %v, want ErrNotReady", r.Err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for error result")
	}
	if ad.invalidated == 0 {
		t.Fatal("retry exhaustion did not invalidate the cache")
	}
}

func TestWorkerTriggerErrorReportsAndInvalidates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan Result, 1)
	w := NewWorker(WorkerConfig{}, results)
	w.Start(ctx)

	ad := &fakeAdaptor{id: "s8", failErr: errors.New("bus stuck")}
	if !w.Submit(Request{ID: ad.id, Adaptor: ad}) {
		t.Fatal("submit failed")
	}

	select {
	case r := <-results:
		if r.Err == nil {
			t.Fatalf("expected error result, got %+v", r)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for error result")
	}
	if ad.invalidated == 0 {
		t.Fatal("trigger failure did not invalidate the cache")
	}
}

func TestWorkerDeduplicatesPendingRequests(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan Result, 4)
	w := NewWorker(WorkerConfig{RetryBackoff: 5 * time.Millisecond}, results)
	w.Start(ctx)

	ad := &fakeAdaptor{id: "hdc1080", delay: 50 * time.Millisecond}
	w.Submit(Request{ID: ad.id, Adaptor: ad})
	w.Submit(Request{ID: ad.id, Adaptor: ad})
	w.Submit(Request{ID: ad.id, Adaptor: ad})

	got := 0
	deadline := time.After(300 * time.Millisecond)
	for {
		select {
		case <-results:
			got++
		case <-deadline:
			if got != 1 {
				t.Fatalf("got %d results for one pending cycle, want 1", got)
			}
			return
		}
	}
}
