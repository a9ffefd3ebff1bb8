package statement

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// TestExecutorConcurrency checks that under heavy contention, with some callers
// giving up while queued, every completed caller receives the output of its own
// statement and the runner never sees two statements at once.
func TestExecutorConcurrency(t *testing.T) {
	concurrency := 64
	iterations := 50

	r := &mockRunner{}
	e := NewExecutor(r, nil)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	errCh := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				code := fmt.Sprintf("Data-%d-%d", id, j)

				ctx := context.Background()
				var cancel context.CancelFunc
				// Every fourth call may give up while waiting for its turn.
				if j%4 == 3 {
					ctx, cancel = context.WithTimeout(ctx, time.Microsecond)
				}
				out, err := e.Run(ctx, code)
				if cancel != nil {
					cancel()
				}
				if err != nil {
					if ctx.Err() != nil {
						continue
					}
					errCh <- fmt.Errorf("run %s: %v", code, err)
					return
				}
				if got, want := out.Text(), "result:"+code; got != want {
					errCh <- fmt.Errorf("output mixup: expected %q, got %q", want, got)
					return
				}
			}
		}(i)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Fatal(err)
	}
	if r.overlap.Load() {
		t.Fatal("statements overlapped")
	}
	if n := e.Pending(); n != 0 {
		t.Fatalf("expected no pending waiters, got %d", n)
	}
}

func BenchmarkExecutorRun(b *testing.B) {
	e := NewExecutor(&mockRunner{}, nil)
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := e.Run(ctx, "1+1"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkExecutorRunParallel(b *testing.B) {
	e := NewExecutor(&mockRunner{}, nil)
	ctx := context.Background()

	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := e.Run(ctx, "1+1"); err != nil {
				b.Fatal(err)
			}
		}
	})
}
