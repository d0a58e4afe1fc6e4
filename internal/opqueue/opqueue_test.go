package opqueue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSameKeySerializes(t *testing.T) {
	q := New(0)
	var mu sync.Mutex
	var order []int
	var running int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Enqueue(context.Background(), "file-a", func(ctx context.Context) error {
				if atomic.AddInt32(&running, 1) != 1 {
					t.Error("two ops for the same key ran at once")
				}
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				atomic.AddInt32(&running, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if len(order) != 20 {
		t.Fatalf("expected 20 ops to run, got %d", len(order))
	}
}

func TestDifferentKeysRunConcurrently(t *testing.T) {
	q := New(0)
	start := make(chan struct{})
	var wg sync.WaitGroup
	results := make(chan string, 2)
	arrived := make(chan string, 2)

	for _, key := range []string{"a", "b"} {
		key := key
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Enqueue(context.Background(), key, func(ctx context.Context) error {
				arrived <- key
				<-start
				results <- key
				return nil
			})
		}()
	}

	for i := 0; i < 2; i++ {
		select {
		case <-arrived:
		case <-time.After(time.Second):
			close(start)
			t.Fatal("ops for different keys did not run at the same time")
		}
	}
	close(start)
	wg.Wait()
	close(results)

	count := 0
	for range results {
		count++
	}
	if count != 2 {
		t.Fatalf("expected both keys to complete, got %d", count)
	}
}

func TestEnqueueReturnsOpError(t *testing.T) {
	q := New(0)
	wantErr := context.Canceled
	err := q.Enqueue(context.Background(), "k", func(ctx context.Context) error {
		return wantErr
	})
	if err != wantErr {
		t.Errorf("Enqueue error = %v, want %v", err, wantErr)
	}
}

func TestEnqueueRespectsContextCancel(t *testing.T) {
	q := New(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := q.Enqueue(ctx, "k", func(ctx context.Context) error {
		return nil
	})
	if err == nil {
		t.Fatal("expected context error")
	}
}
