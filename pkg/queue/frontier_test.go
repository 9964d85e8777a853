package queue

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

// testLogger returns a logger that discards output
func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func TestFrontier_FIFOOrder(t *testing.T) {
	f := NewFrontier(10, testLogger())
	for _, u := range []string{"a", "b", "c"} {
		if !f.Enqueue(u) {
			t.Fatalf("Enqueue(%q) = false, want true", u)
		}
	}

	ctx := context.Background()
	for _, want := range []string{"a", "b", "c"} {
		got, ok := f.Next(ctx)
		if !ok {
			t.Fatalf("Next() ok = false, want %q", want)
		}
		if got != want {
			t.Errorf("Next() = %q, want %q", got, want)
		}
		f.Done()
	}

	if _, ok := f.Next(ctx); ok {
		t.Error("Next() on drained frontier should return false")
	}
}

func TestFrontier_Dedup(t *testing.T) {
	f := NewFrontier(10, testLogger())
	if !f.Enqueue("a") {
		t.Fatal("first Enqueue should succeed")
	}
	if f.Enqueue("a") {
		t.Error("Enqueue of queued URL should return false")
	}

	url, _ := f.Next(context.Background())
	f.Done()
	if f.Enqueue(url) {
		t.Error("Enqueue of visited URL should return false")
	}
	if !f.IsVisited("a") {
		t.Error("IsVisited(a) = false after claim")
	}
	if f.Len() != 0 {
		t.Errorf("Len() = %d, want 0", f.Len())
	}
}

func TestFrontier_Budget(t *testing.T) {
	f := NewFrontier(2, testLogger())
	for i := 0; i < 5; i++ {
		f.Enqueue(fmt.Sprintf("u%d", i))
	}

	ctx := context.Background()
	claimed := 0
	for {
		_, ok := f.Next(ctx)
		if !ok {
			break
		}
		claimed++
		f.Done()
	}
	if claimed != 2 {
		t.Errorf("claimed %d URLs, want 2", claimed)
	}
	if f.Visited() != 2 {
		t.Errorf("Visited() = %d, want 2", f.Visited())
	}
}

func TestFrontier_WaitsForInFlight(t *testing.T) {
	f := NewFrontier(10, testLogger())
	f.Enqueue("seed")
	ctx := context.Background()

	seed, _ := f.Next(ctx)
	if seed != "seed" {
		t.Fatalf("Next() = %q, want seed", seed)
	}

	got := make(chan string, 1)
	go func() {
		u, ok := f.Next(ctx)
		if !ok {
			u = ""
		}
		got <- u
	}()

	// The second worker must block while seed is in flight
	select {
	case u := <-got:
		t.Fatalf("Next() returned %q before seed finished", u)
	case <-time.After(50 * time.Millisecond):
	}

	f.Enqueue("child")
	f.Done()

	select {
	case u := <-got:
		if u != "child" {
			t.Errorf("Next() = %q, want child", u)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Next() did not receive child")
	}
}

func TestFrontier_RunsDryWhenLastClaimFinishes(t *testing.T) {
	f := NewFrontier(10, testLogger())
	f.Enqueue("only")
	ctx := context.Background()
	f.Next(ctx)

	done := make(chan bool, 1)
	go func() {
		_, ok := f.Next(ctx)
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	f.Done()

	select {
	case ok := <-done:
		if ok {
			t.Error("Next() should return false once nothing is queued or in flight")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter not released after last Done")
	}
}

func TestFrontier_ContextCancelReleasesWaiters(t *testing.T) {
	f := NewFrontier(10, testLogger())
	f.Enqueue("busy")
	ctx, cancel := context.WithCancel(context.Background())
	f.Next(ctx) // keep one claim in flight so the next call blocks

	var wg sync.WaitGroup
	results := make(chan bool, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := f.Next(ctx)
			results <- ok
		}()
	}

	time.Sleep(20 * time.Millisecond)
	cancel()

	waitCh := make(chan struct{})
	go func() { wg.Wait(); close(waitCh) }()
	select {
	case <-waitCh:
	case <-time.After(time.Second):
		t.Fatal("waiters not released after cancel")
	}
	close(results)
	for ok := range results {
		if ok {
			t.Error("Next() after cancel should return false")
		}
	}
}

func TestFrontier_Close(t *testing.T) {
	f := NewFrontier(10, testLogger())
	f.Close()
	if f.Enqueue("a") {
		t.Error("Enqueue on closed frontier should return false")
	}
	if _, ok := f.Next(context.Background()); ok {
		t.Error("Next on closed frontier should return false")
	}
	f.Close() // idempotent
}

func TestFrontier_ConcurrentClaimsRespectBudget(t *testing.T) {
	const budget = 25
	f := NewFrontier(budget, testLogger())
	for i := 0; i < 100; i++ {
		f.Enqueue(fmt.Sprintf("u%d", i))
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	ctx := context.Background()
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				u, ok := f.Next(ctx)
				if !ok {
					return
				}
				mu.Lock()
				seen[u]++
				mu.Unlock()
				f.Done()
			}
		}()
	}
	wg.Wait()

	if len(seen) != budget {
		t.Errorf("claimed %d distinct URLs, want %d", len(seen), budget)
	}
	for u, n := range seen {
		if n != 1 {
			t.Errorf("URL %s claimed %d times", u, n)
		}
	}
}

func TestNewFrontier_MinimumBudget(t *testing.T) {
	f := NewFrontier(0, testLogger())
	if f.Budget() != 1 {
		t.Errorf("Budget() = %d, want 1", f.Budget())
	}
}
