package queue

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Frontier is the thread-safe FIFO work list of a crawl.
// A URL is claimed and marked visited in one step, so the visited set never exceeds the page budget
// and a URL is never handed out twice. The queue never holds a visited URL.
type Frontier struct {
	mu       sync.Mutex
	cond     *sync.Cond // Signalled on enqueue, Done and Close
	queue    []string
	queued   map[string]struct{}
	visited  map[string]struct{}
	budget   int
	inFlight int // Claimed URLs whose processing has not finished yet
	closed   bool
	log      *logrus.Entry
}

// NewFrontier creates a Frontier that hands out at most budget URLs
func NewFrontier(budget int, log *logrus.Entry) *Frontier {
	if budget < 1 {
		budget = 1
	}
	f := &Frontier{
		queued:  make(map[string]struct{}),
		visited: make(map[string]struct{}),
		budget:  budget,
		log:     log,
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Enqueue appends url to the queue unless it was already visited or queued.
// Returns true if the URL was added.
func (f *Frontier) Enqueue(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		f.log.Debugf("Frontier closed, dropping %s", url)
		return false
	}
	if _, seen := f.visited[url]; seen {
		return false
	}
	if _, seen := f.queued[url]; seen {
		return false
	}
	f.queue = append(f.queue, url)
	f.queued[url] = struct{}{}
	f.cond.Signal()
	return true
}

// Next claims the oldest queued URL and marks it visited.
// It blocks while the queue is empty but other claims are still in flight, since they may enqueue more work.
// Returns false once the budget is spent, the crawl has run dry, the Frontier is closed or ctx is done.
// Every successful claim must be followed by exactly one Done.
func (f *Frontier) Next(ctx context.Context) (string, bool) {
	stop := context.AfterFunc(ctx, f.wake)
	defer stop()

	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		if f.closed || ctx.Err() != nil {
			return "", false
		}
		if len(f.visited) >= f.budget {
			f.cond.Broadcast() // Let other waiters observe the spent budget
			return "", false
		}
		if len(f.queue) > 0 {
			url := f.queue[0]
			f.queue[0] = ""
			f.queue = f.queue[1:]
			delete(f.queued, url)
			if _, seen := f.visited[url]; seen {
				continue
			}
			f.visited[url] = struct{}{}
			f.inFlight++
			return url, true
		}
		if f.inFlight == 0 {
			f.cond.Broadcast() // Nothing left anywhere: release every waiter
			return "", false
		}
		// Wait releases the lock and reacquires it upon waking
		f.cond.Wait()
	}
}

// Done reports that processing of a claimed URL finished (its links, if any, already enqueued)
func (f *Frontier) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight > 0 {
		f.inFlight--
	}
	f.cond.Broadcast()
}

// wake rouses waiters so they can notice a cancelled context
func (f *Frontier) wake() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cond.Broadcast()
}

// Close stops the Frontier: pending and future Next calls return false
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		f.cond.Broadcast() // Wake up ALL waiting workers so they can check the closed status
	}
}

// Visited returns the number of URLs claimed so far
func (f *Frontier) Visited() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}

// IsVisited reports whether url has already been claimed
func (f *Frontier) IsVisited(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.visited[url]
	return ok
}

// Len returns the number of URLs waiting in the queue
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// Budget returns the maximum number of URLs the Frontier hands out
func (f *Frontier) Budget() int {
	return f.budget
}
