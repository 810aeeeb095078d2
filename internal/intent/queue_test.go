package intent

import (
	"fmt"
	"sync"
	"testing"

	"main/internal/model"
)

func TestDrainTakesAll(t *testing.T) {
	q := NewPreopenQueue()
	for i := range 3 {
		q.Enqueue(model.Intent{ClientOrderID: fmt.Sprintf("c-%d", i)})
	}
	if q.Count() != 3 {
		t.Fatalf("count = %d, want 3", q.Count())
	}

	batch := q.Drain()
	if len(batch) != 3 {
		t.Fatalf("drain = %d intents, want 3", len(batch))
	}
	for i, it := range batch {
		if it.ClientOrderID != fmt.Sprintf("c-%d", i) {
			t.Fatalf("drain order broken at %d: %s", i, it.ClientOrderID)
		}
	}

	if again := q.Drain(); len(again) != 0 {
		t.Fatalf("second drain should be empty, got %d", len(again))
	}
	if q.Count() != 0 {
		t.Fatalf("count after drain = %d, want 0", q.Count())
	}
}

func TestConcurrentEnqueueDrainConservation(t *testing.T) {
	const (
		producers    = 8
		perProducer  = 200
		drainRounds  = 50
		totalIntents = producers * perProducer
	)

	q := NewPreopenQueue()
	var wg sync.WaitGroup

	for p := range producers {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := range perProducer {
				q.Enqueue(model.Intent{ClientOrderID: fmt.Sprintf("p%d-i%d", p, i)})
			}
		}(p)
	}

	seen := make(chan string, totalIntents)
	var drainers sync.WaitGroup
	for range 4 {
		drainers.Add(1)
		go func() {
			defer drainers.Done()
			for range drainRounds {
				for _, it := range q.Drain() {
					seen <- it.ClientOrderID
				}
			}
		}()
	}

	wg.Wait()
	drainers.Wait()
	close(seen)

	drained := make(map[string]bool, totalIntents)
	for id := range seen {
		if drained[id] {
			t.Fatalf("intent %s drained twice", id)
		}
		drained[id] = true
	}

	remaining := q.Count()
	if len(drained)+remaining != totalIntents {
		t.Fatalf("conservation broken: drained=%d remaining=%d want total=%d",
			len(drained), remaining, totalIntents)
	}

	for _, it := range q.Drain() {
		if drained[it.ClientOrderID] {
			t.Fatalf("intent %s in final drain was already drained", it.ClientOrderID)
		}
		drained[it.ClientOrderID] = true
	}
	if len(drained) != totalIntents {
		t.Fatalf("lost intents: got %d, want %d", len(drained), totalIntents)
	}
}
