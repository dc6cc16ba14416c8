package ids

import (
	"sync"
	"testing"
)

func TestGenerateMonotonic(t *testing.T) {
	prev := Generate()
	for i := 0; i < 10000; i++ {
		next := Generate()
		if next <= prev {
			t.Fatalf("id %d not greater than predecessor %d", next, prev)
		}
		prev = next
	}
}

func TestGenerateUniqueUnderConcurrency(t *testing.T) {
	const workers = 8
	const perWorker = 2000

	var mu sync.Mutex
	seen := make(map[int64]struct{}, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int64, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, Generate())
			}
			mu.Lock()
			for _, id := range local {
				seen[id] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Fatalf("unique ids = %d, want %d", len(seen), workers*perWorker)
	}
}

func TestSetNodeIDClamped(t *testing.T) {
	SetNodeID(5000) // out of range, falls back
	a := Generate()
	SetNodeID(7)
	b := Generate()
	if a == b {
		t.Fatal("ids must differ")
	}
	if nodeOf(b) != 7 {
		t.Fatalf("node bits = %d, want 7", nodeOf(b))
	}
	SetNodeID(1)
}

func nodeOf(id int64) int64 { return (id >> 12) & 0x3FF }
