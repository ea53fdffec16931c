package idgen

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextInRange(t *testing.T) {
	g := New()
	for i := 0; i < 10000; i++ {
		id := g.Next()
		assert.GreaterOrEqual(t, id, MinID)
		assert.LessOrEqual(t, id, MaxID)
	}
}

func TestNextUnique(t *testing.T) {
	// Collisions in a 2^63 space over 100k draws are effectively impossible;
	// a duplicate here means the generator is broken.
	g := New()
	seen := make(map[int64]bool, 100000)
	for i := 0; i < 100000; i++ {
		id := g.Next()
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
}

func TestNextConcurrent(t *testing.T) {
	g := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				id := g.Next()
				if id < MinID {
					t.Errorf("id %d below minimum", id)
					return
				}
			}
		}()
	}
	wg.Wait()
}
