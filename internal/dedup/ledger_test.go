package dedup

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestObserveFirstAndDuplicate(t *testing.T) {
	ledger := NewLedger(time.Hour, 100)

	assert.True(t, ledger.Observe("trade-1"), "first observation should pass")
	assert.False(t, ledger.Observe("trade-1"), "second observation is a duplicate")
	assert.True(t, ledger.Observe("trade-2"), "different key should pass")
}

func TestObserveEmptyKey(t *testing.T) {
	ledger := NewLedger(time.Hour, 100)

	// Keyless events never deduplicate.
	assert.True(t, ledger.Observe(""))
	assert.True(t, ledger.Observe(""))
	assert.Equal(t, 0, ledger.Len())
}

func TestWindowExpiry(t *testing.T) {
	ledger := NewLedger(time.Hour, 100)

	current := time.Unix(1700000000, 0)
	ledger.now = func() time.Time { return current }

	assert.True(t, ledger.Observe("trade-1"))
	assert.False(t, ledger.Observe("trade-1"))

	// Within the window the key stays remembered.
	current = current.Add(30 * time.Minute)
	assert.False(t, ledger.Observe("trade-1"))

	// Past the window it is forgotten.
	current = current.Add(31 * time.Minute)
	assert.True(t, ledger.Observe("trade-1"))
}

func TestCapEviction(t *testing.T) {
	ledger := NewLedger(time.Hour, 3)

	for i := 0; i < 4; i++ {
		assert.True(t, ledger.Observe(fmt.Sprintf("trade-%d", i)))
	}

	assert.Equal(t, 3, ledger.Len())
	// Oldest key was evicted, so it reads as fresh again.
	assert.True(t, ledger.Observe("trade-0"))
	// Newest keys are still held.
	assert.False(t, ledger.Observe("trade-3"))
}

func TestConcurrentObserveSameKey(t *testing.T) {
	ledger := NewLedger(time.Hour, 1000)

	const goroutines = 50
	var wg sync.WaitGroup
	results := make(chan bool, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- ledger.Observe("same-key")
		}()
	}
	wg.Wait()
	close(results)

	firsts := 0
	for r := range results {
		if r {
			firsts++
		}
	}
	assert.Equal(t, 1, firsts, "exactly one concurrent observer may win")
}

func TestConcurrentObserveDistinctKeys(t *testing.T) {
	ledger := NewLedger(time.Hour, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.True(t, ledger.Observe(fmt.Sprintf("key-%d", n)))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 100, ledger.Len())
}
