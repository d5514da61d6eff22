package parser

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnana997/migr8/pkg/util"
)

// TestConcurrentParsing checks that many goroutines can share the pools
// across grammars without races or deadlocks.
func TestConcurrentParsing(t *testing.T) {
	manager := NewParserManager(quietLogger())
	defer manager.Close()

	const numGoroutines = 100
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	errChan := make(chan error, numGoroutines)

	paths := []string{"a.tsx", "b.jsx", "c.js"}
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()

			source := []byte(fmt.Sprintf(`const v%d = <Button size="%d" />;`, id, id))
			tree, err := manager.ParseFile(source, paths[id%len(paths)])
			if err != nil {
				errChan <- err
				return
			}
			if tree.RootNode().HasError() {
				errChan <- fmt.Errorf("goroutine %d: unexpected syntax error", id)
			}
			tree.Close()
		}(i)
	}

	wg.Wait()
	close(errChan)

	var errors []error
	for err := range errChan {
		errors = append(errors, err)
	}
	assert.Empty(t, errors)

	stats := manager.GetStats()
	assert.LessOrEqual(t, stats.ParsersCreated, 2*util.GetOptimalPoolSize())
	assert.Equal(t, numGoroutines, stats.ParsesCalled)
}

func tsxPool(t *testing.T, manager *ParserManager) *parserPool {
	t.Helper()
	pool, err := manager.getOrCreatePool(Grammar{Lang: LanguageTypeScript, IsTSX: true})
	require.NoError(t, err)
	return pool
}

func TestParseContext_GivesUpWhenPoolIsBusy(t *testing.T) {
	manager := NewParserManagerWithPoolSize(quietLogger(), 1)
	defer manager.Close()

	pool := tsxPool(t, manager)
	held, err := pool.acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = manager.ParseContext(ctx, []byte(sampleTSX), Grammar{Lang: LanguageTypeScript, IsTSX: true})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, manager.GetStats().PoolWaits)

	pool.release(held)
	tree, err := manager.ParseContext(context.Background(), []byte(sampleTSX), Grammar{Lang: LanguageTypeScript, IsTSX: true})
	require.NoError(t, err)
	tree.Close()
	assert.Equal(t, 1, manager.GetStats().ParsersCreated)
}

func TestPoolClose_WakesWaiters(t *testing.T) {
	manager := NewParserManagerWithPoolSize(quietLogger(), 1)
	pool := tsxPool(t, manager)
	held, err := pool.acquire(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := pool.acquire(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return pool.waits.Load() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, manager.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errPoolClosed)
	case <-time.After(time.Second):
		t.Fatal("waiter not woken by close")
	}

	pool.release(held)
	_, err = pool.acquire(context.Background())
	assert.ErrorIs(t, err, errPoolClosed)
}
