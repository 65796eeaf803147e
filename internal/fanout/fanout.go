// Package fanout runs independent work items with a bounded number of
// goroutines while keeping results aligned with the input order.
package fanout

import "sync"

// Result carries the value or error produced for one input item.
type Result[R any] struct {
	Value R
	Err   error
}

// Ordered applies fn to every item using at most concurrency goroutines.
// results[i] always belongs to items[i]; each goroutine writes only its own slot.
func Ordered[T any, R any](items []T, concurrency int, fn func(int, T) (R, error)) []Result[R] {
	if len(items) == 0 {
		return nil
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > len(items) {
		concurrency = len(items)
	}

	sem := make(chan struct{}, concurrency)
	results := make([]Result[R], len(items))

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item T) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			v, err := fn(i, item)
			results[i] = Result[R]{Value: v, Err: err}
		}(i, item)
	}
	wg.Wait()
	return results
}
