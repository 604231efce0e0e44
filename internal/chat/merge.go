package chat

import (
	"context"
	"fmt"
	"sync"
)

// Merge combines feeds into one. Records from each feed keep their order;
// across feeds there is no ordering.
func Merge(feeds ...Feed) Feed {
	if len(feeds) == 1 {
		return feeds[0]
	}
	return merged(feeds)
}

type merged []Feed

func (m merged) Subscribe(ctx context.Context) (<-chan Record, error) {
	ctx, cancel := context.WithCancel(ctx)
	sources := make([]<-chan Record, 0, len(m))
	for i, f := range m {
		ch, err := f.Subscribe(ctx)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("feed %d: %w", i, err)
		}
		sources = append(sources, ch)
	}

	out := make(chan Record)
	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range src {
				select {
				case out <- rec:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		cancel()
		close(out)
	}()
	return out, nil
}
