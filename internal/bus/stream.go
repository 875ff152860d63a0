package bus

import (
	"context"
	"sync"
)

// Stream subscribes a buffered channel of events. When the buffer is full the oldest
// queued event is dropped so a slow reader always catches up to the latest settings.
// cancel unsubscribes and closes the channel.
func (b *Bus) Stream(name string, buffer int) (events <-chan Event, cancel func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	var mu sync.Mutex
	closed := false

	unsubscribe := b.Subscribe(name, func(_ context.Context, ev Event) error {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return nil
		}
		for {
			select {
			case ch <- ev:
				return nil
			default:
			}
			select {
			case <-ch:
			default:
			}
		}
	})

	var once sync.Once
	cancel = func() {
		once.Do(func() {
			unsubscribe()
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}
	return ch, cancel
}
