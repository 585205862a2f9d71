package bus

import "context"

// Forward subscribes to namespace and calls fn for every event from a new
// goroutine until ctx is done. The subscription is live when Forward
// returns; the returned channel closes after it is dropped.
func (b *Bus) Forward(ctx context.Context, namespace string, bufSize int, fn func(Event)) <-chan struct{} {
	ch, unsub := b.Subscribe(namespace, bufSize)
	return forward(ctx, ch, unsub, fn)
}

// ForwardReliable is Forward over SubscribeReliable. fn should return
// quickly since publishers wait on it once the buffer fills.
func (b *Bus) ForwardReliable(ctx context.Context, namespace string, bufSize int, fn func(Event)) <-chan struct{} {
	ch, unsub := b.SubscribeReliable(namespace, bufSize)
	return forward(ctx, ch, unsub, fn)
}

func forward(ctx context.Context, ch <-chan Event, unsub func(), fn func(Event)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				fn(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
	return done
}
