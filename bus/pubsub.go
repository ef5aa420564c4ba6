package bus

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/c0deZ3R0/signsync/errors"
)

// Handler processes one event. A returned error or a panic is logged and
// republished on system:error; it never reaches the publisher as a panic.
type Handler func(ctx context.Context, ev Event) error

type subscription struct {
	id         uint64
	topic      Topic
	subscriber string
	handler    Handler
	active     bool
}

// CancelFunc removes a subscription. Calling it more than once is a no-op.
type CancelFunc func()

// Subscribe registers handler for topic. Handlers on one topic run in
// subscription order.
func (b *Bus) Subscribe(topic Topic, subscriber string, handler Handler) CancelFunc {
	return b.subscribe(topic, subscriber, handler, false)
}

// SubscribeAll registers handler for every topic.
func (b *Bus) SubscribeAll(subscriber string, handler Handler) CancelFunc {
	return b.subscribe("", subscriber, handler, true)
}

func (b *Bus) subscribe(topic Topic, subscriber string, handler Handler, all bool) CancelFunc {
	if handler == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextSub++
	sub := &subscription{id: b.nextSub, topic: topic, subscriber: subscriber, handler: handler, active: true}
	if all {
		b.wildcard = append(b.wildcard, sub)
	} else {
		b.topics[topic] = append(b.topics[topic], sub)
	}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			sub.active = false
			if all {
				b.wildcard = removeSub(b.wildcard, sub)
				return
			}
			b.topics[topic] = removeSub(b.topics[topic], sub)
			if len(b.topics[topic]) == 0 {
				delete(b.topics, topic)
			}
		})
	}
}

func removeSub(subs []*subscription, target *subscription) []*subscription {
	out := make([]*subscription, 0, len(subs))
	for _, s := range subs {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

// SubscriberCount returns the number of handlers that would receive topic.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic]) + len(b.wildcard)
}

func (b *Bus) snapshotSubs(topic Topic) []*subscription {
	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.topics[topic])+len(b.wildcard))
	subs = append(subs, b.topics[topic]...)
	subs = append(subs, b.wildcard...)
	b.mu.RUnlock()
	sort.Slice(subs, func(i, j int) bool { return subs[i].id < subs[j].id })
	return subs
}

// Delivery tracks the handlers of one published event.
type Delivery struct {
	Event Event

	done chan struct{}
	mu   sync.Mutex
	errs []error
	ran  int
}

func newDelivery(ev Event) *Delivery {
	return &Delivery{Event: ev, done: make(chan struct{})}
}

func (d *Delivery) record(err error) {
	d.mu.Lock()
	d.ran++
	if err != nil {
		d.errs = append(d.errs, err)
	}
	d.mu.Unlock()
}

// Done is closed once every handler has returned.
func (d *Delivery) Done() <-chan struct{} { return d.done }

// Wait blocks until every handler has returned or ctx ends, then returns
// the joined handler errors.
func (d *Delivery) Wait(ctx context.Context) error {
	select {
	case <-d.done:
		return d.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the joined handler errors observed so far.
func (d *Delivery) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return stderrors.Join(d.errs...)
}

// Handled returns how many handlers have run.
func (d *Delivery) Handled() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ran
}

// Broadcast publishes untyped data on topic. Handlers see a Message payload.
func (b *Bus) Broadcast(ctx context.Context, topic Topic, data any) *Delivery {
	return b.publish(ctx, "", Message{Name: topic, Data: data})
}

// Emit publishes a typed payload from sourceApp. The payload determines the topic.
func (b *Bus) Emit(ctx context.Context, sourceApp string, p Payload) *Delivery {
	if p == nil {
		d := newDelivery(Event{SourceApp: sourceApp})
		d.record(errors.NewValidationError(errors.OpPublish, fmt.Errorf("nil payload")))
		close(d.done)
		return d
	}
	return b.publish(ctx, sourceApp, p)
}

func (b *Bus) publish(ctx context.Context, sourceApp string, p Payload) *Delivery {
	ev := Event{
		ID:        b.newID(),
		Topic:     p.Topic(),
		SourceApp: sourceApp,
		Timestamp: b.now(),
		Payload:   p,
	}
	d := newDelivery(ev)
	subs := b.snapshotSubs(ev.Topic)

	b.logger.Debug("publishing event", "topic", ev.Topic, "source", sourceApp, "event_id", ev.ID, "handlers", len(subs))

	if b.mode == DispatchAsync {
		b.inflight.Add(1)
		detached := context.WithoutCancel(ctx)
		b.queue.push(func() {
			defer b.inflight.Add(-1)
			b.dispatch(detached, d, subs)
		})
		return d
	}
	b.dispatch(ctx, d, subs)
	return d
}

func (b *Bus) dispatch(ctx context.Context, d *Delivery, subs []*subscription) {
	defer close(d.done)
	for _, sub := range subs {
		b.mu.RLock()
		active := sub.active
		b.mu.RUnlock()
		if !active {
			continue
		}
		err := b.invoke(ctx, sub, d.Event)
		d.record(err)
		if err == nil {
			continue
		}
		if d.Event.Topic == TopicSystemError {
			b.logger.Error("system error handler failed", "subscriber", sub.subscriber, "error", err)
			continue
		}
		b.logger.Error("event handler failed",
			"topic", d.Event.Topic, "subscriber", sub.subscriber, "event_id", d.Event.ID, "error", err)
		b.emitSystemError(ctx, sub.subscriber, d.Event.Topic, err)
	}
}

func (b *Bus) invoke(ctx context.Context, sub *subscription, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %s panicked on %s: %v", sub.subscriber, ev.Topic, r)
		}
	}()
	return sub.handler(ctx, ev)
}

// dispatchQueue runs async deliveries one at a time in publish order. The
// worker goroutine exits when the queue empties.
type dispatchQueue struct {
	mu      sync.Mutex
	items   []func()
	running bool
}

func (q *dispatchQueue) push(fn func()) {
	q.mu.Lock()
	q.items = append(q.items, fn)
	start := !q.running
	q.running = true
	q.mu.Unlock()
	if start {
		go q.run()
	}
}

func (q *dispatchQueue) run() {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		fn := q.items[0]
		q.items[0] = nil
		q.items = q.items[1:]
		q.mu.Unlock()
		fn()
	}
}

// Drain waits for in-flight async deliveries. It returns immediately in sync mode.
func (b *Bus) Drain(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for b.inflight.Load() > 0 {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
