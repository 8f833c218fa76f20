// Package eventbus implements the kernel's typed event bus: a bounded FIFO
// queue drained by a fixed worker pool, dispatching to filtered
// subscriptions with per-source ordering and serial-per-subscription
// handler invocation.
//
// Components:
//   - Event / Filter: the wire type and subscription predicate
//   - Subscription: a filter bound to a handler, with its own ordered
//     delivery channel so concurrent dispatch never reorders one
//     subscriber's view of a source
//   - Bus: Subscribe/Unsubscribe/Publish/PublishSync plus the dispatch loop
//
// Contract grounded in the retrieval pack's event-driven design: typed
// publish/subscribe, filters evaluated per dequeue, and a dead-letter-ish
// `bus.dropped` meta-event on backpressure drops.
package eventbus
