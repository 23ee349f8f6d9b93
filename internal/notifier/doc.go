// Package notifier delivers outbound chat messages asynchronously.
//
// Notify only enqueues. A small worker pool drains the queue through the
// transport adapter under a shared rate limit, retrying failed sends with
// jittered exponential backoff. Lifecycle events ("notifier.sent",
// "notifier.failed", "notifier.dropped") are published on the event bus.
package notifier
