// Package broker implements topic-based pub/sub for opaque byte messages. It is
// the transport underneath isolated contexts: an isolate never shares memory
// with its owner, every interaction is a message published on a topic.
//
// Design decisions:
//   - Context-first: publishing and subscriptions honor context cancellation
//   - Opaque payloads: the broker never inspects message bytes
//   - Ordered delivery: each subscription receives messages from one publisher
//     in publish order, one at a time
//   - Copy on publish: the in-process broker hands every subscriber its own
//     copy of the payload
//
// Interface hierarchy:
//   - Broker: Top-level interface for accessing topics
//     └── Topic: Interface for publishing/subscribing
//     └── Subscription: Interface for managing subscriptions
//
// Example usage:
//
//	b := broker.Local()
//	topic := b.Topic(ctx, "errand.default.inbox")
//
//	sub, err := topic.Subscribe(ctx, func(ctx context.Context, data []byte) {
//	    fmt.Println(string(data))
//	})
//	if err != nil {
//	    return err
//	}
//	defer sub.Unsubscribe()
//
//	if err := topic.Publish(ctx, []byte(`{"kind":"call"}`)); err != nil {
//	    return err
//	}
package broker
