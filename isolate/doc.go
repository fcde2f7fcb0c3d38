// Package isolate runs target objects in isolated contexts reachable only
// through messages.
//
// An owner starts an isolated context through a Spawner, which sends the
// target's Manifest as the initialization message and returns a Handle used to
// post calls. On the other side a Host receives every message on its inbox
// topic and routes it to the Dispatcher serving that agent. Each dispatcher has
// its own run loop, so targets of different agents never share a scheduling
// domain, and it processes one message at a time.
//
// A dispatcher starts Uninitialized. Once the init message arrives it moves to
// Buffering while the target is built, then to Ready after replaying every call
// that arrived in the meantime, in receipt order.
//
// Topics:
//
//	errand.<host>.inbox          all agent to host traffic
//	errand.<host>.<agent>.out    replies for one agent
package isolate
