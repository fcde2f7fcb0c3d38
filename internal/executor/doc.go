// Package executor runs an agent's calls against a target on one of two
// backends and resolves each call's future exactly once.
//
// Local runs operations on the caller's scheduler: the call returns its future
// immediately and the operation executes on a later turn. With value isolation
// enabled, arguments, results and errors are copied through the codec so the
// caller and the target never share memory, the same way they would not across
// an isolate boundary.
//
// Remote runs operations inside an isolated context. Every call gets the next
// correlation id, starting at 0, and is registered in a call table before its
// message is posted. Replies are matched by id alone, so they may arrive in any
// order. A reply for an id that is not in the table is a protocol error: it is
// logged and counted, never delivered.
package executor
