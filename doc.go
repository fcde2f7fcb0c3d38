/*
Package errand turns a table of synchronous operations into a table of
asynchronous send stubs. Each stub returns a future immediately; the operation
runs later, either on the caller's scheduler or inside an isolated context.

# Basic Usage

Describe the object as a target, then wrap it in an agent:

	calc := target.New("calculator",
		target.Func("add", func(_ context.Context, p Pair) (int, error) {
			return p.A + p.B, nil
		}),
	)

	agent, err := errand.Light(calc)
	if err != nil {
		return err
	}

	f := agent.Send()["add"](Pair{A: 2, B: 3})
	f.OnResult(func(v any) {
		fmt.Println(v) // 5
	})

# Backends

A light agent runs operations on a cooperative scheduler in the caller's
process. By default arguments, results and errors are copied through the
codec, so the target never shares memory with the caller. Turn it off with
ValueIsolation(false) to pass references.

A heavy agent runs operations in an isolated context. The target is rebuilt on
the other side from its manifest by the blueprint registered for its kind, and
every call is a message correlated by id. Without WithSpawner the agent uses a
process-wide in-process host; point it at a NATS host to run targets in another
process:

	agent, err := errand.Heavy(ctx, calc, isolate.NATSSpawner(nc))

# Observers

Futures accept one OnResult, OnError and OnReply observer each. An observer
attached after the future resolved still fires once, on a later scheduler turn.
The agent carries the same three observers, notified for every call made
through it, plus OnFail.

# Failure

Fail tears the backend down and clears the send table. Send returns nil from
then on, and Call returns ErrAgentFailed. Remote calls still pending are
abandoned unless the agent was created with FailPending(true).
*/
package errand
