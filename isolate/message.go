package isolate

import (
	"fmt"
	"time"

	"github.com/casualjim/errand/target"
	"github.com/go-openapi/strfmt"
	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Kind tags a Message.
type Kind string

const (
	// KindInit carries the manifest a dispatcher builds its target from.
	KindInit Kind = "init"
	// KindCall asks the dispatcher to invoke an operation.
	KindCall Kind = "call"
	// KindResult answers a call with a value.
	KindResult Kind = "result"
	// KindError answers a call with an operation error.
	KindError Kind = "error"
	// KindFailure reports that the isolated side cannot serve the agent at all.
	KindFailure Kind = "failure"
	// KindTerminate stops the dispatcher serving the agent.
	KindTerminate Kind = "terminate"
)

// Message is the unit exchanged between an agent and its isolated context.
type Message struct {
	Kind   Kind                   `json:"kind"`
	Agent  string                 `json:"agent"`
	ID     uint64                 `json:"id"`
	Op     string                 `json:"op,omitempty"`
	Args   json.RawMessage        `json:"args,omitempty"`
	Result json.RawMessage        `json:"result,omitempty"`
	Error  *target.OperationError `json:"error,omitempty"`
	Init   *target.Manifest       `json:"init,omitempty"`
	Reason string                 `json:"reason,omitempty"`
	SentAt strfmt.DateTime        `json:"sent_at"`
}

// ProtocolError reports a message that does not follow the wire format or
// that references a call nobody is waiting for.
type ProtocolError struct {
	Reason string
	Data   []byte
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

func protocolError(data []byte, format string, args ...any) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...), Data: data}
}

// InitMessage creates the initialization message for agent.
func InitMessage(agent string, m target.Manifest) Message {
	return Message{Kind: KindInit, Agent: agent, Init: &m, SentAt: now()}
}

// CallMessage creates a call message.
func CallMessage(agent string, id uint64, op string, args []byte) Message {
	return Message{Kind: KindCall, Agent: agent, ID: id, Op: op, Args: args, SentAt: now()}
}

// FailureMessage creates a failure report for agent.
func FailureMessage(agent string, reason error) Message {
	return Message{Kind: KindFailure, Agent: agent, Reason: reason.Error(), SentAt: now()}
}

// TerminateMessage creates the message that stops the dispatcher for agent.
func TerminateMessage(agent string) Message {
	return Message{Kind: KindTerminate, Agent: agent, SentAt: now()}
}

func now() strfmt.DateTime {
	return strfmt.DateTime(time.Now().UTC())
}

// Encode serializes m.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses and validates a message. Anything that does not match the wire
// format is reported as a *ProtocolError.
func Decode(data []byte) (Message, error) {
	var m Message
	if !gjson.ValidBytes(data) {
		return m, protocolError(data, "invalid json")
	}

	fields := gjson.GetManyBytes(data, "kind", "agent", "id", "op", "error", "init")
	kind, agent, id, op, opErr, init := fields[0], fields[1], fields[2], fields[3], fields[4], fields[5]
	if !kind.Exists() || kind.String() == "" {
		return m, protocolError(data, "missing required field 'kind'")
	}
	if !agent.Exists() || agent.String() == "" {
		return m, protocolError(data, "missing required field 'agent'")
	}

	switch k := Kind(kind.String()); k {
	case KindCall:
		if id.Type != gjson.Number {
			return m, protocolError(data, "%s: missing required field 'id'", k)
		}
		if op.String() == "" {
			return m, protocolError(data, "%s: missing required field 'op'", k)
		}
	case KindResult:
		if id.Type != gjson.Number {
			return m, protocolError(data, "%s: missing required field 'id'", k)
		}
	case KindError:
		if id.Type != gjson.Number {
			return m, protocolError(data, "%s: missing required field 'id'", k)
		}
		if !opErr.IsObject() {
			return m, protocolError(data, "%s: missing required field 'error'", k)
		}
	case KindInit:
		if !init.IsObject() {
			return m, protocolError(data, "%s: missing required field 'init'", k)
		}
	case KindFailure, KindTerminate:
	default:
		return m, protocolError(data, "unknown kind %q", k)
	}

	if err := json.Unmarshal(data, &m); err != nil {
		return m, protocolError(data, "decode: %v", err)
	}
	return m, nil
}

// PeekAgent returns the agent a raw message is addressed to without decoding it.
func PeekAgent(data []byte) string {
	return gjson.GetBytes(data, "agent").String()
}

var (
	resultJSON = []byte(`{"kind":"result"}`)
	errorJSON  = []byte(`{"kind":"error"}`)
)

// ResultMessage encodes a result reply around an already encoded value.
func ResultMessage(agent string, id uint64, result []byte) ([]byte, error) {
	out, err := replyHeader(resultJSON, agent, id)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		result = []byte("null")
	}
	return sjson.SetRawBytes(out, "result", result)
}

// ErrorMessage encodes an error reply.
func ErrorMessage(agent string, id uint64, opErr *target.OperationError) ([]byte, error) {
	out, err := replyHeader(errorJSON, agent, id)
	if err != nil {
		return nil, err
	}
	out, err = sjson.SetBytes(out, "error.op", opErr.Op)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(out, "error.message", opErr.Message)
}

func replyHeader(template []byte, agent string, id uint64) ([]byte, error) {
	out, err := sjson.SetBytes(template, "agent", agent)
	if err != nil {
		return nil, err
	}
	out, err = sjson.SetBytes(out, "id", id)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(out, "sent_at", now().String())
}
