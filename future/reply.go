package future

import "fmt"

// Kind tags a Reply as a result or an error.
type Kind uint8

const (
	KindResult Kind = iota + 1
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindResult:
		return "result"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Reply is the tagged outcome of a call, delivered to OnReply observers.
type Reply struct {
	Kind  Kind
	Value any
	Err   error
}

// ResultReply creates a Reply carrying a successful value.
func ResultReply(v any) Reply {
	return Reply{Kind: KindResult, Value: v}
}

// ErrorReply creates a Reply carrying an error.
func ErrorReply(err error) Reply {
	return Reply{Kind: KindError, Err: err}
}

func (r Reply) IsError() bool {
	return r.Kind == KindError
}

func (r Reply) String() string {
	if r.IsError() {
		return fmt.Sprintf("{error: %v}", r.Err)
	}
	return fmt.Sprintf("{result: %v}", r.Value)
}
