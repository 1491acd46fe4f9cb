package scenario

import (
	"fmt"
	"strconv"
	"strings"
)

// Reply is a store reply in canonical form, so that values decoded from a
// scenario file compare equal to values read off the wire.
type Reply struct {
	Value string
	Nil   bool
}

// Nil returns the absent reply.
func Nil() Reply {
	return Reply{Nil: true}
}

// ReplyOf converts a decoded value or a client result into a Reply.
func ReplyOf(v any) Reply {
	if v == nil {
		return Nil()
	}

	return Reply{Value: canonical(v)}
}

func (r Reply) String() string {
	if r.Nil {
		return "(nil)"
	}

	return strconv.Quote(r.Value)
}

func canonical(v any) string {
	switch t := v.(type) {
	case nil:
		return "(nil)"
	case string:
		return t
	case []byte:
		return string(t)
	case []any:
		items := make([]string, len(t))
		for i, item := range t {
			items[i] = canonical(item)
		}
		return "[" + strings.Join(items, " ") + "]"
	case []string:
		return "[" + strings.Join(t, " ") + "]"
	default:
		return fmt.Sprint(t)
	}
}
