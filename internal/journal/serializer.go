package journal

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/hypergraph/internal/event"
)

// Serializer selects the payload encoding of new journal rows.
type Serializer string

const (
	SerializerJSON    Serializer = "json"
	SerializerMsgpack Serializer = "msgpack"
)

// ParseSerializer normalizes and validates a serializer name.
func ParseSerializer(value string) (Serializer, error) {
	s := Serializer(strings.ToLower(strings.TrimSpace(value)))
	switch s {
	case SerializerJSON, SerializerMsgpack:
		return s, nil
	case "":
		return SerializerJSON, nil
	default:
		return "", fmt.Errorf("unsupported journal serializer: %s", value)
	}
}

func encodeEvent(s Serializer, e event.Event) ([]byte, error) {
	switch s {
	case SerializerJSON:
		return event.Marshal(e)
	case SerializerMsgpack:
		data, err := msgpack.Marshal(event.ToRecord(e))
		if err != nil {
			return nil, fmt.Errorf("encode %s event %s: %w", e.Kind(), e.Meta().ID, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported journal serializer: %s", s)
	}
}

func decodeEvent(s Serializer, data []byte) (event.Event, error) {
	switch s {
	case SerializerJSON:
		return event.Unmarshal(data)
	case SerializerMsgpack:
		dec := msgpack.NewDecoder(bytes.NewReader(data))
		dec.UseLooseInterfaceDecoding(true)
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		return event.FromRecord(normalizeNumbers(rec).(map[string]any))
	default:
		return nil, fmt.Errorf("unsupported journal serializer: %s", s)
	}
}

// normalizeNumbers matches the JSON codec: integers become int64 and other
// numbers float64.
func normalizeNumbers(v any) any {
	switch n := v.(type) {
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n)
		}
		return n
	case float32:
		return float64(n)
	case []any:
		for i := range n {
			n[i] = normalizeNumbers(n[i])
		}
		return n
	case map[string]any:
		for k, x := range n {
			n[k] = normalizeNumbers(x)
		}
		return n
	default:
		return v
	}
}
