package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ToRecord flattens an event into a map with snake_case keys. The record is
// the serialization-neutral form shared by the JSON and msgpack codecs.
func ToRecord(e Event) map[string]any {
	h := e.Meta()
	rec := map[string]any{
		"kind":           e.Kind().String(),
		"domain":         h.Domain,
		"id":             h.ID,
		"schema_id":      h.SchemaID,
		"correlation_id": h.CorrelationID,
		"version":        h.Version,
		"top_level":      h.TopLevel,
	}
	switch ev := e.(type) {
	case AddRelationshipEvent:
		putEndpoints(rec, ev.StartID, ev.StartSchemaID, ev.EndID, ev.EndSchemaID)
	case RemoveRelationshipEvent:
		putEndpoints(rec, ev.StartID, ev.StartSchemaID, ev.EndID, ev.EndSchemaID)
	case ChangePropertyValueEvent:
		rec["property"] = ev.PropertyName
		rec["value"] = ev.Value
		rec["old_value"] = ev.OldValue
		rec["old_version"] = ev.OldVersion
	case RemovePropertyEvent:
		rec["property"] = ev.PropertyName
		rec["value"] = ev.Value
		rec["old_version"] = ev.OldVersion
	}
	return rec
}

func putEndpoints(rec map[string]any, startID, startSchema, endID, endSchema string) {
	rec["start_id"] = startID
	rec["start_schema_id"] = startSchema
	rec["end_id"] = endID
	rec["end_schema_id"] = endSchema
}

// FromRecord rebuilds an event from the form produced by ToRecord.
func FromRecord(rec map[string]any) (Event, error) {
	kindStr, _ := rec["kind"].(string)
	kind, err := ParseKind(kindStr)
	if err != nil {
		return nil, err
	}
	version, err := asUint(rec["version"])
	if err != nil {
		return nil, fmt.Errorf("version: %w", err)
	}
	topLevel, _ := rec["top_level"].(bool)
	h := Header{
		Domain:        str(rec, "domain"),
		ID:            str(rec, "id"),
		SchemaID:      str(rec, "schema_id"),
		CorrelationID: str(rec, "correlation_id"),
		Version:       version,
		TopLevel:      topLevel,
	}

	switch kind {
	case KindAddEntity:
		return AddEntityEvent{Header: h}, nil
	case KindRemoveEntity:
		return RemoveEntityEvent{Header: h}, nil
	case KindAddRelationship:
		return AddRelationshipEvent{
			Header:        h,
			StartID:       str(rec, "start_id"),
			StartSchemaID: str(rec, "start_schema_id"),
			EndID:         str(rec, "end_id"),
			EndSchemaID:   str(rec, "end_schema_id"),
		}, nil
	case KindRemoveRelationship:
		return RemoveRelationshipEvent{
			Header:        h,
			StartID:       str(rec, "start_id"),
			StartSchemaID: str(rec, "start_schema_id"),
			EndID:         str(rec, "end_id"),
			EndSchemaID:   str(rec, "end_schema_id"),
		}, nil
	case KindChangePropertyValue:
		oldVersion, err := asUint(rec["old_version"])
		if err != nil {
			return nil, fmt.Errorf("old_version: %w", err)
		}
		return ChangePropertyValueEvent{
			Header:       h,
			PropertyName: str(rec, "property"),
			Value:        rec["value"],
			OldValue:     rec["old_value"],
			OldVersion:   oldVersion,
		}, nil
	default:
		oldVersion, err := asUint(rec["old_version"])
		if err != nil {
			return nil, fmt.Errorf("old_version: %w", err)
		}
		return RemovePropertyEvent{
			Header:       h,
			PropertyName: str(rec, "property"),
			Value:        rec["value"],
			OldVersion:   oldVersion,
		}, nil
	}
}

// Marshal encodes e as canonical JSON.
func Marshal(e Event) ([]byte, error) {
	data, err := MarshalCanonical(ToRecord(e))
	if err != nil {
		return nil, fmt.Errorf("marshal %s event %s: %w", e.Kind(), e.Meta().ID, err)
	}
	return data, nil
}

// Unmarshal decodes an event produced by Marshal. Integral numbers decode
// as int64 and the rest as float64.
func Unmarshal(data []byte) (Event, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rec map[string]any
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return FromRecord(normalizeValue(rec).(map[string]any))
}

func str(rec map[string]any, key string) string {
	s, _ := rec[key].(string)
	return s
}

// asUint accepts every integer type a codec may produce. Negative and
// fractional values are rejected.
func asUint(v any) (uint64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case uint64:
		return n, nil
	case uint32:
		return uint64(n), nil
	case uint16:
		return uint64(n), nil
	case uint8:
		return uint64(n), nil
	case uint:
		return uint64(n), nil
	case int64:
		return signed(n)
	case int32:
		return signed(int64(n))
	case int16:
		return signed(int64(n))
	case int8:
		return signed(int64(n))
	case int:
		return signed(int64(n))
	case float64:
		if n < 0 || n != math.Trunc(n) || n >= 1<<64 {
			return 0, fmt.Errorf("invalid unsigned value %v", n)
		}
		return uint64(n), nil
	case json.Number:
		u, err := strconv.ParseUint(n.String(), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid unsigned value %s: %w", n, err)
		}
		return u, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func signed(n int64) (uint64, error) {
	if n < 0 {
		return 0, fmt.Errorf("negative value %d", n)
	}
	return uint64(n), nil
}
