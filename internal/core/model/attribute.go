package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

type ValueKind int

const (
	KindString ValueKind = iota
	KindNumber
	KindBool
	KindTime
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindTime:
		return "timestamp"
	default:
		return fmt.Sprintf("ValueKind(%d)", k)
	}
}

// Value is one entry of an entity attribute bag. Only the field matching Kind is meaningful.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
	Time time.Time
}

func String(s string) Value { return Value{Kind: KindString, Str: s} }
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }
func Timestamp(t time.Time) Value { return Value{Kind: KindTime, Time: t.UTC()} }

func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindTime:
		return v.Time.Format(time.RFC3339)
	default:
		return v.Str
	}
}

// MarshalJSON writes the natural JSON form; timestamps become {"timestamp": "..."}
// so they survive a round trip without being confused with plain strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindTime:
		return json.Marshal(map[string]string{"timestamp": v.Time.Format(time.RFC3339Nano)})
	default:
		return json.Marshal(v.Str)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ValueOf converts a decoded JSON or driver value into the closed set of attribute variants.
func ValueOf(raw interface{}) (Value, error) {
	switch x := raw.(type) {
	case string:
		return String(x), nil
	case float64:
		return Number(x), nil
	case float32:
		return Number(float64(x)), nil
	case int:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case bool:
		return Bool(x), nil
	case time.Time:
		return Timestamp(x), nil
	case map[string]interface{}:
		if ts, ok := x["timestamp"].(string); ok && len(x) == 1 {
			t, err := time.Parse(time.RFC3339Nano, ts)
			if err != nil {
				return Value{}, fmt.Errorf("invalid timestamp attribute %q: %w", ts, err)
			}
			return Timestamp(t), nil
		}
	}
	return Value{}, fmt.Errorf("unsupported attribute value of type %T", raw)
}
