package driver

import (
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Property readers tolerate missing keys and null values; they return the zero value.

func str(rec *neo4j.Record, key string) string {
	v, _ := rec.Get(key)
	s, _ := v.(string)
	return s
}

func boolean(rec *neo4j.Record, key string) bool {
	v, _ := rec.Get(key)
	b, _ := v.(bool)
	return b
}

func number(rec *neo4j.Record, key string) (float64, bool) {
	v, _ := rec.Get(key)
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	}
	return 0, false
}

func integer(rec *neo4j.Record, key string) int {
	f, _ := number(rec, key)
	return int(f)
}

func stringList(rec *neo4j.Record, key string) []string {
	v, _ := rec.Get(key)
	list, _ := v.([]interface{})
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func vector(rec *neo4j.Record, key string) []float32 {
	v, _ := rec.Get(key)
	list, _ := v.([]interface{})
	out := make([]float32, 0, len(list))
	for _, item := range list {
		switch x := item.(type) {
		case float64:
			out = append(out, float32(x))
		case int64:
			out = append(out, float32(x))
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func timestamp(rec *neo4j.Record, key string) (time.Time, error) {
	v, _ := rec.Get(key)
	switch x := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return x.UTC(), nil
	case neo4j.LocalDateTime:
		return x.Time().UTC(), nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, x)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid %s %q: %w", key, x, err)
		}
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unsupported %s value of type %T", key, v)
}
