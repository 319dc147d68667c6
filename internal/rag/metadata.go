package rag

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Backends disagree on metadata types: Qdrant returns JSON numbers,
// chromem returns everything as strings.

func metaString(meta map[string]any, key, fallback string) string {
	v, ok := meta[key]
	if !ok || v == nil {
		return fallback
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func metaInt(meta map[string]any, key string) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}
