package btree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Manifest is the free-form metadata record stored in the footer of every
// BTree file. Writers fill it before Close; readers treat it as read-only.
type Manifest map[string]any

func (m Manifest) Set(key string, value any) {
	m[key] = value
}

// SetDefault stores value only when key is absent.
func (m Manifest) SetDefault(key string, value any) {
	if _, ok := m[key]; !ok {
		m[key] = value
	}
}

func (m Manifest) Has(key string) bool {
	_, ok := m[key]
	return ok
}

func (m Manifest) Int64(key string, def int64) int64 {
	switch v := m[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return int64(f)
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func (m Manifest) Float64(key string, def float64) float64 {
	switch v := m[key].(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float64:
		return v
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return def
}

func (m Manifest) String(key string, def string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return def
}

func (m Manifest) Bool(key string, def bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return def
}

// StringMap returns a nested string-valued object such as the tokenizer
// field-format map.
func (m Manifest) StringMap(key string) map[string]string {
	out := make(map[string]string)
	switch v := m[key].(type) {
	case map[string]string:
		for k, s := range v {
			out[k] = s
		}
	case map[string]any:
		for k, s := range v {
			if str, ok := s.(string); ok {
				out[k] = str
			}
		}
	}
	return out
}

// Keys returns the manifest keys in sorted order.
func (m Manifest) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m Manifest) encode() ([]byte, error) {
	data, err := json.Marshal(map[string]any(m))
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return data, nil
}

func decodeManifest(data []byte) (Manifest, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	m := make(Manifest)
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}
