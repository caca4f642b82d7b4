package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

type ValueKind uint8

const (
	KindString ValueKind = iota
	KindInt
	KindFloat
	KindBool
	KindTime
)

// Value is a scalar metadata value. The zero Value is the empty string.
type Value struct {
	kind ValueKind
	str  string
	num  int64
	flt  float64
	flag bool
	ts   time.Time
}

func String(v string) Value          { return Value{kind: KindString, str: v} }
func Int(v int64) Value              { return Value{kind: KindInt, num: v} }
func Float(v float64) Value          { return Value{kind: KindFloat, flt: v} }
func Bool(v bool) Value              { return Value{kind: KindBool, flag: v} }
func Time(v time.Time) Value         { return Value{kind: KindTime, ts: v} }
func Duration(d time.Duration) Value { return Int(d.Milliseconds()) }

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) Str() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	case KindFloat:
		return strconv.FormatFloat(v.flt, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.flag)
	case KindTime:
		return v.ts.Format(time.RFC3339Nano)
	}
	return ""
}

func (v Value) Int64() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.num, true
	case KindFloat:
		return int64(v.flt), true
	}
	return 0, false
}

func (v Value) Float64() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.flt, true
	case KindInt:
		return float64(v.num), true
	}
	return 0, false
}

func (v Value) Bool() (bool, bool) {
	return v.flag, v.kind == KindBool
}

func (v Value) Time() (time.Time, bool) {
	return v.ts, v.kind == KindTime
}

func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindInt:
		return v.num == other.num
	case KindFloat:
		return v.flt == other.flt
	case KindBool:
		return v.flag == other.flag
	case KindTime:
		return v.ts.Equal(other.ts)
	}
	return v.str == other.str
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInt:
		return []byte(strconv.FormatInt(v.num, 10)), nil
	case KindFloat:
		return json.Marshal(v.flt)
	case KindBool:
		return []byte(strconv.FormatBool(v.flag)), nil
	case KindTime:
		return json.Marshal(v.ts.Format(time.RFC3339Nano))
	}
	return json.Marshal(v.str)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	parsed, err := valueFromToken(tok)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func valueFromToken(tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return Int(n), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, err
		}
		return Float(f), nil
	case nil:
		return String(""), nil
	}
	return Value{}, fmt.Errorf("metadata: unsupported value %v", tok)
}

type Field struct {
	Key   string
	Value Value
}

// Metadata is an ordered set of scalar fields. Keys keep the position of
// their first insertion; setting an existing key replaces its value.
type Metadata []Field

func NewMetadata(kv ...Field) Metadata {
	var m Metadata
	for _, f := range kv {
		m.Set(f.Key, f.Value)
	}
	return m
}

func F(key string, value Value) Field {
	return Field{Key: key, Value: value}
}

func (m *Metadata) Set(key string, value Value) {
	for i := range *m {
		if (*m)[i].Key == key {
			(*m)[i].Value = value
			return
		}
	}
	*m = append(*m, Field{Key: key, Value: value})
}

func (m Metadata) Get(key string) (Value, bool) {
	for _, f := range m {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Value{}, false
}

func (m Metadata) Len() int { return len(m) }

func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for _, f := range m {
		keys = append(keys, f.Key)
	}
	return keys
}

// Merge applies every field of other on top of m.
func (m *Metadata) Merge(other Metadata) {
	for _, f := range other {
		m.Set(f.Key, f.Value)
	}
}

func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	copy(out, m)
	return out
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*m = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("metadata: expected object")
	}
	var out Metadata
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("metadata: expected key")
		}
		valTok, err := dec.Token()
		if err != nil {
			return err
		}
		val, err := valueFromToken(valTok)
		if err != nil {
			return fmt.Errorf("metadata: key %q: %w", key, err)
		}
		out.Set(key, val)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*m = out
	return nil
}
