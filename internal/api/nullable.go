package api

import (
	"bytes"
	"encoding/json"
)

// Nullable 区分 JSON 中缺省、显式 null 与有值三种情况。
//
// Set 为 false 表示字段未出现；Set 为 true 且 Valid 为 false 表示显式 null。
type Nullable[T any] struct {
	Set   bool
	Valid bool
	Value T
}

func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Valid = false
		return nil
	}
	if err := json.Unmarshal(data, &n.Value); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

// Ptr 返回值指针，null 时返回 nil。
func (n Nullable[T]) Ptr() *T {
	if !n.Valid {
		return nil
	}
	v := n.Value
	return &v
}
