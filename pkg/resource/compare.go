// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package resource

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// 📝 Format is a structured encoding a comparator can decode
type Format string

const (
	FormatBytes Format = "bytes"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// Unmarshaler returns the decode function for the format
func (f Format) Unmarshaler() (func([]byte, any) error, error) {
	switch f {
	case FormatJSON:
		return json.Unmarshal, nil
	case FormatYAML:
		return yaml.Unmarshal, nil
	default:
		return nil, errors.Errorf("format %q cannot be decoded", string(f))
	}
}

// BytesDiffer replaces the destination whenever the bytes differ
func BytesDiffer(current, candidate []byte) bool {
	return !bytes.Equal(current, candidate)
}

// 🧮 DecodingComparator decodes both sides with unmarshal and asks less whether
// current orders before candidate. If either side fails to decode the current
// file is kept.
func DecodingComparator[T any](unmarshal func([]byte, any) error, less func(current, candidate T) bool) Comparator {
	return func(current, candidate []byte) bool {
		var cur, cand T
		if err := unmarshal(current, &cur); err != nil {
			return false
		}
		if err := unmarshal(candidate, &cand); err != nil {
			return false
		}
		return less(cur, cand)
	}
}

// 🔢 FieldComparator replaces the destination when the candidate's field is
// greater than the current one. field is a dot separated path into the decoded
// document ("meta.version"). Numbers compare numerically, strings lexically.
func FieldComparator(format Format, field string) (Comparator, error) {
	if field == "" {
		return nil, errors.Errorf("field is required")
	}
	unmarshal, err := format.Unmarshaler()
	if err != nil {
		return nil, err
	}
	path := strings.Split(field, ".")

	return DecodingComparator(unmarshal, func(current, candidate map[string]any) bool {
		cur, ok := lookup(current, path)
		if !ok {
			return false
		}
		cand, ok := lookup(candidate, path)
		if !ok {
			return false
		}
		return greater(cand, cur)
	}), nil
}

func lookup(doc map[string]any, path []string) (any, bool) {
	var node any = doc
	for _, key := range path {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// greater reports whether a > b
func greater(a, b any) bool {
	af, aNum := number(a)
	bf, bNum := number(b)
	if aNum && bNum {
		return af > bf
	}
	if aNum || bNum {
		return false
	}
	return fmt.Sprint(a) > fmt.Sprint(b)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
