/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package conftree models the generic nested configuration tree the
// engine consumes. The grammar of the on-disk form belongs to the
// external parser; this package only transports blocks of typed scalars.
package conftree

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var (
	ErrNotString = errors.New("value is not a string")
	ErrNotNumber = errors.New("value is not a number")
	ErrNotBool   = errors.New("value is not a boolean")

	errUnsupportedScalar = errors.New("unsupported scalar type")
)

// Value is one typed scalar argument of a block: string, number or
// boolean.
type Value struct {
	s *string
	n *float64
	b *bool
}

func String(s string) Value  { return Value{s: &s} }
func Number(n float64) Value { return Value{n: &n} }
func Bool(b bool) Value      { return Value{b: &b} }

func (v Value) IsString() bool { return v.s != nil }
func (v Value) IsNumber() bool { return v.n != nil }
func (v Value) IsBool() bool   { return v.b != nil }

func (v Value) AsString() (string, error) {
	if v.s == nil {
		return "", ErrNotString
	}

	return *v.s, nil
}

func (v Value) AsNumber() (float64, error) {
	if v.n == nil {
		return 0, ErrNotNumber
	}

	return *v.n, nil
}

func (v Value) AsBool() (bool, error) {
	if v.b == nil {
		return false, ErrNotBool
	}

	return *v.b, nil
}

// UnmarshalJSON maps JSON scalars onto the three supported kinds.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch s := raw.(type) {
	case string:
		v.s = &s
	case float64:
		v.n = &s
	case bool:
		v.b = &s
	default:
		return fmt.Errorf("%w: %T", errUnsupportedScalar, raw)
	}

	return nil
}

// MarshalJSON renders the scalar back to its JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch {
	case v.s != nil:
		return json.Marshal(*v.s)
	case v.n != nil:
		return json.Marshal(*v.n)
	case v.b != nil:
		return json.Marshal(*v.b)
	default:
		return []byte("null"), nil
	}
}

// Block is one node of the configuration tree: a key, its scalar
// arguments and its nested child blocks.
type Block struct {
	Key      string  `json:"key"`
	Values   []Value `json:"values,omitempty"`
	Children []Block `json:"children,omitempty"`
}

// Load reads a JSON-encoded block tree from a file.
func Load(path string) (*Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var root Block

	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &root, nil
}
