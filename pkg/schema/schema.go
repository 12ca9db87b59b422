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

// Package schema is the metric-schema boundary: it resolves a type name
// to the ordered list of slot kinds a sample of that type must fill.
package schema

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownType = errors.New("unknown schema type")
	ErrNoSlots     = errors.New("schema type must declare at least one slot")
)

// Kind is the declared semantic type of one sample slot.
type Kind int

const (
	Counter Kind = iota
	Gauge
)

func (k Kind) String() string {
	switch k {
	case Counter:
		return "counter"
	case Gauge:
		return "gauge"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Registry resolves schema type names. The slot list it returns is the
// authoritative width a metric definition's OID list must match.
type Registry interface {
	Lookup(typeName string) ([]Kind, error)
}

// StaticRegistry is a map-backed Registry populated at startup.
type StaticRegistry struct {
	types map[string][]Kind
}

func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{types: make(map[string][]Kind)}
}

// Builtin returns a registry preloaded with the common interface and
// host metric types.
func Builtin() *StaticRegistry {
	r := NewStaticRegistry()

	r.Register("if_octets", Counter, Counter)
	r.Register("if_packets", Counter, Counter)
	r.Register("if_errors", Counter, Counter)
	r.Register("counter", Counter)
	r.Register("gauge", Gauge)
	r.Register("frequency", Gauge)
	r.Register("temperature", Gauge)
	r.Register("users", Gauge)
	r.Register("uptime", Gauge)

	return r
}

// Register adds or replaces a type. Registering zero slots panics: an
// empty slot list can never be matched by a metric definition.
func (r *StaticRegistry) Register(name string, kinds ...Kind) {
	if len(kinds) == 0 {
		panic(ErrNoSlots)
	}

	slots := make([]Kind, len(kinds))
	copy(slots, kinds)
	r.types[name] = slots
}

// Lookup implements Registry.
func (r *StaticRegistry) Lookup(typeName string) ([]Kind, error) {
	slots, ok := r.types[typeName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typeName)
	}

	out := make([]Kind, len(slots))
	copy(out, slots)

	return out, nil
}
