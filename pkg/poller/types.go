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

// Package poller implements the SNMP polling engine: the
// configuration-derived data model, per-cycle request construction and
// dispatch, and decoding of protocol values into counter/gauge samples.
package poller

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/carverauto/snmpflow/pkg/oid"
	"github.com/carverauto/snmpflow/pkg/schema"
)

// Version is the SNMP protocol version a device speaks.
type Version int

const (
	V1  Version = 1
	V2c Version = 2
)

func (v Version) String() string {
	switch v {
	case V1:
		return "1"
	case V2c:
		return "2c"
	default:
		return "unknown"
	}
}

// Instance identifies which instance of a metric a definition reads:
// either a literal label for scalar reads, or an OID selecting the
// instance-index subtree for table reads.
type Instance interface {
	isInstance()
}

// InstanceLabel is the literal instance string of a scalar metric.
type InstanceLabel string

func (InstanceLabel) isInstance() {}

// InstanceSelector is the OID whose subtree enumerates the instances of
// a table metric.
type InstanceSelector struct {
	Oid oid.Oid
}

func (InstanceSelector) isInstance() {}

// MetricDef is one named metric definition built from configuration.
// Immutable once built.
type MetricDef struct {
	Name       string
	SchemaType string
	Instance   Instance
	Oids       []oid.Oid
}

// IsTable reports whether the definition is table-valued, which is a
// property of its instance variant.
func (d *MetricDef) IsTable() bool {
	_, ok := d.Instance.(InstanceSelector)
	return ok
}

// Label returns the literal instance label of a scalar definition, or
// the empty string for table definitions.
func (d *MetricDef) Label() string {
	if l, ok := d.Instance.(InstanceLabel); ok {
		return string(l)
	}

	return ""
}

// Device is one configured device with the metric definitions bound to
// it. Metrics grows only during configuration loading.
type Device struct {
	Name      string
	Address   string
	Port      uint16
	Community string
	Version   Version
	Metrics   []*MetricDef
}

// Config holds the two registries produced by the configuration
// builder. Both are append-only during the build and read-only for the
// rest of the process lifetime, so read cycles need no locking.
type Config struct {
	Metrics []*MetricDef
	Devices []*Device
}

// MetricByName returns the named metric definition, or nil.
func (c *Config) MetricByName(name string) *MetricDef {
	for _, m := range c.Metrics {
		if m.Name == name {
			return m
		}
	}

	return nil
}

// DeviceByName returns the named device, or nil.
func (c *Config) DeviceByName(name string) *Device {
	for _, d := range c.Devices {
		if d.Name == name {
			return d
		}
	}

	return nil
}

// Value is one decoded sample slot: a monotonic counter magnitude or a
// point-in-time gauge.
type Value struct {
	kind    schema.Kind
	counter uint64
	gauge   float64
}

// CounterValue builds a counter slot value.
func CounterValue(v uint64) Value {
	return Value{kind: schema.Counter, counter: v}
}

// GaugeValue builds a gauge slot value.
func GaugeValue(v float64) Value {
	return Value{kind: schema.Gauge, gauge: v}
}

// undefinedValue is the per-kind sentinel a slot holds until a response
// variable decodes into it: zero for counters, NaN for gauges.
func undefinedValue(kind schema.Kind) Value {
	if kind == schema.Gauge {
		return GaugeValue(math.NaN())
	}

	return CounterValue(0)
}

func (v Value) Kind() schema.Kind { return v.kind }
func (v Value) Counter() uint64   { return v.counter }
func (v Value) Gauge() float64    { return v.gauge }

// MarshalJSON renders the slot as {"kind": ..., "value": ...}. A NaN
// gauge becomes null, since JSON has no NaN.
func (v Value) MarshalJSON() ([]byte, error) {
	out := struct {
		Kind  string      `json:"kind"`
		Value interface{} `json:"value"`
	}{Kind: v.kind.String()}

	if v.kind == schema.Gauge {
		if !math.IsNaN(v.gauge) {
			out.Value = v.gauge
		}
	} else {
		out.Value = v.counter
	}

	return json.Marshal(out)
}

// Sample is one dispatched metric reading. It is ephemeral: the engine
// retains nothing after the sink accepts it.
type Sample struct {
	Device     string    `json:"device"`
	SchemaType string    `json:"type"`
	Instance   string    `json:"instance"`
	Time       time.Time `json:"time"`
	CycleID    uuid.UUID `json:"cycle_id"`
	Values     []Value   `json:"values"`
}

// Sink accepts finished samples. Implementations must tolerate
// arbitrary sample arrival order.
type Sink interface {
	Dispatch(ctx context.Context, sample *Sample) error
}
