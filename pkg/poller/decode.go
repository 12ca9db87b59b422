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

package poller

import (
	"fmt"
	"math"

	"github.com/gosnmp/gosnmp"

	"github.com/carverauto/snmpflow/pkg/schema"
)

// decodeValue maps one returned protocol variable plus the declared
// slot kind into a typed sample value.
//
// Integer-family wire types decode to a 64-bit unsigned magnitude. A
// Counter64 arrives on the wire as two 32-bit halves; gosnmp composes
// high<<32|low before we see it. Any other wire type is undefined here:
// the returned value is the slot kind's sentinel (zero for counters,
// NaN for gauges) alongside ErrDecode, and the caller continues with
// the remaining slots.
func decodeValue(pdu gosnmp.SnmpPDU, kind schema.Kind) (Value, error) {
	var magnitude uint64

	defined := true

	switch pdu.Type {
	case gosnmp.Integer:
		magnitude = uint64(gosnmp.ToBigInt(pdu.Value).Int64())
	case gosnmp.Uinteger32, gosnmp.Counter32, gosnmp.Gauge32, gosnmp.Counter64:
		magnitude = gosnmp.ToBigInt(pdu.Value).Uint64()
	default:
		defined = false
	}

	if kind == schema.Gauge {
		if !defined {
			return GaugeValue(math.NaN()), fmt.Errorf("%w: %v", ErrDecode, pdu.Type)
		}

		return GaugeValue(float64(magnitude)), nil
	}

	if !defined {
		return CounterValue(0), fmt.Errorf("%w: %v", ErrDecode, pdu.Type)
	}

	return CounterValue(magnitude), nil
}
