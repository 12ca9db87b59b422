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

import "errors"

// Failure classes, from coarse to fine: a configuration block, a single
// binding reference, a device's whole cycle, one metric read, one slot.
// Nothing in the read path is fatal to the process.
var (
	ErrConfigBlock    = errors.New("invalid configuration block")
	ErrUnknownDevice  = errors.New("binding references unknown device")
	ErrUnknownMetric  = errors.New("binding references unknown metric")
	ErrConnection     = errors.New("failed to open device session")
	ErrRequest        = errors.New("request round trip failed")
	ErrSchemaMismatch = errors.New("oid count does not match schema width")
	ErrDecode         = errors.New("unsupported wire type")
)
