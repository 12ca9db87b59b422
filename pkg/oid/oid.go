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

// Package oid implements the SNMP object identifier value type.
package oid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxLen is the maximum number of sub-identifiers in an OID.
const MaxLen = 128

var (
	ErrEmpty   = errors.New("empty OID")
	ErrTooLong = errors.New("OID exceeds maximum length")
	ErrSyntax  = errors.New("invalid OID syntax")
)

// Oid is an ordered sequence of non-negative sub-identifiers. All
// operations return copies; an Oid is never mutated after construction.
type Oid struct {
	subs []uint32
}

// Parse parses a dotted numeric OID, with or without a leading dot.
func Parse(s string) (Oid, error) {
	s = strings.TrimPrefix(s, ".")
	if s == "" {
		return Oid{}, ErrEmpty
	}

	parts := strings.Split(s, ".")
	if len(parts) > MaxLen {
		return Oid{}, fmt.Errorf("%w: %d sub-identifiers", ErrTooLong, len(parts))
	}

	subs := make([]uint32, len(parts))

	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return Oid{}, fmt.Errorf("%w: %q", ErrSyntax, part)
		}

		subs[i] = uint32(n)
	}

	return Oid{subs: subs}, nil
}

// MustParse parses s or panics. For tests and compiled-in constants.
func MustParse(s string) Oid {
	o, err := Parse(s)
	if err != nil {
		panic(err)
	}

	return o
}

// String renders the OID in leading-dot dotted form, gosnmp's convention.
func (o Oid) String() string {
	if len(o.subs) == 0 {
		return ""
	}

	var b strings.Builder

	for _, sub := range o.subs {
		b.WriteByte('.')
		b.WriteString(strconv.FormatUint(uint64(sub), 10))
	}

	return b.String()
}

// Len returns the number of sub-identifiers.
func (o Oid) Len() int { return len(o.subs) }

// Subs returns a copy of the sub-identifier sequence.
func (o Oid) Subs() []uint32 {
	out := make([]uint32, len(o.subs))
	copy(out, o.subs)

	return out
}

// Equal reports whether two OIDs match element-wise with equal length.
func (o Oid) Equal(other Oid) bool {
	return o.Compare(other) == 0
}

// Compare orders two OIDs element-wise, shorter-prefix first.
func (o Oid) Compare(other Oid) int {
	n := len(o.subs)
	if len(other.subs) < n {
		n = len(other.subs)
	}

	for i := 0; i < n; i++ {
		switch {
		case o.subs[i] < other.subs[i]:
			return -1
		case o.subs[i] > other.subs[i]:
			return 1
		}
	}

	switch {
	case len(o.subs) < len(other.subs):
		return -1
	case len(o.subs) > len(other.subs):
		return 1
	}

	return 0
}

// HasPrefix reports whether prefix is a (possibly equal) leading
// subsequence of o.
func (o Oid) HasPrefix(prefix Oid) bool {
	if len(prefix.subs) > len(o.subs) {
		return false
	}

	for i, sub := range prefix.subs {
		if o.subs[i] != sub {
			return false
		}
	}

	return true
}

// Append returns a new OID with the given sub-identifiers appended.
func (o Oid) Append(subs ...uint32) Oid {
	out := make([]uint32, 0, len(o.subs)+len(subs))
	out = append(out, o.subs...)
	out = append(out, subs...)

	return Oid{subs: out}
}

// TrimPrefix returns the sub-identifiers of o that follow prefix. The
// second return is false when prefix is not a proper prefix of o.
func (o Oid) TrimPrefix(prefix Oid) ([]uint32, bool) {
	if !o.HasPrefix(prefix) || len(o.subs) == len(prefix.subs) {
		return nil, false
	}

	rest := make([]uint32, len(o.subs)-len(prefix.subs))
	copy(rest, o.subs[len(prefix.subs):])

	return rest, true
}
