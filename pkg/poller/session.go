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

//go:generate mockgen -destination=mock_poller.go -package=poller github.com/carverauto/snmpflow/pkg/poller Session,SessionOpener,Sink

package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/carverauto/snmpflow/pkg/oid"
)

const (
	defaultPort           = 161
	defaultSessionTimeout = 5 * time.Second
	defaultRetries        = 1
)

var (
	errTooManyOids       = errors.New("too many OIDs for one get-request")
	errResponseStatus    = errors.New("device returned error status")
	errNoConnection      = errors.New("session has no open connection")
	errBadDeviceVersion  = errors.New("device has unsupported protocol version")
	errMissingDeviceAddr = errors.New("device has no address")
)

// Session is one open connection context to a device. It owns no state
// across read cycles: the driver opens it at the start of a device's
// cycle and closes it on every exit path.
type Session interface {
	// Get issues one get-request for all given OIDs as a single round
	// trip and returns the response bindings, unordered with respect to
	// the request.
	Get(ctx context.Context, oids []oid.Oid) ([]gosnmp.SnmpPDU, error)

	// Walk traverses the subtree rooted at the given OID and returns
	// every binding below it. Used for table instance discovery.
	Walk(ctx context.Context, root oid.Oid) ([]gosnmp.SnmpPDU, error)

	Close() error
}

// SessionOpener opens sessions. The production implementation speaks
// SNMP over UDP; tests substitute mocks.
type SessionOpener interface {
	Open(ctx context.Context, device *Device) (Session, error)
}

// GoSNMPOpener opens gosnmp-backed sessions. The zero value is usable.
type GoSNMPOpener struct {
	// Timeout bounds each protocol round trip. Defaults to 5s.
	Timeout time.Duration
	// Retries is the per-request retry count. Defaults to 1.
	Retries int
}

// Open builds a client from the device's connection parameters and
// connects it.
func (o *GoSNMPOpener) Open(ctx context.Context, device *Device) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if device.Address == "" {
		return nil, fmt.Errorf("%w: %s", errMissingDeviceAddr, device.Name)
	}

	timeout := o.Timeout
	if timeout <= 0 {
		timeout = defaultSessionTimeout
	}

	retries := o.Retries
	if retries <= 0 {
		retries = defaultRetries
	}

	port := device.Port
	if port == 0 {
		port = defaultPort
	}

	client := &gosnmp.GoSNMP{
		Target:             device.Address,
		Port:               port,
		Community:          device.Community,
		Timeout:            timeout,
		Retries:            retries,
		MaxOids:            gosnmp.MaxOids,
		ExponentialTimeout: true,
	}

	switch device.Version {
	case V1:
		client.Version = gosnmp.Version1
	case V2c:
		client.Version = gosnmp.Version2c
	default:
		return nil, fmt.Errorf("%w: %s (%d)", errBadDeviceVersion, device.Name, device.Version)
	}

	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", device.Address, err)
	}

	return &gosnmpSession{client: client}, nil
}

type gosnmpSession struct {
	client *gosnmp.GoSNMP
}

func (s *gosnmpSession) Get(ctx context.Context, oids []oid.Oid) ([]gosnmp.SnmpPDU, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(oids) > gosnmp.MaxOids {
		return nil, fmt.Errorf("%w: %d", errTooManyOids, len(oids))
	}

	names := make([]string, len(oids))
	for i, o := range oids {
		names[i] = o.String()
	}

	result, err := s.client.Get(names)
	if err != nil {
		return nil, err
	}

	if result.Error != gosnmp.NoError {
		return nil, fmt.Errorf("%w: %v at index %d", errResponseStatus, result.Error, result.ErrorIndex)
	}

	return result.Variables, nil
}

func (s *gosnmpSession) Walk(ctx context.Context, root oid.Oid) ([]gosnmp.SnmpPDU, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return s.client.WalkAll(root.String())
}

func (s *gosnmpSession) Close() error {
	if s.client.Conn == nil {
		return errNoConnection
	}

	return s.client.Conn.Close()
}
