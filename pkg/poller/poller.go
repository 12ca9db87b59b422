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
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gosnmp/gosnmp"

	"github.com/carverauto/snmpflow/pkg/logger"
	"github.com/carverauto/snmpflow/pkg/oid"
	"github.com/carverauto/snmpflow/pkg/schema"
)

const (
	defaultWorkers      = 8
	defaultMaxTableRows = 512
)

// Poller drives read cycles over the configured devices. The registries
// it holds are read-only; a Poller is safe to reuse across cycles and
// retains no state between them.
type Poller struct {
	cfg     *Config
	opener  SessionOpener
	sink    Sink
	schemas schema.Registry
	logger  logger.Logger

	// Workers bounds how many devices are polled concurrently.
	Workers int
	// MaxTableRows bounds the instances one table metric may emit per
	// cycle; discovery beyond it is truncated with a warning.
	MaxTableRows int
}

// New creates a poller over the given registries and collaborators.
func New(cfg *Config, opener SessionOpener, sink Sink, schemas schema.Registry, log logger.Logger) *Poller {
	return &Poller{
		cfg:          cfg,
		opener:       opener,
		sink:         sink,
		schemas:      schemas,
		logger:       log,
		Workers:      defaultWorkers,
		MaxTableRows: defaultMaxTableRows,
	}
}

// CycleStats summarizes one read cycle. Errors carry the sentinel
// classes from errors.go and are discriminable with errors.Is.
type CycleStats struct {
	CycleID uuid.UUID
	Devices int
	Samples int
	Errors  []error
}

// cycleState accumulates stats across concurrent device tasks.
type cycleState struct {
	mu    sync.Mutex
	stats CycleStats
}

func (s *cycleState) recordError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Errors = append(s.stats.Errors, err)
}

func (s *cycleState) recordSample() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Samples++
}

// Cycle polls every configured device once. Devices are fanned out to a
// bounded worker pool; each device task is independent and its failures
// never affect another device. Cycle returns a non-nil error only when
// the context was canceled mid-cycle.
func (p *Poller) Cycle(ctx context.Context) (*CycleStats, error) {
	state := &cycleState{}
	state.stats.CycleID = uuid.New()
	state.stats.Devices = len(p.cfg.Devices)

	if len(p.cfg.Devices) == 0 {
		p.logger.Info().Msg("No devices configured, read cycle is a no-op")
		return &state.stats, nil
	}

	workers := p.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	if workers > len(p.cfg.Devices) {
		workers = len(p.cfg.Devices)
	}

	p.logger.Debug().
		Str("cycle_id", state.stats.CycleID.String()).
		Int("device_count", len(p.cfg.Devices)).
		Int("workers", workers).
		Msg("Starting read cycle")

	devCh := make(chan *Device)

	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for dev := range devCh {
				if ctx.Err() != nil {
					return
				}

				p.readDevice(ctx, state, dev)
			}
		}()
	}

feed:
	for _, dev := range p.cfg.Devices {
		select {
		case devCh <- dev:
		case <-ctx.Done():
			break feed
		}
	}

	close(devCh)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		p.logger.Warn().
			Str("cycle_id", state.stats.CycleID.String()).
			Msg("Read cycle canceled")

		return &state.stats, err
	}

	p.logger.Debug().
		Str("cycle_id", state.stats.CycleID.String()).
		Int("samples", state.stats.Samples).
		Int("errors", len(state.stats.Errors)).
		Msg("Read cycle complete")

	return &state.stats, nil
}

// readDevice runs one device's cycle: open session, read every bound
// metric, close. An open failure abandons only this device.
func (p *Poller) readDevice(ctx context.Context, state *cycleState, dev *Device) {
	sess, err := p.opener.Open(ctx, dev)
	if err != nil {
		wrapped := fmt.Errorf("%w: %s: %w", ErrConnection, dev.Name, err)
		p.logger.Error().Err(err).Str("device", dev.Name).Msg("Failed to open device session")
		state.recordError(wrapped)

		return
	}

	defer func() {
		if cerr := sess.Close(); cerr != nil {
			p.logger.Warn().Err(cerr).Str("device", dev.Name).Msg("Failed to close device session")
		}
	}()

	for _, def := range dev.Metrics {
		if ctx.Err() != nil {
			return
		}

		if def.IsTable() {
			p.readTable(ctx, state, sess, dev, def)
		} else {
			p.readValue(ctx, state, sess, dev, def)
		}
	}
}

// slotKinds resolves the definition's schema type and checks its OID
// list against the schema's width. Checked lazily per read, not at
// configuration time.
func (p *Poller) slotKinds(state *cycleState, dev *Device, def *MetricDef) ([]schema.Kind, bool) {
	kinds, err := p.schemas.Lookup(def.SchemaType)
	if err != nil {
		wrapped := fmt.Errorf("%w: %s: %w", ErrSchemaMismatch, def.Name, err)
		p.logger.Error().Err(err).
			Str("device", dev.Name).
			Str("metric", def.Name).
			Str("type", def.SchemaType).
			Msg("Schema type not defined")
		state.recordError(wrapped)

		return nil, false
	}

	if len(kinds) != len(def.Oids) {
		wrapped := fmt.Errorf("%w: %s: schema %s has %d slots, definition has %d OIDs",
			ErrSchemaMismatch, def.Name, def.SchemaType, len(kinds), len(def.Oids))
		p.logger.Error().
			Str("device", dev.Name).
			Str("metric", def.Name).
			Str("type", def.SchemaType).
			Int("slots", len(kinds)).
			Int("oids", len(def.Oids)).
			Msg("OID count does not match schema width")
		state.recordError(wrapped)

		return nil, false
	}

	return kinds, true
}

// decodeResponse initializes every slot to its kind's sentinel, then
// matches each returned variable to the first requested OID it exactly
// equals and decodes it into that slot. Unmatched returned variables
// are ignored; absent OIDs leave the sentinel.
func (p *Poller) decodeResponse(dev *Device, def *MetricDef, want []oid.Oid, kinds []schema.Kind, pdus []gosnmp.SnmpPDU) []Value {
	values := make([]Value, len(kinds))
	for i, k := range kinds {
		values[i] = undefinedValue(k)
	}

	for _, pdu := range pdus {
		name, err := oid.Parse(pdu.Name)
		if err != nil {
			continue
		}

		for i, w := range want {
			if !name.Equal(w) {
				continue
			}

			v, derr := decodeValue(pdu, kinds[i])
			if derr != nil {
				p.logger.Warn().Err(derr).
					Str("device", dev.Name).
					Str("metric", def.Name).
					Str("oid", pdu.Name).
					Msg("Leaving slot undefined")
			}

			values[i] = v

			break
		}
	}

	return values
}

// readValue reads one scalar metric: one get-request, one sample.
func (p *Poller) readValue(ctx context.Context, state *cycleState, sess Session, dev *Device, def *MetricDef) {
	kinds, ok := p.slotKinds(state, dev, def)
	if !ok {
		return
	}

	pdus, err := sess.Get(ctx, def.Oids)
	if err != nil {
		wrapped := fmt.Errorf("%w: %s/%s: %w", ErrRequest, dev.Name, def.Name, err)
		p.logger.Error().Err(err).
			Str("device", dev.Name).
			Str("metric", def.Name).
			Msg("Get request failed")
		state.recordError(wrapped)

		return
	}

	values := p.decodeResponse(dev, def, def.Oids, kinds, pdus)

	p.dispatch(ctx, state, &Sample{
		Device:     dev.Name,
		SchemaType: def.SchemaType,
		Instance:   def.Label(),
		Time:       time.Now(),
		CycleID:    state.stats.CycleID,
		Values:     values,
	})
}

// tableRow is one instance discovered under a table metric's selector.
type tableRow struct {
	suffix []uint32
	label  string
}

// readTable reads one table metric: walk the instance selector once to
// discover rows, then read and dispatch one sample per row.
func (p *Poller) readTable(ctx context.Context, state *cycleState, sess Session, dev *Device, def *MetricDef) {
	sel, selOk := def.Instance.(InstanceSelector)
	if !selOk {
		return
	}

	kinds, ok := p.slotKinds(state, dev, def)
	if !ok {
		return
	}

	pdus, err := sess.Walk(ctx, sel.Oid)
	if err != nil {
		wrapped := fmt.Errorf("%w: %s/%s: instance walk: %w", ErrRequest, dev.Name, def.Name, err)
		p.logger.Error().Err(err).
			Str("device", dev.Name).
			Str("metric", def.Name).
			Str("oid", sel.Oid.String()).
			Msg("Instance walk failed")
		state.recordError(wrapped)

		return
	}

	rows := p.discoverRows(dev, def, sel.Oid, pdus)

	for _, row := range rows {
		if ctx.Err() != nil {
			return
		}

		rowOids := make([]oid.Oid, len(def.Oids))
		for i, o := range def.Oids {
			rowOids[i] = o.Append(row.suffix...)
		}

		rowPdus, err := sess.Get(ctx, rowOids)
		if err != nil {
			wrapped := fmt.Errorf("%w: %s/%s[%s]: %w", ErrRequest, dev.Name, def.Name, row.label, err)
			p.logger.Error().Err(err).
				Str("device", dev.Name).
				Str("metric", def.Name).
				Str("instance", row.label).
				Msg("Get request failed, abandoning table read")
			state.recordError(wrapped)

			return
		}

		values := p.decodeResponse(dev, def, rowOids, kinds, rowPdus)

		p.dispatch(ctx, state, &Sample{
			Device:     dev.Name,
			SchemaType: def.SchemaType,
			Instance:   row.label,
			Time:       time.Now(),
			CycleID:    state.stats.CycleID,
			Values:     values,
		})
	}
}

// discoverRows turns walked selector bindings into table rows. The OID
// suffix relative to the selector is the row index; the walked value,
// when it is a string, names the instance, otherwise the dotted suffix
// does. Row count is bounded by MaxTableRows.
func (p *Poller) discoverRows(dev *Device, def *MetricDef, selector oid.Oid, pdus []gosnmp.SnmpPDU) []tableRow {
	maxRows := p.MaxTableRows
	if maxRows <= 0 {
		maxRows = defaultMaxTableRows
	}

	rows := make([]tableRow, 0, len(pdus))

	for _, pdu := range pdus {
		name, err := oid.Parse(pdu.Name)
		if err != nil {
			continue
		}

		suffix, ok := name.TrimPrefix(selector)
		if !ok {
			continue
		}

		if len(rows) == maxRows {
			p.logger.Warn().
				Str("device", dev.Name).
				Str("metric", def.Name).
				Int("max_rows", maxRows).
				Msg("Truncating table instance discovery")

			break
		}

		rows = append(rows, tableRow{suffix: suffix, label: rowLabel(pdu, suffix)})
	}

	return rows
}

func rowLabel(pdu gosnmp.SnmpPDU, suffix []uint32) string {
	if pdu.Type == gosnmp.OctetString {
		if b, ok := pdu.Value.([]byte); ok && len(b) > 0 {
			return string(b)
		}
	}

	parts := make([]string, len(suffix))
	for i, sub := range suffix {
		parts[i] = strconv.FormatUint(uint64(sub), 10)
	}

	return strings.Join(parts, ".")
}

func (p *Poller) dispatch(ctx context.Context, state *cycleState, sample *Sample) {
	if err := p.sink.Dispatch(ctx, sample); err != nil {
		p.logger.Error().Err(err).
			Str("device", sample.Device).
			Str("type", sample.SchemaType).
			Msg("Failed to dispatch sample")

		return
	}

	state.recordSample()

	p.logger.Debug().
		Str("device", sample.Device).
		Str("type", sample.SchemaType).
		Str("instance", sample.Instance).
		Int("values", len(sample.Values)).
		Msg("Dispatched sample")
}
