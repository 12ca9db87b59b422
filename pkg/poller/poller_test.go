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
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/snmpflow/pkg/conftree"
	"github.com/carverauto/snmpflow/pkg/logger"
	"github.com/carverauto/snmpflow/pkg/oid"
	"github.com/carverauto/snmpflow/pkg/schema"
)

// captureSink collects dispatched samples behind a mutex so concurrent
// device tasks can share it.
type captureSink struct {
	mu      sync.Mutex
	samples []*Sample
}

func (s *captureSink) Dispatch(_ context.Context, sample *Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, sample)

	return nil
}

func (s *captureSink) all() []*Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Sample, len(s.samples))
	copy(out, s.samples)

	return out
}

func testConfig(t *testing.T) *Config {
	t.Helper()

	root := &conftree.Block{Key: "snmp", Children: []conftree.Block{
		metricBlock("ifIn"),
		deviceBlock("host"),
		blockOf("Collect", []conftree.Value{conftree.String("host"), conftree.String("ifIn")}),
	}}

	cfg := BuildConfig(root, logger.NewTestLogger())
	require.Len(t, cfg.Devices, 1)
	require.Len(t, cfg.Devices[0].Metrics, 1)

	return cfg
}

func TestCycleDispatchesSample(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := testConfig(t)
	wantOids := cfg.Metrics[0].Oids

	sess := NewMockSession(ctrl)
	// Response bindings arrive unordered with respect to the request.
	sess.EXPECT().Get(gomock.Any(), wantOids).Return([]gosnmp.SnmpPDU{
		{Name: ".1.3.6.1.2.1.2.2.1.16.1", Type: gosnmp.Integer, Value: 20},
		{Name: ".1.3.6.1.2.1.2.2.1.10.1", Type: gosnmp.Integer, Value: 10},
	}, nil)
	sess.EXPECT().Close().Return(nil)

	opener := NewMockSessionOpener(ctrl)
	opener.EXPECT().Open(gomock.Any(), cfg.Devices[0]).Return(sess, nil)

	sink := &captureSink{}
	p := New(cfg, opener, sink, schema.Builtin(), logger.NewTestLogger())

	before := time.Now()
	stats, err := p.Cycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Samples)
	assert.Empty(t, stats.Errors)

	samples := sink.all()
	require.Len(t, samples, 1)

	sample := samples[0]
	assert.Equal(t, "host", sample.Device)
	assert.Equal(t, "if_octets", sample.SchemaType)
	assert.Equal(t, "eth0", sample.Instance)
	assert.Equal(t, stats.CycleID, sample.CycleID)
	assert.WithinRange(t, sample.Time, before, time.Now())

	require.Len(t, sample.Values, 2)
	assert.Equal(t, uint64(10), sample.Values[0].Counter())
	assert.Equal(t, uint64(20), sample.Values[1].Counter())
}

func TestCycleOpenFailureIsolatesDevice(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := testConfig(t)

	// Second device shares the metric definition and must still be
	// polled after the first device's open fails.
	good := &Device{
		Name:      "host2",
		Address:   "10.0.0.2",
		Port:      161,
		Community: "public",
		Version:   V2c,
		Metrics:   cfg.Devices[0].Metrics,
	}
	cfg.Devices = append(cfg.Devices, good)

	sess := NewMockSession(ctrl)
	sess.EXPECT().Get(gomock.Any(), gomock.Any()).Return([]gosnmp.SnmpPDU{
		{Name: ".1.3.6.1.2.1.2.2.1.10.1", Type: gosnmp.Integer, Value: 1},
		{Name: ".1.3.6.1.2.1.2.2.1.16.1", Type: gosnmp.Integer, Value: 2},
	}, nil)
	sess.EXPECT().Close().Return(nil)

	opener := NewMockSessionOpener(ctrl)
	opener.EXPECT().Open(gomock.Any(), cfg.Devices[0]).Return(nil, errors.New("udp dial refused"))
	opener.EXPECT().Open(gomock.Any(), good).Return(sess, nil)

	sink := &captureSink{}
	p := New(cfg, opener, sink, schema.Builtin(), logger.NewTestLogger())
	p.Workers = 1

	stats, err := p.Cycle(context.Background())
	require.NoError(t, err)

	require.Len(t, stats.Errors, 1)
	assert.ErrorIs(t, stats.Errors[0], ErrConnection)

	samples := sink.all()
	require.Len(t, samples, 1)
	assert.Equal(t, "host2", samples[0].Device)
}

func TestCycleSchemaMismatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := testConfig(t)

	// The schema declares three slots but the definition carries two
	// OIDs; the read is abandoned before any request is issued.
	schemas := schema.NewStaticRegistry()
	schemas.Register("if_octets", schema.Counter, schema.Counter, schema.Counter)

	sess := NewMockSession(ctrl)
	sess.EXPECT().Close().Return(nil)

	opener := NewMockSessionOpener(ctrl)
	opener.EXPECT().Open(gomock.Any(), gomock.Any()).Return(sess, nil)

	sink := &captureSink{}
	p := New(cfg, opener, sink, schemas, logger.NewTestLogger())

	stats, err := p.Cycle(context.Background())
	require.NoError(t, err)

	assert.Zero(t, stats.Samples)
	assert.Empty(t, sink.all())
	require.Len(t, stats.Errors, 1)
	assert.ErrorIs(t, stats.Errors[0], ErrSchemaMismatch)
}

func TestCycleUnknownSchemaType(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := testConfig(t)

	sess := NewMockSession(ctrl)
	sess.EXPECT().Close().Return(nil)

	opener := NewMockSessionOpener(ctrl)
	opener.EXPECT().Open(gomock.Any(), gomock.Any()).Return(sess, nil)

	sink := &captureSink{}
	p := New(cfg, opener, sink, schema.NewStaticRegistry(), logger.NewTestLogger())

	stats, err := p.Cycle(context.Background())
	require.NoError(t, err)

	assert.Empty(t, sink.all())
	require.Len(t, stats.Errors, 1)
	assert.ErrorIs(t, stats.Errors[0], ErrSchemaMismatch)
}

func TestCycleRequestFailureIsolatesMetric(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := testConfig(t)

	second := &MetricDef{
		Name:       "ifOut",
		SchemaType: "counter",
		Instance:   InstanceLabel("eth0"),
		Oids:       []oid.Oid{oid.MustParse(".1.3.6.1.2.1.2.2.1.16.1")},
	}
	cfg.Metrics = append(cfg.Metrics, second)
	cfg.Devices[0].Metrics = append(cfg.Devices[0].Metrics, second)

	sess := NewMockSession(ctrl)
	gomock.InOrder(
		sess.EXPECT().Get(gomock.Any(), cfg.Metrics[0].Oids).Return(nil, errors.New("timeout")),
		sess.EXPECT().Get(gomock.Any(), second.Oids).Return([]gosnmp.SnmpPDU{
			{Name: ".1.3.6.1.2.1.2.2.1.16.1", Type: gosnmp.Counter32, Value: uint(99)},
		}, nil),
	)
	sess.EXPECT().Close().Return(nil)

	opener := NewMockSessionOpener(ctrl)
	opener.EXPECT().Open(gomock.Any(), gomock.Any()).Return(sess, nil)

	sink := &captureSink{}
	p := New(cfg, opener, sink, schema.Builtin(), logger.NewTestLogger())

	stats, err := p.Cycle(context.Background())
	require.NoError(t, err)

	require.Len(t, stats.Errors, 1)
	assert.ErrorIs(t, stats.Errors[0], ErrRequest)

	samples := sink.all()
	require.Len(t, samples, 1)
	assert.Equal(t, "counter", samples[0].SchemaType)
	assert.Equal(t, uint64(99), samples[0].Values[0].Counter())
}

func TestCycleAbsentOidLeavesSentinel(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := testConfig(t)

	// Response carries only the first OID, plus an unrequested binding
	// that must be ignored.
	sess := NewMockSession(ctrl)
	sess.EXPECT().Get(gomock.Any(), gomock.Any()).Return([]gosnmp.SnmpPDU{
		{Name: ".1.3.6.1.2.1.2.2.1.10.1", Type: gosnmp.Counter32, Value: uint(5)},
		{Name: ".1.3.6.1.2.1.1.3.0", Type: gosnmp.TimeTicks, Value: uint32(1)},
	}, nil)
	sess.EXPECT().Close().Return(nil)

	opener := NewMockSessionOpener(ctrl)
	opener.EXPECT().Open(gomock.Any(), gomock.Any()).Return(sess, nil)

	sink := &captureSink{}
	p := New(cfg, opener, sink, schema.Builtin(), logger.NewTestLogger())

	_, err := p.Cycle(context.Background())
	require.NoError(t, err)

	samples := sink.all()
	require.Len(t, samples, 1)
	assert.Equal(t, uint64(5), samples[0].Values[0].Counter())
	assert.Equal(t, uint64(0), samples[0].Values[1].Counter(), "absent counter slot stays zero")
}

func TestCycleGaugeSentinelOnUndefined(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	def := &MetricDef{
		Name:       "temp",
		SchemaType: "temperature",
		Instance:   InstanceLabel("cpu0"),
		Oids:       []oid.Oid{oid.MustParse(".1.3.6.1.4.1.2021.13.16.2.1.3.1")},
	}
	dev := &Device{Name: "host", Address: "10.0.0.1", Community: "public", Version: V2c, Metrics: []*MetricDef{def}}
	cfg := &Config{Metrics: []*MetricDef{def}, Devices: []*Device{dev}}

	sess := NewMockSession(ctrl)
	sess.EXPECT().Get(gomock.Any(), gomock.Any()).Return([]gosnmp.SnmpPDU{
		{Name: ".1.3.6.1.4.1.2021.13.16.2.1.3.1", Type: gosnmp.OctetString, Value: []byte("42C")},
	}, nil)
	sess.EXPECT().Close().Return(nil)

	opener := NewMockSessionOpener(ctrl)
	opener.EXPECT().Open(gomock.Any(), gomock.Any()).Return(sess, nil)

	sink := &captureSink{}
	p := New(cfg, opener, sink, schema.Builtin(), logger.NewTestLogger())

	_, err := p.Cycle(context.Background())
	require.NoError(t, err)

	samples := sink.all()
	require.Len(t, samples, 1)
	assert.True(t, math.IsNaN(samples[0].Values[0].Gauge()))
}

func TestConsecutiveCyclesAreIdempotent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := testConfig(t)

	response := []gosnmp.SnmpPDU{
		{Name: ".1.3.6.1.2.1.2.2.1.10.1", Type: gosnmp.Counter32, Value: uint(100)},
		{Name: ".1.3.6.1.2.1.2.2.1.16.1", Type: gosnmp.Counter32, Value: uint(200)},
	}

	sess := NewMockSession(ctrl)
	sess.EXPECT().Get(gomock.Any(), gomock.Any()).Return(response, nil).Times(2)
	sess.EXPECT().Close().Return(nil).Times(2)

	opener := NewMockSessionOpener(ctrl)
	opener.EXPECT().Open(gomock.Any(), gomock.Any()).Return(sess, nil).Times(2)

	sink := &captureSink{}
	p := New(cfg, opener, sink, schema.Builtin(), logger.NewTestLogger())

	_, err := p.Cycle(context.Background())
	require.NoError(t, err)

	_, err = p.Cycle(context.Background())
	require.NoError(t, err)

	samples := sink.all()
	require.Len(t, samples, 2)

	first, second := samples[0], samples[1]
	assert.Equal(t, first.Values, second.Values)
	assert.NotEqual(t, first.CycleID, second.CycleID)
	assert.False(t, second.Time.Before(first.Time), "timestamps must be non-decreasing")
}

func TestCycleEmptyRegistryIsNoOp(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	opener := NewMockSessionOpener(ctrl)
	sink := &captureSink{}

	p := New(&Config{}, opener, sink, schema.Builtin(), logger.NewTestLogger())

	stats, err := p.Cycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Devices)
	assert.Zero(t, stats.Samples)
	assert.Empty(t, stats.Errors)
	assert.Empty(t, sink.all())
}

func TestCycleCanceledContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := testConfig(t)

	opener := NewMockSessionOpener(ctrl)
	sink := &captureSink{}
	p := New(cfg, opener, sink, schema.Builtin(), logger.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Cycle(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.all())
}

func TestCycleTableMetric(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	selector := oid.MustParse(".1.3.6.1.2.1.2.2.1.2")
	inOctets := oid.MustParse(".1.3.6.1.2.1.2.2.1.10")
	outOctets := oid.MustParse(".1.3.6.1.2.1.2.2.1.16")

	def := &MetricDef{
		Name:       "ifOctets",
		SchemaType: "if_octets",
		Instance:   InstanceSelector{Oid: selector},
		Oids:       []oid.Oid{inOctets, outOctets},
	}
	dev := &Device{Name: "switch", Address: "10.0.0.9", Community: "public", Version: V2c, Metrics: []*MetricDef{def}}
	cfg := &Config{Metrics: []*MetricDef{def}, Devices: []*Device{dev}}

	sess := NewMockSession(ctrl)
	sess.EXPECT().Walk(gomock.Any(), selector).Return([]gosnmp.SnmpPDU{
		{Name: ".1.3.6.1.2.1.2.2.1.2.1", Type: gosnmp.OctetString, Value: []byte("eth0")},
		{Name: ".1.3.6.1.2.1.2.2.1.2.4", Type: gosnmp.OctetString, Value: []byte("eth1")},
	}, nil)

	row1 := []oid.Oid{inOctets.Append(1), outOctets.Append(1)}
	row4 := []oid.Oid{inOctets.Append(4), outOctets.Append(4)}

	gomock.InOrder(
		sess.EXPECT().Get(gomock.Any(), row1).Return([]gosnmp.SnmpPDU{
			{Name: ".1.3.6.1.2.1.2.2.1.10.1", Type: gosnmp.Counter32, Value: uint(11)},
			{Name: ".1.3.6.1.2.1.2.2.1.16.1", Type: gosnmp.Counter32, Value: uint(12)},
		}, nil),
		sess.EXPECT().Get(gomock.Any(), row4).Return([]gosnmp.SnmpPDU{
			{Name: ".1.3.6.1.2.1.2.2.1.10.4", Type: gosnmp.Counter32, Value: uint(41)},
			{Name: ".1.3.6.1.2.1.2.2.1.16.4", Type: gosnmp.Counter32, Value: uint(42)},
		}, nil),
	)
	sess.EXPECT().Close().Return(nil)

	opener := NewMockSessionOpener(ctrl)
	opener.EXPECT().Open(gomock.Any(), dev).Return(sess, nil)

	sink := &captureSink{}
	p := New(cfg, opener, sink, schema.Builtin(), logger.NewTestLogger())

	stats, err := p.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Samples)

	samples := sink.all()
	require.Len(t, samples, 2)

	assert.Equal(t, "eth0", samples[0].Instance)
	assert.Equal(t, uint64(11), samples[0].Values[0].Counter())
	assert.Equal(t, uint64(12), samples[0].Values[1].Counter())

	assert.Equal(t, "eth1", samples[1].Instance)
	assert.Equal(t, uint64(41), samples[1].Values[0].Counter())
	assert.Equal(t, uint64(42), samples[1].Values[1].Counter())
}

func TestCycleTableRowsTruncated(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	selector := oid.MustParse(".1.3.6.1.2.1.2.2.1.2")
	inOctets := oid.MustParse(".1.3.6.1.2.1.2.2.1.10")
	outOctets := oid.MustParse(".1.3.6.1.2.1.2.2.1.16")

	def := &MetricDef{
		Name:       "ifOctets",
		SchemaType: "if_octets",
		Instance:   InstanceSelector{Oid: selector},
		Oids:       []oid.Oid{inOctets, outOctets},
	}
	dev := &Device{Name: "switch", Address: "10.0.0.9", Community: "public", Version: V2c, Metrics: []*MetricDef{def}}
	cfg := &Config{Metrics: []*MetricDef{def}, Devices: []*Device{dev}}

	walked := make([]gosnmp.SnmpPDU, 5)
	for i := range walked {
		walked[i] = gosnmp.SnmpPDU{
			Name:  selector.Append(uint32(i + 1)).String(),
			Type:  gosnmp.Integer,
			Value: i + 1,
		}
	}

	sess := NewMockSession(ctrl)
	sess.EXPECT().Walk(gomock.Any(), selector).Return(walked, nil)
	// Only the first two discovered rows may be read.
	sess.EXPECT().Get(gomock.Any(), []oid.Oid{inOctets.Append(1), outOctets.Append(1)}).Return([]gosnmp.SnmpPDU{
		{Name: ".1.3.6.1.2.1.2.2.1.10.1", Type: gosnmp.Counter32, Value: uint(11)},
		{Name: ".1.3.6.1.2.1.2.2.1.16.1", Type: gosnmp.Counter32, Value: uint(12)},
	}, nil)
	sess.EXPECT().Get(gomock.Any(), []oid.Oid{inOctets.Append(2), outOctets.Append(2)}).Return([]gosnmp.SnmpPDU{
		{Name: ".1.3.6.1.2.1.2.2.1.10.2", Type: gosnmp.Counter32, Value: uint(21)},
		{Name: ".1.3.6.1.2.1.2.2.1.16.2", Type: gosnmp.Counter32, Value: uint(22)},
	}, nil)
	sess.EXPECT().Close().Return(nil)

	opener := NewMockSessionOpener(ctrl)
	opener.EXPECT().Open(gomock.Any(), dev).Return(sess, nil)

	sink := &captureSink{}
	p := New(cfg, opener, sink, schema.Builtin(), logger.NewTestLogger())
	p.MaxTableRows = 2

	stats, err := p.Cycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Samples, "discovery past the row bound is truncated")
	assert.Empty(t, stats.Errors)

	samples := sink.all()
	require.Len(t, samples, 2)
	assert.Equal(t, "1", samples[0].Instance)
	assert.Equal(t, "2", samples[1].Instance)
}

func TestCycleSinkFailureDoesNotStopMetricLoop(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := testConfig(t)

	second := &MetricDef{
		Name:       "ifOut",
		SchemaType: "counter",
		Instance:   InstanceLabel("eth0"),
		Oids:       []oid.Oid{oid.MustParse(".1.3.6.1.2.1.2.2.1.16.1")},
	}
	cfg.Metrics = append(cfg.Metrics, second)
	cfg.Devices[0].Metrics = append(cfg.Devices[0].Metrics, second)

	sess := NewMockSession(ctrl)
	gomock.InOrder(
		sess.EXPECT().Get(gomock.Any(), cfg.Metrics[0].Oids).Return([]gosnmp.SnmpPDU{
			{Name: ".1.3.6.1.2.1.2.2.1.10.1", Type: gosnmp.Counter32, Value: uint(1)},
			{Name: ".1.3.6.1.2.1.2.2.1.16.1", Type: gosnmp.Counter32, Value: uint(2)},
		}, nil),
		sess.EXPECT().Get(gomock.Any(), second.Oids).Return([]gosnmp.SnmpPDU{
			{Name: ".1.3.6.1.2.1.2.2.1.16.1", Type: gosnmp.Counter32, Value: uint(3)},
		}, nil),
	)
	sess.EXPECT().Close().Return(nil)

	opener := NewMockSessionOpener(ctrl)
	opener.EXPECT().Open(gomock.Any(), gomock.Any()).Return(sess, nil)

	// First dispatch fails; the loop must still read and dispatch the
	// second metric.
	dest := NewMockSink(ctrl)
	gomock.InOrder(
		dest.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Return(errors.New("broker down")),
		dest.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Return(nil),
	)

	p := New(cfg, opener, dest, schema.Builtin(), logger.NewTestLogger())

	stats, err := p.Cycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Samples, "only the accepted sample counts")
	assert.Empty(t, stats.Errors)
}

func TestCycleTableWalkFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	selector := oid.MustParse(".1.3.6.1.2.1.2.2.1.2")
	def := &MetricDef{
		Name:       "ifOctets",
		SchemaType: "if_octets",
		Instance:   InstanceSelector{Oid: selector},
		Oids: []oid.Oid{
			oid.MustParse(".1.3.6.1.2.1.2.2.1.10"),
			oid.MustParse(".1.3.6.1.2.1.2.2.1.16"),
		},
	}
	dev := &Device{Name: "switch", Address: "10.0.0.9", Community: "public", Version: V2c, Metrics: []*MetricDef{def}}
	cfg := &Config{Metrics: []*MetricDef{def}, Devices: []*Device{dev}}

	sess := NewMockSession(ctrl)
	sess.EXPECT().Walk(gomock.Any(), selector).Return(nil, errors.New("timeout"))
	sess.EXPECT().Close().Return(nil)

	opener := NewMockSessionOpener(ctrl)
	opener.EXPECT().Open(gomock.Any(), dev).Return(sess, nil)

	sink := &captureSink{}
	p := New(cfg, opener, sink, schema.Builtin(), logger.NewTestLogger())

	stats, err := p.Cycle(context.Background())
	require.NoError(t, err)

	assert.Empty(t, sink.all())
	require.Len(t, stats.Errors, 1)
	assert.ErrorIs(t, stats.Errors[0], ErrRequest)
}
