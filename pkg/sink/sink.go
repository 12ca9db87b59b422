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

// Package sink provides destinations for polled samples: a structured
// log sink, a NATS publisher, and a fan-out combinator.
package sink

import (
	"context"
	"errors"
	"strconv"

	"github.com/carverauto/snmpflow/pkg/logger"
	"github.com/carverauto/snmpflow/pkg/poller"
	"github.com/carverauto/snmpflow/pkg/schema"
)

// LogSink writes every sample to the structured log. It is the default
// destination when no publisher is configured.
type LogSink struct {
	log logger.Logger
}

// NewLogSink creates a sink that logs samples at info level.
func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{log: log}
}

// Dispatch implements poller.Sink.
func (s *LogSink) Dispatch(_ context.Context, sample *poller.Sample) error {
	event := s.log.Info().
		Str("device", sample.Device).
		Str("type", sample.SchemaType).
		Str("instance", sample.Instance).
		Str("cycle_id", sample.CycleID.String()).
		Time("time", sample.Time)

	for i, v := range sample.Values {
		key := "value_" + strconv.Itoa(i)
		if v.Kind() == schema.Counter {
			event = event.Uint64(key, v.Counter())
		} else {
			event = event.Float64(key, v.Gauge())
		}
	}

	event.Msg("Sample")

	return nil
}

// MultiSink dispatches every sample to each member sink in order. All
// members see the sample even when an earlier one fails; the errors are
// joined.
type MultiSink struct {
	sinks []poller.Sink
}

// NewMultiSink creates a fan-out over the given sinks.
func NewMultiSink(sinks ...poller.Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Dispatch implements poller.Sink.
func (s *MultiSink) Dispatch(ctx context.Context, sample *poller.Sample) error {
	var errs []error

	for _, member := range s.sinks {
		if err := member.Dispatch(ctx, sample); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
