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

package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/carverauto/snmpflow/pkg/logger"
	"github.com/carverauto/snmpflow/pkg/poller"
)

const defaultSubjectPrefix = "snmpflow.samples"

// NATSConfig holds connection settings for the NATS sample publisher.
type NATSConfig struct {
	URL           string `json:"url"`
	SubjectPrefix string `json:"subject_prefix"`
}

// NATSSink publishes each sample as JSON to a per-device, per-type
// subject under the configured prefix.
type NATSSink struct {
	nc     *nats.Conn
	prefix string
	log    logger.Logger
}

// NewNATSSink connects to the configured NATS server. The connection
// retries on initial failure and reconnects indefinitely thereafter.
func NewNATSSink(cfg NATSConfig, log logger.Logger) (*NATSSink, error) {
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = defaultSubjectPrefix
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("snmpflow"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Info().Str("url", cfg.URL).Str("prefix", prefix).Msg("Connected to NATS")

	return &NATSSink{nc: nc, prefix: prefix, log: log}, nil
}

// Dispatch implements poller.Sink.
func (s *NATSSink) Dispatch(_ context.Context, sample *poller.Sample) error {
	data, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("failed to marshal sample: %w", err)
	}

	subject := subjectFor(s.prefix, sample)
	if err := s.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish sample to %s: %w", subject, err)
	}

	return nil
}

// Close drains the connection so buffered publishes flush before the
// process exits.
func (s *NATSSink) Close() error {
	if err := s.nc.Drain(); err != nil {
		s.nc.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}

	return nil
}

// subjectFor builds prefix.<device>.<type>, replacing characters that
// would split or wildcard a NATS subject token.
func subjectFor(prefix string, sample *poller.Sample) string {
	return prefix + "." + subjectToken(sample.Device) + "." + subjectToken(sample.SchemaType)
}

func subjectToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ' ', '*', '>':
			return '_'
		default:
			return r
		}
	}, s)
}
