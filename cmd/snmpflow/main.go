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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carverauto/snmpflow/pkg/conftree"
	"github.com/carverauto/snmpflow/pkg/logger"
	"github.com/carverauto/snmpflow/pkg/poller"
	"github.com/carverauto/snmpflow/pkg/schema"
	"github.com/carverauto/snmpflow/pkg/sink"
)

const defaultInterval = 10 * time.Second

var errNoDevices = fmt.Errorf("configuration defines no devices")

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "snmpflow: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/snmpflow/snmpflow.json", "Path to config file")
	interval := flag.Duration("interval", defaultInterval, "Read cycle interval")
	workers := flag.Int("workers", 0, "Concurrent device polls (0 for default)")
	timeout := flag.Duration("timeout", 0, "Per-request SNMP timeout (0 for default)")
	natsURL := flag.String("nats-url", "", "NATS server URL; samples are logged when empty")
	natsPrefix := flag.String("nats-prefix", "", "NATS subject prefix for published samples")
	once := flag.Bool("once", false, "Run a single read cycle and exit")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logCfg := logger.DefaultConfig()
	if *debug {
		logCfg.Debug = true
	}

	log, err := logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	log.Info().Str("config", *configPath).Msg("Starting snmpflow")

	root, err := conftree.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg := poller.BuildConfig(root, log)
	if len(cfg.Devices) == 0 {
		return errNoDevices
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dest, cleanup, err := buildSink(*natsURL, *natsPrefix, log)
	if err != nil {
		return err
	}
	defer cleanup()

	opener := &poller.GoSNMPOpener{Timeout: *timeout}

	p := poller.New(cfg, opener, dest, schema.Builtin(), log)
	if *workers > 0 {
		p.Workers = *workers
	}

	if *once {
		return cycle(ctx, p, log)
	}

	log.Info().
		Dur("interval", *interval).
		Int("devices", len(cfg.Devices)).
		Msg("Entering poll loop")

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		if err := cycle(ctx, p, log); err != nil {
			return err
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			log.Info().Msg("Shutting down")
			return nil
		}
	}
}

func cycle(ctx context.Context, p *poller.Poller, log logger.Logger) error {
	stats, err := p.Cycle(ctx)
	if err != nil {
		if ctx.Err() != nil {
			log.Info().Msg("Shutting down")
			return nil
		}

		return fmt.Errorf("read cycle failed: %w", err)
	}

	log.Info().
		Str("cycle_id", stats.CycleID.String()).
		Int("devices", stats.Devices).
		Int("samples", stats.Samples).
		Int("errors", len(stats.Errors)).
		Msg("Read cycle finished")

	return nil
}

// buildSink wires the sample destination: NATS when a URL is given,
// the structured log otherwise.
func buildSink(natsURL, natsPrefix string, log logger.Logger) (poller.Sink, func(), error) {
	if natsURL == "" {
		return sink.NewLogSink(log), func() {}, nil
	}

	ns, err := sink.NewNATSSink(sink.NATSConfig{URL: natsURL, SubjectPrefix: natsPrefix}, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create NATS sink: %w", err)
	}

	cleanup := func() {
		if cerr := ns.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Failed to close NATS sink")
		}
	}

	return sink.NewMultiSink(ns, sink.NewLogSink(log)), cleanup, nil
}
