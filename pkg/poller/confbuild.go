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
	"errors"
	"fmt"

	"github.com/carverauto/snmpflow/pkg/conftree"
	"github.com/carverauto/snmpflow/pkg/logger"
	"github.com/carverauto/snmpflow/pkg/oid"
)

var (
	errOneStringArg = errors.New("option needs exactly one string argument")
	errOneNumberArg = errors.New("option needs exactly one number argument")
	errOneBoolArg   = errors.New("option needs exactly one boolean argument")
	errBadVersion   = errors.New("version must be 1 or 2")
	errBadPort      = errors.New("port must be between 1 and 65535")
)

// BuildConfig translates the external config tree into the metric and
// device registries. A malformed block is warned about and skipped; the
// builder never fails outright. Collect statements resolve names
// against what has already been registered, so they must textually
// follow the blocks they reference.
func BuildConfig(root *conftree.Block, log logger.Logger) *Config {
	cfg := &Config{}

	for i := range root.Children {
		child := &root.Children[i]

		switch child.Key {
		case "Metric":
			cfg.addMetric(child, log)
		case "Device":
			cfg.addDevice(child, log)
		case "Collect":
			cfg.bind(child, log)
		default:
			log.Warn().Str("key", child.Key).Msg("Ignoring unknown config option")
		}
	}

	return cfg
}

// singleString returns the option's only argument as a string.
func singleString(block *conftree.Block) (string, error) {
	if len(block.Values) != 1 {
		return "", fmt.Errorf("%w: %s", errOneStringArg, block.Key)
	}

	s, err := block.Values[0].AsString()
	if err != nil {
		return "", fmt.Errorf("%w: %s", errOneStringArg, block.Key)
	}

	return s, nil
}

func singleNumber(block *conftree.Block) (float64, error) {
	if len(block.Values) != 1 {
		return 0, fmt.Errorf("%w: %s", errOneNumberArg, block.Key)
	}

	n, err := block.Values[0].AsNumber()
	if err != nil {
		return 0, fmt.Errorf("%w: %s", errOneNumberArg, block.Key)
	}

	return n, nil
}

func singleBool(block *conftree.Block) (bool, error) {
	if len(block.Values) != 1 {
		return false, fmt.Errorf("%w: %s", errOneBoolArg, block.Key)
	}

	b, err := block.Values[0].AsBool()
	if err != nil {
		return false, fmt.Errorf("%w: %s", errOneBoolArg, block.Key)
	}

	return b, nil
}

// oidList parses the Values option: at least one string, each a valid
// OID. Any bad entry discards the whole list.
func oidList(block *conftree.Block) ([]oid.Oid, error) {
	if len(block.Values) < 1 {
		return nil, fmt.Errorf("%w: Values needs at least one argument", ErrConfigBlock)
	}

	oids := make([]oid.Oid, 0, len(block.Values))

	for _, v := range block.Values {
		s, err := v.AsString()
		if err != nil {
			return nil, fmt.Errorf("%w: Values needs only string arguments", ErrConfigBlock)
		}

		o, err := oid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrConfigBlock, s, err)
		}

		oids = append(oids, o)
	}

	return oids, nil
}

// addMetric processes one Metric block. Any option failure discards the
// block and its partial state; the registry is left unchanged.
func (c *Config) addMetric(block *conftree.Block, log logger.Logger) {
	name, err := singleString(block)
	if err != nil {
		log.Warn().Err(err).Msg("Metric needs exactly one string argument")
		return
	}

	var (
		schemaType   string
		isTable      bool
		instanceRaw  string
		haveInstance bool
		oids         []oid.Oid
	)

	for i := range block.Children {
		option := &block.Children[i]

		switch option.Key {
		case "Type":
			schemaType, err = singleString(option)
		case "Table":
			isTable, err = singleBool(option)
		case "Instance":
			instanceRaw, err = singleString(option)
			haveInstance = true
		case "Values":
			oids, err = oidList(option)
		default:
			log.Warn().Str("metric", name).Str("option", option.Key).
				Msg("Ignoring unknown metric option")
		}

		if err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("Discarding metric block")
			return
		}
	}

	if schemaType == "" {
		log.Warn().Str("metric", name).Msg("Type not given for metric, discarding block")
		return
	}

	if oids == nil {
		log.Warn().Str("metric", name).Msg("Values not given for metric, discarding block")
		return
	}

	// The instance is interpreted after all options are seen, so the
	// Table flag may appear before or after Instance.
	var instance Instance

	if isTable {
		if !haveInstance {
			log.Warn().Str("metric", name).Msg("Table metric needs an Instance selector, discarding block")
			return
		}

		sel, perr := oid.Parse(instanceRaw)
		if perr != nil {
			log.Warn().Err(perr).Str("metric", name).Str("instance", instanceRaw).
				Msg("Failed to parse Instance OID, discarding block")
			return
		}

		instance = InstanceSelector{Oid: sel}
	} else {
		instance = InstanceLabel(instanceRaw)
	}

	c.Metrics = append(c.Metrics, &MetricDef{
		Name:       name,
		SchemaType: schemaType,
		Instance:   instance,
		Oids:       oids,
	})

	log.Debug().
		Str("metric", name).
		Str("type", schemaType).
		Bool("table", isTable).
		Int("oid_count", len(oids)).
		Msg("Registered metric definition")
}

// addDevice processes one Device block. A device missing its address or
// community, or carrying any bad option, is rejected entirely.
func (c *Config) addDevice(block *conftree.Block, log logger.Logger) {
	name, err := singleString(block)
	if err != nil {
		log.Warn().Err(err).Msg("Device needs exactly one string argument")
		return
	}

	dev := &Device{
		Name:    name,
		Port:    defaultPort,
		Version: V2c,
	}

	for i := range block.Children {
		option := &block.Children[i]

		switch option.Key {
		case "Address":
			dev.Address, err = singleString(option)
		case "Community":
			dev.Community, err = singleString(option)
		case "Version":
			err = setVersion(dev, option)
		case "Port":
			err = setPort(dev, option)
		default:
			log.Warn().Str("device", name).Str("option", option.Key).
				Msg("Ignoring unknown device option")
		}

		if err != nil {
			log.Warn().Err(err).Str("device", name).Msg("Discarding device block")
			return
		}
	}

	if dev.Address == "" {
		log.Warn().Str("device", name).Msg("Address not given for device, discarding block")
		return
	}

	if dev.Community == "" {
		log.Warn().Str("device", name).Msg("Community not given for device, discarding block")
		return
	}

	c.Devices = append(c.Devices, dev)

	log.Debug().
		Str("device", name).
		Str("address", dev.Address).
		Str("version", dev.Version.String()).
		Msg("Registered device")
}

func setVersion(dev *Device, option *conftree.Block) error {
	n, err := singleNumber(option)
	if err != nil {
		return err
	}

	switch int(n) {
	case 1:
		dev.Version = V1
	case 2:
		dev.Version = V2c
	default:
		return fmt.Errorf("%w: got %v", errBadVersion, n)
	}

	return nil
}

func setPort(dev *Device, option *conftree.Block) error {
	n, err := singleNumber(option)
	if err != nil {
		return err
	}

	if n < 1 || n > 65535 {
		return fmt.Errorf("%w: got %v", errBadPort, n)
	}

	dev.Port = uint16(n)

	return nil
}

// bind processes one Collect statement: a device name followed by one
// or more metric names. An unknown device skips the whole statement; an
// unknown metric name skips just that name.
func (c *Config) bind(block *conftree.Block, log logger.Logger) {
	if len(block.Values) < 2 {
		log.Warn().Msg("Collect needs at least two arguments")
		return
	}

	names := make([]string, 0, len(block.Values))

	for _, v := range block.Values {
		s, err := v.AsString()
		if err != nil {
			log.Warn().Msg("All arguments to Collect must be strings")
			return
		}

		names = append(names, s)
	}

	dev := c.DeviceByName(names[0])
	if dev == nil {
		log.Warn().Err(ErrUnknownDevice).Str("device", names[0]).Msg("Skipping Collect statement")
		return
	}

	for _, metricName := range names[1:] {
		def := c.MetricByName(metricName)
		if def == nil {
			log.Warn().Err(ErrUnknownMetric).
				Str("device", dev.Name).
				Str("metric", metricName).
				Msg("Skipping binding")

			continue
		}

		dev.Metrics = append(dev.Metrics, def)

		log.Debug().Str("device", dev.Name).Str("metric", def.Name).Msg("Bound metric to device")
	}
}
