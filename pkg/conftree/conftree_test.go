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

package conftree

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTree = `{
  "key": "snmp",
  "children": [
    {
      "key": "Metric",
      "values": ["ifIn"],
      "children": [
        {"key": "Type", "values": ["if_octets"]},
        {"key": "Table", "values": [false]},
        {"key": "Instance", "values": ["eth0"]},
        {"key": "Values", "values": [".1.3.6.1.2.1.2.2.1.10.1", ".1.3.6.1.2.1.2.2.1.16.1"]}
      ]
    },
    {
      "key": "Device",
      "values": ["host"],
      "children": [
        {"key": "Address", "values": ["10.0.0.1"]},
        {"key": "Community", "values": ["public"]},
        {"key": "Version", "values": [2]}
      ]
    },
    {"key": "Collect", "values": ["host", "ifIn"]}
  ]
}`

func TestUnmarshalTree(t *testing.T) {
	var root Block

	require.NoError(t, json.Unmarshal([]byte(sampleTree), &root))
	require.Len(t, root.Children, 3)

	metric := root.Children[0]
	assert.Equal(t, "Metric", metric.Key)
	require.Len(t, metric.Values, 1)

	name, err := metric.Values[0].AsString()
	require.NoError(t, err)
	assert.Equal(t, "ifIn", name)

	table := metric.Children[1]
	b, err := table.Values[0].AsBool()
	require.NoError(t, err)
	assert.False(t, b)

	device := root.Children[1]
	version := device.Children[2]
	n, err := version.Values[0].AsNumber()
	require.NoError(t, err)
	assert.InDelta(t, 2.0, n, 0)
}

func TestValueKindMismatch(t *testing.T) {
	v := String("public")

	_, err := v.AsNumber()
	assert.ErrorIs(t, err, ErrNotNumber)

	_, err = v.AsBool()
	assert.ErrorIs(t, err, ErrNotBool)

	s, err := v.AsString()
	require.NoError(t, err)
	assert.Equal(t, "public", s)
}

func TestUnmarshalRejectsCompositeScalar(t *testing.T) {
	var v Value

	err := json.Unmarshal([]byte(`{"nested": true}`), &v)
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snmp.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleTree), 0o600))

	root, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "snmp", root.Key)
	assert.Len(t, root.Children, 3)

	_, err = Load(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	root := Block{
		Key: "snmp",
		Children: []Block{
			{Key: "Collect", Values: []Value{String("host"), String("ifIn")}},
		},
	}

	data, err := json.Marshal(&root)
	require.NoError(t, err)

	var back Block
	require.NoError(t, json.Unmarshal(data, &back))
	require.Len(t, back.Children, 1)

	first, err := back.Children[0].Values[0].AsString()
	require.NoError(t, err)
	assert.Equal(t, "host", first)
}
