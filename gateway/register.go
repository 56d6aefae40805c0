// Copyright (C) 2025  aattww
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package gateway

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aattww/sensors/modbus"
)

// Register describes one entry in a node's register map.
type Register struct {
	Tag      string  // unique name, used as the persistence key
	Alias    string  // human readable description
	Node     uint8   // bus address of the node
	Function uint8   // 3 (holding) or 4 (input)
	Address  uint16  // first register
	Quantity uint16  // number of registers, 1 if the CSV leaves it out
	Signed   bool    // reinterpret words as two's complement
	Weight   float64 // scale factor applied after sign handling, 1 if left out
}

// Validate checks the entry against what the engine can actually request.
func (r Register) Validate() error {
	if r.Tag == "" {
		return fmt.Errorf("gateway: register without a tag")
	}
	if r.Node < 1 || r.Node > 254 {
		return fmt.Errorf("gateway: %s: node address %d out of range", r.Tag, r.Node)
	}
	if r.Function != 3 && r.Function != 4 {
		return fmt.Errorf("gateway: %s: function code %d not supported", r.Tag, r.Function)
	}
	if r.Quantity == 0 {
		return fmt.Errorf("gateway: %s: quantity must be positive", r.Tag)
	}
	if int(r.Quantity)*2+5 > modbus.FrameBufferSize {
		return fmt.Errorf("gateway: %s: %d registers exceed the frame buffer", r.Tag, r.Quantity)
	}
	return nil
}

// LoadRegisterMap parses a CSV register map. The header row names the
// columns; tag, node, function and address are required, alias, quantity
// (default 1), signed (default false) and weight (default 1) are
// optional.
func LoadRegisterMap(r io.Reader) ([]Register, error) {
	csvReader := csv.NewReader(r)
	csvReader.TrimLeadingSpace = true

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("gateway: failed to read register map: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("gateway: empty register map")
	}

	headerMap := make(map[string]int)
	for i, h := range records[0] {
		headerMap[strings.TrimSpace(h)] = i
	}
	for _, field := range []string{"tag", "node", "function", "address"} {
		if _, ok := headerMap[field]; !ok {
			return nil, fmt.Errorf("gateway: register map header misses %q", field)
		}
	}

	var registers []Register
	seen := make(map[string]bool)
	for i, record := range records[1:] {
		row := i + 2
		register, err := parseRegisterRecord(record, headerMap)
		if err != nil {
			return nil, fmt.Errorf("gateway: register map row %d: %w", row, err)
		}
		if err := register.Validate(); err != nil {
			return nil, fmt.Errorf("gateway: register map row %d: %w", row, err)
		}
		if seen[register.Tag] {
			return nil, fmt.Errorf("gateway: register map row %d: duplicate tag %q", row, register.Tag)
		}
		seen[register.Tag] = true
		registers = append(registers, register)
	}
	return registers, nil
}

func parseRegisterRecord(record []string, headerMap map[string]int) (Register, error) {
	getField := func(name string) string {
		if idx, ok := headerMap[name]; ok && idx < len(record) {
			return strings.TrimSpace(record[idx])
		}
		return ""
	}
	parseUintField := func(name string, bitSize int) (uint64, error) {
		s := getField(name)
		if s == "" {
			return 0, fmt.Errorf("%q is required", name)
		}
		v, err := strconv.ParseUint(s, 10, bitSize)
		if err != nil {
			return 0, fmt.Errorf("invalid %q: %w", name, err)
		}
		return v, nil
	}

	var register Register

	register.Tag = getField("tag")
	if register.Tag == "" {
		return register, fmt.Errorf("%q is required", "tag")
	}
	register.Alias = getField("alias")

	node, err := parseUintField("node", 8)
	if err != nil {
		return register, err
	}
	register.Node = uint8(node)

	function, err := parseUintField("function", 8)
	if err != nil {
		return register, err
	}
	register.Function = uint8(function)

	address, err := parseUintField("address", 16)
	if err != nil {
		return register, err
	}
	register.Address = uint16(address)

	register.Quantity = 1
	if s := getField("quantity"); s != "" {
		quantity, err := strconv.ParseUint(s, 10, 16)
		if err != nil {
			return register, fmt.Errorf("invalid %q: %w", "quantity", err)
		}
		register.Quantity = uint16(quantity)
	}

	if s := getField("signed"); s != "" {
		signed, err := strconv.ParseBool(s)
		if err != nil {
			return register, fmt.Errorf("invalid %q: %w", "signed", err)
		}
		register.Signed = signed
	}

	register.Weight = 1
	if s := getField("weight"); s != "" {
		weight, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return register, fmt.Errorf("invalid %q: %w", "weight", err)
		}
		register.Weight = weight
	}

	return register, nil
}
