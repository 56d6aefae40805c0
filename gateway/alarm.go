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
	"fmt"
	"strconv"
	"strings"
)

// Alarm compares one value in a polled register block against a
// threshold. The threshold is either a literal number or "R<n>", which
// refers to another value in the same block; that lets a rule compare,
// say, a measured temperature against a configured limit held by the
// node itself.
type Alarm struct {
	Register  int    // index into the polled block
	Op        string // ">", "<" or "="
	Threshold string
	Message   string
}

// Validate checks the rule against the size of the block it will run on.
func (a Alarm) Validate(blockSize int) error {
	if a.Register < 0 || a.Register >= blockSize {
		return fmt.Errorf("gateway: alarm register %d outside block of %d values", a.Register, blockSize)
	}
	if a.Op != ">" && a.Op != "<" && a.Op != "=" {
		return fmt.Errorf("gateway: alarm operator %q not supported", a.Op)
	}
	if idx, ok := registerReference(a.Threshold); ok {
		if idx < 0 || idx >= blockSize {
			return fmt.Errorf("gateway: alarm threshold %s outside block of %d values", a.Threshold, blockSize)
		}
		return nil
	}
	if _, err := strconv.ParseFloat(a.Threshold, 64); err != nil {
		return fmt.Errorf("gateway: alarm threshold %q is neither a number nor a register reference", a.Threshold)
	}
	return nil
}

// Eval runs the rule against a polled block and reports whether it
// triggered.
func (a Alarm) Eval(values []float64) (bool, error) {
	if err := a.Validate(len(values)); err != nil {
		return false, err
	}

	value := values[a.Register]

	var threshold float64
	if idx, ok := registerReference(a.Threshold); ok {
		threshold = values[idx]
	} else {
		threshold, _ = strconv.ParseFloat(a.Threshold, 64)
	}

	switch a.Op {
	case ">":
		return value > threshold, nil
	case "<":
		return value < threshold, nil
	default:
		return value == threshold, nil
	}
}

// registerReference parses an "R<n>" threshold, reporting whether the
// string is one.
func registerReference(s string) (int, bool) {
	rest, ok := strings.CutPrefix(s, "R")
	if !ok {
		return 0, false
	}
	idx, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return idx, true
}
