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

// Package gateway is the host side of the sensor network: a blocking
// convenience client over the asynchronous engine, register maps
// describing what each node exposes, and alarm rules over polled values.
package gateway

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/aattww/sensors/modbus"
)

// defaultPollInterval paces the engine poll loop. A frame byte at the
// slowest supported baud rate takes about a millisecond, so polling any
// faster buys nothing.
const defaultPollInterval = time.Millisecond

// Client drives a bus master engine to completion, one request at a
// time. It is not safe for concurrent use; the bus is half duplex
// anyway.
type Client struct {
	engine *modbus.Engine

	pollInterval time.Duration
	sleep        func(time.Duration)
}

// NewClient wraps an engine configured for master use.
func NewClient(engine *modbus.Engine) *Client {
	return &Client{
		engine:       engine,
		pollInterval: defaultPollInterval,
		sleep:        time.Sleep,
	}
}

// ReadRegisters reads quantity registers from a node starting at start
// and blocks until the response arrives, the node answers with an
// exception, the request times out on the bus, or ctx is done.
func (c *Client) ReadRegisters(ctx context.Context, node, function uint8, start, quantity uint16) ([]uint16, error) {
	if err := c.engine.MasterRead(node, function, start, quantity); err != nil {
		return nil, err
	}

	var buf [modbus.FrameBufferSize]byte
	for {
		if err := ctx.Err(); err != nil {
			c.engine.Flush()
			return nil, err
		}

		status, _ := c.engine.Poll()
		switch status {
		case modbus.MasterReceived:
			n := c.engine.MasterResponse(buf[:])
			if n != int(quantity)*2 {
				return nil, fmt.Errorf("gateway: node %d returned %d payload bytes, want %d", node, n, int(quantity)*2)
			}
			values := make([]uint16, quantity)
			for i := range values {
				values[i] = binary.BigEndian.Uint16(buf[2*i:])
			}
			return values, nil

		case modbus.MasterError:
			return nil, fmt.Errorf("gateway: node %d rejected function %d read at register %d", node, function, start)
		}

		if !c.engine.AwaitingResponse() {
			return nil, fmt.Errorf("gateway: node %d did not answer", node)
		}

		c.sleep(c.pollInterval)
	}
}

// Read polls one register map entry and decodes the response into named
// readings, one per register word. Multi word entries get the word index
// appended to the tag.
func (c *Client) Read(ctx context.Context, reg Register) ([]Reading, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}

	words, err := c.ReadRegisters(ctx, reg.Node, reg.Function, reg.Address, reg.Quantity)
	if err != nil {
		return nil, fmt.Errorf("gateway: %s: %w", reg.Tag, err)
	}

	now := time.Now()
	readings := make([]Reading, len(words))
	for i, w := range words {
		value := float64(w)
		if reg.Signed {
			value = float64(ToSigned(w))
		}
		value *= reg.Weight

		tag := reg.Tag
		if len(words) > 1 {
			tag = fmt.Sprintf("%s.%d", reg.Tag, i)
		}

		readings[i] = Reading{
			Tag:   tag,
			Alias: reg.Alias,
			Node:  reg.Node,
			Value: value,
			Raw:   w,
			Time:  now,
		}
	}
	return readings, nil
}

// ToSigned reinterprets a register word as a two's complement value.
// Nodes report temperatures this way.
func ToSigned(v uint16) int16 {
	return int16(v)
}

// Reading is one decoded value from a node, scaled per its register map
// entry.
type Reading struct {
	Tag   string
	Alias string
	Node  uint8
	Value float64
	Raw   uint16
	Time  time.Time
}
