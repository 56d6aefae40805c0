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

// sensors-read reads a block of registers from one node and prints the
// values, one register per line. Debug tool for poking at a live bus.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	serial "github.com/hootrhino/goserial"

	"github.com/aattww/sensors/gateway"
	"github.com/aattww/sensors/modbus"
)

// ownAddress is the bus address this tool presents itself as. Nodes are
// numbered from 1 upwards, so the top of the range stays free.
const ownAddress = 250

func main() {
	portName := flag.String("port", "/dev/ttyUSB0", "serial device")
	baud := flag.Int("baud", 9600, "baud rate")
	node := flag.Int("node", 1, "node address to read from")
	function := flag.Int("function", 4, "function code, 3 or 4")
	start := flag.Int("start", 0, "first register")
	count := flag.Int("count", 1, "number of registers")
	signed := flag.Bool("signed", false, "print values as signed")
	timeout := flag.Duration("timeout", 3*time.Second, "overall read timeout")
	flag.Parse()

	if err := run(*portName, *baud, *node, *function, *start, *count, *signed, *timeout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(portName string, baud, node, function, start, count int, signed bool, timeout time.Duration) error {
	handle, err := serial.Open(&serial.Config{
		Address:  portName,
		BaudRate: baud,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", portName, err)
	}

	port := modbus.NewSerialPort(handle, uint32(baud))
	defer port.Close()

	client := gateway.NewClient(modbus.New(port, uint32(baud), ownAddress))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	values, err := client.ReadRegisters(ctx, uint8(node), uint8(function), uint16(start), uint16(count))
	if err != nil {
		return err
	}

	for i, v := range values {
		if signed {
			fmt.Printf("%d: %d\n", start+i, gateway.ToSigned(v))
		} else {
			fmt.Printf("%d: %d\n", start+i, v)
		}
	}
	return nil
}
