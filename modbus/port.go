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

package modbus

import (
	"io"
	"sync"
	"time"
)

// Port is the byte-oriented duplex channel the engine is driven by.
// All methods must be non-blocking; the engine polls them on every update.
type Port interface {
	// Available returns the number of received bytes waiting to be read.
	Available() int
	// ReadByte pops one received byte. The second return value is false
	// when no byte is waiting.
	ReadByte() (byte, bool)
	// Write hands a frame to the hardware for asynchronous transmission
	// and returns immediately.
	Write(p []byte) (int, error)
	// TxComplete reports whether the last Write has fully left the wire.
	TxComplete() bool
}

// DirectionController is an optional Port capability for half-duplex
// RS-485 transceivers with a driver-enable line. The engine asserts the
// line around each transmission when the port implements it.
type DirectionController interface {
	SetTxEnable(on bool)
}

// SerialPort adapts a serial handle (for example one opened with
// github.com/hootrhino/goserial) to the Port interface. A background
// goroutine pumps received bytes into a bounded queue so that Available
// and ReadByte never block.
//
// Transmit completion is derived from the baud rate: a write of N bytes
// is considered on the wire for N character times after Write returns.
type SerialPort struct {
	rwc      io.ReadWriteCloser
	recv     chan byte
	done     chan struct{}
	byteTime time.Duration

	mu     sync.Mutex
	txDone time.Time
}

// NewSerialPort wraps rwc and starts the receive pump. baud must match
// the rate the underlying port was opened with.
func NewSerialPort(rwc io.ReadWriteCloser, baud uint32) *SerialPort {
	if baud == 0 {
		baud = 9600
	}
	p := &SerialPort{
		rwc:  rwc,
		recv: make(chan byte, 512),
		done: make(chan struct{}),
		// 11 bits per character: start + 8 data + parity + stop
		byteTime: 11 * time.Second / time.Duration(baud),
	}
	go p.readLoop()
	return p
}

func (p *SerialPort) readLoop() {
	buf := make([]byte, 64)
	for {
		n, err := p.rwc.Read(buf)
		for _, b := range buf[:n] {
			select {
			case p.recv <- b:
			default:
				// Queue full: drop the byte, same as a UART overrun.
			}
		}
		if err != nil {
			if err == io.EOF {
				return
			}
			select {
			case <-p.done:
				return
			default:
			}
			// Read timeouts on the serial handle are routine; keep pumping.
			time.Sleep(time.Millisecond)
		}
	}
}

func (p *SerialPort) Available() int {
	return len(p.recv)
}

func (p *SerialPort) ReadByte() (byte, bool) {
	select {
	case b := <-p.recv:
		return b, true
	default:
		return 0, false
	}
}

func (p *SerialPort) Write(data []byte) (int, error) {
	n, err := p.rwc.Write(data)
	p.mu.Lock()
	p.txDone = time.Now().Add(time.Duration(n) * p.byteTime)
	p.mu.Unlock()
	return n, err
}

func (p *SerialPort) TxComplete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !time.Now().Before(p.txDone)
}

// Close stops the receive pump and closes the underlying handle.
func (p *SerialPort) Close() error {
	close(p.done)
	return p.rwc.Close()
}
