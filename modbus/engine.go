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

// Package modbus implements an asynchronous Modbus RTU engine for nodes
// on a shared half-duplex serial bus.
//
// The engine is single-threaded and poll-driven: the embedding firmware
// calls Poll on every iteration of its control loop and reacts to the
// returned Status. Both the slave side (answering read requests addressed
// to this node) and the master side (issuing read requests to other nodes)
// are asynchronous and share one fixed frame buffer.
//
// Only function codes 3 (read holding registers) and 4 (read input
// registers) are supported.
package modbus

import (
	"fmt"
	"io"
	"time"
)

const (
	// FrameBufferSize is the capacity of the shared frame buffer. A read
	// response for N registers needs 2*N+5 bytes, so 50 fits requests of
	// up to 22 registers.
	FrameBufferSize = 50

	// masterReadTimeout is how long an outstanding master request is kept
	// before it is abandoned.
	masterReadTimeout = 1000 * time.Millisecond

	// txEnableSettle is the delay after asserting the transceiver
	// driver-enable line before data may be written.
	txEnableSettle = 100 * time.Microsecond
)

// phase is the exclusive buffer-ownership state of the engine.
type phase uint8

const (
	phaseIdle phase = iota
	phaseReceiving
	phaseSending
)

// Request holds the decoded fields of a read request addressed to this
// node. It is only valid when Poll returned FrameReceived.
type Request struct {
	Function      uint8
	StartRegister uint16
	RegisterCount uint16
}

// Engine is an asynchronous Modbus RTU protocol engine. It is not safe
// for concurrent use; drive it from a single control loop.
type Engine struct {
	port    Port
	dir     DirectionController // nil when no driver-enable line is used
	address uint8

	interChar  time.Duration // T1.5, max silence inside a frame
	interFrame time.Duration // T3.5, min silence before transmitting

	frame    [FrameBufferSize]byte
	used     int // bytes currently valid in frame
	overflow bool
	state    phase
	lastByte time.Time // arrival time of the most recent received byte

	awaiting    uint8 // slave address a response is expected from, 0 = none
	requestSent time.Time
	hasResponse bool

	logger io.Writer

	// Injected for tests.
	now   func() time.Time
	sleep func(time.Duration)
}

// New creates an engine on port with the given baud rate and slave
// address. The inter-character timeout and inter-frame delay follow the
// Modbus RTU standard: 1.5 and 3.5 character times up to 19200 baud,
// fixed 750 us and 1750 us above that.
//
// If port implements DirectionController, the engine drives the
// transceiver direction line around each transmission.
func New(port Port, baud uint32, address uint8) *Engine {
	e := &Engine{
		port:    port,
		address: address,
		now:     time.Now,
		sleep:   time.Sleep,
	}
	if dir, ok := port.(DirectionController); ok {
		e.dir = dir
		e.dir.SetTxEnable(false)
	}
	if baud > 19200 {
		e.interChar = 750 * time.Microsecond
		e.interFrame = 1750 * time.Microsecond
	} else {
		e.interChar = 15_000_000 * time.Microsecond / time.Duration(baud)
		e.interFrame = 35_000_000 * time.Microsecond / time.Duration(baud)
	}
	return e
}

// SetLogger directs debug output to w. Logging is off until set.
func (e *Engine) SetLogger(w io.Writer) {
	e.logger = w
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.logger != nil {
		fmt.Fprintf(e.logger, format+"\n", args...)
	}
}

// AwaitingResponse reports whether a master request is still outstanding.
// The marker self-clears on a matching response, a CRC failure or the
// response timeout.
func (e *Engine) AwaitingResponse() bool {
	return e.awaiting != 0
}

// Flush clears all engine state and discards any bytes buffered by the
// port.
func (e *Engine) Flush() {
	e.used = 0
	e.overflow = false
	e.state = phaseIdle
	e.awaiting = 0
	e.hasResponse = false
	for e.port.Available() > 0 {
		e.port.ReadByte()
	}
}

// Poll advances the engine by one step and returns what happened. It must
// be called frequently enough for the node to answer requests in time.
//
// The returned Request is only meaningful when the status is
// FrameReceived.
func (e *Engine) Poll() (Status, Request) {
	var req Request

	// A transmission owns the buffer until the hardware reports the last
	// byte on the wire.
	if e.state == phaseSending {
		if e.port.TxComplete() {
			e.finishSend()
			return FrameSent, req
		}
		return FrameSending, req
	}

	// Abandon an outstanding master request once the slave has had long
	// enough to answer. The caller decides whether to re-issue.
	if e.awaiting != 0 && e.now().Sub(e.requestSent) > masterReadTimeout {
		e.logf("modbus: response from %d timed out", e.awaiting)
		e.awaiting = 0
	}

	if e.port.Available() == 0 {
		if e.state != phaseReceiving {
			return NoFrames, req
		}
		if e.now().Sub(e.lastByte) < e.interChar {
			return FrameReceiving, req
		}
		// Inter-character silence elapsed: fall through and process the
		// completed frame below.
	} else {
		if e.state != phaseReceiving {
			// First byte of a new frame takes over the shared buffer, so
			// any unfetched master response is gone.
			e.used = 0
			e.overflow = false
			e.state = phaseReceiving
			e.hasResponse = false
		}
		for e.port.Available() > 0 {
			b, ok := e.port.ReadByte()
			if !ok {
				break
			}
			if e.overflow {
				// Keep draining so the port queue empties, discard the byte.
				continue
			}
			if e.used == FrameBufferSize {
				e.overflow = true
				continue
			}
			e.frame[e.used] = b
			e.used++
		}
		e.lastByte = e.now()
		return FrameReceiving, req
	}

	// A complete frame is in the buffer.
	e.state = phaseIdle

	if e.overflow {
		e.logf("modbus: frame overflowed buffer")
		return ErrOverflow, req
	}

	return e.dispatch(&req), req
}

// dispatch validates the completed frame in the buffer and works out what
// it means for this node.
func (e *Engine) dispatch(req *Request) Status {
	// Minimum request frame as a slave is 8 bytes; minimum response frame
	// as a master is 7 bytes.
	validLength := (e.used >= 8 && e.awaiting == 0) || (e.used >= 7 && e.awaiting != 0)
	if !validLength {
		e.awaiting = 0
		return ErrCorrupted
	}

	wireCRC := uint16(e.frame[e.used-2])<<8 | uint16(e.frame[e.used-1])
	if CRC16(e.frame[:e.used-2]) != wireCRC {
		e.logf("modbus: crc mismatch on %d byte frame", e.used)
		e.awaiting = 0
		return ErrCRCFailed
	}

	switch {
	case e.frame[0] == e.address && e.awaiting == 0:
		// Request addressed to this node.
		if e.frame[1] == 3 || e.frame[1] == 4 {
			req.Function = e.frame[1]
			req.StartRegister = uint16(e.frame[2])<<8 | uint16(e.frame[3])
			req.RegisterCount = uint16(e.frame[4])<<8 | uint16(e.frame[5])
			return FrameReceived
		}
		e.SendErrorResponse(e.frame[1], ErrIllegalFunction)
		return ErrIllegalFunction

	case e.frame[0] == e.awaiting:
		// Response to our own earlier request.
		e.awaiting = 0
		if e.frame[1] == 3 || e.frame[1] == 4 {
			e.hasResponse = true
			return MasterReceived
		}
		// Exception response (high bit set) or something undefined.
		return MasterError
	}

	// Traffic for some other node on the shared bus.
	return NoFrames
}
