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

import "fmt"

// MasterRead queues a read request to another node and returns
// immediately. Keep calling Poll: MasterReceived means the response is in
// the buffer and can be fetched with MasterResponse, MasterError means
// the slave answered with an exception. An unanswered request is
// abandoned after one second; the engine does not retry.
func (e *Engine) MasterRead(node, function uint8, start, quantity uint16) error {
	if node < 1 || node > 254 {
		return fmt.Errorf("modbus: node address %d out of range", node)
	}
	if function != 3 && function != 4 {
		return fmt.Errorf("modbus: function code %d not supported", function)
	}
	if quantity == 0 {
		return fmt.Errorf("modbus: quantity must be positive")
	}
	// The response (2 bytes per register plus 5 bytes of framing) has to
	// fit the shared buffer.
	if int(quantity)*2+5 > FrameBufferSize {
		return fmt.Errorf("modbus: response for %d registers exceeds frame buffer", quantity)
	}
	if e.state != phaseIdle || e.awaiting != 0 {
		return fmt.Errorf("modbus: engine busy")
	}

	// Drop anything left over from an earlier exchange so it cannot be
	// mistaken for the response to this one.
	e.Flush()

	e.frame[0] = node
	e.frame[1] = function
	e.frame[2] = byte(start >> 8)
	e.frame[3] = byte(start)
	e.frame[4] = byte(quantity >> 8)
	e.frame[5] = byte(quantity)

	crc := CRC16(e.frame[:6])
	e.frame[6] = byte(crc >> 8)
	e.frame[7] = byte(crc)

	e.awaiting = node
	e.startSend(8)
	e.requestSent = e.now()

	return nil
}

// MasterResponse copies the payload of the latest master response into
// dst and returns the number of bytes copied. It returns 0 when no
// response is buffered, when dst is too small, or when the received
// length does not match the byte count declared inside the frame.
//
// Call it right after Poll returned MasterReceived; the next receive or
// send overwrites the buffer.
func (e *Engine) MasterResponse(dst []byte) int {
	if !e.hasResponse {
		return 0
	}
	payload := e.used - 5
	// Both checks on purpose: the payload must fit the caller's buffer
	// and agree with the byte count field. A frame that passes CRC but
	// disagrees on length is dropped rather than trusted.
	if payload <= len(dst) && payload == int(e.frame[2]) {
		copy(dst, e.frame[3:3+payload])
		return payload
	}
	return 0
}
