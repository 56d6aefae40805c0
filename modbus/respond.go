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

// SendErrorResponse queues a Modbus exception response to a request that
// carried originalFunction. kind selects the exception code:
// ErrIllegalFunction maps to exception 0x01 and ErrIllegalAddress to
// 0x02; any other kind is rejected and nothing is sent.
func (e *Engine) SendErrorResponse(originalFunction uint8, kind Status) error {
	if e.state == phaseSending {
		return fmt.Errorf("modbus: transmission in progress")
	}

	var exception byte
	switch kind {
	case ErrIllegalFunction:
		exception = 0x01
	case ErrIllegalAddress:
		exception = 0x02
	default:
		return fmt.Errorf("modbus: %v is not a sendable error kind", kind)
	}

	// The response overwrites the shared buffer, so any unfetched master
	// response is gone.
	e.hasResponse = false

	e.frame[0] = e.address
	e.frame[1] = originalFunction | 0x80
	e.frame[2] = exception

	crc := CRC16(e.frame[:3])
	e.frame[3] = byte(crc >> 8)
	e.frame[4] = byte(crc)

	e.startSend(5)
	return nil
}

// SendNormalResponse queues a normal read response. length bytes of
// payload, starting at offset, become the response data. The resulting
// frame (3 header bytes, the data, 2 CRC bytes) must fit the frame
// buffer and originalFunction must be 3 or 4; otherwise nothing is sent.
func (e *Engine) SendNormalResponse(originalFunction uint8, payload []byte, offset, length int) error {
	if e.state == phaseSending {
		return fmt.Errorf("modbus: transmission in progress")
	}
	if originalFunction != 3 && originalFunction != 4 {
		return fmt.Errorf("modbus: function code %d not supported", originalFunction)
	}
	if length < 0 || offset < 0 || offset+length > len(payload) {
		return fmt.Errorf("modbus: payload window [%d:%d] out of range", offset, offset+length)
	}
	if length+5 > FrameBufferSize {
		return fmt.Errorf("modbus: %d byte response exceeds frame buffer", length+5)
	}

	e.hasResponse = false

	e.frame[0] = e.address
	e.frame[1] = originalFunction
	e.frame[2] = byte(length)
	copy(e.frame[3:], payload[offset:offset+length])

	crc := CRC16(e.frame[:length+3])
	e.frame[length+3] = byte(crc >> 8)
	e.frame[length+4] = byte(crc)

	e.startSend(length + 5)
	return nil
}
