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

// startSend hands the first n buffer bytes to the port for asynchronous
// transmission. It waits out the remaining inter-frame silence first;
// this is the only blocking point in the engine and it is bounded by the
// inter-frame delay (at most 1750 us above 19200 baud).
func (e *Engine) startSend(n int) {
	e.state = phaseSending

	if wait := e.interFrame - e.now().Sub(e.lastByte); wait > 0 {
		e.sleep(wait)
	}

	if e.dir != nil {
		e.dir.SetTxEnable(true)
		e.sleep(txEnableSettle)
	}

	if _, err := e.port.Write(e.frame[:n]); err != nil {
		e.logf("modbus: write failed: %v", err)
	}
}

// finishSend releases the bus once the hardware reports the last byte on
// the wire.
func (e *Engine) finishSend() {
	e.state = phaseIdle
	if e.dir != nil {
		e.dir.SetTxEnable(false)
	}
}
