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

package storage

import "fmt"

// 23K256 instruction set.
const (
	opRead  = 0x03
	opWrite = 0x02
	opRDSR  = 0x05
	opWRSR  = 0x01
)

// 23K256 operating modes (status register values, hold disabled).
const (
	modeByte       = 0x01
	modePage       = 0x81
	modeSequential = 0x41
)

// sramSize is the capacity of the 23K256 in bytes.
const sramSize = 32768

// Bus is a chip-selected SPI channel to the 23K256. Tx clocks w out
// while reading the same number of bytes into r; either slice may be
// nil. The bus asserts chip select for the duration of one Tx call.
type Bus interface {
	Tx(w, r []byte) error
}

// SRAMStore keeps node data on a 23K256 SPI SRAM chip. Every node owns a
// fixed 100 byte slot at id*100.
type SRAMStore struct {
	bus         Bus
	mode        byte
	initialized bool
}

// NewSRAMStore creates an uninitialized store on bus.
func NewSRAMStore(bus Bus) *SRAMStore {
	return &SRAMStore{bus: bus}
}

// Init probes for the chip by writing a known byte to address 0 and
// reading it back. On success the whole chip is cleared.
func (s *SRAMStore) Init() error {
	if s.bus == nil {
		return fmt.Errorf("storage: no SPI bus configured")
	}
	s.mode = 0

	const probe = 0xAA
	if err := s.writeByte(0, probe); err != nil {
		return fmt.Errorf("storage: probe write: %w", err)
	}
	got, err := s.readByte(0)
	if err != nil {
		return fmt.Errorf("storage: probe read: %w", err)
	}
	if got != probe {
		return fmt.Errorf("storage: no 23K256 detected (read %#02x)", got)
	}

	if err := s.writeSequence(0, make([]byte, sramSize)); err != nil {
		return fmt.Errorf("storage: clear: %w", err)
	}

	s.initialized = true
	return nil
}

func (s *SRAMStore) setMode(mode byte) error {
	if mode == s.mode {
		return nil
	}
	if err := s.bus.Tx([]byte{opWRSR, mode}, nil); err != nil {
		return err
	}
	s.mode = mode
	return nil
}

func (s *SRAMStore) readByte(addr uint16) (byte, error) {
	if err := s.setMode(modeByte); err != nil {
		return 0, err
	}
	w := []byte{opRead, byte(addr >> 8), byte(addr), 0}
	r := make([]byte, len(w))
	if err := s.bus.Tx(w, r); err != nil {
		return 0, err
	}
	return r[3], nil
}

func (s *SRAMStore) writeByte(addr uint16, b byte) error {
	if err := s.setMode(modeByte); err != nil {
		return err
	}
	return s.bus.Tx([]byte{opWrite, byte(addr >> 8), byte(addr), b}, nil)
}

func (s *SRAMStore) readSequence(addr uint16, dst []byte) error {
	if err := s.setMode(modeSequential); err != nil {
		return err
	}
	w := make([]byte, 3+len(dst))
	w[0] = opRead
	w[1] = byte(addr >> 8)
	w[2] = byte(addr)
	r := make([]byte, len(w))
	if err := s.bus.Tx(w, r); err != nil {
		return err
	}
	copy(dst, r[3:])
	return nil
}

func (s *SRAMStore) writeSequence(addr uint16, data []byte) error {
	if err := s.setMode(modeSequential); err != nil {
		return err
	}
	w := make([]byte, 3+len(data))
	w[0] = opWrite
	w[1] = byte(addr >> 8)
	w[2] = byte(addr)
	copy(w[3:], data)
	return s.bus.Tx(w, nil)
}

// NodeHeader returns the first byte of a node's slot, 0 when absent.
func (s *SRAMStore) NodeHeader(id uint8) uint8 {
	if !s.initialized || id == 0 {
		return 0
	}
	b, err := s.readByte(uint16(id) * MaxNodeData)
	if err != nil {
		return 0
	}
	return b
}

// ReadNodeData copies up to len(dst) bytes of a node's slot into dst,
// skipping offset bytes. The window is clamped to MaxNodeData.
func (s *SRAMStore) ReadNodeData(id uint8, dst []byte, offset int) int {
	if !s.initialized || id == 0 || offset < 0 {
		return 0
	}
	if s.NodeHeader(id) == 0 {
		return 0
	}

	length := len(dst)
	if length+offset > MaxNodeData {
		length = MaxNodeData - offset
	}
	if length <= 0 {
		return 0
	}

	addr := int(id)*MaxNodeData + offset
	if err := s.readSequence(uint16(addr), dst[:length]); err != nil {
		return 0
	}
	return length
}

// SaveNodeData writes data into a node's slot, clamped to MaxNodeData.
func (s *SRAMStore) SaveNodeData(id uint8, data []byte) int {
	if !s.initialized || id == 0 {
		return 0
	}

	length := len(data)
	if length > MaxNodeData {
		length = MaxNodeData
	}
	if err := s.writeSequence(uint16(id)*MaxNodeData, data[:length]); err != nil {
		return 0
	}
	return length
}

// DeleteNode clears a node's header byte.
func (s *SRAMStore) DeleteNode(id uint8) {
	if !s.initialized || id == 0 {
		return
	}
	s.writeByte(uint16(id)*MaxNodeData, 0)
}
