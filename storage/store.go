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

// Package storage keeps per-node sensor data in one of two backends: an
// external 23K256 SPI SRAM chip or an internal chunked memory pool. The
// Handler facade probes for the chip and falls back to the pool, so
// callers never care which backend holds the data.
package storage

// MaxNodeData is the per-node data ceiling in bytes. Reads and writes
// are silently clamped to it; the returned byte count, not the requested
// one, is authoritative.
const MaxNodeData = 100

// Store is the node-data interface the rest of the firmware uses.
//
// A node's header is the first byte of its saved data and doubles as an
// existence check: 0 means the node is absent, so headers of stored
// nodes must be non-zero.
type Store interface {
	// Init prepares the backend. Must be called before anything else.
	Init() error
	// NodeHeader returns the header byte of a node, 0 when absent.
	NodeHeader(id uint8) uint8
	// ReadNodeData copies up to len(dst) bytes of a node's data into
	// dst, skipping offset bytes first, and returns the number copied.
	ReadNodeData(id uint8, dst []byte, offset int) int
	// SaveNodeData stores data for a node, replacing anything saved
	// before, and returns the number of bytes written.
	SaveNodeData(id uint8, data []byte) int
	// DeleteNode removes a node's data.
	DeleteNode(id uint8)
}
