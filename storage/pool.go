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

const (
	// poolChunks and chunkDataSize size the pool: 13 data bytes fit one
	// battery node per chunk, a pulse node takes two chunks.
	poolChunks    = 10
	chunkDataSize = 13

	// Each chunk is prefixed with the node id and the chunk ordinal.
	chunkHeaderSize = 2
	chunkRawSize    = chunkDataSize + chunkHeaderSize
)

// PoolStore keeps node data in a fixed pool of small chunks. A chunk
// whose first byte is 0 is free; long node data spans several chunks
// linked by their ordinal byte.
type PoolStore struct {
	pool        [][]byte
	freeChunks  int
	initialized bool
}

// NewPoolStore creates an uninitialized pool store.
func NewPoolStore() *PoolStore {
	return &PoolStore{}
}

// Init allocates the chunk pool.
func (s *PoolStore) Init() error {
	s.pool = make([][]byte, poolChunks)
	for i := range s.pool {
		s.pool[i] = make([]byte, chunkRawSize)
	}
	s.freeChunks = poolChunks
	s.initialized = true
	return nil
}

// allocate hands out a free chunk, nil when the pool is exhausted.
func (s *PoolStore) allocate() []byte {
	for _, chunk := range s.pool {
		if chunk[0] == 0 {
			s.freeChunks--
			return chunk
		}
	}
	return nil
}

// NodeHeader returns the first data byte of a node, 0 when absent.
func (s *PoolStore) NodeHeader(id uint8) uint8 {
	if !s.initialized || id == 0 {
		return 0
	}
	for _, chunk := range s.pool {
		if chunk[0] == id && chunk[1] == 0 {
			return chunk[2]
		}
	}
	return 0
}

// SaveNodeData stores data for a node. Anything saved before is deleted
// first, even when the new data does not fit; with too few free chunks
// nothing is written and 0 is returned. Data is clamped to MaxNodeData.
func (s *PoolStore) SaveNodeData(id uint8, data []byte) int {
	if !s.initialized || id == 0 {
		return 0
	}

	length := len(data)
	if length > MaxNodeData {
		length = MaxNodeData
	}

	// Reusing old chunks is not worth it: the node type, and with it the
	// data length, can change between saves.
	s.DeleteNode(id)

	needed := (length + chunkDataSize - 1) / chunkDataSize
	if needed > s.freeChunks {
		return 0
	}

	end := 0
	for i := 0; i < needed; i++ {
		chunk := s.allocate()
		chunk[0] = id
		chunk[1] = byte(i)

		start := i * chunkDataSize
		end = start + chunkDataSize
		if end > length {
			end = length
		}
		copy(chunk[chunkHeaderSize:], data[start:end])
	}
	return end
}

// ReadNodeData copies up to len(dst) bytes of a node's data into dst,
// skipping offset bytes. The window is clamped to MaxNodeData.
func (s *PoolStore) ReadNodeData(id uint8, dst []byte, offset int) int {
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

	chunks := (length + offset + chunkDataSize - 1) / chunkDataSize
	written := 0
	for ordinal := 0; ordinal < chunks; ordinal++ {
		for _, chunk := range s.pool {
			if chunk[0] != id || int(chunk[1]) != ordinal {
				continue
			}
			start := chunkHeaderSize + offset
			if start >= chunkRawSize {
				// The whole chunk falls inside the skipped prefix.
				offset -= chunkDataSize
				break
			}
			offset = 0
			for i := start; i < chunkRawSize; i++ {
				dst[written] = chunk[i]
				written++
				if written == length {
					return written
				}
			}
			break
		}
	}
	return written
}

// DeleteNode frees every chunk belonging to a node.
func (s *PoolStore) DeleteNode(id uint8) {
	if !s.initialized || id == 0 {
		return
	}
	for _, chunk := range s.pool {
		if chunk[0] == id {
			chunk[0] = 0
			s.freeChunks++
		}
	}
}
