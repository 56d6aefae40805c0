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

// Handler is the backend-selecting Store the rest of the firmware talks
// to. Init probes for the external 23K256 chip and falls back to the
// internal chunk pool when none answers; the choice is transparent to
// callers.
type Handler struct {
	external        *SRAMStore
	pool            *PoolStore
	active          Store
	hasExternalSRAM bool
	initialized     bool
}

// NewHandler creates a handler. bus may be nil when no external SRAM is
// wired up; the pool is then used directly.
func NewHandler(bus Bus) *Handler {
	h := &Handler{pool: NewPoolStore()}
	if bus != nil {
		h.external = NewSRAMStore(bus)
	}
	return h
}

// Init selects and prepares a backend. It only fails when neither
// backend comes up, which the pool never does.
func (h *Handler) Init() error {
	if h.external != nil {
		if err := h.external.Init(); err == nil {
			h.active = h.external
			h.hasExternalSRAM = true
			h.initialized = true
			return nil
		}
	}
	if err := h.pool.Init(); err != nil {
		return err
	}
	h.active = h.pool
	h.hasExternalSRAM = false
	h.initialized = true
	return nil
}

// HasExternalSRAM reports whether the external chip is in use.
func (h *Handler) HasExternalSRAM() bool {
	return h.hasExternalSRAM
}

func (h *Handler) NodeHeader(id uint8) uint8 {
	if !h.initialized {
		return 0
	}
	return h.active.NodeHeader(id)
}

func (h *Handler) ReadNodeData(id uint8, dst []byte, offset int) int {
	if !h.initialized {
		return 0
	}
	return h.active.ReadNodeData(id, dst, offset)
}

func (h *Handler) SaveNodeData(id uint8, data []byte) int {
	if !h.initialized {
		return 0
	}
	return h.active.SaveNodeData(id, data)
}

func (h *Handler) DeleteNode(id uint8) {
	if !h.initialized {
		return
	}
	h.active.DeleteNode(id)
}
