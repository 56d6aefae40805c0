package storage

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBus emulates a 23K256 behind a chip-selected SPI channel.
type fakeBus struct {
	mem    [sramSize]byte
	mode   byte
	absent bool // no chip wired up: reads float low
	broken bool // every transfer errors
}

func (b *fakeBus) Tx(w, r []byte) error {
	if b.broken {
		return errors.New("spi transfer failed")
	}
	if len(w) == 0 {
		return nil
	}
	switch w[0] {
	case opWRSR:
		b.mode = w[1]
	case opWrite:
		if b.absent {
			return nil
		}
		addr := int(w[1])<<8 | int(w[2])
		for i := 3; i < len(w); i++ {
			b.mem[(addr+i-3)%sramSize] = w[i]
		}
	case opRead:
		addr := int(w[1])<<8 | int(w[2])
		for i := 3; i < len(r); i++ {
			if b.absent {
				r[i] = 0
			} else {
				r[i] = b.mem[(addr+i-3)%sramSize]
			}
		}
	}
	return nil
}

func TestSRAMInitProbe(t *testing.T) {
	bus := &fakeBus{}
	s := NewSRAMStore(bus)
	require.NoError(t, s.Init())

	// Init clears the whole chip, probe byte included.
	assert.Equal(t, byte(0), bus.mem[0])
}

func TestSRAMInitChipAbsent(t *testing.T) {
	s := NewSRAMStore(&fakeBus{absent: true})
	assert.Error(t, s.Init())
}

func TestSRAMInitBusBroken(t *testing.T) {
	s := NewSRAMStore(&fakeBus{broken: true})
	assert.Error(t, s.Init())
}

func TestSRAMSaveAndRead(t *testing.T) {
	s := NewSRAMStore(&fakeBus{})
	require.NoError(t, s.Init())

	data := []byte{0x31, 9, 8, 7, 6}
	assert.Equal(t, len(data), s.SaveNodeData(2, data))
	assert.Equal(t, uint8(0x31), s.NodeHeader(2))

	dst := make([]byte, len(data))
	n := s.ReadNodeData(2, dst, 0)
	require.Equal(t, len(data), n)
	assert.True(t, bytes.Equal(data, dst))

	// Offset read within the node slot.
	dst = make([]byte, 2)
	n = s.ReadNodeData(2, dst, 3)
	require.Equal(t, 2, n)
	assert.True(t, bytes.Equal(data[3:5], dst))
}

func TestSRAMSlotIsolation(t *testing.T) {
	s := NewSRAMStore(&fakeBus{})
	require.NoError(t, s.Init())

	s.SaveNodeData(1, []byte{0x11, 1, 1})
	s.SaveNodeData(2, []byte{0x22, 2, 2})

	assert.Equal(t, uint8(0x11), s.NodeHeader(1))
	assert.Equal(t, uint8(0x22), s.NodeHeader(2))

	s.DeleteNode(1)
	assert.Equal(t, uint8(0), s.NodeHeader(1))
	assert.Equal(t, uint8(0x22), s.NodeHeader(2))
}

func TestSRAMClampsToNodeCeiling(t *testing.T) {
	s := NewSRAMStore(&fakeBus{})
	require.NoError(t, s.Init())

	data := make([]byte, 150)
	for i := range data {
		data[i] = byte(i%250 + 1)
	}
	assert.Equal(t, MaxNodeData, s.SaveNodeData(1, data))

	// A write clamped to 100 bytes must not bleed into node 2's slot.
	assert.Equal(t, uint8(0), s.NodeHeader(2))

	dst := make([]byte, 150)
	assert.Equal(t, MaxNodeData, s.ReadNodeData(1, dst, 0))
	assert.True(t, bytes.Equal(data[:MaxNodeData], dst[:MaxNodeData]))
}
