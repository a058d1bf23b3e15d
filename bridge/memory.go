package bridge

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/hle"
	"github.com/wippyai/hle/errors"
)

// WrapMemory adapts a wazero memory to hle.Memory.
func WrapMemory(mem api.Memory) hle.Memory {
	if mem == nil {
		return nil
	}
	return &memory{mem: mem}
}

type memory struct {
	mem api.Memory
}

func (m *memory) outOfBounds(offset, length uint32) error {
	return errors.OutOfBounds(errors.PhaseBridge, int(length), int(m.mem.Size()), int(offset))
}

// Read returns a copy, so later guest writes do not show through.
func (m *memory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, m.outOfBounds(offset, length)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *memory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return m.outOfBounds(offset, uint32(len(data)))
	}
	return nil
}

func (m *memory) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, m.outOfBounds(offset, 4)
	}
	return v, nil
}

func (m *memory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return m.outOfBounds(offset, 4)
	}
	return nil
}

func (m *memory) Size() uint32 { return m.mem.Size() }
