package bus_test

import "github.com/edujime23/warden/bus"

// mockDevice is a tiny hand-written test double, in the spirit of the
// teacher's mockengine.go/mockconnection.go rather than a generated mock.
type mockDevice struct {
	base, size uint64
	caps       bus.Caps
	mem        []byte
	writeErr   error
}

func newMockDevice(base, size uint64, caps bus.Caps) *mockDevice {
	return &mockDevice{base: base, size: size, caps: caps, mem: make([]byte, size)}
}

func (m *mockDevice) Region() (uint64, uint64) { return m.base, m.size }
func (m *mockDevice) Caps() bus.Caps           { return m.caps }

func (m *mockDevice) Read(offset, count uint64) ([]byte, error) {
	out := make([]byte, count)
	copy(out, m.mem[offset:offset+count])
	return out, nil
}

func (m *mockDevice) Write(offset uint64, data []byte) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	copy(m.mem[offset:], data)
	return nil
}
