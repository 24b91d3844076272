package a32hook

import (
	"errors"
	"fmt"
)

const fakePageSize = 0x1000

type memRange struct {
	addr uintptr
	size uintptr
}

type region struct {
	base uintptr
	data []byte
}

// fakeMemory is Memory made of byte slices, it records all permission changes, allocations and flushes.
type fakeMemory struct {
	regions    []*region
	protected  []memRange
	flushed    []memRange
	allocated  map[uintptr]uintptr
	nextAlloc  uintptr
	protectErr error
	allocErr   error
	flushErr   error
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{
		allocated: map[uintptr]uintptr{},
		nextAlloc: 0x40000000,
	}
}

// mapCode places code at addr, followed by a page of zeroes.
func (m *fakeMemory) mapCode(addr uintptr, code []byte) {
	data := make([]byte, len(code)+fakePageSize)
	copy(data, code)
	m.regions = append(m.regions, &region{base: addr, data: data})
}

func (m *fakeMemory) slice(addr, n uintptr) []byte {
	for _, r := range m.regions {
		if addr >= r.base && addr+n <= r.base+uintptr(len(r.data)) {
			return r.data[addr-r.base : addr-r.base+n]
		}
	}
	panic(fmt.Sprintf("access to unmapped memory [%#x, %#x)", addr, addr+n))
}

func (m *fakeMemory) PageSize() uintptr { return fakePageSize }

func (m *fakeMemory) Read(addr, n uintptr) []byte {
	return append([]byte(nil), m.slice(addr, n)...)
}

func (m *fakeMemory) Write(addr uintptr, data []byte) {
	copy(m.slice(addr, uintptr(len(data))), data)
}

func (m *fakeMemory) Protect(addr, size uintptr) error {
	if m.protectErr != nil {
		return m.protectErr
	}
	m.protected = append(m.protected, memRange{addr, size})
	return nil
}

func (m *fakeMemory) Alloc(size uintptr) (uintptr, error) {
	if m.allocErr != nil {
		return 0, m.allocErr
	}
	addr := m.nextAlloc
	m.nextAlloc += align(size, fakePageSize)
	m.regions = append(m.regions, &region{base: addr, data: make([]byte, size)})
	m.allocated[addr] = size
	return addr, nil
}

func (m *fakeMemory) Free(addr, size uintptr) error {
	if m.allocated[addr] != size {
		return errors.New("not allocated")
	}
	delete(m.allocated, addr)
	return nil
}

func (m *fakeMemory) FlushCache(addr, size uintptr) error {
	if m.flushErr != nil {
		return m.flushErr
	}
	m.flushed = append(m.flushed, memRange{addr, size})
	return nil
}
