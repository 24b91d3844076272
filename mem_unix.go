// This file is part of a32hook project, available at https://github.com/qrdl/a32hook
// Copyright (c) 2024 Ilya Caramishev. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at https://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build unix

package a32hook

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

const protRWX = unix.PROT_READ | unix.PROT_WRITE | unix.PROT_EXEC

// NativeMemory patches the code of current process.
type NativeMemory struct {
	mu       sync.Mutex
	mappings map[uintptr][]byte
}

// NewNativeMemory returns [Memory] backed by the address space of current process.
func NewNativeMemory() *NativeMemory {
	return &NativeMemory{mappings: map[uintptr][]byte{}}
}

func (m *NativeMemory) PageSize() uintptr {
	return uintptr(os.Getpagesize())
}

func (m *NativeMemory) Read(addr, n uintptr) []byte {
	buf := make([]byte, n)
	copy(buf, bytesAt(addr, n))
	return buf
}

func (m *NativeMemory) Write(addr uintptr, data []byte) {
	copy(bytesAt(addr, uintptr(len(data))), data)
}

func (m *NativeMemory) Protect(addr, size uintptr) error {
	start, sz := pageRange(addr, size, m.PageSize())

	return unix.Mprotect(bytesAt(start, sz), protRWX)
}

func (m *NativeMemory) Alloc(size uintptr) (uintptr, error) {
	mapping, err := unix.Mmap(-1, 0, int(size), protRWX, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return 0, err
	}
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(mapping)))

	m.mu.Lock()
	m.mappings[addr] = mapping
	m.mu.Unlock()

	return addr, nil
}

func (m *NativeMemory) Free(addr, size uintptr) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mapping, ok := m.mappings[addr]
	if !ok {
		return fmt.Errorf("no mapping at %#x", addr)
	}
	if uintptr(len(mapping)) != size {
		return fmt.Errorf("mapping at %#x has size %#x, not %#x", addr, len(mapping), size)
	}
	if err := unix.Munmap(mapping); err != nil {
		return err
	}
	delete(m.mappings, addr)

	return nil
}

func (m *NativeMemory) FlushCache(addr, size uintptr) error {
	return flushCache(addr, size) // arch-specific
}

func defaultMemory() Memory {
	return NewNativeMemory()
}
