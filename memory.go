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

package a32hook

import "unsafe"

/*
Memory is the set of OS services needed to patch code in place. [NativeMemory] works with
the memory of current process, other implementations may patch remote process or emulator.

Addresses are never validated - reading or writing unmapped memory is a caller error.
*/
type Memory interface {
	// PageSize returns the granularity of Protect, Alloc and Free.
	PageSize() uintptr
	// Read returns a copy of n bytes at addr.
	Read(addr, n uintptr) []byte
	// Write stores data at addr, memory must be writable.
	Write(addr uintptr, data []byte)
	// Protect makes page-aligned range readable, writable and executable.
	Protect(addr, size uintptr) error
	// Alloc maps anonymous readable, writable and executable memory.
	Alloc(size uintptr) (uintptr, error)
	// Free unmaps memory obtained from Alloc.
	Free(addr, size uintptr) error
	// FlushCache invalidates instruction cache for the range after it was written.
	FlushCache(addr, size uintptr) error
}

// pageRange returns start and length of whole pages, covering [addr, addr+size).
func pageRange(addr, size, pageSize uintptr) (uintptr, uintptr) {
	start := addr &^ (pageSize - 1)
	end := align(addr+size, pageSize)

	return start, end - start
}

func bytesAt(addr, n uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}
