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

//go:build !unix

package a32hook

import (
	"errors"
	"os"
)

// unsupportedMemory is used on platforms without mprotect/mmap, every permission change fails.
type unsupportedMemory struct{}

func (unsupportedMemory) PageSize() uintptr { return uintptr(os.Getpagesize()) }

func (unsupportedMemory) Read(addr, n uintptr) []byte {
	buf := make([]byte, n)
	copy(buf, bytesAt(addr, n))
	return buf
}

func (unsupportedMemory) Write(addr uintptr, data []byte) {
	copy(bytesAt(addr, uintptr(len(data))), data)
}

func (unsupportedMemory) Protect(uintptr, uintptr) error { return errors.ErrUnsupported }

func (unsupportedMemory) Alloc(uintptr) (uintptr, error) { return 0, errors.ErrUnsupported }

func (unsupportedMemory) Free(uintptr, uintptr) error { return errors.ErrUnsupported }

func (unsupportedMemory) FlushCache(uintptr, uintptr) error { return errors.ErrUnsupported }

func defaultMemory() Memory {
	return unsupportedMemory{}
}
