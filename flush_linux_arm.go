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

//go:build linux && arm

package a32hook

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// __ARM_NR_cacheflush, ARM private syscall
const sysCacheflush = 0x0f0002

// ARM doesn't automatically invalidate instruction cache so manual flushing needed
// after changing memory page with executable code.
func flushCache(addr, size uintptr) error {
	if _, _, errno := unix.Syscall(sysCacheflush, addr, addr+size, 0); errno != 0 {
		return fmt.Errorf("cacheflush [%#x, %#x): %w", addr, addr+size, errno)
	}
	return nil
}
