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

import "fmt"

// protectSlack is added to the relocated area when changing page permissions,
// so the range always covers the jump stub literal.
const protectSlack = 8

// patchTarget overwrites the prologue of the function at target with the jump to replacement.
// Trampoline, if any, must be complete and flushed before this is called.
func patchTarget(mem Memory, target uintptr, mode Mode, fp Footprint, stub ThumbStub, replacement uintptr) error {
	start, size := pageRange(target, fp.Size+protectSlack, mem.PageSize())
	if err := mem.Protect(start, size); err != nil {
		return fmt.Errorf("%w [%#x, %#x): %w", ErrProtect, start, start+size, err)
	}

	mem.Write(target, jumpStub(target, mode, stub, replacement))
	if err := mem.FlushCache(target, fp.Size); err != nil {
		return fmt.Errorf("%w: %w", ErrFlush, err)
	}

	return nil
}
