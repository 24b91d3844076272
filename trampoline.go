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

// trampolineReserve is the space kept after relocated instructions for the jump back and its literal.
const trampolineReserve = 20

/*
Trampoline is executable memory holding relocated prologue of hooked function, followed by
the jump to the rest of the function. Calling [Trampoline.Addr] executes the original function.

Trampoline allocated by [Hooker.InstallHook] is owned by the caller and is never freed
automatically, call [Trampoline.Release] once the original function is no longer needed.
*/
type Trampoline struct {
	mem      Memory
	base     uintptr
	capacity uintptr
	mode     Mode
	owned    bool
}

// Addr returns the address to call, with Thumb bit set for Thumb code.
// It returns 0 after the trampoline is released.
func (t *Trampoline) Addr() uintptr {
	if t == nil || t.base == 0 {
		return 0
	}
	return entry(t.base, t.mode)
}

// Mode returns the instruction set of relocated code.
func (t *Trampoline) Mode() Mode {
	return t.mode
}

// Release frees the memory allocated for trampoline. It does nothing for caller-supplied buffers
// and for already released trampolines.
func (t *Trampoline) Release() error {
	if t == nil || t.base == 0 {
		return nil
	}
	base := t.base
	t.base = 0
	if !t.owned {
		return nil
	}
	return t.mem.Free(base, t.capacity)
}

// buildTrampoline copies relocated instructions into buf and appends the jump to continuation.
// It returns nil without touching the memory when there is no buffer or it is too small.
// Buffer must be aligned to instruction size: 4 bytes for ARM, 2 bytes for Thumb.
func buildTrampoline(mem Memory, buf, capacity, target uintptr, mode Mode, fp Footprint) (*Trampoline, error) {
	if buf == 0 || capacity < fp.Size+trampolineReserve {
		return nil, nil
	}
	if buf%instrAlign(mode) != 0 {
		return nil, fmt.Errorf("%w: trampoline buffer %#x", ErrUnaligned, buf)
	}

	code := mem.Read(target, fp.Size)
	tail := buf + fp.Size
	if mode == ModeThumb {
		code = append(code, thumbJump(tail, entry(fp.Continuation, ModeThumb))...)
	} else {
		code = append(code, armJump(fp.Continuation)...)
	}
	mem.Write(buf, code)
	if err := mem.FlushCache(buf, fp.Size+trampolineReserve); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFlush, err)
	}

	return &Trampoline{mem: mem, base: buf, capacity: capacity, mode: mode}, nil
}

func instrAlign(mode Mode) uintptr {
	if mode == ModeThumb {
		return thumbInstrLength
	}
	return armInstrLength
}
