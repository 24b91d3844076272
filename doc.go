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

/*
Package a32hook allows to intercept native functions in 32-bit ARM processes by overwriting
the beginning of the function ("inline hook") with the jump to replacement function.

# Platforms supported

This package modifies actual executable at runtime, therefore is OS- and CPU arch-specific.
Hooks can be installed into the current process on Linux/Android ARM (both ARM and Thumb code).
On other platforms the code can be patched through custom [Memory] implementation only.

# How it works

The first few instructions of target function are copied to [Trampoline] and followed by the jump
to the rest of the function, so calling trampoline executes the original function. Then the
instructions are overwritten with jump stub:

  - ARM:   ldr pc, [pc, #-4]; .word replacement
  - Thumb: push {lr}; ldr.w r12, [pc, #imm]; blx r12; pop {pc}; .word replacement

Thumb stub calls the replacement, and when it returns the control goes to the caller of hooked
function. [ThumbJumpStub] replaces it with plain jump.

Instructions, copied to trampoline, are not relocated, so PC-relative loads and branches in the
overwritten prologue break the trampoline. Such instructions are reported in [Hook.PCRelative]
and logged.

Typical use:

	// replacement and target are C functions with matching signatures
	orig, err := a32hook.InstallHook(uintptr(C.target_addr()), uintptr(C.replacement_addr()), true)
	if err != nil {
	    return err
	}
	defer orig.Release()   // only once the original function is not needed anymore
	...
	C.call_via(unsafe.Pointer(orig.Addr()))  // calls original function

Neither hooking the same function twice nor removing the hook is supported.
*/
package a32hook
