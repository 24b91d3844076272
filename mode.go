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

// Mode is the instruction set the code at some address is encoded in.
type Mode int

const (
	ModeARM Mode = iota
	ModeThumb
)

const thumbBit = uintptr(1)

func (m Mode) String() string {
	if m == ModeThumb {
		return "thumb"
	}
	return "arm"
}

// resolve splits function pointer into real instruction address and mode.
// Odd pointers refer to Thumb code, as in ARM interworking calling convention.
func resolve(ptr uintptr) (uintptr, Mode) {
	if ptr&thumbBit != 0 {
		return ptr &^ thumbBit, ModeThumb
	}
	return ptr, ModeARM
}

// entry returns the address to branch to in order to execute code at addr in given mode.
func entry(addr uintptr, mode Mode) uintptr {
	if mode == ModeThumb {
		return addr | thumbBit
	}
	return addr
}
