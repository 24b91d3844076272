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

const (
	armMinHookBytes   = 8
	thumbMinHookBytes = 6
)

// Footprint describes the prologue area of hooked function that is relocated to trampoline
// and overwritten with jump stub.
type Footprint struct {
	Count        int     // number of whole instructions relocated
	Size         uintptr // total length of relocated instructions, in bytes
	Continuation uintptr // address of first instruction after relocated area
}

// computeFootprint walks whole instructions starting at addr until at least minBytes are covered,
// so area boundary never falls in the middle of instruction.
func computeFootprint(mem Memory, addr uintptr, mode Mode, minBytes uintptr) Footprint {
	c := classifierFor(mode)

	var fp Footprint
	for fp.Size < minBytes {
		fp.Size += c.length(mem, addr+fp.Size)
		fp.Count++
	}
	fp.Continuation = addr + fp.Size

	return fp
}

// minHookBytes returns the number of bytes that must be relocated at addr to fit the jump stub.
func minHookBytes(addr uintptr, mode Mode, stub ThumbStub) uintptr {
	if mode == ModeARM {
		return armMinHookBytes
	}
	return max(thumbMinHookBytes, uintptr(len(thumbStub(stub, addr, 0))))
}
