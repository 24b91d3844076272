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

import "encoding/binary"

const (
	armLdrPC = uint32(0xE51FF004) // ldr pc, [pc, #-4]

	thumbNop     = uint16(0xBF00) // nop
	thumbPushLR  = uint16(0xB500) // push {lr}
	thumbPopPC   = uint16(0xBD00) // pop {pc}
	thumbBlxR12  = uint16(0x47E0) // blx r12
	thumbLdrWLit = uint16(0xF8DF) // ldr.w <Rt>, [pc, #+imm12], first halfword

	regR12 = 12
	regPC  = 15
)

// ThumbStub selects the code written over the prologue of Thumb function.
type ThumbStub int

const (
	// ThumbCallStub saves LR, calls the replacement with BLX and pops saved LR into PC, so
	// after replacement returns the control goes straight to the caller of hooked function.
	ThumbCallStub ThumbStub = iota
	// ThumbJumpStub is plain tail jump to the replacement, same as the one used for ARM code.
	ThumbJumpStub
)

func (s ThumbStub) String() string {
	if s == ThumbJumpStub {
		return "jump"
	}
	return "call"
}

// armJump returns absolute jump to dest, valid for ARM code at any word-aligned address.
func armJump(dest uintptr) []byte {
	code := binary.LittleEndian.AppendUint32(nil, armLdrPC)
	return binary.LittleEndian.AppendUint32(code, uint32(dest))
}

// thumbJump returns absolute jump to dest for Thumb code located at address at.
// Literal pool word must be 4-byte aligned, so NOP is prepended when needed.
func thumbJump(at, dest uintptr) []byte {
	var code []byte
	if at%4 != 0 {
		code = appendHalfwords(code, thumbNop)
	}
	code = appendHalfwords(code, thumbLdrWLit, ldrwOperand(regPC, 0))
	return binary.LittleEndian.AppendUint32(code, uint32(dest))
}

// thumbCall returns the five-halfword call sequence followed by literal dest:
//
//	push  {lr}
//	ldr.w r12, [pc, #imm]
//	blx   r12
//	pop   {pc}
//	.word dest
func thumbCall(at, dest uintptr) []byte {
	code := appendHalfwords(nil, thumbPushLR, thumbLdrWLit, 0, thumbBlxR12, thumbPopPC)
	// ldr.w is at +2, so it sees PC = at+6, rounded down to the word
	base := (at + 6) &^ 3
	literal := align(at+uintptr(len(code)), 4)
	if literal != at+uintptr(len(code)) {
		code = appendHalfwords(code, thumbNop)
	}
	binary.LittleEndian.PutUint16(code[4:], ldrwOperand(regR12, literal-base))
	return binary.LittleEndian.AppendUint32(code, uint32(dest))
}

func thumbStub(stub ThumbStub, at, dest uintptr) []byte {
	if stub == ThumbJumpStub {
		return thumbJump(at, dest)
	}
	return thumbCall(at, dest)
}

// jumpStub returns the code to write over the prologue at addr to redirect it to dest.
func jumpStub(addr uintptr, mode Mode, stub ThumbStub, dest uintptr) []byte {
	if mode == ModeThumb {
		return thumbStub(stub, addr, dest)
	}
	return armJump(dest)
}

// ldrwOperand returns the second halfword of LDR.W (literal, T2) instruction.
func ldrwOperand(rt int, imm uintptr) uint16 {
	return uint16(rt)<<12 | uint16(imm&0xFFF)
}

func appendHalfwords(b []byte, hws ...uint16) []byte {
	for _, hw := range hws {
		b = binary.LittleEndian.AppendUint16(b, hw)
	}
	return b
}

func align(v, to uintptr) uintptr {
	return (v + to - 1) &^ (to - 1)
}
