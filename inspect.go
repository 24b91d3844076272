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

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/arch/arm/armasm"
)

// pcRelative lists relocated instructions which depend on their own address. Such instructions
// are copied to trampoline as is, therefore they misbehave when trampoline is called.
func pcRelative(code []byte, addr uintptr, mode Mode) []string {
	if mode == ModeThumb {
		return pcRelativeThumb(code, addr)
	}
	return pcRelativeARM(code, addr)
}

func pcRelativeARM(code []byte, addr uintptr) []string {
	var found []string
	for off := 0; off+armInstrLength <= len(code); off += armInstrLength {
		inst, err := armasm.Decode(code[off:], armasm.ModeARM)
		if err != nil {
			continue // undecodable, cannot tell
		}
		if readsPC(inst) {
			found = append(found, fmt.Sprintf("%#x: %s", addr+uintptr(off), inst))
		}
	}
	return found
}

// readsPC reports whether PC is used as a source operand, writing PC (e.g. pop {pc}) is fine.
func readsPC(inst armasm.Inst) bool {
	for i, arg := range inst.Args {
		switch a := arg.(type) {
		case armasm.PCRel:
			return true
		case armasm.Mem:
			if a.Base == armasm.PC || a.Index == armasm.PC {
				return true
			}
		case armasm.Reg:
			if i > 0 && a == armasm.PC {
				return true
			}
		}
	}
	return false
}

func pcRelativeThumb(code []byte, addr uintptr) []string {
	var found []string
	for off := 0; off+thumbInstrLength <= len(code); {
		hw := binary.LittleEndian.Uint16(code[off:])
		if isThumb2(hw) {
			if off+thumb2Length > len(code) {
				break
			}
			hw2 := binary.LittleEndian.Uint16(code[off+thumbInstrLength:])
			if thumb2ReadsPC(hw, hw2) {
				found = append(found, fmt.Sprintf("%#x: %04x %04x", addr+uintptr(off), hw, hw2))
			}
			off += thumb2Length
			continue
		}
		if thumbReadsPC(hw) {
			found = append(found, fmt.Sprintf("%#x: %04x", addr+uintptr(off), hw))
		}
		off += thumbInstrLength
	}
	return found
}

func thumbReadsPC(hw uint16) bool {
	switch {
	case hw&0xF800 == 0x4800: // ldr rd, [pc, #imm]
		return true
	case hw&0xF800 == 0xA000: // adr rd, label
		return true
	case hw&0xF000 == 0xD000 && hw&0x0F00 < 0x0E00: // b<cond>, excluding udf and svc
		return true
	case hw&0xF800 == 0xE000: // b
		return true
	case hw&0xF500 == 0xB100: // cbz, cbnz
		return true
	case hw&0xFC00 == 0x4400 && (hw>>3)&0xF == regPC: // add/mov/cmp rd, pc
		return true
	}
	return false
}

func thumb2ReadsPC(hw1, hw2 uint16) bool {
	switch {
	case hw1&0xF800 == 0xF000 && hw2&0x8000 == 0x8000: // b.w, b<cond>.w, bl, blx
		return true
	case hw1&0xFE1F == 0xF81F: // ldr{b,h,sb,sh}.w rt, [pc, #imm]
		return true
	case hw1&0xFBFF == 0xF20F, hw1&0xFBFF == 0xF2AF: // adr.w
		return true
	case hw1 == 0xE8DF: // tbb/tbh [pc, rm]
		return true
	}
	return false
}
