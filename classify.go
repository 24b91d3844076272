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
	armInstrLength   = 4
	thumbInstrLength = 2
	thumb2Length     = 4
)

// classifier finds instruction boundaries without decoding operands.
type classifier interface {
	length(mem Memory, addr uintptr) uintptr
}

type armClassifier struct{}

func (armClassifier) length(Memory, uintptr) uintptr {
	return armInstrLength
}

type thumbClassifier struct{}

func (thumbClassifier) length(mem Memory, addr uintptr) uintptr {
	if isThumb2(binary.LittleEndian.Uint16(mem.Read(addr, thumbInstrLength))) {
		return thumb2Length
	}
	return thumbInstrLength
}

// isThumb2 reports whether hw is the first halfword of 32-bit Thumb-2 instruction.
// Top five bits 0b11101 (load/store multiple, table branch, coprocessor),
// 0b11110 (BL/BLX, B.W, data processing) and 0b11111 (load/store) introduce 32-bit encodings.
func isThumb2(hw uint16) bool {
	return hw&0xF800 >= 0xE800
}

func classifierFor(mode Mode) classifier {
	if mode == ModeThumb {
		return thumbClassifier{}
	}
	return armClassifier{}
}
