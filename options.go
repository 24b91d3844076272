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

import "github.com/apex/log"

// Option configures [Hooker].
type Option func(*Hooker)

// WithMemory makes [Hooker] patch code through mem instead of memory of current process.
func WithMemory(mem Memory) Option {
	return func(h *Hooker) {
		h.mem = mem
	}
}

// WithLogger sets the sink for diagnostic messages, default is [log.Log].
func WithLogger(logger log.Interface) Option {
	return func(h *Hooker) {
		h.log = logger
	}
}

// WithThumbStub selects the code written over Thumb functions, default is [ThumbCallStub].
func WithThumbStub(stub ThumbStub) Option {
	return func(h *Hooker) {
		h.stub = stub
	}
}
