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
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/apex/log"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnaligned       = errors.New("address is not aligned to instruction size")
	ErrDoubleHook      = errors.New("function is already hooked")
	ErrProtect         = errors.New("cannot make memory writable")
	ErrAlloc           = errors.New("cannot allocate trampoline memory")
	ErrFlush           = errors.New("cannot invalidate instruction cache")
)

// Hook holds information about installed hook.
type Hook struct {
	Target      uintptr // address of the first instruction, without Thumb bit
	Replacement uintptr
	Mode        Mode
	Footprint   Footprint
	Original    []byte      // overwritten prologue
	Trampoline  *Trampoline // nil if not requested or didn't fit into the buffer
	PCRelative  []string    // relocated instructions that won't work from trampoline
}

/*
Hooker installs inline hooks and keeps the records of hooked functions. Hooking the same function
twice with the same Hooker fails with [ErrDoubleHook], there is no way to remove the hook.

Hooker doesn't stop other threads, if hooked function may be executed concurrently with
patching, it is up to the caller to prevent it.
*/
type Hooker struct {
	mem   Memory
	log   log.Interface
	stub  ThumbStub
	mu    sync.Mutex
	hooks map[uintptr]*Hook
}

// New returns Hooker, patching the code of current process unless [WithMemory] is specified.
func New(opts ...Option) *Hooker {
	h := &Hooker{
		log:   log.Log,
		stub:  ThumbCallStub,
		hooks: map[uintptr]*Hook{},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.mem == nil {
		h.mem = defaultMemory()
	}
	return h
}

var defaultHooker = sync.OnceValue(func() *Hooker { return New() })

// InstallHook hooks target function in current process with default [Hooker], see [Hooker.InstallHook].
func InstallHook(target, replacement uintptr, wantTrampoline bool) (*Trampoline, error) {
	return defaultHooker().InstallHook(target, replacement, wantTrampoline)
}

// InstallHookWithBuffer hooks target function in current process with default [Hooker],
// see [Hooker.InstallHookWithBuffer].
func InstallHookWithBuffer(target, replacement, buf, size uintptr) (uintptr, error) {
	return defaultHooker().InstallHookWithBuffer(target, replacement, buf, size)
}

// Hooks returns the hooks installed with default [Hooker].
func Hooks() []Hook {
	return defaultHooker().Hooks()
}

/*
InstallHook overwrites the prologue of target function with the jump to replacement. Odd target
address means Thumb code.

If wantTrampoline is true, one page of executable memory is allocated for [Trampoline], that
allows to call the original function. The caller owns it and should [Trampoline.Release] it when
no longer needed. On failure the page is freed and target is left untouched, unless it failed
halfway through changing memory protection.
*/
func (h *Hooker) InstallHook(target, replacement uintptr, wantTrampoline bool) (*Trampoline, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, err := h.plan(target, replacement)
	if err != nil {
		return nil, err
	}
	if !wantTrampoline {
		_, err = h.apply(p, 0, 0, false)
		return nil, err
	}

	size := h.mem.PageSize()
	buf, err := h.mem.Alloc(size)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrAlloc, err)
		h.entry(p).WithError(err).Error("hook failed")
		return nil, err
	}

	hook, err := h.apply(p, buf, size, true)
	if err != nil {
		if e := h.mem.Free(buf, size); e != nil {
			h.entry(p).WithError(e).Error("cannot free trampoline memory")
			err = errors.Join(err, e)
		}
		return nil, err
	}

	return hook.Trampoline, nil
}

/*
InstallHookWithBuffer overwrites the prologue of target function with the jump to replacement and
builds the trampoline in caller-supplied executable buffer of given size. It returns the address
to call the original function, or 0 if buf is 0 or too small to hold the trampoline - the target
is hooked anyway. Buffer must be word-aligned for ARM target and halfword-aligned for Thumb one,
otherwise [ErrUnaligned] is returned and target is left untouched. Buffer is never freed by Hooker.
*/
func (h *Hooker) InstallHookWithBuffer(target, replacement, buf, size uintptr) (uintptr, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, err := h.plan(target, replacement)
	if err != nil {
		return 0, err
	}
	hook, err := h.apply(p, buf, size, false)
	if err != nil {
		return 0, err
	}

	return hook.Trampoline.Addr(), nil
}

// Hooks returns installed hooks, ordered by target address.
func (h *Hooker) Hooks() []Hook {
	h.mu.Lock()
	defer h.mu.Unlock()

	hooks := make([]Hook, 0, len(h.hooks))
	for _, hook := range h.hooks {
		hooks = append(hooks, *hook)
	}
	slices.SortFunc(hooks, func(a, b Hook) int {
		switch {
		case a.Target < b.Target:
			return -1
		case a.Target > b.Target:
			return 1
		}
		return 0
	})

	return hooks
}

// Lookup returns the hook installed for target, Thumb bit is ignored.
func (h *Hooker) Lookup(target uintptr) (Hook, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	addr, _ := resolve(target)
	hook, ok := h.hooks[addr]
	if !ok {
		return Hook{}, false
	}
	return *hook, true
}

type plan struct {
	target      uintptr
	replacement uintptr
	mode        Mode
	fp          Footprint
}

// plan checks the arguments and finds out what is going to be relocated, memory is only read.
func (h *Hooker) plan(target, replacement uintptr) (plan, error) {
	p := plan{target: target, replacement: replacement}
	if target == 0 || replacement == 0 {
		err := fmt.Errorf("%w: target %#x, replacement %#x", ErrInvalidArgument, target, replacement)
		h.entry(p).WithError(err).Error("hook failed")
		return p, err
	}

	p.target, p.mode = resolve(target)
	if p.mode == ModeARM && p.target%armInstrLength != 0 {
		err := fmt.Errorf("%w: %#x", ErrUnaligned, p.target)
		h.entry(p).WithError(err).Error("hook failed")
		return p, err
	}
	if _, ok := h.hooks[p.target]; ok {
		err := fmt.Errorf("%w: %#x", ErrDoubleHook, p.target)
		h.entry(p).WithError(err).Error("hook failed")
		return p, err
	}

	p.fp = computeFootprint(h.mem, p.target, p.mode, minHookBytes(p.target, p.mode, h.stub))

	return p, nil
}

// apply builds the trampoline first and only then patches the target, so if anything fails
// the target still holds valid code.
func (h *Hooker) apply(p plan, buf, size uintptr, owned bool) (*Hook, error) {
	hook := &Hook{
		Target:      p.target,
		Replacement: p.replacement,
		Mode:        p.mode,
		Footprint:   p.fp,
		Original:    h.mem.Read(p.target, p.fp.Size),
	}

	hook.PCRelative = pcRelative(hook.Original, p.target, p.mode)
	for _, instr := range hook.PCRelative {
		h.entry(p).WithField("instruction", instr).Warn("PC-relative instruction relocated to trampoline")
	}

	// prepare
	tramp, err := buildTrampoline(h.mem, buf, size, p.target, p.mode, p.fp)
	if err != nil {
		h.entry(p).WithError(err).Error("hook failed")
		return nil, err
	}
	hook.Trampoline = tramp
	if tramp != nil {
		hook.Trampoline.owned = owned
	} else if buf != 0 {
		h.entry(p).WithField("size", size).Warn("trampoline buffer too small, trampoline not built")
	}

	// commit
	if err := patchTarget(h.mem, p.target, p.mode, p.fp, h.stub, p.replacement); err != nil {
		h.entry(p).WithError(err).Error("hook failed")
		return nil, err
	}

	h.hooks[p.target] = hook
	h.entry(p).WithFields(log.Fields{
		"instructions": p.fp.Count,
		"bytes":        p.fp.Size,
		"trampoline":   fmt.Sprintf("%#x", hook.Trampoline.Addr()),
	}).Debug("hook installed")

	return hook, nil
}

func (h *Hooker) entry(p plan) *log.Entry {
	return h.log.WithFields(log.Fields{
		"target":      fmt.Sprintf("%#x", p.target),
		"replacement": fmt.Sprintf("%#x", p.replacement),
		"mode":        p.mode.String(),
	})
}
