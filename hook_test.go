package a32hook

import (
	"errors"
	"hash/crc32"
	"testing"

	"github.com/apex/log"
	"github.com/apex/log/handlers/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	armTarget   = uintptr(0x10000)
	thumbTarget = uintptr(0x20000)
	replacement = uintptr(0x30000)
)

func newTestHooker(opts ...Option) (*Hooker, *fakeMemory, *memory.Handler) {
	mem := newFakeMemory()
	mem.mapCode(armTarget, armPrologue)
	mem.mapCode(thumbTarget, thumbPrologue)
	handler := memory.New()
	logger := &log.Logger{Handler: handler, Level: log.DebugLevel}

	opts = append([]Option{WithMemory(mem), WithLogger(logger)}, opts...)
	return New(opts...), mem, handler
}

func messages(handler *memory.Handler, level log.Level) []string {
	var msgs []string
	for _, e := range handler.Entries {
		if e.Level == level {
			msgs = append(msgs, e.Message)
		}
	}
	return msgs
}

func TestHookARM(t *testing.T) {
	h, mem, handler := newTestHooker()

	tramp, err := h.InstallHook(armTarget, replacement, true)
	require.NoError(t, err)
	require.NotNil(t, tramp)

	// target jumps to replacement
	assert.Equal(t, armJump(replacement), mem.Read(armTarget, 8))
	// trampoline starts with original prologue and jumps back
	assert.Equal(t, armPrologue[:8], mem.Read(tramp.Addr(), 8))
	assert.Equal(t, armJump(armTarget+8), mem.Read(tramp.Addr()+8, 8))
	assert.Zero(t, tramp.Addr()&1)

	assert.Equal(t, []memRange{{armTarget, fakePageSize}}, mem.protected)
	// trampoline is flushed before the target
	assert.Equal(t, []memRange{{tramp.Addr(), 8 + trampolineReserve}, {armTarget, 8}}, mem.flushed)
	assert.Len(t, mem.allocated, 1)
	assert.Equal(t, []string{"hook installed"}, messages(handler, log.DebugLevel))

	hook, ok := h.Lookup(armTarget)
	require.True(t, ok)
	assert.Equal(t, armPrologue[:8], hook.Original)
	assert.Equal(t, Footprint{Count: 2, Size: 8, Continuation: armTarget + 8}, hook.Footprint)
	assert.Same(t, tramp, hook.Trampoline)
}

func TestHookThumb(t *testing.T) {
	h, mem, _ := newTestHooker()

	tramp, err := h.InstallHook(thumbTarget|1, replacement|1, true)
	require.NoError(t, err)
	require.NotNil(t, tramp)

	assert.Equal(t, ModeThumb, tramp.Mode())
	assert.Equal(t, uintptr(1), tramp.Addr()&1)
	base := tramp.Addr() &^ 1

	assert.Equal(t, thumbCall(thumbTarget, replacement|1), mem.Read(thumbTarget, 16))
	assert.Equal(t, thumbPrologue[:16], mem.Read(base, 16))
	assert.Equal(t, thumbJump(base+16, thumbTarget+16+1), mem.Read(base+16, 8))

	hook, ok := h.Lookup(thumbTarget | 1)
	require.True(t, ok)
	assert.Equal(t, ModeThumb, hook.Mode)
	assert.Equal(t, thumbTarget, hook.Target)
	assert.Equal(t, 8, hook.Footprint.Count)
}

func TestHookThumbJumpStub(t *testing.T) {
	h, mem, _ := newTestHooker(WithThumbStub(ThumbJumpStub))

	_, err := h.InstallHook(thumbTarget|1, replacement|1, false)
	require.NoError(t, err)

	assert.Equal(t, thumbJump(thumbTarget, replacement|1), mem.Read(thumbTarget, 8))
	hook, ok := h.Lookup(thumbTarget)
	require.True(t, ok)
	assert.Equal(t, uintptr(8), hook.Footprint.Size)
}

func TestHookWithoutTrampoline(t *testing.T) {
	h, mem, _ := newTestHooker()

	tramp, err := h.InstallHook(armTarget, replacement, false)
	require.NoError(t, err)
	assert.Nil(t, tramp)
	assert.Empty(t, mem.allocated)
	assert.Equal(t, armJump(replacement), mem.Read(armTarget, 8))
}

func TestHookWithBuffer(t *testing.T) {
	h, mem, _ := newTestHooker()
	buf, err := mem.Alloc(64)
	require.NoError(t, err)

	addr, err := h.InstallHookWithBuffer(thumbTarget|1, replacement, buf, 64)
	require.NoError(t, err)
	assert.Equal(t, buf|1, addr)
	assert.Equal(t, thumbPrologue[:16], mem.Read(buf, 16))
	assert.Contains(t, mem.allocated, buf)
}

func TestHookWithSmallBuffer(t *testing.T) {
	h, mem, handler := newTestHooker()
	buf, err := mem.Alloc(64)
	require.NoError(t, err)

	addr, err := h.InstallHookWithBuffer(armTarget, replacement, buf, 8+trampolineReserve-1)
	require.NoError(t, err)
	assert.Zero(t, addr)
	// target is patched anyway
	assert.Equal(t, armJump(replacement), mem.Read(armTarget, 8))
	assert.Equal(t, make([]byte, 64), mem.Read(buf, 64))
	assert.Len(t, messages(handler, log.WarnLevel), 1)

	hook, ok := h.Lookup(armTarget)
	require.True(t, ok)
	assert.Nil(t, hook.Trampoline)
}

func TestInvalidArguments(t *testing.T) {
	cases := []struct {
		name        string
		target      uintptr
		replacement uintptr
	}{
		{"no target", 0, replacement},
		{"no replacement", armTarget, 0},
		{"nothing", 0, 0},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h, mem, handler := newTestHooker()
			before := crc32.ChecksumIEEE(mem.Read(armTarget, 16))

			tramp, err := h.InstallHook(c.target, c.replacement, true)
			assert.ErrorIs(t, err, ErrInvalidArgument)
			assert.Nil(t, tramp)

			addr, err := h.InstallHookWithBuffer(c.target, c.replacement, 0x40000000, fakePageSize)
			assert.ErrorIs(t, err, ErrInvalidArgument)
			assert.Zero(t, addr)

			assert.Equal(t, before, crc32.ChecksumIEEE(mem.Read(armTarget, 16)))
			assert.Empty(t, mem.allocated)
			assert.Empty(t, mem.protected)
			assert.Len(t, messages(handler, log.ErrorLevel), 2)
		})
	}
}

func TestUnalignedARMTarget(t *testing.T) {
	h, mem, _ := newTestHooker()

	_, err := h.InstallHook(armTarget+2, replacement, true)
	assert.ErrorIs(t, err, ErrUnaligned)
	assert.Empty(t, mem.allocated)
}

func TestProtectFailure(t *testing.T) {
	h, mem, handler := newTestHooker()
	errDenied := errors.New("permission denied")
	mem.protectErr = errDenied
	before := mem.Read(armTarget, 16)

	tramp, err := h.InstallHook(armTarget, replacement, true)
	assert.ErrorIs(t, err, ErrProtect)
	assert.ErrorIs(t, err, errDenied)
	assert.Nil(t, tramp)

	assert.Empty(t, mem.allocated, "trampoline memory leaked")
	assert.Equal(t, before, mem.Read(armTarget, 16))
	assert.Empty(t, h.Hooks())
	assert.Equal(t, []string{"hook failed"}, messages(handler, log.ErrorLevel))

	// failed hook is not recorded, so it can be retried
	mem.protectErr = nil
	_, err = h.InstallHook(armTarget, replacement, true)
	assert.NoError(t, err)
}

func TestAllocFailure(t *testing.T) {
	h, mem, _ := newTestHooker()
	mem.allocErr = errors.New("out of memory")
	before := mem.Read(armTarget, 16)

	tramp, err := h.InstallHook(armTarget, replacement, true)
	assert.ErrorIs(t, err, ErrAlloc)
	assert.Nil(t, tramp)
	assert.Equal(t, before, mem.Read(armTarget, 16))
	assert.Empty(t, mem.protected)
}

func TestDoubleHook(t *testing.T) {
	h, mem, _ := newTestHooker()

	_, err := h.InstallHook(thumbTarget|1, replacement, true)
	require.NoError(t, err)
	patched := mem.Read(thumbTarget, 16)

	tramp, err := h.InstallHook(thumbTarget|1, replacement+0x100, true)
	assert.ErrorIs(t, err, ErrDoubleHook)
	assert.Nil(t, tramp)
	assert.Equal(t, patched, mem.Read(thumbTarget, 16))
	assert.Len(t, mem.allocated, 1)
}

func TestHooks(t *testing.T) {
	h, _, _ := newTestHooker()

	_, err := h.InstallHook(thumbTarget|1, replacement, false)
	require.NoError(t, err)
	_, err = h.InstallHook(armTarget, replacement, false)
	require.NoError(t, err)

	hooks := h.Hooks()
	require.Len(t, hooks, 2)
	assert.Equal(t, armTarget, hooks[0].Target)
	assert.Equal(t, thumbTarget, hooks[1].Target)

	_, ok := h.Lookup(replacement)
	assert.False(t, ok)
}

func TestPCRelativeWarning(t *testing.T) {
	mem := newFakeMemory()
	mem.mapCode(armTarget, armCode(0xE59F0008, 0xEB000010, 0xE1A00000))
	handler := memory.New()
	h := New(WithMemory(mem), WithLogger(&log.Logger{Handler: handler, Level: log.InfoLevel}))

	_, err := h.InstallHook(armTarget, replacement, true)
	require.NoError(t, err)

	hook, _ := h.Lookup(armTarget)
	assert.Len(t, hook.PCRelative, 2)
	assert.Len(t, messages(handler, log.WarnLevel), 2)
}

func TestHookWithUnalignedBuffer(t *testing.T) {
	h, mem, handler := newTestHooker()
	buf, err := mem.Alloc(64)
	require.NoError(t, err)
	before := mem.Read(armTarget, 16)

	addr, err := h.InstallHookWithBuffer(armTarget, replacement, buf+2, 60)
	assert.ErrorIs(t, err, ErrUnaligned)
	assert.Zero(t, addr)
	assert.Equal(t, before, mem.Read(armTarget, 16))
	assert.Empty(t, mem.protected)
	assert.Empty(t, h.Hooks())
	assert.Equal(t, []string{"hook failed"}, messages(handler, log.ErrorLevel))
}

func TestFlushFailure(t *testing.T) {
	h, mem, _ := newTestHooker()
	mem.flushErr = errors.New("bad address")

	tramp, err := h.InstallHook(armTarget, replacement, true)
	assert.ErrorIs(t, err, ErrFlush)
	assert.Nil(t, tramp)
	assert.Empty(t, mem.allocated, "trampoline memory leaked")
	assert.Empty(t, mem.protected, "target must not be touched when trampoline cannot be flushed")

	_, err = h.InstallHook(armTarget, replacement, false)
	assert.ErrorIs(t, err, ErrFlush)
	assert.Empty(t, h.Hooks())
}
