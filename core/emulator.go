package jeebie

import (
	"github.com/fennelwick/gbcore/core/debug"
	"github.com/fennelwick/gbcore/core/input/action"
	"github.com/fennelwick/gbcore/core/timing"
	"github.com/fennelwick/gbcore/core/video"
)

// Emulator is the interface for all emulator implementations
type Emulator interface {
	RunUntilFrame() error
	GetCurrentFrame() *video.FrameBuffer
	HandleAction(act action.Action, pressed bool)
	ExtractDebugData() *debug.CompleteDebugData
	SetFrameLimiter(limiter timing.Limiter)
	ResetFrameTiming()
}

var _ Emulator = (*DMG)(nil)
