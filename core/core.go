package jeebie

import (
	"fmt"
	"os"

	"github.com/fennelwick/gbcore/core/cpu"
	"github.com/fennelwick/gbcore/core/debug"
	"github.com/fennelwick/gbcore/core/input/action"
	"github.com/fennelwick/gbcore/core/memory"
	"github.com/fennelwick/gbcore/core/timing"
	"github.com/fennelwick/gbcore/core/video"
)

// DMG is the concrete Emulator implementation for the original Game Boy
// (DMG = "Dot Matrix Game", the hardware codename), wiring together the
// CPU, bus/MMU and PPU and driving them one frame at a time.
type DMG struct {
	cpu    *cpu.CPU
	gpu    *video.GPU
	mem    *memory.MMU
	layers *video.RenderLayers

	limiter timing.Limiter

	debuggerState    debug.DebuggerState
	stepRequested    bool
	frameRequested   bool
	instructionCount uint64
	frameCount       uint64

	completionMaxFrames    uint64
	completionMinLoopCount int
	lastLoopPC             uint16
	loopCount              int
}

var _ Emulator = (*DMG)(nil)

func (d *DMG) init(mem *memory.MMU) {
	d.cpu = cpu.New(mem)
	d.gpu = video.NewGpu(mem)
	d.mem = mem
	d.layers = video.NewRenderLayers()
	d.limiter = timing.NewNoOpLimiter()
	mem.SetTimerSeed(0xABCC)
}

// New creates a new DMG instance with no cartridge inserted.
func New() *DMG {
	d := &DMG{}
	d.init(memory.NewWithCartridge(memory.NewCartridge()))
	return d
}

// NewWithFile creates a new DMG instance and loads the ROM at path into it.
func NewWithFile(path string) (*DMG, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cart, err := memory.NewCartridgeWithData(data)
	if err != nil {
		return nil, fmt.Errorf("loading cartridge: %w", err)
	}

	d := &DMG{}
	d.init(memory.NewWithCartridge(cart))
	return d, nil
}

// SetFrameLimiter installs the frame-pacing strategy (real-time vs. headless).
func (d *DMG) SetFrameLimiter(limiter timing.Limiter) {
	d.limiter = limiter
}

// ResetFrameTiming resets the limiter's internal clock, used after a pause.
func (d *DMG) ResetFrameTiming() {
	d.limiter.Reset()
}

func (d *DMG) runCycles(budget int) {
	total := 0
	for total < budget {
		cycles := d.cpu.Step()
		d.gpu.Tick(cycles)
		d.instructionCount++
		total += cycles
	}
}

// RunUntilFrame executes CPU instructions until a full frame (70224 T-cycles)
// has elapsed, honoring the debugger's pause/step/step-frame state.
func (d *DMG) RunUntilFrame() error {
	switch d.debuggerState {
	case debug.DebuggerPaused:
		return nil

	case debug.DebuggerStepInstruction:
		if !d.stepRequested {
			return nil
		}
		d.stepRequested = false
		d.runCycles(1) // runCycles(1) executes exactly one instruction: any
		// nonzero cycle count from a single Step() already exceeds a budget
		// of 1, so the loop body runs once.
		d.debuggerState = debug.DebuggerPaused
		return nil

	case debug.DebuggerStepFrame:
		if !d.frameRequested {
			return nil
		}
		d.frameRequested = false
		d.runCycles(timing.CyclesPerFrame)
		d.frameCount++
		d.debuggerState = debug.DebuggerPaused
		return nil

	default:
		d.runCycles(timing.CyclesPerFrame)
		d.frameCount++
		d.limiter.WaitForNextFrame()
		return nil
	}
}

// GetCurrentFrame returns the PPU's current framebuffer.
func (d *DMG) GetCurrentFrame() *video.FrameBuffer {
	return d.gpu.GetFrameBuffer()
}

// HandleAction routes a single input action to the joypad or to debugger
// controls, mirroring input.Manager's GB-control routing for the subset of
// actions the core itself (rather than a backend) is responsible for.
func (d *DMG) HandleAction(act action.Action, pressed bool) {
	if key, ok := gbJoypadKey(act); ok {
		if pressed {
			d.mem.Joypad.Press(key)
		} else {
			d.mem.Joypad.Release(key)
		}
		return
	}

	if !pressed {
		return
	}

	switch act {
	case action.EmulatorPauseToggle:
		if d.debuggerState == debug.DebuggerPaused {
			d.debuggerState = debug.DebuggerRunning
			d.limiter.Reset()
		} else {
			d.debuggerState = debug.DebuggerPaused
		}
	case action.EmulatorStepInstruction:
		d.debuggerState = debug.DebuggerStepInstruction
		d.stepRequested = true
	case action.EmulatorStepFrame:
		d.debuggerState = debug.DebuggerStepFrame
		d.frameRequested = true
	}
}

// HandleKeyPress presses a joypad button directly, for renderers that map
// their own keybindings instead of going through the action package.
func (d *DMG) HandleKeyPress(key memory.JoypadKey) {
	d.mem.Joypad.Press(key)
}

// HandleKeyRelease releases a joypad button directly.
func (d *DMG) HandleKeyRelease(key memory.JoypadKey) {
	d.mem.Joypad.Release(key)
}

// GetDebuggerState reports the current debugger mode.
func (d *DMG) GetDebuggerState() debug.DebuggerState {
	return d.debuggerState
}

// DebuggerPause halts frame execution until resumed or stepped.
func (d *DMG) DebuggerPause() {
	d.debuggerState = debug.DebuggerPaused
}

// DebuggerResume returns to free-running execution.
func (d *DMG) DebuggerResume() {
	d.debuggerState = debug.DebuggerRunning
	d.limiter.Reset()
}

// DebuggerStepInstruction arms a single-instruction step for the next
// RunUntilFrame call.
func (d *DMG) DebuggerStepInstruction() {
	d.debuggerState = debug.DebuggerStepInstruction
	d.stepRequested = true
}

// DebuggerStepFrame arms a single-frame step for the next RunUntilFrame call.
func (d *DMG) DebuggerStepFrame() {
	d.debuggerState = debug.DebuggerStepFrame
	d.frameRequested = true
}

func gbJoypadKey(act action.Action) (memory.JoypadKey, bool) {
	switch act {
	case action.GBButtonA:
		return memory.JoypadA, true
	case action.GBButtonB:
		return memory.JoypadB, true
	case action.GBButtonStart:
		return memory.JoypadStart, true
	case action.GBButtonSelect:
		return memory.JoypadSelect, true
	case action.GBDPadUp:
		return memory.JoypadUp, true
	case action.GBDPadDown:
		return memory.JoypadDown, true
	case action.GBDPadLeft:
		return memory.JoypadLeft, true
	case action.GBDPadRight:
		return memory.JoypadRight, true
	default:
		return 0, false
	}
}

// snapshotRadius is how many bytes before/after PC go into the memory
// snapshot ExtractDebugData hands to the disassembler.
const snapshotRadius = 30

// ExtractDebugData gathers CPU, memory, OAM and VRAM state for debug
// displays. Returns nil if the emulator hasn't been initialized yet (e.g. a
// zero-value DMG, matching TestExtractDebugData_NilComponents).
func (d *DMG) ExtractDebugData() *debug.CompleteDebugData {
	if d.cpu == nil || d.mem == nil {
		return nil
	}

	pc := d.cpu.GetPC()
	startAddr := uint16(0)
	if pc > snapshotRadius {
		startAddr = pc - snapshotRadius
	}

	size := 200
	if uint32(startAddr)+uint32(size) > 0xFFFF {
		size = int(0x10000 - uint32(startAddr))
	}

	snapshotBytes := make([]uint8, size)
	for i := range snapshotBytes {
		snapshotBytes[i] = d.mem.Read(startAddr + uint16(i))
	}

	a, f, b, c, de, e, h, l := d.cpu.Registers()
	cpuState := &debug.CPUState{
		A: a, F: f, B: b, C: c, D: de, E: e, H: h, L: l,
		SP:     d.cpu.GetSP(),
		PC:     pc,
		IME:    d.cpu.IME(),
		Cycles: d.cpu.GetCycles(),
	}

	oam := debug.ExtractOAMDataFromReader(d.mem, int(d.mem.Read(0xFF44)), d.spriteHeight())
	vram := debug.ExtractVRAMDataFromReader(d.mem)

	return &debug.CompleteDebugData{
		OAM:  oam,
		VRAM: vram,
		CPU:  cpuState,
		Memory: &debug.MemorySnapshot{
			StartAddr: startAddr,
			Bytes:     snapshotBytes,
		},
		DebuggerState:   d.debuggerState,
		InterruptEnable: d.mem.Interrupts.ReadIE(),
		InterruptFlags:  d.mem.Interrupts.ReadIF(),

		SpriteVis:     debug.ExtractSpriteData(d.mem, uint8(d.mem.Read(0xFF44))),
		BackgroundVis: debug.ExtractBackgroundData(d.mem),
		PaletteVis:    debug.ExtractPaletteData(d.mem),
		Audio:         debug.ExtractAudioData(d.mem, d.mem.APU),
		LayerBuffers:  d.layers,
	}
}

func (d *DMG) spriteHeight() int {
	if d.mem.ReadBit(2, 0xFF40) {
		return 16
	}
	return 8
}

// GetCPU exposes the CPU for tooling (disassembler, debugger REPL).
func (d *DMG) GetCPU() *cpu.CPU {
	return d.cpu
}

// GetMMU exposes the bus for tooling.
func (d *DMG) GetMMU() *memory.MMU {
	return d.mem
}

func (d *DMG) GetInstructionCount() uint64 {
	return d.instructionCount
}

func (d *DMG) GetFrameCount() uint64 {
	return d.frameCount
}

// ConfigureCompletionDetection arms RunUntilComplete's stopping condition:
// it runs until either maxFrames elapses, or the PC revisits the same
// address on minLoopCount consecutive frame boundaries. Many blargg-style
// test ROMs have no defined "done" signal other than spinning forever in a
// tight loop once the test finishes, so a repeated PC is the only portable
// completion marker available.
func (d *DMG) ConfigureCompletionDetection(maxFrames uint64, minLoopCount int) {
	d.completionMaxFrames = maxFrames
	d.completionMinLoopCount = minLoopCount
	d.loopCount = 0
	d.lastLoopPC = 0
}

// RunUntilComplete drives the emulator frame by frame until the completion
// condition configured by ConfigureCompletionDetection is met.
func (d *DMG) RunUntilComplete() {
	for d.frameCount < d.completionMaxFrames {
		d.runCycles(timing.CyclesPerFrame)
		d.frameCount++

		pc := d.cpu.GetPC()
		if pc == d.lastLoopPC {
			d.loopCount++
			if d.completionMinLoopCount > 0 && d.loopCount >= d.completionMinLoopCount {
				return
			}
		} else {
			d.loopCount = 0
			d.lastLoopPC = pc
		}
	}
}
