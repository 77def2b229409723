package video

import (
	"fmt"
	"log/slog"

	"github.com/fennelwick/gbcore/core/addr"
	"github.com/fennelwick/gbcore/core/bit"
	"github.com/fennelwick/gbcore/core/memory"
)

// GpuMode represents the PPU's current rendering stage.
// These values match the STAT register bits 1-0.
type GpuMode int

const (
	// hblankMode (Mode 0): Horizontal blank period, CPU can access VRAM/OAM
	hblankMode GpuMode = 0
	// vblankMode (Mode 1): Vertical blank period, CPU can access VRAM/OAM
	vblankMode GpuMode = 1
	// oamScanMode (Mode 2): PPU is scanning OAM to build the scanline's sprite buffer
	oamScanMode GpuMode = 2
	// drawMode (Mode 3): the pixel FIFO pipeline is pushing pixels to the framebuffer
	drawMode GpuMode = 3
)

const (
	// oamScanCycles is the fixed length of mode 2: 40 entries, one inspected
	// every 2 T-cycles.
	oamScanCycles = 80
	// scanlineCycles is the fixed total length of a scanline (OAMSCAN + DRAW +
	// HBLANK, or one VBlank line). DRAW's length varies with fetcher stalls,
	// sprite fetches and the window flush, so HBLANK absorbs the remainder.
	scanlineCycles = 456
	// vblankLines is how many scanlines (144-153) make up VBlank.
	vblankLines = 10
)

// bgFetchStage is the background/window fetcher's internal state, see §4.4.
type bgFetchStage int

const (
	bgFetchIndex bgFetchStage = iota
	bgFetchDataLow
	bgFetchDataHigh
	bgFetchPush
)

// spriteFetchStage is the sprite fetcher's internal state.
type spriteFetchStage int

const (
	spriteFetchDataLow spriteFetchStage = iota
	spriteFetchDataHigh
	spriteFetchPush
)

// spritePixel is one slot of the sprite FIFO, aligned index-for-index with
// the background FIFO so the pixel-pop stage can mix them in lockstep.
type spritePixel struct {
	occupied   bool
	color      byte
	palette    bool // false=OBP0, true=OBP1
	bgPriority bool // true = sprite hides behind non-zero BG pixels
}

// GPU implements the DMG's pixel-FIFO PPU: a dual-fetcher pipeline driven one
// T-cycle at a time, rather than a scanline-at-once compositor. See §3/§4.4.
type GPU struct {
	memory      *memory.MMU
	framebuffer *FrameBuffer
	oam         *OAM

	mode   GpuMode
	line   int // LY, 0-153
	cycles int // T-cycles elapsed in the current scanline, 0-455
	lx     int // pixel column currently being pushed during DRAW, 0-160

	lcdOff         bool
	firstFrameSkip bool // true until the first VBlank after turning the LCD on

	statLine    bool // composite STAT IRQ condition, for rising-edge detection
	vblankFired bool // whether the VBlank IRQ has already fired this VBlank

	inWinY                bool // latched once per frame: true once LY==WY was seen
	winYLatched           bool
	windowMode            bool // current fetcher is reading the window tilemap
	windowEngagedThisLine bool
	windowLine            int // internal window-line counter (WLY)

	scxDiscard int // remaining SCX&7 pixels to discard at the start of the line

	bgFetchState bgFetchStage
	bgFetchSub   int
	bgTileID     byte
	bgTileLine   byte
	bgMapX       int
	bgDataLow    byte
	bgDataHigh   byte
	bgFIFO       []byte
	spriteFIFO   []spritePixel

	visibleSprites []Sprite
	spriteFetched  []bool

	spriteFetchActive bool
	spriteFetchState  spriteFetchStage
	spriteFetchSub    int
	spriteFetchIndex  int
	spriteDataLow     byte
	spriteDataHigh    byte
}

func NewGpu(memory *memory.MMU) *GPU {
	gpu := &GPU{
		framebuffer: NewFrameBuffer(),
		memory:      memory,
		oam:         NewOAM(memory),
		mode:        vblankMode,
		line:        144,
		lcdOff:      true,
		bgFIFO:      make([]byte, 0, 8),
		spriteFIFO:  make([]spritePixel, 0, 8),
	}

	lcdc := memory.Read(addr.LCDC)
	bgp := memory.Read(addr.BGP)
	slog.Debug("GPU initialized", "LCDC", fmt.Sprintf("0x%02X", lcdc), "LCD_enabled", (lcdc&0x80) != 0, "BGP", fmt.Sprintf("0x%02X", bgp))

	return gpu
}

func (g *GPU) GetFrameBuffer() *FrameBuffer {
	return g.framebuffer
}

// Tick advances the PPU by the given number of T-cycles, one at a time.
// This is the only place PPU state is allowed to change, so STAT edges,
// the LY/LYC flag, fetcher stalls and the window flush all land on the
// exact cycle hardware would observe them.
func (g *GPU) Tick(tCycles int) {
	for i := 0; i < tCycles; i++ {
		g.step()
	}
}

func (g *GPU) step() {
	if g.readLCDCVariable(lcdDisplayEnable) == 0 {
		g.turnOff()
		return
	}
	if g.lcdOff {
		g.turnOn()
	}

	g.cycles++

	switch g.mode {
	case oamScanMode:
		g.stepOAMScan()
		if g.cycles == oamScanCycles {
			g.enterDraw()
		}
	case drawMode:
		g.stepDraw()
	case hblankMode:
		if g.cycles == scanlineCycles {
			g.finishScanline()
		}
	case vblankMode:
		if g.line == 144 && g.cycles == 4 && !g.vblankFired {
			g.vblankFired = true
			g.memory.Interrupts.Request(addr.VBlankInterrupt)
		}
		if g.cycles == scanlineCycles {
			g.finishScanline()
		}
	}

	g.updateStatLine()
}

// turnOff handles LCDC bit 7 going low: the PPU freezes, LY/LX/cycles reset,
// the framebuffer clears and STAT's mode bits read back as HBLANK.
func (g *GPU) turnOff() {
	if g.lcdOff {
		return
	}
	g.lcdOff = true
	g.cycles = 0
	g.line = 0
	g.lx = 0
	g.mode = hblankMode
	g.memory.Write(addr.LY, 0)
	stat := g.memory.Read(addr.STAT)
	g.memory.Write(addr.STAT, stat&0xFC)
	g.framebuffer.Clear()
	g.statLine = false
}

// turnOn handles LCDC bit 7 going high: the PPU restarts at the top of the
// frame. The first frame drawn after enabling isn't presented, matching
// hardware's "garbage first frame" behavior.
func (g *GPU) turnOn() {
	g.lcdOff = false
	g.cycles = 0
	g.line = 0
	g.lx = 0
	g.inWinY = false
	g.winYLatched = false
	g.windowLine = 0
	g.vblankFired = false
	g.firstFrameSkip = true
	g.memory.Write(addr.LY, 0)
	g.enterOAMScan()
}

// enterOAMScan starts mode 2 for the current line: the per-cycle sprite
// scan and the once-per-frame window-Y latch.
func (g *GPU) enterOAMScan() {
	g.mode = oamScanMode
	g.setModeBits(oamScanMode)

	spriteHeight := 8
	if g.readLCDCVariable(spriteSize) == 1 {
		spriteHeight = 16
	}
	g.oam.BeginScan(g.line, spriteHeight)

	if !g.winYLatched && g.line == int(g.memory.Read(addr.WY)) {
		g.inWinY = true
		g.winYLatched = true
	}
}

// stepOAMScan inspects one OAM entry every 2 T-cycles, matching the
// hardware's 40-entries-in-80-cycles scan rate.
func (g *GPU) stepOAMScan() {
	if g.cycles%2 != 0 {
		return
	}
	g.oam.InspectNext()
}

func (g *GPU) enterDraw() {
	g.mode = drawMode
	g.setModeBits(drawMode)

	g.lx = 0
	g.scxDiscard = int(g.memory.Read(addr.SCX)) & 7

	g.bgFIFO = g.bgFIFO[:0]
	g.spriteFIFO = g.spriteFIFO[:0]
	g.bgFetchState = bgFetchIndex
	g.bgFetchSub = 0
	g.bgMapX = 0
	g.windowMode = false
	g.windowEngagedThisLine = false

	g.visibleSprites = g.oam.VisibleSprites()
	if cap(g.spriteFetched) < len(g.visibleSprites) {
		g.spriteFetched = make([]bool, len(g.visibleSprites))
	} else {
		g.spriteFetched = g.spriteFetched[:len(g.visibleSprites)]
		for i := range g.spriteFetched {
			g.spriteFetched[i] = false
		}
	}
	g.spriteFetchActive = false
}

// stepDraw advances exactly one T-cycle of the DRAW pipeline: sprite
// fetches pause everything else, a mid-scanline window trigger flushes and
// restarts the background fetcher, and otherwise the background fetcher
// advances and one pixel is popped/mixed when the FIFO has data.
func (g *GPU) stepDraw() {
	if !g.spriteFetchActive {
		if idx, ok := g.findTriggeredSprite(); ok {
			g.spriteFetchActive = true
			g.spriteFetchIndex = idx
			g.spriteFetchSub = 0
			g.spriteFetchState = spriteFetchDataLow
		}
	}

	if g.spriteFetchActive {
		g.stepSpriteFetch()
		return
	}

	if g.windowTriggered() {
		g.engageWindow()
		return
	}

	g.stepBGFetch()

	if len(g.bgFIFO) > 0 {
		g.popAndMixPixel()
	}

	if g.lx >= FramebufferWidth {
		g.enterHBlank()
	}
}

func (g *GPU) windowTriggered() bool {
	if g.windowMode || !g.inWinY || g.readLCDCVariable(windowDisplayEnable) != 1 {
		return false
	}
	wx := int(g.memory.Read(addr.WX))
	return g.lx+7 >= wx
}

func (g *GPU) engageWindow() {
	g.windowMode = true
	g.windowEngagedThisLine = true
	g.bgFIFO = g.bgFIFO[:0]
	g.spriteFIFO = g.spriteFIFO[:0]
	g.bgFetchState = bgFetchIndex
	g.bgFetchSub = 0
	g.bgMapX = 0
}

func (g *GPU) findTriggeredSprite() (int, bool) {
	for i := range g.visibleSprites {
		if g.spriteFetched[i] {
			continue
		}
		sx := int(g.visibleSprites[i].X)
		if sx >= g.lx && sx <= g.lx+8 {
			return i, true
		}
	}
	return 0, false
}

func (g *GPU) enterHBlank() {
	g.mode = hblankMode
	g.setModeBits(hblankMode)
}

func (g *GPU) finishScanline() {
	g.cycles = 0

	if g.mode == vblankMode {
		g.line++
		if g.line == 154 {
			g.line = 0
			g.inWinY = false
			g.winYLatched = false
			g.windowLine = 0
			g.vblankFired = false
			g.firstFrameSkip = false
			g.enterOAMScan()
		}
	} else {
		if g.windowEngagedThisLine {
			g.windowLine++
		}
		g.line++
		if g.line == 144 {
			g.mode = vblankMode
			g.setModeBits(vblankMode)
		} else {
			g.enterOAMScan()
		}
	}

	g.memory.Write(addr.LY, byte(g.line))
}

// --- background/window fetcher ---

func (g *GPU) stepBGFetch() {
	switch g.bgFetchState {
	case bgFetchIndex:
		g.bgFetchSub++
		if g.bgFetchSub < 2 {
			return
		}
		g.bgFetchSub = 0
		g.fetchBGTileID()
		g.bgFetchState = bgFetchDataLow
	case bgFetchDataLow:
		g.bgFetchSub++
		if g.bgFetchSub < 2 {
			return
		}
		g.bgFetchSub = 0
		g.bgDataLow = g.fetchBGTileByte(false)
		g.bgFetchState = bgFetchDataHigh
	case bgFetchDataHigh:
		g.bgFetchSub++
		if g.bgFetchSub < 2 {
			return
		}
		g.bgFetchSub = 0
		g.bgDataHigh = g.fetchBGTileByte(true)
		g.bgFetchState = bgFetchPush
	case bgFetchPush:
		if len(g.bgFIFO) > 0 {
			return // FIFO still has pixels: stall until it's empty
		}
		g.pushBGFIFO()
		g.bgMapX++
		g.bgFetchState = bgFetchIndex
	}
}

func (g *GPU) fetchBGTileID() {
	if g.windowMode {
		mapBase := addr.TileMap0
		if g.readLCDCVariable(windowTileMapSelect) == 1 {
			mapBase = addr.TileMap1
		}
		row := (g.windowLine / 8) * 32
		col := g.bgMapX & 31
		g.bgTileID = g.memory.Read(mapBase + uint16(row+col))
		g.bgTileLine = byte(g.windowLine % 8)
		return
	}

	mapBase := addr.TileMap0
	if g.readLCDCVariable(bgTileMapDisplaySelect) == 1 {
		mapBase = addr.TileMap1
	}
	scx := int(g.memory.Read(addr.SCX))
	scy := int(g.memory.Read(addr.SCY))
	yy := (g.line + scy) & 0xFF
	row := (yy / 8) * 32
	col := (g.bgMapX + scx/8) & 31
	g.bgTileID = g.memory.Read(mapBase + uint16(row+col))
	g.bgTileLine = byte(yy % 8)
}

func (g *GPU) fetchBGTileByte(high bool) byte {
	var tileAddr uint16
	if g.readLCDCVariable(bgWindowTileDataSelect) == 1 {
		tileAddr = addr.TileData0 + uint16(g.bgTileID)*16
	} else {
		tileAddr = uint16(int(addr.TileData2) + int(int8(g.bgTileID))*16)
	}
	tileAddr += uint16(g.bgTileLine) * 2
	if high {
		tileAddr++
	}
	return g.memory.Read(tileAddr)
}

func (g *GPU) pushBGFIFO() {
	for i := 0; i < 8; i++ {
		bitIndex := uint8(7 - i)
		var color byte
		if bit.IsSet(bitIndex, g.bgDataLow) {
			color |= 1
		}
		if bit.IsSet(bitIndex, g.bgDataHigh) {
			color |= 2
		}
		g.bgFIFO = append(g.bgFIFO, color)
		g.spriteFIFO = append(g.spriteFIFO, spritePixel{})
	}
}

// --- sprite fetcher ---

func (g *GPU) stepSpriteFetch() {
	g.spriteFetchSub++
	if g.spriteFetchSub < 2 {
		return
	}
	g.spriteFetchSub = 0

	sprite := g.visibleSprites[g.spriteFetchIndex]
	switch g.spriteFetchState {
	case spriteFetchDataLow:
		g.spriteDataLow = g.fetchSpriteTileByte(sprite, false)
		g.spriteFetchState = spriteFetchDataHigh
	case spriteFetchDataHigh:
		g.spriteDataHigh = g.fetchSpriteTileByte(sprite, true)
		g.spriteFetchState = spriteFetchPush
	case spriteFetchPush:
		g.pushSpriteFIFO(sprite, g.spriteDataLow, g.spriteDataHigh)
		g.spriteFetched[g.spriteFetchIndex] = true
		g.spriteFetchActive = false
	}
}

func (g *GPU) fetchSpriteTileByte(s Sprite, high bool) byte {
	row := g.line - int(s.Y)
	if s.FlipY {
		row = s.Height - 1 - row
	}

	tileIndex := int(s.TileIndex)
	if s.Height == 16 {
		tileIndex &^= 1
	}

	tileAddr := addr.TileData0 + uint16(tileIndex*16) + uint16(row)*2
	if high {
		tileAddr++
	}
	return g.memory.Read(tileAddr)
}

// pushSpriteFIFO merges a sprite's 8 pixels into the sprite FIFO. A slot
// already claimed by an earlier (higher-priority) sprite is left untouched,
// which is how hardware resolves sprite-to-sprite priority: the buffer is
// scanned in OAM order and fetches trigger in increasing X order, so the
// first sprite to reach a pixel keeps it.
func (g *GPU) pushSpriteFIFO(s Sprite, low, high byte) {
	offset := int(s.X) - g.lx

	for i := 0; i < 8; i++ {
		slot := offset + i
		if slot < 0 || slot >= len(g.spriteFIFO) {
			continue
		}
		if g.spriteFIFO[slot].occupied {
			continue
		}

		bitIndex := uint8(7 - i)
		if s.FlipX {
			bitIndex = uint8(i)
		}

		var color byte
		if bit.IsSet(bitIndex, low) {
			color |= 1
		}
		if bit.IsSet(bitIndex, high) {
			color |= 2
		}

		g.spriteFIFO[slot] = spritePixel{
			occupied:   true,
			color:      color,
			palette:    s.PaletteOBP1,
			bgPriority: s.BehindBG,
		}
	}
}

// --- pixel pop/mix ---

func (g *GPU) popAndMixPixel() {
	bgColor := g.bgFIFO[0]
	g.bgFIFO = g.bgFIFO[1:]

	var sprite spritePixel
	if len(g.spriteFIFO) > 0 {
		sprite = g.spriteFIFO[0]
		g.spriteFIFO = g.spriteFIFO[1:]
	}

	if g.scxDiscard > 0 {
		g.scxDiscard--
		return
	}

	if g.readLCDCVariable(bgDisplay) == 0 {
		bgColor = 0
	}

	var finalColor byte
	if g.readLCDCVariable(spriteDisplayEnable) == 1 && sprite.occupied && sprite.color != 0 &&
		!(sprite.bgPriority && bgColor != 0) {
		finalColor = g.applySpritePalette(sprite)
	} else {
		finalColor = g.applyBGPalette(bgColor)
	}

	if !g.firstFrameSkip {
		g.framebuffer.SetColorID(g.lx, g.line, finalColor)
	}
	g.lx++
}

func (g *GPU) applyBGPalette(colorIndex byte) byte {
	palette := g.memory.Read(addr.BGP)
	return (palette >> (colorIndex * 2)) & 0x03
}

func (g *GPU) applySpritePalette(s spritePixel) byte {
	paletteAddr := addr.OBP0
	if s.palette {
		paletteAddr = addr.OBP1
	}
	palette := g.memory.Read(paletteAddr)
	return (palette >> (s.color * 2)) & 0x03
}

// --- STAT / LCDC register bits ---

// LCD Stat (Status) Register bit values
// Bit 7 - unused
// Bit 6 - Interrupt based on LYC to LY comparison (based on bit 2)
// Bit 5 - Interrupt when Mode 10 (oamScanMode)
// Bit 4 - Interrupt when Mode 01 (vblankMode)
// Bit 3 - Interrupt when Mode 00 (hblankMode)
// Bit 2 - condition for triggering LYC/LY (0=LYC != LY, 1=LYC == LY)
// Bit 1,0 - represents the current GPU mode
type statFlag uint8

const (
	statLycIrq       statFlag = 6
	statOamIrq                = 5
	statVblankIrq             = 4
	statHblankIrq             = 3
	statLycCondition          = 2
)

// LCDC (LCD Control) Register bit values
// Bit 7 - LCD Display Enable (0=Off, 1=On)
// Bit 6 - Window Tile Map Display Select (0=9800-9BFF, 1=9C00-9FFF)
// Bit 5 - Window Display Enable (0=Off, 1=On)
// Bit 4 - BG & Window Tile Data Select (0=8800-97FF, 1=8000-8FFF)
// Bit 3 - BG Tile Map Display Select (0=9800-9BFF, 1=9C00-9FFF)
// Bit 2 - OBJ (Sprite) Size (0=8x8, 1=8x16)
// Bit 1 - OBJ (Sprite) Display Enable (0=Off, 1=On)
// Bit 0 - BG Display (0=Off, 1=On)
type lcdcFlag uint8

const (
	lcdDisplayEnable       lcdcFlag = 7
	windowTileMapSelect             = 6
	windowDisplayEnable             = 5
	bgWindowTileDataSelect          = 4
	bgTileMapDisplaySelect          = 3
	spriteSize                      = 2
	spriteDisplayEnable             = 1
	bgDisplay                       = 0
)

func (g *GPU) readLCDCVariable(flag lcdcFlag) byte {
	if bit.IsSet(uint8(flag), g.memory.Read(addr.LCDC)) {
		return 1
	}
	return 0
}

// setModeBits writes the two bits (1,0) in the STAT register according to
// the current GPU mode.
func (g *GPU) setModeBits(mode GpuMode) {
	stat := g.memory.Read(addr.STAT)
	stat = stat&0xFC | byte(mode)
	g.memory.Write(addr.STAT, stat)
}

// updateStatLine mirrors the LY==LYC flag unconditionally, then recomputes
// the composite STAT IRQ condition and requests the interrupt only on its
// false->true transition. Raising it again while the condition merely holds
// (e.g. on every mode-entry) would double-fire, which §9 calls out as the
// "STAT IRQ blocking" pitfall.
func (g *GPU) updateStatLine() {
	stat := g.memory.Read(addr.STAT)

	lycMatch := g.line == int(g.memory.Read(addr.LYC))
	if lycMatch {
		stat = bit.Set(statLycCondition, stat)
	} else {
		stat = bit.Reset(statLycCondition, stat)
	}
	g.memory.Write(addr.STAT, stat)

	composite := (lycMatch && bit.IsSet(uint8(statLycIrq), stat)) ||
		(g.mode == hblankMode && bit.IsSet(uint8(statHblankIrq), stat)) ||
		(g.mode == vblankMode && bit.IsSet(uint8(statVblankIrq), stat)) ||
		(g.mode == oamScanMode && bit.IsSet(uint8(statOamIrq), stat))

	if composite && !g.statLine {
		g.memory.Interrupts.Request(addr.LCDSTATInterrupt)
	}
	g.statLine = composite
}
