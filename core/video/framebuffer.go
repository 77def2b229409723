package video

import "math/rand"

type GBColor uint32

const (
	FramebufferWidth  = 160
	FramebufferHeight = 144
	FramebufferSize   = FramebufferWidth * FramebufferHeight
)

const (
	WhiteColor     GBColor = 0xFFFFFFFF
	LightGreyColor         = 0x989898FF
	DarkGreyColor          = 0x4C4C4CFF
	BlackColor             = 0x000000FF
)

func ByteToColor(value byte) GBColor {
	switch value {
	case 0:
		return BlackColor
	case 1:
		return DarkGreyColor
	case 2:
		return LightGreyColor
	case 3:
		return WhiteColor
	}

	return 0
}

type FrameBuffer struct {
	width  uint
	height uint
	buffer []uint32
	// ids holds the 2-bit GB shade id (0-3) for every pixel, the host-facing
	// representation described in §3/§6 (`borrow_framebuffer -> &[u8; 160*144]`).
	// buffer is derived from it so existing RGBA-based renderers keep working.
	ids []byte
}

func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{
		width:  FramebufferWidth,
		height: FramebufferHeight,
		buffer: make([]uint32, FramebufferSize),
		ids:    make([]byte, FramebufferSize),
	}
}

func (fb FrameBuffer) GetPixel(x, y uint) uint32 {
	return fb.buffer[y*fb.width+x]
}

func (fb *FrameBuffer) SetPixel(x, y uint, color GBColor) {
	fb.buffer[y*fb.width+x] = uint32(color)
}

// SetColorID stores the 2-bit shade id (0-3) the PPU resolved for a pixel,
// and keeps the derived RGBA buffer in sync for existing renderers.
func (fb *FrameBuffer) SetColorID(x, y int, id byte) {
	i := y*int(fb.width) + x
	id &= 0x03
	fb.ids[i] = id
	fb.buffer[i] = uint32(ByteToColor(id))
}

// GetColorID returns the 2-bit shade id (0-3) at a pixel.
func (fb *FrameBuffer) GetColorID(x, y int) byte {
	return fb.ids[y*int(fb.width)+x]
}

// BorrowFramebuffer exposes the raw 2-bit color-id plane, the host-facing
// contract from §6: each byte is 0-3, with no palette/RGBA conversion
// applied - the host is expected to apply its own palette.
func (fb *FrameBuffer) BorrowFramebuffer() []byte {
	return fb.ids
}

func (fb *FrameBuffer) ToSlice() []uint32 {
	return fb.buffer
}

// Clear resets the framebuffer to a black screen.
func (fb *FrameBuffer) Clear() {
	for i := range fb.buffer {
		fb.buffer[i] = 0
		fb.ids[i] = 0
	}
}

func (fb *FrameBuffer) DrawNoise() {
	// placeholder: draws random pixels
	for i := 0; i < len(fb.buffer); i++ {

		var color GBColor
		switch rand.Uint32() % 4 {
		case 0:
			color = WhiteColor
		case 1:
			color = BlackColor
		case 2:
			color = LightGreyColor
		case 3:
			color = DarkGreyColor
		default:
			color = BlackColor
		}

		fb.buffer[i] = uint32(color)
	}
}

// ToBinaryData returns the framebuffer as raw binary data for test comparison
func (fb *FrameBuffer) ToBinaryData() []byte {
	data := make([]byte, len(fb.buffer)*4)
	for i, pixel := range fb.buffer {
		// Convert uint32 pixel to 4 bytes (RGBA format)
		data[i*4] = byte(pixel >> 24)   // R
		data[i*4+1] = byte(pixel >> 16) // G
		data[i*4+2] = byte(pixel >> 8)  // B
		data[i*4+3] = byte(pixel)       // A
	}
	return data
}

// ToGrayscale returns a copy of the 2-bit shade-id plane (0-3), which is
// already the grayscale representation the PPU resolved pixels to.
func (fb *FrameBuffer) ToGrayscale() []byte {
	data := make([]byte, len(fb.ids))
	copy(data, fb.ids)
	return data
}
