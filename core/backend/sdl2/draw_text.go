//go:build sdl2

package sdl2

import (
	"github.com/veandco/go-sdl2/sdl"
)

// DrawText renders text using the built-in 3x5 bitmap font, one glyph cell
// per character, scaled by scale pixels per font pixel. It's a minimal
// fallback used by the debug overlay, not a general-purpose text layout
// routine: unknown characters render as blank cells.
func DrawText(renderer *sdl.Renderer, text string, x, y int32, scale int32, r, g, b uint8) {
	if scale < 1 {
		scale = 1
	}

	renderer.SetDrawColor(r, g, b, 255)

	const glyphCols, glyphRows = 3, 5
	const cellWidth = (glyphCols + 1) * 2 // pixel columns per character cell, pre-scale

	cursorX := x
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if ch >= 'a' && ch <= 'z' {
			ch -= 'a' - 'A'
		}

		if rows, ok := glyphFont[ch]; ok {
			for row := 0; row < glyphRows; row++ {
				for col := 0; col < glyphCols; col++ {
					if rows[row][col] != '#' {
						continue
					}
					px := cursorX + int32(col*2)*scale
					py := y + int32(row*2)*scale
					rect := &sdl.Rect{px, py, scale * 2, scale * 2}
					renderer.FillRect(rect)
				}
			}
		}

		cursorX += int32(cellWidth) * scale
	}
}
