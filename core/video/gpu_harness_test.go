package video

// renderTestScanline drives the GPU through its Tick-based pixel pipeline so
// tests can assert on framebuffer contents without reaching into fetcher
// internals. The first frame after power-on isn't presented (firstFrameSkip,
// see turnOn), so the helper burns it once per GPU instance before running
// the requested scanline to completion.
func renderTestScanline(gpu *GPU, line int) {
	if gpu.lcdOff {
		gpu.Tick(scanlineCycles * 154)
	}
	for gpu.line != line {
		gpu.Tick(1)
	}
	gpu.Tick(scanlineCycles)
}
