package ffpipe

// pixFmtBits maps FFmpeg pixel format names to their total bits per
// pixel, chroma subsampling included. Formats that pack samples into
// wider containers (e.g. 10-bit in 16-bit words) count the container
// size, matching what rawvideo actually writes to the pipe.
//
// The set is closed: a format missing here makes the demultiplexer fall
// back to chunked mode rather than guess.
var pixFmtBits = map[string]uint64{
	// Grayscale
	"gray":     8,
	"gray10le": 16,
	"gray12le": 16,
	"gray16be": 16,
	"gray16le": 16,
	"monob":    1,
	"monow":    1,
	"ya8":      16,
	"ya16be":   32,
	"ya16le":   32,

	// Packed RGB
	"rgb24":    24,
	"bgr24":    24,
	"rgba":     32,
	"bgra":     32,
	"argb":     32,
	"abgr":     32,
	"rgb8":     8,
	"bgr8":     8,
	"rgb555be": 16,
	"rgb555le": 16,
	"rgb565be": 16,
	"rgb565le": 16,
	"rgb48be":  48,
	"rgb48le":  48,
	"rgba64be": 64,
	"rgba64le": 64,
	"pal8":     8,

	// Planar RGB
	"gbrp":  24,
	"gbrap": 32,

	// Planar YUV
	"yuv410p":     9,
	"yuv411p":     12,
	"yuv420p":     12,
	"yuvj420p":    12,
	"yuv422p":     16,
	"yuvj422p":    16,
	"yuv440p":     16,
	"yuv444p":     24,
	"yuvj444p":    24,
	"yuva420p":    20,
	"yuva444p":    32,
	"yuv420p10le": 24,
	"yuv420p12le": 24,
	"yuv420p16le": 24,
	"yuv422p10le": 32,
	"yuv444p10le": 48,
	"yuv444p16le": 48,

	// Semi-planar and packed YUV
	"nv12":     12,
	"nv21":     12,
	"nv16":     16,
	"yuyv422":  16,
	"uyvy422":  16,
	"yvyu422":  16,
	"ayuv64le": 64,
}

// BytesPerFrame returns the whole-frame byte size for a pixel format at
// the given dimensions. The total bit count for the frame is computed
// first and divided by 8 at the end, so sub-byte-per-pixel subsampled
// formats (yuv420p at 12 bits, monow at 1 bit) never truncate per
// pixel. The second return is false for unknown formats and for frames
// whose total bit count is not byte-aligned; FFmpeg pads those
// unpredictably, so their size cannot be precomputed.
func BytesPerFrame(pixFmt string, width, height uint32) (uint64, bool) {
	bits, ok := pixFmtBits[pixFmt]
	if !ok {
		return 0, false
	}
	totalBits := uint64(width) * uint64(height) * bits
	if totalBits == 0 || totalBits%8 != 0 {
		return 0, false
	}
	return totalBits / 8, true
}
