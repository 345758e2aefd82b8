// Package video implements the throttled camera capture pipeline: one frame
// per tick, aspect-preserving downscale, JPEG encode, and a hard byte ceiling
// with drop-don't-queue backpressure.
package video

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// Frame is a raw RGB24 camera frame.
type Frame struct {
	Width  int
	Height int
	Data   []byte
}

func (f Frame) valid() bool {
	return f.Width > 0 && f.Height > 0 && len(f.Data) >= f.Width*f.Height*3
}

// fitWithin returns dimensions scaled down to fit maxW x maxH while
// preserving aspect ratio. Frames already within bounds are unchanged.
func fitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	scale := float64(maxW) / float64(w)
	if s := float64(maxH) / float64(h); s < scale {
		scale = s
	}
	outW := int(float64(w) * scale)
	outH := int(float64(h) * scale)
	if outW < 1 {
		outW = 1
	}
	if outH < 1 {
		outH = 1
	}
	return outW, outH
}

// resizeRGB rescales an RGB24 frame with nearest-neighbor sampling.
func resizeRGB(f Frame, outW, outH int) (Frame, error) {
	if !f.valid() {
		return Frame{}, fmt.Errorf("bad frame %dx%d (%d bytes)", f.Width, f.Height, len(f.Data))
	}
	if outW <= 0 || outH <= 0 {
		return Frame{}, fmt.Errorf("bad output size %dx%d", outW, outH)
	}
	if outW == f.Width && outH == f.Height {
		return f, nil
	}
	out := Frame{Width: outW, Height: outH, Data: make([]byte, outW*outH*3)}
	wIn, hIn := float64(f.Width), float64(f.Height)
	for y := 0; y < outH; y++ {
		sy := int(float64(y) * hIn / float64(outH))
		if sy >= f.Height {
			sy = f.Height - 1
		}
		for x := 0; x < outW; x++ {
			sx := int(float64(x) * wIn / float64(outW))
			if sx >= f.Width {
				sx = f.Width - 1
			}
			srcIdx := (sy*f.Width + sx) * 3
			dstIdx := (y*outW + x) * 3
			copy(out.Data[dstIdx:dstIdx+3], f.Data[srcIdx:srcIdx+3])
		}
	}
	return out, nil
}

// encodeJPEG renders an RGB24 frame as JPEG at the given quality (1-100).
func encodeJPEG(f Frame, quality int) ([]byte, error) {
	if !f.valid() {
		return nil, fmt.Errorf("bad frame %dx%d (%d bytes)", f.Width, f.Height, len(f.Data))
	}
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			src := (y*f.Width + x) * 3
			dst := img.PixOffset(x, y)
			img.Pix[dst] = f.Data[src]
			img.Pix[dst+1] = f.Data[src+1]
			img.Pix[dst+2] = f.Data[src+2]
			img.Pix[dst+3] = 0xff
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
