package frame

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"

	xdraw "golang.org/x/image/draw"
)

// DecodeBGR converts a packed BGR24 buffer into an image.
func DecodeBGR(data []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * 3
			img.Set(x, y, color.RGBA{
				R: data[i+2], // BGR -> RGB
				G: data[i+1],
				B: data[i],
				A: 255,
			})
		}
	}
	return img
}

// EncodeBGR flattens an image back into a packed BGR24 buffer.
func EncodeBGR(img *image.RGBA) []byte {
	b := img.Bounds()
	out := make([]byte, b.Dx()*b.Dy()*3)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := img.RGBAAt(x, y)
			i := (y*b.Dx() + x) * 3
			out[i] = c.B
			out[i+1] = c.G
			out[i+2] = c.R
		}
	}
	return out
}

// EncodeJPEG compresses a BGR24 buffer to JPEG at the given quality.
func EncodeJPEG(data []byte, width, height, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, DecodeBGR(data, width, height), &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ApplyColorMap scales raw depth samples by scale, clips to 8 bit and maps the
// result through a jet palette, producing a BGR24 visualization buffer.
func ApplyColorMap(depth []uint16, width, height int, scale float64) []byte {
	out := make([]byte, width*height*3)
	for i, d := range depth {
		if i >= width*height {
			break
		}
		v := float64(d) * scale
		if v > 255 {
			v = 255
		}
		b, g, r := jetColor(uint8(v))
		out[i*3] = b
		out[i*3+1] = g
		out[i*3+2] = r
	}
	return out
}

func jetChannel(v float64) uint8 {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return uint8(v * 255)
}

// jetColor maps an 8-bit intensity onto the jet palette: low values run blue,
// mid values green, high values red.
func jetColor(v uint8) (b, g, r uint8) {
	t := float64(v) / 255 * 4
	r = jetChannel(min(t-1.5, -t+4.5))
	g = jetChannel(min(t-0.5, -t+3.5))
	b = jetChannel(min(t+0.5, -t+2.5))
	return b, g, r
}

// Resize scales a BGR24 buffer to the target geometry.
func Resize(data []byte, width, height, targetWidth, targetHeight int) []byte {
	if width == targetWidth && height == targetHeight {
		return data
	}
	src := DecodeBGR(data, width, height)
	dst := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)
	return EncodeBGR(dst)
}

// HStack concatenates two BGR24 buffers of the same height side by side.
func HStack(left []byte, leftWidth int, right []byte, rightWidth, height int) []byte {
	out := make([]byte, (leftWidth+rightWidth)*height*3)
	for y := 0; y < height; y++ {
		dst := out[y*(leftWidth+rightWidth)*3:]
		copy(dst, left[y*leftWidth*3:(y+1)*leftWidth*3])
		copy(dst[leftWidth*3:], right[y*rightWidth*3:(y+1)*rightWidth*3])
	}
	return out
}
