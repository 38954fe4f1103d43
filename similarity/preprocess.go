package similarity

import (
	"fmt"
	"image"
	"image/color"
	"runtime"

	"gocv.io/x/gocv"
)

// Working resolutions used by the metrics. Both inputs are always brought to
// the same size before comparison so the original dimensions never matter.
var (
	WorkingSize = image.Pt(224, 224)
	FeatureSize = image.Pt(128, 128)
)

func validate(img image.Image) error {
	if img == nil {
		return fmt.Errorf("%w: nil image", ErrInvalidInput)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return fmt.Errorf("%w: zero-sized image %v", ErrInvalidInput, b)
	}
	return nil
}

// ToRGB returns an opaque copy of img anchored at the origin. Alpha is
// dropped, so a transparent pixel keeps its color channels.
func ToRGB(img image.Image) (*image.NRGBA, error) {
	if err := validate(img); err != nil {
		return nil, err
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := dst.PixOffset(x, y)
			dst.Pix[i+0] = c.R
			dst.Pix[i+1] = c.G
			dst.Pix[i+2] = c.B
			dst.Pix[i+3] = 0xff
		}
	}
	return dst, nil
}

// ToArray flattens img into row-major interleaved RGB bytes.
func ToArray(img image.Image) ([]uint8, error) {
	rgb, err := asRGB(img)
	if err != nil {
		return nil, err
	}
	b := rgb.Bounds()
	out := make([]uint8, 0, b.Dx()*b.Dy()*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := rgb.Pix[rgb.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			out = append(out, row[x*4], row[x*4+1], row[x*4+2])
		}
	}
	return out, nil
}

// asRGB skips the conversion for images that ToRGB already produced.
func asRGB(img image.Image) (*image.NRGBA, error) {
	if rgb, ok := img.(*image.NRGBA); ok && rgb != nil {
		if err := validate(rgb); err != nil {
			return nil, err
		}
		if opaque(rgb) {
			return rgb, nil
		}
	}
	return ToRGB(img)
}

func opaque(img *image.NRGBA) bool {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			if row[x*4+3] != 0xff {
				return false
			}
		}
	}
	return true
}

// toBGRMat builds an 8-bit, 3-channel OpenCV matrix in BGR order.
func toBGRMat(img image.Image) (gocv.Mat, error) {
	rgb, err := asRGB(img)
	if err != nil {
		return gocv.NewMat(), err
	}
	b := rgb.Bounds()
	w, h := b.Dx(), b.Dy()
	data := make([]byte, 0, w*h*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := rgb.Pix[rgb.PixOffset(b.Min.X, y):]
		for x := 0; x < w; x++ {
			data = append(data, row[x*4+2], row[x*4+1], row[x*4])
		}
	}

	view, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC3, data)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	defer view.Close()
	// The view borrows data, the clone owns its pixels.
	mat := view.Clone()
	runtime.KeepAlive(data)
	return mat, nil
}

// resized converts img and scales it to size with bicubic interpolation.
func resized(img image.Image, size image.Point) (gocv.Mat, error) {
	src, err := toBGRMat(img)
	if err != nil {
		return src, err
	}
	if src.Cols() == size.X && src.Rows() == size.Y {
		return src, nil
	}
	defer src.Close()
	dst := gocv.NewMat()
	gocv.Resize(src, &dst, size, 0, 0, gocv.InterpolationCubic)
	return dst, nil
}

// ResizeBoth brings a and b to the same working size. The caller owns both
// returned matrices and must Close them.
func ResizeBoth(a, b image.Image, size image.Point) (gocv.Mat, gocv.Mat, error) {
	if size.X <= 0 || size.Y <= 0 {
		return gocv.NewMat(), gocv.NewMat(), fmt.Errorf("%w: working size %v", ErrInvalidInput, size)
	}
	ma, err := resized(a, size)
	if err != nil {
		ma.Close()
		return gocv.NewMat(), gocv.NewMat(), err
	}
	mb, err := resized(b, size)
	if err != nil {
		ma.Close()
		mb.Close()
		return gocv.NewMat(), gocv.NewMat(), err
	}
	return ma, mb, nil
}

// pair is two matrices of identical size and type that are released together.
type pair struct {
	a, b gocv.Mat
}

func resizedPair(a, b image.Image, size image.Point) (pair, error) {
	ma, mb, err := ResizeBoth(a, b, size)
	return pair{a: ma, b: mb}, err
}

func (p pair) Close() {
	p.a.Close()
	p.b.Close()
}

// convert applies code (a gocv color conversion) to both sides.
func (p pair) convert(code gocv.ColorConversionCode) pair {
	out := pair{a: gocv.NewMat(), b: gocv.NewMat()}
	gocv.CvtColor(p.a, &out.a, code)
	gocv.CvtColor(p.b, &out.b, code)
	return out
}

// gray converts both sides to 8-bit luma using the BT.601 weights.
func (p pair) gray() pair {
	return p.convert(gocv.ColorBGRToGray)
}

// unit converts both sides to float64 scaled into [0,1].
func (p pair) unit() pair {
	out := pair{a: gocv.NewMat(), b: gocv.NewMat()}
	p.a.ConvertToWithParams(&out.a, gocv.MatTypeCV64F, 1.0/255.0, 0)
	p.b.ConvertToWithParams(&out.b, gocv.MatTypeCV64F, 1.0/255.0, 0)
	return out
}

// grayValues returns an 8-bit single-channel matrix as floats in [0,1].
func grayValues(m gocv.Mat) []float64 {
	raw := m.ToBytes()
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = float64(v) / 255.0
	}
	return out
}
