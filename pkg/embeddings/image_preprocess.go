package embeddings

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"

	// Decoders registered for image.Decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// imagePreprocessor turns decoded images into the normalized NCHW float
// tensor vision encoders expect.
type imagePreprocessor struct {
	size   int
	resize int
	mean   [3]float32
	std    [3]float32
}

func newImagePreprocessor(size, resize int, mean, std [3]float32) (imagePreprocessor, error) {
	if size <= 0 {
		return imagePreprocessor{}, fmt.Errorf("%w: image size must be > 0", ErrInvalidConfig)
	}
	if resize < size {
		resize = size
	}
	for i, s := range std {
		if s == 0 {
			return imagePreprocessor{}, fmt.Errorf("%w: std[%d] must be non-zero", ErrInvalidConfig, i)
		}
	}
	return imagePreprocessor{size: size, resize: resize, mean: mean, std: std}, nil
}

// decodeImage decodes JPEG, PNG, GIF or WebP bytes.
func decodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: image data is empty", ErrEmptyInput)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// tensor returns a [len(images), 3, size, size] tensor flattened row-major.
func (p imagePreprocessor) tensor(images []image.Image) []float32 {
	plane := p.size * p.size
	out := make([]float32, len(images)*3*plane)
	for n, img := range images {
		p.fill(out[n*3*plane:(n+1)*3*plane], img)
	}
	return out
}

// fill writes one CHW image into dst.
func (p imagePreprocessor) fill(dst []float32, img image.Image) {
	cropped := p.resizeAndCrop(img)
	plane := p.size * p.size
	for y := 0; y < p.size; y++ {
		for x := 0; x < p.size; x++ {
			c := cropped.RGBAAt(x, y)
			i := y*p.size + x
			dst[i] = (float32(c.R)/255 - p.mean[0]) / p.std[0]
			dst[plane+i] = (float32(c.G)/255 - p.mean[1]) / p.std[1]
			dst[2*plane+i] = (float32(c.B)/255 - p.mean[2]) / p.std[2]
		}
	}
}

// resizeAndCrop scales the shortest edge to p.resize and center-crops a
// p.size square. Transparent pixels are composited over white.
func (p imagePreprocessor) resizeAndCrop(img image.Image) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	opaque := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(opaque, opaque.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(opaque, opaque.Bounds(), img, b.Min, draw.Over)

	nw, nh := p.resize, p.resize
	if w < h {
		nh = int(math.Round(float64(h) * float64(p.resize) / float64(w)))
	} else if h < w {
		nw = int(math.Round(float64(w) * float64(p.resize) / float64(h)))
	}

	scaled := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), opaque, opaque.Bounds(), draw.Src, nil)

	x0 := (nw - p.size) / 2
	y0 := (nh - p.size) / 2
	cropped := image.NewRGBA(image.Rect(0, 0, p.size, p.size))
	draw.Draw(cropped, cropped.Bounds(), scaled, image.Point{X: x0, Y: y0}, draw.Src)
	return cropped
}

// l2Normalize scales vec to unit length in place.
func l2Normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}

// imageSpec is the resolved model description used to build a session.
type imageSpec struct {
	model      ImageEmbeddingModel
	file       string
	onnx       []byte
	inputName  string
	outputName string
	dim        int
	prep       imagePreprocessor
}

const (
	defaultImageInputName  = "pixel_values"
	defaultImageOutputName = "image_embeds"
)

// resolveImageSpec validates opts against the registry, or against the
// user-defined model when one is supplied.
func resolveImageSpec(opts ImageInitOptions) (imageSpec, error) {
	if ud := opts.UserDefined; ud != nil {
		if len(ud.ONNX) == 0 {
			return imageSpec{}, fmt.Errorf("%w: user-defined model has no ONNX bytes", ErrInvalidConfig)
		}
		if ud.Dim <= 0 {
			return imageSpec{}, fmt.Errorf("%w: user-defined model dim must be > 0", ErrInvalidConfig)
		}
		prep, err := newImagePreprocessor(ud.ImageSize, ud.ResizeSize, ud.Mean, ud.Std)
		if err != nil {
			return imageSpec{}, err
		}
		spec := imageSpec{
			model:      "user-defined",
			onnx:       ud.ONNX,
			inputName:  ud.InputName,
			outputName: ud.OutputName,
			dim:        ud.Dim,
			prep:       prep,
		}
		if spec.inputName == "" {
			spec.inputName = defaultImageInputName
		}
		if spec.outputName == "" {
			spec.outputName = defaultImageOutputName
		}
		return spec, nil
	}

	model, _, err := LookupImageModel(string(opts.Model))
	if err != nil {
		return imageSpec{}, err
	}
	info := imageModels[model]
	prep, err := newImagePreprocessor(info.ImageSize, info.ResizeSize, info.Mean, info.Std)
	if err != nil {
		return imageSpec{}, err
	}
	return imageSpec{
		model:      model,
		file:       info.File,
		inputName:  info.InputName,
		outputName: info.OutputName,
		dim:        info.Dim,
		prep:       prep,
	}, nil
}
