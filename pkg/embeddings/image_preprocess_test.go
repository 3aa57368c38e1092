package embeddings

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestNewImagePreprocessor_Validation(t *testing.T) {
	_, err := newImagePreprocessor(0, 0, clipMean, clipStd)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = newImagePreprocessor(224, 224, clipMean, [3]float32{1, 0, 1})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	p, err := newImagePreprocessor(224, 100, clipMean, clipStd)
	require.NoError(t, err)
	assert.Equal(t, 224, p.resize)
}

func TestDecodeImage(t *testing.T) {
	_, err := decodeImage(nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = decodeImage([]byte("not an image"))
	assert.Error(t, err)

	img, err := decodeImage(solidPNG(t, 3, 2, color.White))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())
}

func TestImagePreprocessor_ResizeAndCrop(t *testing.T) {
	p, err := newImagePreprocessor(8, 10, imagenetMean, imagenetStd)
	require.NoError(t, err)

	for _, size := range [][2]int{{40, 20}, {20, 40}, {8, 8}, {3, 5}} {
		img, err := decodeImage(solidPNG(t, size[0], size[1], color.Black))
		require.NoError(t, err)
		out := p.resizeAndCrop(img)
		assert.Equal(t, image.Rect(0, 0, 8, 8), out.Bounds())
	}
}

func TestImagePreprocessor_Tensor(t *testing.T) {
	mean := [3]float32{0.5, 0.5, 0.5}
	std := [3]float32{0.5, 0.5, 0.5}
	p, err := newImagePreprocessor(4, 4, mean, std)
	require.NoError(t, err)

	white, err := decodeImage(solidPNG(t, 6, 6, color.White))
	require.NoError(t, err)
	red, err := decodeImage(solidPNG(t, 6, 6, color.RGBA{R: 255, A: 255}))
	require.NoError(t, err)

	out := p.tensor([]image.Image{white, red})
	require.Len(t, out, 2*3*4*4)

	plane := 16
	for i := 0; i < 3*plane; i++ {
		assert.InDelta(t, 1.0, out[i], 1e-2, "white pixel %d", i)
	}
	// Second image: R plane is 1, G and B planes are -1.
	second := out[3*plane:]
	assert.InDelta(t, 1.0, second[0], 1e-2)
	assert.InDelta(t, -1.0, second[plane], 1e-2)
	assert.InDelta(t, -1.0, second[2*plane], 1e-2)
}

func TestImagePreprocessor_TransparentIsWhite(t *testing.T) {
	p, err := newImagePreprocessor(2, 2, [3]float32{}, [3]float32{1, 1, 1})
	require.NoError(t, err)

	img, err := decodeImage(solidPNG(t, 2, 2, color.Transparent))
	require.NoError(t, err)
	out := p.tensor([]image.Image{img})
	for _, v := range out {
		assert.InDelta(t, 1.0, v, 1e-2)
	}
}

func TestL2Normalize(t *testing.T) {
	vec := []float32{3, 4}
	l2Normalize(vec)
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[1], 1e-6)

	var sum float64
	for _, v := range vec {
		sum += float64(v * v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)

	zero := []float32{0, 0}
	l2Normalize(zero)
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestResolveImageSpec(t *testing.T) {
	spec, err := resolveImageSpec(NewImageInitOptions(Resnet50))
	require.NoError(t, err)
	assert.Equal(t, Resnet50, spec.model)
	assert.Equal(t, 2048, spec.dim)
	assert.Equal(t, 256, spec.prep.resize)
	assert.Nil(t, spec.onnx)

	_, err = resolveImageSpec(NewImageInitOptions("nope"))
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestResolveImageSpec_UserDefined(t *testing.T) {
	opts := NewImageInitOptions("ignored")
	opts.UserDefined = &UserDefinedImageModel{
		ONNX:      []byte{0x08},
		Dim:       16,
		ImageSize: 32,
		Mean:      clipMean,
		Std:       clipStd,
	}
	spec, err := resolveImageSpec(opts)
	require.NoError(t, err)
	assert.Equal(t, ImageEmbeddingModel("user-defined"), spec.model)
	assert.Equal(t, defaultImageInputName, spec.inputName)
	assert.Equal(t, defaultImageOutputName, spec.outputName)
	assert.Equal(t, 32, spec.prep.resize)

	opts.UserDefined.ONNX = nil
	_, err = resolveImageSpec(opts)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	opts.UserDefined.ONNX = []byte{0x08}
	opts.UserDefined.Dim = 0
	_, err = resolveImageSpec(opts)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
