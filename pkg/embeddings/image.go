//go:build cgo

package embeddings

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"
)

// defaultImageBatchSize bounds how many images go through one session run.
const defaultImageBatchSize = 16

// ImageEmbedding generates image embeddings with an ONNX vision encoder.
type ImageEmbedding struct {
	spec    imageSpec
	session *ort.DynamicAdvancedSession
	metrics *Metrics
	mu      sync.Mutex
}

// NewImageEmbedding loads the model. Registry models are downloaded into
// opts.CacheDir on first use.
func NewImageEmbedding(ctx context.Context, opts ImageInitOptions) (*ImageEmbedding, error) {
	spec, err := resolveImageSpec(opts)
	if err != nil {
		return nil, err
	}

	if spec.onnx == nil {
		cacheDir := opts.CacheDir
		if cacheDir == "" {
			cacheDir = DefaultCacheDir()
		}
		path, err := ensureModelFile(ctx, cacheDir, string(spec.model), spec.file, opts.ShowDownloadProgress)
		if err != nil {
			return nil, err
		}
		if spec.onnx, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("reading model file: %w", err)
		}
	}

	if err := initONNXEnvironment(); err != nil {
		return nil, err
	}

	sessionOpts, err := newSessionOptions(opts.ExecutionProviders)
	if err != nil {
		return nil, err
	}
	defer sessionOpts.Destroy()

	session, err := ort.NewDynamicAdvancedSessionWithONNXData(
		spec.onnx,
		[]string{spec.inputName},
		[]string{spec.outputName},
		sessionOpts,
	)
	if err != nil {
		return nil, fmt.Errorf("creating onnx session: %w", err)
	}
	spec.onnx = nil

	return &ImageEmbedding{
		spec:    spec,
		session: session,
		metrics: defaultMetrics(),
	}, nil
}

// Embed returns one L2-normalized embedding per encoded image.
func (e *ImageEmbedding) Embed(ctx context.Context, images [][]byte, batchSize int) (out [][]float32, err error) {
	start := time.Now()
	defer func() {
		e.metrics.Record(ctx, string(e.spec.model), "image_embed", time.Since(start), len(images), err)
	}()

	if len(images) == 0 {
		return nil, fmt.Errorf("%w: images cannot be empty", ErrEmptyInput)
	}
	if batchSize <= 0 {
		batchSize = defaultImageBatchSize
	}

	decoded := make([]image.Image, len(images))
	for i, data := range images {
		if decoded[i], err = decodeImage(data); err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
	}

	out = make([][]float32, 0, len(images))
	for batch := range chunk(decoded, batchSize) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vecs, err := e.run(batch)
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// EmbedFiles reads and embeds images from disk.
func (e *ImageEmbedding) EmbedFiles(ctx context.Context, paths []string, batchSize int) ([][]float32, error) {
	images := make([][]byte, len(paths))
	for i, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading image: %w", err)
		}
		images[i] = data
	}
	return e.Embed(ctx, images, batchSize)
}

func (e *ImageEmbedding) run(batch []image.Image) ([][]float32, error) {
	n := int64(len(batch))
	size := int64(e.spec.prep.size)
	dim := int64(e.spec.dim)

	input, err := ort.NewTensor(ort.NewShape(n, 3, size, size), e.spec.prep.tensor(batch))
	if err != nil {
		return nil, fmt.Errorf("%w: creating input tensor: %v", ErrEmbeddingFailed, err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(n, dim))
	if err != nil {
		return nil, fmt.Errorf("%w: creating output tensor: %v", ErrEmbeddingFailed, err)
	}
	defer output.Destroy()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, ErrClosed
	}
	if err := e.session.Run([]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	flat := output.GetData()
	vecs := make([][]float32, n)
	for i := range vecs {
		vec := make([]float32, dim)
		copy(vec, flat[int64(i)*dim:(int64(i)+1)*dim])
		l2Normalize(vec)
		vecs[i] = vec
	}
	return vecs, nil
}

// Model returns the registry model name, or "user-defined".
func (e *ImageEmbedding) Model() ImageEmbeddingModel {
	return e.spec.model
}

// Dimension returns the embedding dimension.
func (e *ImageEmbedding) Dimension() int {
	return e.spec.dim
}

// Close releases the ONNX session. Safe to call more than once.
func (e *ImageEmbedding) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	return err
}
