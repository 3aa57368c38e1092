package embeddings

import (
	"os"
	"path/filepath"
	"slices"
	"time"
)

// DefaultMaxLength is the default maximum input sequence length.
const DefaultMaxLength = 512

// Execution providers understood by the ONNX backends.
const (
	ExecutionProviderCPU  = "cpu"
	ExecutionProviderCUDA = "cuda"
)

// DefaultCacheDir returns the directory model files are cached in when none
// is configured: <user cache dir>/embedpool/models, or ./local_cache.
func DefaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil || dir == "" {
		return filepath.Join(".", "local_cache")
	}
	return filepath.Join(dir, "embedpool", "models")
}

// TextInitOptions configures a TextEmbedding.
type TextInitOptions struct {
	// Model is the FastEmbed model. Hugging Face aliases are accepted.
	Model EmbeddingModel

	// CacheDir is the directory to cache model files.
	CacheDir string

	// ExecutionProviders lists ONNX execution providers in priority order.
	ExecutionProviders []string

	// MaxLength is the maximum input sequence length.
	MaxLength int

	// ShowDownloadProgress prints a progress bar while fetching model files.
	ShowDownloadProgress bool
}

// NewTextInitOptions returns options for model with defaults applied.
func NewTextInitOptions(model EmbeddingModel) TextInitOptions {
	return TextInitOptions{
		Model:                model,
		CacheDir:             DefaultCacheDir(),
		MaxLength:            DefaultMaxLength,
		ShowDownloadProgress: true,
	}
}

// Clone returns a deep copy.
func (o TextInitOptions) Clone() TextInitOptions {
	o.ExecutionProviders = slices.Clone(o.ExecutionProviders)
	return o
}

// UserDefinedImageModel is an image encoder supplied as raw ONNX bytes
// instead of a registry download.
type UserDefinedImageModel struct {
	ONNX []byte

	// Dim is the embedding dimension of the model output.
	Dim int

	// InputName and OutputName are the graph tensor names; they default to
	// pixel_values and image_embeds.
	InputName  string
	OutputName string

	// ImageSize is the square input resolution (after center crop).
	ImageSize int

	// ResizeSize is the shortest edge after resize; defaults to ImageSize.
	ResizeSize int

	Mean [3]float32
	Std  [3]float32
}

// ImageInitOptions configures an ImageEmbedding.
type ImageInitOptions struct {
	// Model is the registry model. Ignored when UserDefined is set.
	Model ImageEmbeddingModel

	// CacheDir is the directory to cache model files.
	CacheDir string

	// ExecutionProviders lists ONNX execution providers in priority order.
	ExecutionProviders []string

	// ShowDownloadProgress prints a progress bar while fetching model files.
	ShowDownloadProgress bool

	// UserDefined replaces the registry lookup with caller-supplied bytes.
	UserDefined *UserDefinedImageModel
}

// NewImageInitOptions returns options for model with defaults applied.
func NewImageInitOptions(model ImageEmbeddingModel) ImageInitOptions {
	return ImageInitOptions{
		Model:                model,
		CacheDir:             DefaultCacheDir(),
		ShowDownloadProgress: true,
	}
}

// Clone returns a deep copy.
func (o ImageInitOptions) Clone() ImageInitOptions {
	o.ExecutionProviders = slices.Clone(o.ExecutionProviders)
	if o.UserDefined != nil {
		ud := *o.UserDefined
		ud.ONNX = slices.Clone(ud.ONNX)
		o.UserDefined = &ud
	}
	return o
}

// RemoteOptions configures the HTTP client used to reach a Text Embeddings
// Inference server. An empty Endpoint keeps the model in-process.
type RemoteOptions struct {
	// Endpoint is the TEI base URL, e.g. http://localhost:8080. The server
	// must report the selected model in its /info model_id.
	Endpoint string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout bounds a single HTTP request. Zero means no timeout.
	Timeout time.Duration

	// RateLimit caps requests per second from one backend instance.
	// Zero disables limiting.
	RateLimit float64

	// Burst is the rate limiter burst; defaults to 1.
	Burst int
}

// SparseInitOptions configures a SparseTextEmbedding. The model runs locally
// through onnxruntime unless Remote.Endpoint is set.
type SparseInitOptions struct {
	Model SparseModel

	// CacheDir is the directory to cache model files.
	CacheDir string

	// ExecutionProviders lists ONNX execution providers in priority order.
	ExecutionProviders []string

	// MaxLength is the maximum input sequence length; longer inputs are
	// truncated.
	MaxLength int

	// ShowDownloadProgress prints a progress bar while fetching model files.
	ShowDownloadProgress bool

	Remote RemoteOptions
}

// NewSparseInitOptions returns options for model with defaults applied.
func NewSparseInitOptions(model SparseModel) SparseInitOptions {
	return SparseInitOptions{
		Model:                model,
		CacheDir:             DefaultCacheDir(),
		MaxLength:            DefaultMaxLength,
		ShowDownloadProgress: true,
	}
}

// Clone returns a deep copy.
func (o SparseInitOptions) Clone() SparseInitOptions {
	o.ExecutionProviders = slices.Clone(o.ExecutionProviders)
	return o
}

// RerankInitOptions configures a TextRerank. Cross-encoders run locally
// through onnxruntime unless Remote.Endpoint is set.
type RerankInitOptions struct {
	Model RerankerModel

	// CacheDir is the directory to cache model files.
	CacheDir string

	// ExecutionProviders lists ONNX execution providers in priority order.
	ExecutionProviders []string

	// MaxLength is the maximum query+document sequence length.
	MaxLength int

	// ShowDownloadProgress prints a progress bar while fetching model files.
	ShowDownloadProgress bool

	// Remote is ignored by LexicalReranker.
	Remote RemoteOptions
}

// NewRerankInitOptions returns options for model with defaults applied.
func NewRerankInitOptions(model RerankerModel) RerankInitOptions {
	return RerankInitOptions{
		Model:                model,
		CacheDir:             DefaultCacheDir(),
		MaxLength:            DefaultMaxLength,
		ShowDownloadProgress: true,
	}
}

// Clone returns a deep copy.
func (o RerankInitOptions) Clone() RerankInitOptions {
	o.ExecutionProviders = slices.Clone(o.ExecutionProviders)
	return o
}

// Validate resolves the model against the registry.
func (o TextInitOptions) Validate() error {
	_, _, err := LookupTextModel(string(o.Model))
	return err
}

// Validate resolves the registry model, or checks the user-defined model.
func (o ImageInitOptions) Validate() error {
	_, err := resolveImageSpec(o)
	return err
}

// Validate resolves the model and checks it can run where configured.
func (o SparseInitOptions) Validate() error {
	model, _, err := LookupSparseModel(string(o.Model))
	if err != nil {
		return err
	}
	_, err = sparseEntry(model, o.Remote)
	return err
}

// Validate resolves the model and checks it can run where configured.
func (o RerankInitOptions) Validate() error {
	model, _, err := LookupRerankerModel(string(o.Model))
	if err != nil {
		return err
	}
	_, err = rerankerEntry(model, o.Remote)
	return err
}
