//go:build cgo

package embeddings

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var ortInitMu sync.Mutex

// initONNXEnvironment initializes the shared onnxruntime environment once per
// process. FastEmbed may already have done so.
func initONNXEnvironment() error {
	ortInitMu.Lock()
	defer ortInitMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	path := os.Getenv("ONNX_PATH")
	if path == "" {
		path = GetONNXLibraryPath()
	}
	if path != "" {
		ort.SetSharedLibraryPath(path)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initializing onnxruntime: %w", err)
	}
	return nil
}

func newSessionOptions(providers []string) (*ort.SessionOptions, error) {
	so, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("creating session options: %w", err)
	}
	for _, p := range providers {
		switch strings.ToLower(p) {
		case "", ExecutionProviderCPU:
		case ExecutionProviderCUDA:
			cuda, err := ort.NewCUDAProviderOptions()
			if err != nil {
				so.Destroy()
				return nil, fmt.Errorf("creating CUDA options: %w", err)
			}
			err = so.AppendExecutionProviderCUDA(cuda)
			cuda.Destroy()
			if err != nil {
				so.Destroy()
				return nil, fmt.Errorf("enabling CUDA: %w", err)
			}
		default:
			so.Destroy()
			return nil, fmt.Errorf("%w: unsupported execution provider %q", ErrInvalidConfig, p)
		}
	}
	return so, nil
}

// tokenSession runs a transformer graph that takes token ids and reads its
// first output.
type tokenSession struct {
	session *ort.DynamicAdvancedSession
	inputs  []string
	mu      sync.Mutex
}

// newTokenSession opens the graph at path. Inputs other than input_ids,
// attention_mask and token_type_ids are rejected; token_type_ids is optional.
func newTokenSession(path string, providers []string) (*tokenSession, error) {
	if err := initONNXEnvironment(); err != nil {
		return nil, err
	}

	ins, outs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("reading onnx graph: %w", err)
	}
	if len(outs) == 0 {
		return nil, fmt.Errorf("%w: onnx graph has no outputs", ErrInvalidConfig)
	}
	inputs := make([]string, 0, len(ins))
	for _, in := range ins {
		switch in.Name {
		case "input_ids", "attention_mask", "token_type_ids":
			inputs = append(inputs, in.Name)
		default:
			return nil, fmt.Errorf("%w: unsupported graph input %q", ErrInvalidConfig, in.Name)
		}
	}

	so, err := newSessionOptions(providers)
	if err != nil {
		return nil, err
	}
	defer so.Destroy()

	session, err := ort.NewDynamicAdvancedSession(path, inputs, []string{outs[0].Name}, so)
	if err != nil {
		return nil, fmt.Errorf("creating onnx session: %w", err)
	}
	return &tokenSession{session: session, inputs: inputs}, nil
}

// run feeds b through the graph and returns a copy of the first output with
// its shape.
func (s *tokenSession) run(b *tokenBatch) ([]float32, []int64, error) {
	shape := ort.NewShape(int64(b.rows), int64(b.seqLen))
	inputs := make([]ort.ArbitraryTensor, 0, len(s.inputs))
	defer func() {
		for _, t := range inputs {
			t.Destroy()
		}
	}()
	for _, name := range s.inputs {
		data := b.ids
		switch name {
		case "attention_mask":
			data = b.mask
		case "token_type_ids":
			data = b.types
		}
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: creating %s tensor: %v", ErrEmbeddingFailed, name, err)
		}
		inputs = append(inputs, t)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, nil, ErrClosed
	}

	outputs := []ort.ArbitraryTensor{nil}
	if err := s.session.Run(inputs, outputs); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("%w: graph output is not float32", ErrEmbeddingFailed)
	}
	return slices.Clone(out.GetData()), slices.Clone([]int64(out.GetShape())), nil
}

func (s *tokenSession) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return err
}
