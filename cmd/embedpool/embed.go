package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	httpserver "github.com/fyrsmithlabs/embedpool/internal/http"
	"github.com/fyrsmithlabs/embedpool/pkg/embeddings"
	"github.com/fyrsmithlabs/embedpool/pkg/embedpool"
)

// modelFor returns the configured model settings for kind. The configured
// name only applies when the configured kind matches; name overrides both.
func (a *app) modelFor(kind embedpool.Kind, name string) (embedpool.ModelKind, error) {
	mc := a.cfg.Model
	if mc.Kind != kind.String() {
		mc.Name = ""
		mc.ONNXFile = ""
	}
	mc.Kind = kind.String()
	if name != "" {
		mc.Name = name
	}
	return mc.ModelKind()
}

// withInstance builds a single-slot pool for model and runs fn on its
// instance.
func (a *app) withInstance(ctx context.Context, model embedpool.ModelKind, fn func(*embedpool.Embedding) error) error {
	settings := a.cfg.Pool.PoolSettings()
	settings.MaxSize = 1
	pool, err := embedpool.Config{Model: model, Pool: &settings}.CreatePool(embedpool.StdRuntime{},
		embedpool.WithLogger(a.zap()),
	)
	if err != nil {
		return err
	}
	defer pool.Close()

	obj, err := pool.Get(ctx)
	if err != nil {
		return err
	}
	err = fn(obj.Embedding())
	if errors.Is(err, embeddings.ErrClosed) {
		obj.Discard()
	} else {
		obj.Release()
	}
	return err
}

// readInputs returns args, or one input per non-empty stdin line when args
// is empty or "-".
func readInputs(args []string, stdin io.Reader) ([]string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return args, nil
	}
	var out []string
	sc := bufio.NewScanner(stdin)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading stdin: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no inputs given", embeddings.ErrEmptyInput)
	}
	return out, nil
}

func newEmbedCmd(a *app) *cobra.Command {
	var (
		model     string
		mode      string
		batchSize int
		output    string
	)

	cmd := &cobra.Command{
		Use:   "embed [text...]",
		Short: "Embed text with a dense model",
		Long: `Embed prints one dense vector per input. Inputs are read from stdin,
one per line, when no arguments are given or the only argument is "-".

Mode "passage" prefixes inputs for document indexing, "query" for search
queries, and "raw" embeds inputs unchanged.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := readInputs(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			mk, err := a.modelFor(embedpool.KindText, model)
			if err != nil {
				return err
			}

			var resp httpserver.EmbedResponse
			err = a.withInstance(cmd.Context(), mk, func(e *embedpool.Embedding) error {
				te, _ := e.Text()
				vecs, err := embedText(cmd.Context(), te, inputs, mode, batchSize)
				if err != nil {
					return err
				}
				resp = httpserver.EmbedResponse{
					Model:      string(te.Model()),
					Dimension:  te.Dimension(),
					Embeddings: vecs,
				}
				return nil
			})
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, resp)
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "text model (default from config)")
	cmd.Flags().StringVar(&mode, "mode", "passage", "embedding mode: passage, query or raw")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "inputs per model run (0 uses the model default)")
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format: json or yaml")
	return cmd
}

func embedText(ctx context.Context, te *embeddings.TextEmbedding, inputs []string, mode string, batchSize int) ([][]float32, error) {
	switch mode {
	case "", "passage":
		return te.PassageEmbed(ctx, inputs, batchSize)
	case "raw":
		return te.Embed(ctx, inputs, batchSize)
	case "query":
		out := make([][]float32, 0, len(inputs))
		for _, q := range inputs {
			vec, err := te.QueryEmbed(ctx, q)
			if err != nil {
				return nil, err
			}
			out = append(out, vec)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", embeddings.ErrInvalidConfig, mode)
	}
}

func newSparseCmd(a *app) *cobra.Command {
	var (
		model  string
		output string
	)

	cmd := &cobra.Command{
		Use:   "sparse [text...]",
		Short: "Embed text with a sparse model",
		Long: `Sparse prints one index/value vector per input using the configured
sparse model. Inputs are read from stdin when no arguments are given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := readInputs(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			mk, err := a.modelFor(embedpool.KindSparse, model)
			if err != nil {
				return err
			}

			var resp httpserver.SparseResponse
			err = a.withInstance(cmd.Context(), mk, func(e *embedpool.Embedding) error {
				se, _ := e.Sparse()
				vecs, err := se.Embed(cmd.Context(), inputs)
				if err != nil {
					return err
				}
				resp = httpserver.SparseResponse{Model: string(se.Model()), Embeddings: vecs}
				return nil
			})
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, resp)
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "sparse model (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format: json or yaml")
	return cmd
}

func newImageCmd(a *app) *cobra.Command {
	var (
		model     string
		batchSize int
		output    string
	)

	cmd := &cobra.Command{
		Use:   "image <file>...",
		Short: "Embed image files",
		Long: `Image prints one vector per image file. PNG, JPEG, GIF, BMP, TIFF and
WebP are accepted.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mk, err := a.modelFor(embedpool.KindImage, model)
			if err != nil {
				return err
			}

			var resp httpserver.EmbedResponse
			err = a.withInstance(cmd.Context(), mk, func(e *embedpool.Embedding) error {
				ie, _ := e.Image()
				vecs, err := ie.EmbedFiles(cmd.Context(), args, batchSize)
				if err != nil {
					return err
				}
				resp = httpserver.EmbedResponse{
					Model:      string(ie.Model()),
					Dimension:  ie.Dimension(),
					Embeddings: vecs,
				}
				return nil
			})
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, resp)
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "image model (default from config)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "images per model run (0 uses the model default)")
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format: json or yaml")
	return cmd
}

func newRerankCmd(a *app) *cobra.Command {
	var (
		model    string
		query    string
		topK     int
		files    bool
		withDocs bool
		output   string
	)

	cmd := &cobra.Command{
		Use:   "rerank --query <query> [document...]",
		Short: "Rank documents by relevance to a query",
		Long: `Rerank scores each document against the query and prints results best
first. Documents are read from stdin, one per line, when none are given.
With --files, arguments name files whose contents are the documents.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(query) == "" {
				return fmt.Errorf("%w: --query is required", embeddings.ErrEmptyInput)
			}
			docs, err := readInputs(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if files {
				if docs, err = readFiles(docs); err != nil {
					return err
				}
			}
			mk, err := a.modelFor(embedpool.KindRerank, model)
			if err != nil {
				return err
			}

			var resp httpserver.RerankResponse
			err = a.withInstance(cmd.Context(), mk, func(e *embedpool.Embedding) error {
				rr, _ := e.Rerank()
				results, err := rr.Rerank(cmd.Context(), query, docs, topK, withDocs)
				if err != nil {
					return err
				}
				resp = httpserver.RerankResponse{Model: string(rr.Model()), Results: results}
				return nil
			})
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, resp)
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "reranker model (default from config)")
	cmd.Flags().StringVarP(&query, "query", "q", "", "query to rank documents against")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "keep only the best k results (0 keeps all)")
	cmd.Flags().BoolVar(&files, "files", false, "treat arguments as document file paths")
	cmd.Flags().BoolVar(&withDocs, "return-documents", false, "include document text in results")
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format: json or yaml")
	return cmd
}

func readFiles(paths []string) ([]string, error) {
	out := make([]string, len(paths))
	for i, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading document: %w", err)
		}
		out[i] = string(data)
	}
	return out, nil
}
