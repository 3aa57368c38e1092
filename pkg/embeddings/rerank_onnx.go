//go:build cgo

package embeddings

import (
	"context"

	"github.com/sugarme/tokenizer"
)

// crossEncoder scores (query, document) pairs with a local sequence
// classification export.
type crossEncoder struct {
	tokenizer *tokenizer.Tokenizer
	session   *tokenSession
}

func newCrossEncoder(ctx context.Context, src onnxSource, opts RerankInitOptions) (*crossEncoder, error) {
	modelPath, tokDir, err := ensureTokenModel(ctx, opts.CacheDir, src, opts.ShowDownloadProgress)
	if err != nil {
		return nil, err
	}
	tk, err := loadTokenizer(tokDir, opts.MaxLength)
	if err != nil {
		return nil, err
	}
	session, err := newTokenSession(modelPath, opts.ExecutionProviders)
	if err != nil {
		return nil, err
	}
	return &crossEncoder{tokenizer: tk, session: session}, nil
}

func (c *crossEncoder) score(ctx context.Context, query string, docs []string) ([]float32, error) {
	scores := make([]float32, 0, len(docs))
	for batch := range chunk(docs, defaultLocalBatchSize) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tokens, err := encodePairs(c.tokenizer, query, batch)
		if err != nil {
			return nil, err
		}
		logits, shape, err := c.session.run(tokens)
		if err != nil {
			return nil, err
		}
		s, err := sigmoidScores(logits, shape)
		if err != nil {
			return nil, err
		}
		scores = append(scores, s...)
	}
	return scores, nil
}

func (c *crossEncoder) close() error {
	return c.session.close()
}
