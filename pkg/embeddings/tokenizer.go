package embeddings

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// tokenizerFiles are fetched next to every transformer ONNX export.
var tokenizerFiles = []string{
	"tokenizer.json",
	"config.json",
	"tokenizer_config.json",
	"special_tokens_map.json",
}

// loadTokenizer builds a padding, truncating tokenizer from the files in dir.
// Padding uses the longest sequence of each batch.
func loadTokenizer(dir string, maxLength int) (*tokenizer.Tokenizer, error) {
	tk, err := pretrained.FromFile(filepath.Join(dir, "tokenizer.json"))
	if err != nil {
		return nil, fmt.Errorf("loading tokenizer: %w", err)
	}

	var model struct {
		PadTokenID int `json:"pad_token_id"`
	}
	if err := readJSON(filepath.Join(dir, "config.json"), &model); err != nil {
		return nil, err
	}
	var tc struct {
		ModelMaxLength float64         `json:"model_max_length"`
		PadToken       json.RawMessage `json:"pad_token"`
	}
	if err := readJSON(filepath.Join(dir, "tokenizer_config.json"), &tc); err != nil {
		return nil, err
	}
	var special map[string]json.RawMessage
	if err := readJSON(filepath.Join(dir, "special_tokens_map.json"), &special); err != nil {
		return nil, err
	}

	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	if tc.ModelMaxLength > 0 {
		maxLength = min(maxLength, int(min(tc.ModelMaxLength, math.MaxInt32)))
	}
	tk.WithTruncation(&tokenizer.TruncationParams{
		MaxLength: maxLength,
		Strategy:  tokenizer.LongestFirst,
	})

	padToken := "[PAD]"
	if t, ok := parseAddedToken(tc.PadToken); ok {
		padToken = t.Content
	}
	tk.WithPadding(&tokenizer.PaddingParams{
		Strategy:  *tokenizer.NewPaddingStrategy(),
		Direction: tokenizer.Right,
		PadId:     model.PadTokenID,
		PadToken:  padToken,
	})

	tokens := make([]tokenizer.AddedToken, 0, len(special))
	for _, raw := range special {
		if t, ok := parseAddedToken(raw); ok {
			tokens = append(tokens, t)
		}
	}
	tk.AddSpecialTokens(tokens)
	return tk, nil
}

// parseAddedToken accepts the two shapes HF tokenizer configs use for a
// special token: a bare string or an object with content and flags. Lists
// such as additional_special_tokens are skipped.
func parseAddedToken(raw json.RawMessage) (tokenizer.AddedToken, bool) {
	if len(raw) == 0 {
		return tokenizer.AddedToken{}, false
	}
	var content string
	if json.Unmarshal(raw, &content) == nil {
		return tokenizer.AddedToken{Content: content}, content != ""
	}
	var obj struct {
		Content    string `json:"content"`
		SingleWord bool   `json:"single_word"`
		LStrip     bool   `json:"lstrip"`
		RStrip     bool   `json:"rstrip"`
		Normalized bool   `json:"normalized"`
	}
	if json.Unmarshal(raw, &obj) != nil || obj.Content == "" {
		return tokenizer.AddedToken{}, false
	}
	return tokenizer.AddedToken{
		Content:    obj.Content,
		SingleWord: obj.SingleWord,
		LStrip:     obj.LStrip,
		RStrip:     obj.RStrip,
		Normalized: obj.Normalized,
	}, true
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// tokenBatch is a padded batch laid out row-major as the int64 tensors
// BERT-style graphs take.
type tokenBatch struct {
	ids, mask, types []int64
	rows, seqLen     int
}

// encodeTexts tokenizes single sequences.
func encodeTexts(tk *tokenizer.Tokenizer, texts []string) (*tokenBatch, error) {
	inputs := make([]tokenizer.EncodeInput, len(texts))
	for i, text := range texts {
		inputs[i] = tokenizer.NewSingleEncodeInput(tokenizer.NewInputSequence(text))
	}
	return encode(tk, inputs)
}

// encodePairs tokenizes (query, document) pairs for a cross-encoder.
func encodePairs(tk *tokenizer.Tokenizer, query string, docs []string) (*tokenBatch, error) {
	q := tokenizer.NewInputSequence(query)
	inputs := make([]tokenizer.EncodeInput, len(docs))
	for i, doc := range docs {
		inputs[i] = tokenizer.NewDualEncodeInput(q, tokenizer.NewInputSequence(doc))
	}
	return encode(tk, inputs)
}

func encode(tk *tokenizer.Tokenizer, inputs []tokenizer.EncodeInput) (*tokenBatch, error) {
	encodings, err := tk.EncodeBatch(inputs, true)
	if err != nil {
		return nil, fmt.Errorf("%w: tokenizing: %v", ErrEmbeddingFailed, err)
	}
	if len(encodings) != len(inputs) || len(encodings) == 0 {
		return nil, fmt.Errorf("%w: tokenizer returned %d encodings for %d inputs", ErrEmbeddingFailed, len(encodings), len(inputs))
	}

	seqLen := encodings[0].Len()
	b := &tokenBatch{
		ids:    make([]int64, 0, len(encodings)*seqLen),
		mask:   make([]int64, 0, len(encodings)*seqLen),
		types:  make([]int64, 0, len(encodings)*seqLen),
		rows:   len(encodings),
		seqLen: seqLen,
	}
	for i := range encodings {
		e := &encodings[i]
		if e.Len() != seqLen {
			return nil, fmt.Errorf("%w: unpadded batch (%d vs %d tokens)", ErrEmbeddingFailed, e.Len(), seqLen)
		}
		b.ids = appendInt64(b.ids, e.GetIds())
		b.mask = appendInt64(b.mask, e.GetAttentionMask())
		b.types = appendInt64(b.types, e.GetTypeIds())
	}
	return b, nil
}

func appendInt64(dst []int64, src []int) []int64 {
	for _, v := range src {
		dst = append(dst, int64(v))
	}
	return dst
}
