package embeddings

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"
)

// lexicalScorer is the in-process reranker: a document scores the share of
// distinct query terms it contains, in [0, 1].
type lexicalScorer struct{}

func (lexicalScorer) score(ctx context.Context, query string, docs []string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := termSet(tokenize(query))
	scores := make([]float32, len(docs))
	if len(terms) == 0 {
		return scores, nil
	}
	for i, doc := range docs {
		scores[i] = coverage(terms, termSet(tokenize(doc)))
	}
	return scores, nil
}

func (lexicalScorer) close() error { return nil }

var stopwords = termSet(strings.Fields(`
	a an and are as at be been being but by can could did do does for from
	had has have he how i in is it may might of on or she should that the
	these they this those to was we what when where which who why will with
	would you`))

// minTermLen drops terms like "go" and "ok" that match too broadly.
const minTermLen = 3

// tokenize lowercases text and splits it on anything that is not a letter,
// digit or underscore. Stopwords and short terms are dropped.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	out := fields[:0]
	for _, f := range fields {
		if _, stop := stopwords[f]; !stop && utf8.RuneCountInString(f) >= minTermLen {
			out = append(out, f)
		}
	}
	return out
}

func termSet(terms []string) map[string]struct{} {
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[t] = struct{}{}
	}
	return set
}

// coverage is the fraction of query terms found in doc.
func coverage(query, doc map[string]struct{}) float32 {
	if len(query) == 0 {
		return 0
	}
	hit := 0
	for t := range query {
		if _, ok := doc[t]; ok {
			hit++
		}
	}
	return float32(hit) / float32(len(query))
}
