package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	httpserver "github.com/fyrsmithlabs/embedpool/internal/http"
	"github.com/fyrsmithlabs/embedpool/pkg/embeddings"
	"github.com/fyrsmithlabs/embedpool/pkg/embedpool"
)

// execute runs the root command with an isolated HOME and returns stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "embed", "sparse", "image", "rerank", "models", "init", "health", "top", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:    dev")
	assert.Contains(t, out, "Commit:")
}

func TestModelsCmd(t *testing.T) {
	t.Run("table", func(t *testing.T) {
		out, err := execute(t, "", "models")
		require.NoError(t, err)
		assert.Contains(t, out, "KIND")
		assert.Contains(t, out, string(embeddings.BGESmallENV15))
		assert.Contains(t, out, string(embeddings.ClipVitB32))
		assert.Contains(t, out, string(embeddings.LexicalReranker))
	})

	t.Run("json for one kind", func(t *testing.T) {
		out, err := execute(t, "", "models", "rerank", "-o", "json")
		require.NoError(t, err)

		var l modelList
		require.NoError(t, json.Unmarshal([]byte(out), &l))
		assert.Empty(t, l.Text)
		assert.Len(t, l.Rerank, len(embeddings.ListRerankerModels()))
	})

	t.Run("yaml", func(t *testing.T) {
		out, err := execute(t, "", "models", "sparse", "-o", "yaml")
		require.NoError(t, err)

		var l modelList
		require.NoError(t, yaml.Unmarshal([]byte(out), &l))
		require.NotEmpty(t, l.Sparse)
		assert.Equal(t, string(embeddings.BGEM3), l.Sparse[0].Model)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := execute(t, "", "models", "audio")
		assert.Error(t, err)
	})
}

func TestRerankCmd(t *testing.T) {
	t.Run("ranks arguments", func(t *testing.T) {
		out, err := execute(t, "", "rerank", "-m", "lexical", "-q", "golang pool library",
			"recipes for dinner", "a golang pool library", "golang tutorial")
		require.NoError(t, err)

		var resp httpserver.RerankResponse
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.Equal(t, "lexical", resp.Model)
		require.Len(t, resp.Results, 3)
		assert.Equal(t, 1, resp.Results[0].Index)
		assert.Equal(t, 2, resp.Results[1].Index)
		assert.Empty(t, resp.Results[0].Document)
	})

	t.Run("reads stdin with top-k", func(t *testing.T) {
		out, err := execute(t, "recipes for dinner\ngolang pool\n\n", "rerank", "-m", "lexical",
			"-q", "golang", "-k", "1", "--return-documents")
		require.NoError(t, err)

		var resp httpserver.RerankResponse
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		require.Len(t, resp.Results, 1)
		assert.Equal(t, 1, resp.Results[0].Index)
		assert.Equal(t, "golang pool", resp.Results[0].Document)
	})

	t.Run("requires query", func(t *testing.T) {
		_, err := execute(t, "", "rerank", "-m", "lexical", "doc")
		assert.ErrorIs(t, err, embeddings.ErrEmptyInput)
	})

	t.Run("unknown model", func(t *testing.T) {
		_, err := execute(t, "", "rerank", "-m", "nope", "-q", "q", "doc")
		assert.Error(t, err)
	})
}

func TestSparseCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/info":
			_ = json.NewEncoder(w).Encode(map[string]any{"model_id": "prithivida/Splade_PP_en_v1"})
		case "/embed_sparse":
			var req struct {
				Inputs []string `json:"inputs"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			out := make([][]map[string]any, len(req.Inputs))
			for i, in := range req.Inputs {
				out[i] = []map[string]any{{"index": i, "value": float64(len(in))}}
			}
			_ = json.NewEncoder(w).Encode(out)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	t.Setenv("EMBEDPOOL_MODEL_ENDPOINT", srv.URL)

	out, err := execute(t, "", "sparse", "ab", "abcd")
	require.NoError(t, err)

	var resp httpserver.SparseResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, string(embeddings.SPLADEPPV1), resp.Model)
	require.Len(t, resp.Embeddings, 2)
	assert.Equal(t, []int{1}, resp.Embeddings[1].Indices)
	assert.Equal(t, []float32{4}, resp.Embeddings[1].Values)
}

func TestHealthCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/status" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(httpserver.StatusResponse{
			Status: "ok",
			Kind:   "rerank",
			Model:  "lexical",
			Pool:   embedpool.Status{MaxSize: 4, Size: 2, Idle: 1, InUse: 1},
		})
	}))
	defer srv.Close()

	t.Run("text", func(t *testing.T) {
		out, err := execute(t, "", "health", "--server", srv.URL)
		require.NoError(t, err)
		assert.Contains(t, out, "Server Status: ok")
		assert.Contains(t, out, "lexical (rerank)")
		assert.Contains(t, out, "2/4 instances")
	})

	t.Run("json", func(t *testing.T) {
		out, err := execute(t, "", "health", "--server", srv.URL+"/", "-o", "json")
		require.NoError(t, err)
		var st httpserver.StatusResponse
		require.NoError(t, json.Unmarshal([]byte(out), &st))
		assert.Equal(t, 1, st.Pool.InUse)
	})

	t.Run("error status", func(t *testing.T) {
		_, err := execute(t, "", "health", "--server", srv.URL+"/missing")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})
}

func TestReadInputs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		stdin   string
		want    []string
		wantErr bool
	}{
		{name: "args", args: []string{"a", "b"}, want: []string{"a", "b"}},
		{name: "stdin", stdin: "one\n\n  two  \n", want: []string{"one", "two"}},
		{name: "dash reads stdin", args: []string{"-"}, stdin: "x\n", want: []string{"x"}},
		{name: "empty stdin", stdin: "\n \n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readInputs(tt.args, strings.NewReader(tt.stdin))
			if tt.wantErr {
				assert.ErrorIs(t, err, embeddings.ErrEmptyInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteOutput(t *testing.T) {
	v := map[string]int{"dim": 384}

	var buf bytes.Buffer
	require.NoError(t, writeOutput(&buf, "json", v))
	assert.JSONEq(t, `{"dim":384}`, buf.String())

	buf.Reset()
	require.NoError(t, writeOutput(&buf, "yaml", v))
	assert.Equal(t, "dim: 384\n", buf.String())

	assert.Error(t, writeOutput(io.Discard, "xml", v))
}

func TestModelFor(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	a := &app{}
	require.NoError(t, a.setup(newModelsCmd(a), nil))
	a.cfg.Model.Kind = "rerank"
	a.cfg.Model.Name = "lexical"

	mk, err := a.modelFor(embedpool.KindRerank, "")
	require.NoError(t, err)
	assert.Equal(t, "lexical", mk.Model())

	// The configured name belongs to another kind and is dropped.
	mk, err = a.modelFor(embedpool.KindSparse, "")
	require.NoError(t, err)
	assert.Equal(t, string(embeddings.DefaultSparseModel), mk.Model())

	mk, err = a.modelFor(embedpool.KindRerank, string(embeddings.BGERerankerBase))
	require.NoError(t, err)
	assert.Equal(t, string(embeddings.BGERerankerBase), mk.Model())
}
