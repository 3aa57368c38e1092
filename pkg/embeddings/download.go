package embeddings

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
)

// defaultHFEndpoint is the Hugging Face hub; HF_ENDPOINT overrides it.
const defaultHFEndpoint = "https://huggingface.co"

// hfEndpoint returns the hub base URL.
func hfEndpoint() string {
	if ep := os.Getenv("HF_ENDPOINT"); ep != "" {
		return strings.TrimRight(ep, "/")
	}
	return defaultHFEndpoint
}

// modelCachePath returns where file of repo is stored under cacheDir.
func modelCachePath(cacheDir, repo, file string) string {
	return filepath.Join(cacheDir, "models--"+strings.ReplaceAll(repo, "/", "--"), filepath.FromSlash(file))
}

// ensureModelFile returns the local path of repo/file, downloading it into
// cacheDir if it is not there yet.
func ensureModelFile(ctx context.Context, cacheDir, repo, file string, showProgress bool) (string, error) {
	dest := modelCachePath(cacheDir, repo, file)
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		return dest, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("creating model dir: %w", err)
	}

	url := fmt.Sprintf("%s/%s/resolve/main/%s", hfEndpoint(), repo, file)
	if err := downloadFile(ctx, url, dest, showProgress, repo); err != nil {
		return "", fmt.Errorf("downloading %s: %w", repo, err)
	}
	return dest, nil
}

// downloadFile streams url into dest through a temp file so a partial
// download never appears at dest.
func downloadFile(ctx context.Context, url, dest string, showProgress bool, desc string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	var w io.Writer = tmp
	if showProgress {
		bar := progressbar.DefaultBytes(resp.ContentLength, desc)
		defer bar.Close()
		w = io.MultiWriter(tmp, bar)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

// ensureTokenModel fetches the ONNX graph of src and its tokenizer files. It
// returns the graph path and the directory holding the tokenizer files.
func ensureTokenModel(ctx context.Context, cacheDir string, src onnxSource, showProgress bool) (string, string, error) {
	if cacheDir == "" {
		cacheDir = DefaultCacheDir()
	}
	modelPath, err := ensureModelFile(ctx, cacheDir, src.Repo, src.File, showProgress)
	if err != nil {
		return "", "", err
	}
	for _, f := range tokenizerFiles {
		if _, err := ensureModelFile(ctx, cacheDir, src.Repo, f, false); err != nil {
			return "", "", err
		}
	}
	return modelPath, filepath.Dir(modelCachePath(cacheDir, src.Repo, tokenizerFiles[0])), nil
}
