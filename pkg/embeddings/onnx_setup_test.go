package embeddings

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrtRelease_URL(t *testing.T) {
	tests := []struct {
		goos, goarch string
		want         string
	}{
		{"linux", "amd64", "onnxruntime-linux-x64-1.16.3.tgz"},
		{"linux", "arm64", "onnxruntime-linux-aarch64-1.16.3.tgz"},
		{"darwin", "amd64", "onnxruntime-osx-x86_64-1.16.3.tgz"},
		{"darwin", "arm64", "onnxruntime-osx-arm64-1.16.3.tgz"},
	}
	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.goarch, func(t *testing.T) {
			url, err := ortRelease{version: "1.16.3", goos: tt.goos, goarch: tt.goarch}.url()
			require.NoError(t, err)
			assert.Equal(t, "https://github.com/microsoft/onnxruntime/releases/download/v1.16.3/"+tt.want, url)
		})
	}

	for _, p := range [][2]string{{"windows", "amd64"}, {"linux", "riscv64"}} {
		_, err := ortRelease{version: "1.16.3", goos: p[0], goarch: p[1]}.url()
		assert.ErrorIs(t, err, ErrUnsupportedPlatform, p)
	}
}

func TestCurrentRelease_DefaultVersion(t *testing.T) {
	r := currentRelease("")
	assert.Equal(t, DefaultONNXRuntimeVersion, r.version)
	assert.Equal(t, runtime.GOOS, r.goos)
	assert.Equal(t, "1.17.0", currentRelease("1.17.0").version)
}

func TestLibraryName(t *testing.T) {
	assert.Equal(t, "libonnxruntime.so", libraryName("linux"))
	assert.Equal(t, "libonnxruntime.dylib", libraryName("darwin"))
}

func installFakeLib(t *testing.T) string {
	t.Helper()
	lib := filepath.Join(ONNXInstallDir(), libraryName(runtime.GOOS))
	require.NoError(t, os.MkdirAll(filepath.Dir(lib), 0o700))
	require.NoError(t, os.WriteFile(lib, []byte("lib"), 0o644))
	return lib
}

func TestGetONNXLibraryPath(t *testing.T) {
	t.Run("env var wins", func(t *testing.T) {
		t.Setenv("ONNX_PATH", "/opt/onnx/libonnxruntime.so")
		assert.Equal(t, "/opt/onnx/libonnxruntime.so", GetONNXLibraryPath())
		assert.True(t, ONNXRuntimeExists())
	})

	t.Run("managed install", func(t *testing.T) {
		t.Setenv("HOME", t.TempDir())
		t.Setenv("ONNX_PATH", "")

		assert.Empty(t, GetONNXLibraryPath())
		assert.False(t, ONNXRuntimeExists())

		lib := installFakeLib(t)
		assert.Equal(t, lib, GetONNXLibraryPath())
	})
}

func TestExportONNXPath(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ONNX_PATH", "")

	exported := map[string]string{}
	orig := setenv
	setenv = func(k, v string) error {
		exported[k] = v
		return nil
	}
	t.Cleanup(func() { setenv = orig })

	require.NoError(t, exportONNXPath())
	assert.Empty(t, exported)

	lib := installFakeLib(t)
	require.NoError(t, exportONNXPath())
	assert.Equal(t, lib, exported["ONNX_PATH"])
}

type tarEntry struct {
	name, body, link string
}

func tgz(t *testing.T, entries ...tarEntry) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0o644, Size: int64(len(e.body)), Typeflag: tar.TypeReg}
		if e.link != "" {
			hdr = &tar.Header{Name: e.name, Linkname: e.link, Typeflag: tar.TypeSymlink}
		}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err := tw.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return bytes.NewReader(buf.Bytes())
}

var linuxRelease = ortRelease{version: "1.16.3", goos: "linux", goarch: "amd64"}

func TestExtractLibs(t *testing.T) {
	dest := t.TempDir()
	err := extractLibs(tgz(t,
		tarEntry{name: "./onnxruntime-linux-x64-1.16.3/lib/libonnxruntime.so.1.16.3", body: "binary"},
		tarEntry{name: "onnxruntime-linux-x64-1.16.3/include/onnxruntime_c_api.h", body: "header"},
		tarEntry{name: "onnxruntime-linux-x64-1.16.3/lib/libonnxruntime.so", link: "libonnxruntime.so.1.16.3"},
	), dest, linuxRelease)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dest, "libonnxruntime.so.1.16.3"))
	require.NoError(t, err)
	assert.Equal(t, "binary", string(data))

	target, err := os.Readlink(filepath.Join(dest, "libonnxruntime.so"))
	require.NoError(t, err)
	assert.Equal(t, "libonnxruntime.so.1.16.3", target)

	assert.NoFileExists(t, filepath.Join(dest, "onnxruntime_c_api.h"))
}

func TestExtractLibs_MissingLibrary(t *testing.T) {
	err := extractLibs(tgz(t,
		tarEntry{name: "onnxruntime-linux-x64-1.16.3/lib/README", body: "nothing here"},
	), t.TempDir(), linuxRelease)
	assert.ErrorContains(t, err, "not found in archive")
}

func TestExtractLibs_NotGzip(t *testing.T) {
	err := extractLibs(bytes.NewReader([]byte("plain")), t.TempDir(), linuxRelease)
	assert.ErrorContains(t, err, "reading archive")
}
