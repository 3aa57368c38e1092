package embeddings

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

// DefaultONNXRuntimeVersion is the onnxruntime release matching the
// onnxruntime_go binding in go.mod. Update both together.
const DefaultONNXRuntimeVersion = "1.16.3"

// ErrUnsupportedPlatform means microsoft/onnxruntime publishes no archive
// for this OS and architecture.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// ortRelease identifies one onnxruntime release archive.
type ortRelease struct {
	version string
	goos    string
	goarch  string
}

func currentRelease(version string) ortRelease {
	if version == "" {
		version = DefaultONNXRuntimeVersion
	}
	return ortRelease{version: version, goos: runtime.GOOS, goarch: runtime.GOARCH}
}

// platform is the archive's platform suffix, e.g. linux-x64.
func (r ortRelease) platform() (string, error) {
	switch r.goos + "/" + r.goarch {
	case "linux/amd64":
		return "linux-x64", nil
	case "linux/arm64":
		return "linux-aarch64", nil
	case "darwin/amd64":
		return "osx-x86_64", nil
	case "darwin/arm64":
		return "osx-arm64", nil
	}
	return "", fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, r.goos, r.goarch)
}

func (r ortRelease) url() (string, error) {
	p, err := r.platform()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("https://github.com/microsoft/onnxruntime/releases/download/v%[1]s/onnxruntime-%[2]s-%[1]s.tgz", r.version, p), nil
}

// libDir is the archive directory holding the shared libraries.
func (r ortRelease) libDir() string {
	p, _ := r.platform()
	return fmt.Sprintf("onnxruntime-%s-%s/lib/", p, r.version)
}

func libraryName(goos string) string {
	if goos == "darwin" {
		return "libonnxruntime.dylib"
	}
	return "libonnxruntime.so"
}

// ONNXInstallDir is where DownloadONNXRuntime puts the library:
// ~/.config/embedpool/lib.
func ONNXInstallDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".config", "embedpool", "lib")
}

// GetONNXLibraryPath returns $ONNX_PATH if set, else the managed install
// if present, else "".
func GetONNXLibraryPath() string {
	if p := os.Getenv("ONNX_PATH"); p != "" {
		return p
	}
	p := filepath.Join(ONNXInstallDir(), libraryName(runtime.GOOS))
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// ONNXRuntimeExists reports whether GetONNXLibraryPath finds a library.
func ONNXRuntimeExists() bool {
	return GetONNXLibraryPath() != ""
}

// DownloadONNXRuntime installs onnxruntime for this platform into
// ONNXInstallDir. An empty version selects DefaultONNXRuntimeVersion.
func DownloadONNXRuntime(ctx context.Context, version string) error {
	return installRelease(ctx, currentRelease(version), ONNXInstallDir(), true)
}

func installRelease(ctx context.Context, r ortRelease, dest string, showProgress bool) error {
	url, err := r.url()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dest, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}

	archive := filepath.Join(dest, ".onnxruntime-"+r.version+".tgz")
	if err := downloadFile(ctx, url, archive, showProgress, "onnxruntime "+r.version); err != nil {
		return fmt.Errorf("downloading onnxruntime: %w", err)
	}
	defer os.Remove(archive)

	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer f.Close()
	return extractLibs(f, dest, r)
}

// extractLibs copies the regular files and symlinks under the archive's
// lib/ directory into dest, flattened.
func extractLibs(src io.Reader, dest string, r ortRelease) error {
	gz, err := gzip.NewReader(src)
	if err != nil {
		return fmt.Errorf("reading archive: %w", err)
	}
	defer gz.Close()

	prefix := r.libDir()
	lib := libraryName(r.goos)
	found := false

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}

		name := strings.TrimPrefix(hdr.Name, "./")
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		base := path.Base(name)
		target := filepath.Join(dest, base)

		switch hdr.Typeflag {
		case tar.TypeSymlink:
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return fmt.Errorf("linking %s: %w", base, err)
			}
		case tar.TypeReg:
			if err := writeFile(target, tr); err != nil {
				return err
			}
		default:
			continue
		}
		if base == lib || strings.HasPrefix(base, lib+".") {
			found = true
		}
	}

	if !found {
		return fmt.Errorf("%s not found in archive", lib)
	}
	return nil
}

func writeFile(dest string, r io.Reader) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	return f.Close()
}

// setenv is swapped out by tests.
var setenv = os.Setenv

// exportONNXPath sets ONNX_PATH to the managed install, which is where
// FastEmbed looks for the library. An existing ONNX_PATH is left alone.
func exportONNXPath() error {
	if os.Getenv("ONNX_PATH") != "" {
		return nil
	}
	if p := GetONNXLibraryPath(); p != "" {
		return setenv("ONNX_PATH", p)
	}
	return nil
}

// EnsureONNXRuntime returns the onnxruntime library path, installing the
// default release first when none is found.
func EnsureONNXRuntime(ctx context.Context, logger *zap.Logger) (string, error) {
	if p := GetONNXLibraryPath(); p != "" {
		return p, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := currentRelease("")
	logger.Info("installing onnxruntime",
		zap.String("version", r.version),
		zap.String("platform", r.goos+"/"+r.goarch),
		zap.String("dir", ONNXInstallDir()))
	if err := installRelease(ctx, r, ONNXInstallDir(), false); err != nil {
		return "", fmt.Errorf("%w (set ONNX_PATH to use an existing install)", err)
	}

	p := GetONNXLibraryPath()
	if p == "" {
		return "", errors.New("onnxruntime installed but library not found")
	}
	return p, setenv("ONNX_PATH", p)
}
