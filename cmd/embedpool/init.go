package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/embedpool/pkg/embeddings"
	"github.com/fyrsmithlabs/embedpool/pkg/embedpool"
)

func newInitCmd(a *app) *cobra.Command {
	var (
		force          bool
		runtimeVersion string
		downloadModel  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Download the ONNX runtime and model files",
		Long: `Init downloads the ONNX runtime library used by the text and image
backends. The library is installed to:
  ~/.config/embedpool/lib/

If the ONNX_PATH environment variable is set, that path takes precedence.

With --model, init also builds the configured model once so its files are
cached before the server starts.

Examples:
  # Download the ONNX runtime
  embedpool init

  # Force re-download and fetch the configured model
  embedpool init --force --model`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path := embeddings.GetONNXLibraryPath(); path != "" && !force {
				cmd.Printf("ONNX runtime already installed at: %s\n", path)
				cmd.Println("Use --force to re-download.")
			} else {
				v := runtimeVersion
				if v == "" {
					v = embeddings.DefaultONNXRuntimeVersion
				}
				cmd.Printf("Downloading ONNX runtime v%s...\n", v)
				if err := embeddings.DownloadONNXRuntime(cmd.Context(), runtimeVersion); err != nil {
					return fmt.Errorf("failed to download ONNX runtime: %w", err)
				}
				path := embeddings.GetONNXLibraryPath()
				if path == "" {
					return fmt.Errorf("download completed but library not found")
				}
				cmd.Printf("Successfully installed ONNX runtime to: %s\n", path)
			}

			if !downloadModel {
				return nil
			}
			mk, err := a.cfg.Model.ModelKind()
			if err != nil {
				return err
			}
			cmd.Printf("Preparing %s model %s...\n", mk.Kind(), mk.Model())
			if err := a.withInstance(cmd.Context(), mk, func(*embedpool.Embedding) error { return nil }); err != nil {
				return fmt.Errorf("failed to load model: %w", err)
			}
			cmd.Println("Model ready.")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "force re-download even if ONNX runtime exists")
	cmd.Flags().StringVar(&runtimeVersion, "runtime-version", "", "ONNX runtime version (default "+embeddings.DefaultONNXRuntimeVersion+")")
	cmd.Flags().BoolVar(&downloadModel, "model", false, "also download the configured model")
	return cmd
}
