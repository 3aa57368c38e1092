package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/embedpool/pkg/embeddings"
	"github.com/fyrsmithlabs/embedpool/pkg/embedpool"
)

// modelList groups registry entries by kind.
type modelList struct {
	Text   []embeddings.ModelInfo `json:"text,omitempty" yaml:"text,omitempty"`
	Image  []embeddings.ModelInfo `json:"image,omitempty" yaml:"image,omitempty"`
	Sparse []embeddings.ModelInfo `json:"sparse,omitempty" yaml:"sparse,omitempty"`
	Rerank []embeddings.ModelInfo `json:"rerank,omitempty" yaml:"rerank,omitempty"`
}

func listModels(kinds ...embedpool.Kind) modelList {
	var l modelList
	for _, k := range kinds {
		switch k {
		case embedpool.KindText:
			l.Text = embeddings.ListTextModels()
		case embedpool.KindImage:
			l.Image = embeddings.ListImageModels()
		case embedpool.KindSparse:
			l.Sparse = embeddings.ListSparseModels()
		case embedpool.KindRerank:
			l.Rerank = embeddings.ListRerankerModels()
		}
	}
	return l
}

func newModelsCmd(_ *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "models [kind]",
		Short: "List supported models",
		Long:  `Models lists registry models, optionally for one kind: text, image, sparse or rerank.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := []embedpool.Kind{embedpool.KindText, embedpool.KindImage, embedpool.KindSparse, embedpool.KindRerank}
			if len(args) == 1 {
				k, err := embedpool.ParseKind(args[0])
				if err != nil {
					return err
				}
				kinds = []embedpool.Kind{k}
			}
			l := listModels(kinds...)

			if output != "table" {
				return writeOutput(cmd.OutOrStdout(), output, l)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KIND\tMODEL\tDIM\tDESCRIPTION")
			for _, group := range []struct {
				kind  embedpool.Kind
				infos []embeddings.ModelInfo
			}{
				{embedpool.KindText, l.Text},
				{embedpool.KindImage, l.Image},
				{embedpool.KindSparse, l.Sparse},
				{embedpool.KindRerank, l.Rerank},
			} {
				for _, info := range group.infos {
					dim := "-"
					if info.Dim > 0 {
						dim = fmt.Sprint(info.Dim)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", group.kind, info.Model, dim, info.Description)
				}
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table, json or yaml")
	return cmd
}
