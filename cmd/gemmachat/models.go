package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"gemmachat/internal/registry"
	"gemmachat/internal/session"
)

func newModelsCmd(o *options) *cobra.Command {
	var asJSON, check bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List model files and check the selected one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, o)
			if err != nil {
				return err
			}
			models, err := registry.LoadDir(cfg.ModelsDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			var report *session.SanityReport
			if check {
				m, err := registry.Resolve(models, cfg.Model)
				if err != nil {
					return err
				}
				r := session.SanityCheck(m.Path)
				report = &r
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"models": models, "check": report})
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSIZE\tPATH")
			for _, m := range models {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", m.ID, m.SizeBytes, m.Path)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if report != nil {
				fmt.Fprintf(out, "\nmodel=%s readable=%t llama_built=%t", report.ModelPath, report.ModelReadable, report.LlamaBuilt)
				if report.Error != "" {
					fmt.Fprintf(out, " error=%q", report.Error)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	cmd.Flags().BoolVar(&check, "check", false, "Run sanity checks on the selected model")
	return cmd
}
