package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrWong99/recita/internal/config"
	"github.com/MrWong99/recita/internal/score"
	"github.com/MrWong99/recita/pkg/script"
)

func newScriptsCmd(configPath *string) *cobra.Command {
	scripts := &cobra.Command{Use: "scripts", Short: "Inspect the configured script source"}

	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List the scripts sessions sample from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return listScripts(cmd.Context(), cmd.OutOrStdout(), cfg, asJSON)
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")

	scripts.AddCommand(list)
	return scripts
}

func listScripts(ctx context.Context, out io.Writer, cfg *config.Config, asJSON bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg)

	repo, closers, err := openScripts(ctx, cfg.Scripts, reg)
	defer closeAll(closers)
	if err != nil {
		return err
	}
	all, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("list scripts: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(all)
	}
	return writeScriptTable(out, all)
}

func writeScriptTable(out io.Writer, all []script.Script) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tLEVEL\tVALID\tCONTENT")
	valid := 0
	for i, s := range all {
		ok := "yes"
		if err := s.Validate(); err != nil {
			ok = "no"
		} else {
			valid++
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, s.Level, ok, s.Content)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d scripts, %d usable", len(all), valid)
	if valid < score.Rounds {
		fmt.Fprintf(out, " (sessions need %d)", score.Rounds)
	}
	fmt.Fprintln(out)
	return nil
}
