package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
)

func newListCmd() *cobra.Command {
	var cfgPath string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the saved pinned tabs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			editor, closeFn, err := openEditor(cmd.Context(), cfgPath)
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()
			urls, err := editor.List(cmd.Context())
			if err != nil {
				return err
			}
			return printPins(cmd.OutOrStdout(), urls, asJSON)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as a JSON array")
	return cmd
}

func newRemoveCmd() *cobra.Command {
	var cfgPath string
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "remove <index>",
		Aliases: []string{"rm"},
		Short:   "Remove a saved pinned tab by its list position",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index %q: %w", args[0], err)
			}
			editor, closeFn, err := openEditor(cmd.Context(), cfgPath)
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()
			urls, err := editor.Delete(cmd.Context(), index)
			if err != nil {
				return err
			}
			pslog.Ctx(cmd.Context()).Info("pinned tab removed", "index", index, "remaining", len(urls))
			return printPins(cmd.OutOrStdout(), urls, asJSON)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the remaining list as a JSON array")
	return cmd
}

// printPins writes urls numbered by the index remove expects.
func printPins(w io.Writer, urls []string, asJSON bool) error {
	if asJSON {
		if urls == nil {
			urls = []string{}
		}
		enc := json.NewEncoder(w)
		return enc.Encode(urls)
	}
	if len(urls) == 0 {
		_, err := fmt.Fprintln(w, "no pinned tabs saved")
		return err
	}
	for i, url := range urls {
		if _, err := fmt.Fprintf(w, "%d\t%s\n", i, url); err != nil {
			return err
		}
	}
	return nil
}
