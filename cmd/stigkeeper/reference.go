package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/yourorg/stigkeeper/internal/output"
	"github.com/yourorg/stigkeeper/internal/worker"
)

func newCCICmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cci",
		Short: "Manage NIST families, controls and DISA CCIs",
	}
	cmd.AddCommand(newCCIImportCmd(a), newCCIRemapCmd(a), newCCIDeleteCmd(a), newCCIListCmd(a))
	return cmd
}

func newCCIImportCmd(a *app) *cobra.Command {
	var archive string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Download and load the 800-53 rev4 controls and the CCI list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, &worker.CCIImportJob{
				Store:          a.store,
				Downloader:     worker.NewDownloader(a.cfg.HTTPTimeout, a.cfg.DownloadAttempts, a.logger),
				NISTBaseURL:    a.cfg.NISTBaseURL,
				CCIListURL:     a.cfg.CCIListURL,
				CCIArchivePath: archive,
			})
		},
	}
	cmd.Flags().StringVar(&archive, "cci-archive", "", "Read the CCI list from this local zip instead of downloading it")
	return cmd
}

func newCCIRemapCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remap",
		Short: "Move rules imported onto CCI-000366 to their own CCI once it is loaded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, &worker.RemapJob{Store: a.store})
		},
	}
}

func newCCIDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Delete all families, controls and CCIs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.DeleteReferenceData(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "reference data deleted")
			return nil
		},
	}
}

func newCCIListCmd(a *app) *cobra.Command {
	var controls bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List CCIs, or controls with --controls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			all, err := a.store.ListControls(ctx)
			if err != nil {
				return err
			}
			if controls {
				tbl := &output.Table{Headers: []string{"CONTROL", "TITLE"}, MaxCell: 80}
				for _, c := range all {
					tbl.Append(c.String(), c.Title)
				}
				return tbl.Render(cmd.OutOrStdout())
			}
			names := make(map[int64]string, len(all))
			for _, c := range all {
				names[c.ID] = c.String()
			}
			ccis, err := a.store.ListCCIs(ctx)
			if err != nil {
				return err
			}
			tbl := &output.Table{Headers: []string{"CCI", "CONTROL", "IMPORTED", "DEFINITION"}, MaxCell: 80}
			for _, c := range ccis {
				imported := ""
				if c.IsImport {
					imported = c.ImportCompliance
				}
				tbl.Append(c.String(), names[c.ControlID], imported, c.Definition)
			}
			return tbl.Render(cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&controls, "controls", false, "List controls instead of CCIs")
	return cmd
}

// parseID reads a numeric row id argument.
func parseID(what, s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s id %q: want a positive number", what, s)
	}
	return id, nil
}
