package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yourorg/stigkeeper/internal/worker"
)

// assetFlag resolves an optional --asset value to an id; empty means all.
func (a *app) assetFlag(ctx context.Context, ref string) (int64, error) {
	if ref == "" {
		return 0, nil
	}
	as, err := a.lookupAsset(ctx, ref)
	if err != nil {
		return 0, err
	}
	return as.ID, nil
}

func newCKLCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ckl",
		Short: "Exchange checklists with the DISA STIG Viewer",
	}
	cmd.AddCommand(newCKLImportCmd(a), newCKLExportCmd(a))
	return cmd
}

func newCKLImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.ckl>...",
		Short: "Load review results from CKL files, creating assets as needed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, &worker.CKLImportJob{Store: a.store, Paths: args})
		},
	}
}

func newCKLExportCmd(a *app) *cobra.Command {
	var (
		assetRef string
		stigID   int64
		outDir   string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write one CKL file per asset and STIG",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			assetID, err := a.assetFlag(cmd.Context(), assetRef)
			if err != nil {
				return err
			}
			return a.run(cmd, &worker.CKLExportJob{Store: a.store, AssetID: assetID, STIGID: stigID, OutDir: outDir})
		},
	}
	cmd.Flags().StringVar(&assetRef, "asset", "", "Only export this asset (id or host name)")
	cmd.Flags().Int64Var(&stigID, "stig", 0, "Only export this STIG id")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "Output directory")
	return cmd
}

func newEMASSCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emass",
		Short: "Exchange test results with eMASS",
	}
	cmd.AddCommand(newEMASSImportCmd(a), newEMASSClearCmd(a), newEMASSExportCmd(a))
	return cmd
}

func newEMASSImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <workbook.xlsx>",
		Short: "Record the latest eMASS test results against their CCIs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, &worker.EMASSImportJob{Store: a.store, Path: args[0]})
		},
	}
}

func newEMASSClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget previously imported eMASS test results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.ClearEMASSImport(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "eMASS import cleared")
			return nil
		},
	}
}

func newEMASSExportCmd(a *app) *cobra.Command {
	var (
		out      string
		testedBy string
		upload   bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the eMASS Test Result Import workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, err := a.publish(upload)
			if err != nil {
				return err
			}
			if testedBy == "" {
				testedBy = a.cfg.TestedBy
			}
			return a.run(cmd, &worker.EMASSExportJob{Store: a.store, OutPath: out, TestedBy: testedBy, Publish: pub})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "emass_test_results.xlsx", "Output workbook")
	cmd.Flags().StringVar(&testedBy, "tested-by", "", "Tester name (default TESTED_BY or $USER)")
	cmd.Flags().BoolVar(&upload, "upload", false, "Upload the workbook to REPORTS_BUCKET")
	return cmd
}
