package main

import (
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/yourorg/stigkeeper/internal/output"
	"github.com/yourorg/stigkeeper/internal/worker"
)

func newReportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write findings reports",
	}
	cmd.AddCommand(newReportFindingsCmd(a), newReportNarrativeCmd(a))
	return cmd
}

func newReportFindingsCmd(a *app) *cobra.Command {
	var (
		assetRef string
		out      string
		upload   bool
	)
	cmd := &cobra.Command{
		Use:   "findings",
		Short: "Write the open findings workbook with a per-asset summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			assetID, err := a.assetFlag(cmd.Context(), assetRef)
			if err != nil {
				return err
			}
			pub, err := a.publish(upload)
			if err != nil {
				return err
			}
			return a.run(cmd, &worker.FindingsReportJob{Store: a.store, AssetID: assetID, OutPath: out, Publish: pub})
		},
	}
	cmd.Flags().StringVar(&assetRef, "asset", "", "Only report this asset (id or host name)")
	cmd.Flags().StringVarP(&out, "out", "o", "findings.xlsx", "Output workbook")
	cmd.Flags().BoolVar(&upload, "upload", false, "Upload the workbook to REPORTS_BUCKET")
	return cmd
}

func newReportNarrativeCmd(a *app) *cobra.Command {
	var (
		assetRef string
		out      string
		upload   bool
	)
	cmd := &cobra.Command{
		Use:   "narrative",
		Short: "Write the findings narrative as Markdown and HTML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			assetID, err := a.assetFlag(cmd.Context(), assetRef)
			if err != nil {
				return err
			}
			pub, err := a.publish(upload)
			if err != nil {
				return err
			}
			return a.run(cmd, &worker.NarrativeJob{Store: a.store, AssetID: assetID, OutPath: out, Publish: pub})
		},
	}
	cmd.Flags().StringVar(&assetRef, "asset", "", "Only report this asset (id or host name)")
	cmd.Flags().StringVarP(&out, "out", "o", "narrative.md", "Output Markdown file; the HTML page is written beside it")
	cmd.Flags().BoolVar(&upload, "upload", false, "Upload both files to REPORTS_BUCKET")
	return cmd
}

func newJobsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := a.store.ListJobs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tbl := &output.Table{Headers: []string{"ID", "KIND", "STATUS", "PROGRESS", "WARNINGS", "CREATED", "MESSAGE"}, MaxCell: 60}
			for _, j := range jobs {
				msg := j.ProgressMsg
				if j.ErrorMsg != "" {
					msg = j.ErrorMsg
				}
				tbl.Append(j.ID[:8], j.Kind, output.JobStatus(j.Status), strconv.Itoa(j.ProgressPct)+"%",
					strconv.Itoa(j.Warnings), humanize.Time(j.CreatedAt), msg)
			}
			return tbl.Render(cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of jobs to show")
	return cmd
}
