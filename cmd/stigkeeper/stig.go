package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/yourorg/stigkeeper/internal/output"
	"github.com/yourorg/stigkeeper/internal/worker"
)

func newSTIGCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stig",
		Short: "Manage imported STIG benchmarks",
	}
	cmd.AddCommand(newSTIGImportCmd(a), newSTIGListCmd(a), newSTIGDeleteCmd(a), newSTIGExportHTMLCmd(a))
	return cmd
}

func newSTIGImportCmd(a *app) *cobra.Command {
	var (
		fromBucket bool
		download   bool
		prefix     string
	)
	cmd := &cobra.Command{
		Use:   "import [archive.zip...]",
		Short: "Import STIG benchmarks from DISA zip archives",
		Long: `Import every XCCDF benchmark found in the given zip archives, including
archives nested inside them. With --bucket the archives are listed and
downloaded from STIGS_BUCKET. With --download the DISA library compilation
at STIG_LIBRARY_URL is fetched and imported.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			job := &worker.STIGImportJob{
				Store:       a.store,
				Paths:       args,
				ScratchDir:  a.cfg.ScratchDir,
				Concurrency: a.cfg.WorkerConcurrency,
				Logger:      a.logger,
			}
			if fromBucket {
				if a.cfg.STIGsBucket == "" {
					return errors.New("--bucket needs STIGS_BUCKET")
				}
				client, err := a.objectStore()
				if err != nil {
					return err
				}
				if client == nil {
					return errors.New("--bucket needs S3_ENDPOINT and S3_ACCESS_KEY")
				}
				job.Objects, job.Bucket, job.Prefix = client, a.cfg.STIGsBucket, prefix
			}
			if download {
				if a.cfg.STIGLibraryURL == "" {
					return errors.New("--download needs STIG_LIBRARY_URL")
				}
				job.Downloader = worker.NewDownloader(a.cfg.HTTPTimeout, a.cfg.DownloadAttempts, a.logger)
				job.LibraryURL = a.cfg.STIGLibraryURL
			}
			if len(args) == 0 && !fromBucket && !download {
				return errors.New("name at least one archive, or use --bucket or --download")
			}
			return a.run(cmd, job)
		},
	}
	cmd.Flags().BoolVar(&fromBucket, "bucket", false, "Import the archives stored in STIGS_BUCKET")
	cmd.Flags().BoolVar(&download, "download", false, "Download and import the STIG library from STIG_LIBRARY_URL")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Only import bucket objects under this prefix")
	return cmd
}

func newSTIGListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List imported STIGs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stigs, err := a.store.ListSTIGs(cmd.Context())
			if err != nil {
				return err
			}
			tbl := &output.Table{Headers: []string{"ID", "TITLE", "VERSION", "RELEASE", "BENCHMARK"}, MaxCell: 60}
			for _, st := range stigs {
				tbl.Append(strconv.FormatInt(st.ID, 10), st.Title, strconv.Itoa(st.Version), st.Release, st.BenchmarkID)
			}
			return tbl.Render(cmd.OutOrStdout())
		},
	}
}

func newSTIGDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <stig-id>",
		Short: "Delete a STIG that no asset uses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("stig", args[0])
			if err != nil {
				return err
			}
			if err := a.store.DeleteSTIG(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted stig %d\n", id)
			return nil
		},
	}
}

func newSTIGExportHTMLCmd(a *app) *cobra.Command {
	var (
		outDir string
		stigID int64
		upload bool
	)
	cmd := &cobra.Command{
		Use:   "export-html",
		Short: "Write one HTML page per STIG plus an index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, err := a.publish(upload)
			if err != nil {
				return err
			}
			return a.run(cmd, &worker.STIGHTMLJob{Store: a.store, STIGID: stigID, OutDir: outDir, Publish: pub})
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "stig-html", "Output directory")
	cmd.Flags().Int64Var(&stigID, "stig", 0, "Only export this STIG id")
	cmd.Flags().BoolVar(&upload, "upload", false, "Upload the pages to REPORTS_BUCKET")
	return cmd
}
