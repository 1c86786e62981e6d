package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/yourorg/stigkeeper/internal/db"
	"github.com/yourorg/stigkeeper/internal/model"
	"github.com/yourorg/stigkeeper/internal/output"
	"github.com/yourorg/stigkeeper/internal/report"
)

func newAssetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "asset",
		Short: "Manage assets and the STIGs attached to them",
	}
	cmd.AddCommand(
		newAssetAddCmd(a),
		newAssetListCmd(a),
		newAssetShowCmd(a),
		newAssetDeleteCmd(a),
		newAssetAttachCmd(a),
		newAssetDetachCmd(a),
	)
	return cmd
}

// lookupAsset accepts an asset id or a host name. A number that is not an
// asset id is tried as a host name.
func (a *app) lookupAsset(ctx context.Context, ref string) (model.Asset, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		as, err := a.store.GetAsset(ctx, id)
		if !errors.Is(err, db.ErrNotFound) {
			return as, err
		}
	}
	return a.store.GetAssetByHostname(ctx, ref)
}

func newAssetAddCmd(a *app) *cobra.Command {
	var asset model.Asset
	cmd := &cobra.Command{
		Use:   "add <hostname>",
		Short: "Add an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asset.HostName = args[0]
			if err := a.store.AddAsset(cmd.Context(), &asset); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added asset %d %s\n", asset.ID, asset.HostName)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&asset.HostIP, "ip", "", "Host IP address")
	f.StringVar(&asset.HostMAC, "mac", "", "Host MAC address")
	f.StringVar(&asset.HostFQDN, "fqdn", "", "Fully qualified domain name")
	f.StringVar(&asset.AssetType, "type", "Computing", "Asset type")
	f.StringVar(&asset.TechArea, "tech-area", "", "Technology area")
	f.StringVar(&asset.TargetKey, "target-key", "", "Target key")
	f.BoolVar(&asset.WebOrDatabase, "web-db", false, "Asset is a web or database target")
	f.StringVar(&asset.WebDBSite, "site", "", "Web or database site")
	f.StringVar(&asset.WebDBInstance, "instance", "", "Web or database instance")
	return cmd
}

func newAssetListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List assets with their checklist totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			assets, err := a.store.ListAssets(ctx)
			if err != nil {
				return err
			}
			rows, err := a.store.ListFindingRows(ctx, db.CheckFilter{})
			if err != nil {
				return err
			}
			_, sums := report.Summarize(rows)
			tbl := &output.Table{Headers: []string{"ID", "HOST", "IP", "CHECKS", "OPEN", "NOT REVIEWED"}}
			for _, as := range assets {
				s := sums[as.HostName]
				if s == nil {
					s = &model.Summary{}
				}
				tbl.Append(strconv.FormatInt(as.ID, 10), as.HostName, as.HostIP,
					strconv.Itoa(s.Total), strconv.Itoa(s.Open), strconv.Itoa(s.NotReviewed))
			}
			return tbl.Render(cmd.OutOrStdout())
		},
	}
}

func newAssetShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <asset>",
		Short: "Show an asset and its attached STIGs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			as, err := a.lookupAsset(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			err = output.Fields(out, [][2]string{
				{"ID", strconv.FormatInt(as.ID, 10)},
				{"Host", as.HostName},
				{"IP", as.HostIP},
				{"MAC", as.HostMAC},
				{"FQDN", as.HostFQDN},
				{"Type", as.AssetType},
				{"Tech area", as.TechArea},
				{"Target key", as.TargetKey},
				{"Web or DB", strconv.FormatBool(as.WebOrDatabase)},
			})
			if err != nil {
				return err
			}
			rows, err := a.store.ListFindingRows(ctx, db.CheckFilter{AssetID: as.ID})
			if err != nil {
				return err
			}
			perSTIG := map[int64]*model.Summary{}
			for _, r := range rows {
				s := perSTIG[r.STIG.ID]
				if s == nil {
					s = &model.Summary{}
					perSTIG[r.STIG.ID] = s
				}
				s.Add(r.Check.Status, r.Severity())
			}
			stigs, err := a.store.ListSTIGsForAsset(ctx, as.ID)
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			tbl := &output.Table{Headers: []string{"STIG", "TITLE", "OPEN", "NAF", "N/A", "NOT REVIEWED"}, MaxCell: 60}
			for _, st := range stigs {
				s := perSTIG[st.ID]
				if s == nil {
					s = &model.Summary{}
				}
				tbl.Append(strconv.FormatInt(st.ID, 10), st.String(), strconv.Itoa(s.Open),
					strconv.Itoa(s.NotAFinding), strconv.Itoa(s.NotApplicable), strconv.Itoa(s.NotReviewed))
			}
			return tbl.Render(out)
		},
	}
}

func newAssetDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <asset>",
		Short: "Delete an asset that has no STIGs attached",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			as, err := a.lookupAsset(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := a.store.DeleteAsset(cmd.Context(), as.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted asset %s\n", as.HostName)
			return nil
		},
	}
}

func newAssetAttachCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "attach <asset> <stig-id>...",
		Short: "Attach STIGs to an asset, creating Not_Reviewed checklist entries",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			as, err := a.lookupAsset(ctx, args[0])
			if err != nil {
				return err
			}
			var errs []error
			for _, arg := range args[1:] {
				id, err := parseID("stig", arg)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				n, err := a.store.AttachSTIG(ctx, as.ID, id)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "attached stig %d to %s (%d checks)\n", id, as.HostName, n)
			}
			return errors.Join(errs...)
		},
	}
}

func newAssetDetachCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "detach <asset> <stig-id>",
		Short: "Detach a STIG and drop its checklist entries for the asset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			as, err := a.lookupAsset(ctx, args[0])
			if err != nil {
				return err
			}
			id, err := parseID("stig", args[1])
			if err != nil {
				return err
			}
			if err := a.store.DetachSTIG(ctx, as.ID, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "detached stig %d from %s\n", id, as.HostName)
			return nil
		},
	}
}

func newCheckCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Review checklist entries",
	}
	cmd.AddCommand(newCheckSetCmd(a))
	return cmd
}

func newCheckSetCmd(a *app) *cobra.Command {
	var (
		status, details, comments string
		override, justification   string
	)
	cmd := &cobra.Command{
		Use:   "set <asset> <stig-id> <rule-or-vuln>",
		Short: "Record the review result of one checklist entry",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			as, err := a.lookupAsset(ctx, args[0])
			if err != nil {
				return err
			}
			stigID, err := parseID("stig", args[1])
			if err != nil {
				return err
			}
			rows, err := a.store.ListFindingRows(ctx, db.CheckFilter{AssetID: as.ID, STIGID: stigID})
			if err != nil {
				return err
			}
			var entry *model.CKLCheck
			for i := range rows {
				if rows[i].Rule.Rule == args[2] || rows[i].Rule.VulnNum == args[2] {
					entry = &rows[i].Check
					break
				}
			}
			if entry == nil {
				return fmt.Errorf("%s has no check %s in stig %d: %w", as.HostName, args[2], stigID, db.ErrNotFound)
			}

			f := cmd.Flags()
			if f.Changed("status") {
				entry.Status = model.ParseStatus(status)
			}
			if f.Changed("details") {
				entry.FindingDetails = details
			}
			if f.Changed("comments") {
				entry.Comments = comments
			}
			if f.Changed("severity-override") {
				entry.SeverityOverride = model.ParseSeverity(override)
			}
			if f.Changed("justification") {
				entry.SeverityJustification = justification
			}
			if err := a.store.UpdateCKLCheck(ctx, *entry); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", as.HostName, args[2], output.Status(entry.Status))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&status, "status", "", "Open, NotAFinding, Not_Applicable or Not_Reviewed")
	f.StringVar(&details, "details", "", "Finding details")
	f.StringVar(&comments, "comments", "", "Reviewer comments")
	f.StringVar(&override, "severity-override", "", "Override severity: high, medium, low or none")
	f.StringVar(&justification, "justification", "", "Severity override justification")
	return cmd
}
