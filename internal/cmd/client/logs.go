package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rzbill/taglog/internal/cmd/client/transports"
	"github.com/rzbill/taglog/internal/taglog"
)

func addNamespaceFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("prefix", "p", "", "Namespace (key prefix); empty uses the server default")
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("time-format", "T", DefaultTimeFormat, "Go time layout prefixed to each record")
	cmd.Flags().Bool("json", false, "Print records as JSON lines")
}

func addQueryFlags(cmd *cobra.Command) {
	addNamespaceFlag(cmd)
	addOutputFlags(cmd)
	cmd.Flags().StringP("tag", "t", taglog.FlowAll, "Tag flow to read")
	cmd.Flags().String("attr", "", "Tagging attribute flow to read, as key=value")
	cmd.Flags().IntP("limit", "l", 0, "Maximum records (0 = all)")
	cmd.Flags().String("min-ts", "", "Oldest timestamp (RFC3339, \"YYYY-MM-DD hh:mm:ss\" or ms)")
	cmd.Flags().String("max-ts", "", "Newest timestamp (RFC3339, \"YYYY-MM-DD hh:mm:ss\" or ms)")
	cmd.Flags().String("filter", "", "CEL filter evaluated server-side")
}

func readQuery(cmd *cobra.Command) (transports.QueryRequest, error) {
	ns, _ := cmd.Flags().GetString("prefix")
	tag, _ := cmd.Flags().GetString("tag")
	attr, _ := cmd.Flags().GetString("attr")
	limit, _ := cmd.Flags().GetInt("limit")
	minStr, _ := cmd.Flags().GetString("min-ts")
	maxStr, _ := cmd.Flags().GetString("max-ts")
	filter, _ := cmd.Flags().GetString("filter")

	minTS, err := parseTime(minStr)
	if err != nil {
		return transports.QueryRequest{}, fmt.Errorf("--min-ts: %w", err)
	}
	maxTS, err := parseTime(maxStr)
	if err != nil {
		return transports.QueryRequest{}, fmt.Errorf("--max-ts: %w", err)
	}
	// An attribute query replaces the default all-records tag.
	if attr != "" && !cmd.Flags().Changed("tag") {
		tag = ""
	}
	return transports.QueryRequest{
		Namespace: ns,
		Tag:       tag,
		Attr:      attr,
		MinTS:     minTS,
		MaxTS:     maxTS,
		Limit:     limit,
		Filter:    filter,
	}, nil
}

func readOutput(cmd *cobra.Command) (string, bool) {
	layout, _ := cmd.Flags().GetString("time-format")
	asJSON, _ := cmd.Flags().GetBool("json")
	return layout, asJSON
}

// newLogCommand constructs the `log` subcommand.
func newLogCommand(t transports.LogsTransport) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log MESSAGE",
		Short: "Write a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, _ := cmd.Flags().GetString("prefix")
			tags, _ := cmd.Flags().GetStringArray("tag")
			attrPairs, _ := cmd.Flags().GetStringArray("attr")
			taggingPairs, _ := cmd.Flags().GetStringArray("tagging")
			isJSON, _ := cmd.Flags().GetBool("structured")
			expireIn, _ := cmd.Flags().GetDuration("expire-in")
			atStr, _ := cmd.Flags().GetString("ts")

			req := transports.LogRequest{Namespace: ns, Message: args[0], Tags: tags}
			if isJSON {
				if !json.Valid([]byte(args[0])) {
					return errors.New("--structured requires MESSAGE to be valid JSON")
				}
				req.Message = json.RawMessage(args[0])
			}
			var err error
			if req.Attrs, err = parsePairs(attrPairs); err != nil {
				return fmt.Errorf("--attr: %w", err)
			}
			if req.Tagging, err = parsePairs(taggingPairs); err != nil {
				return fmt.Errorf("--tagging: %w", err)
			}
			if atStr != "" {
				ts, err := parseTime(atStr)
				if err != nil {
					return fmt.Errorf("--ts: %w", err)
				}
				req.TS = &ts
			}
			if expireIn > 0 {
				req.ExpireIn = expireIn.Seconds()
			}

			rec, err := t.Log(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "id: %d\n", rec.ID)
			return nil
		},
	}
	addNamespaceFlag(cmd)
	cmd.Flags().StringArrayP("tag", "t", nil, "Tag (repeatable)")
	cmd.Flags().StringArray("attr", nil, "Attribute key=value (repeatable)")
	cmd.Flags().StringArray("tagging", nil, "Tagging attribute key=value, stored as attribute and key:value tag (repeatable)")
	cmd.Flags().Bool("structured", false, "Treat MESSAGE as a JSON value")
	cmd.Flags().Duration("expire-in", 0, "Expire the record after this long")
	cmd.Flags().String("ts", "", "Record timestamp instead of now")
	return cmd
}

// newGetCommand constructs the `get` subcommand.
func newGetCommand(t transports.LogsTransport) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print records of a flow, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := readQuery(cmd)
			if err != nil {
				return err
			}
			recs, err := t.Get(cmd.Context(), q)
			if err != nil {
				return err
			}
			layout, asJSON := readOutput(cmd)
			for _, r := range recs {
				if err := printRecord(cmd.OutOrStdout(), r, layout, asJSON); err != nil {
					return err
				}
			}
			return nil
		},
	}
	addQueryFlags(cmd)
	return cmd
}

// newLatestCommand constructs the `latest` subcommand.
func newLatestCommand(t transports.LogsTransport) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Print the newest record of a flow",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := readQuery(cmd)
			if err != nil {
				return err
			}
			rec, found, err := t.Latest(cmd.Context(), q)
			if err != nil {
				return err
			}
			if !found {
				fmt.Fprintln(cmd.ErrOrStderr(), "no records")
				return nil
			}
			layout, asJSON := readOutput(cmd)
			return printRecord(cmd.OutOrStdout(), rec, layout, asJSON)
		},
	}
	addQueryFlags(cmd)
	return cmd
}

// newListenCommand constructs the `listen` subcommand.
func newListenCommand(t transports.LogsTransport) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print records as they are written",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ns, _ := cmd.Flags().GetString("prefix")
			tag, _ := cmd.Flags().GetString("tag")
			filter, _ := cmd.Flags().GetString("filter")
			limit, _ := cmd.Flags().GetInt("limit")
			layout, asJSON := readOutput(cmd)

			n := 0
			errDone := errors.New("limit reached")
			err := t.Listen(cmd.Context(), transports.ListenRequest{Namespace: ns, Tag: tag, Filter: filter}, func(r taglog.Record) error {
				if err := printRecord(cmd.OutOrStdout(), r, layout, asJSON); err != nil {
					return err
				}
				n++
				if limit > 0 && n >= limit {
					return errDone
				}
				return nil
			})
			if errors.Is(err, errDone) {
				return nil
			}
			return err
		},
	}
	addNamespaceFlag(cmd)
	addOutputFlags(cmd)
	cmd.Flags().StringP("tag", "t", "", "Only records carrying this tag")
	cmd.Flags().String("filter", "", "CEL filter evaluated server-side")
	cmd.Flags().IntP("limit", "l", 0, "Stop after N records (0 = until interrupted)")
	return cmd
}

// newCountCommand constructs the `count` subcommand.
func newCountCommand(t transports.LogsTransport) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Print how many records a flow holds",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ns, _ := cmd.Flags().GetString("prefix")
			tag, _ := cmd.Flags().GetString("tag")
			n, err := t.Count(cmd.Context(), ns, tag)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
	addNamespaceFlag(cmd)
	cmd.Flags().StringP("tag", "t", "", "Tag flow; empty counts every record")
	return cmd
}

// newSweepCommand constructs the `sweep` subcommand.
func newSweepCommand(t transports.LogsTransport) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired records now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ns, _ := cmd.Flags().GetString("prefix")
			results, err := t.Sweep(cmd.Context(), ns)
			if err != nil {
				return err
			}
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: expired=%d removed=%d", r.Namespace, r.Expired, r.Removed)
				if len(r.Failures) > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), " failed=%d (%s)", len(r.Failures), strings.Join(r.Failures, "; "))
				}
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}
	cmd.Flags().StringP("prefix", "p", "", "Namespace; empty sweeps every namespace")
	return cmd
}

// newCleanupCommand constructs the `cleanup` subcommand.
func newCleanupCommand(t transports.LogsTransport) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete every record, flow and the id counter of a namespace",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if ok, _ := cmd.Flags().GetBool("confirm"); !ok {
				return errors.New("refusing to delete without --confirm")
			}
			ns, _ := cmd.Flags().GetString("prefix")
			if err := t.Cleanup(cmd.Context(), ns); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted")
			return nil
		},
	}
	addNamespaceFlag(cmd)
	cmd.Flags().Bool("confirm", false, "Confirm deletion")
	return cmd
}

// newNamespacesCommand constructs the `namespaces` subcommand.
func newNamespacesCommand(t transports.LogsTransport) *cobra.Command {
	return &cobra.Command{
		Use:   "namespaces",
		Short: "List namespaces that have been written to",
		RunE: func(cmd *cobra.Command, _ []string) error {
			nss, err := t.Namespaces(cmd.Context())
			if err != nil {
				return err
			}
			for _, ns := range nss {
				created := time.UnixMilli(ns.CreatedAtMs).UTC().Format(time.RFC3339)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", ns.Name, created)
			}
			return nil
		},
	}
}
