// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/citation-crawler/internal/acquire"
	"github.com/pdiddy/citation-crawler/internal/frontier"
	"github.com/pdiddy/citation-crawler/internal/paperid"
	"github.com/pdiddy/citation-crawler/internal/project"
	"github.com/pdiddy/citation-crawler/pkg/types"
)

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show where a paper sits in the traversal",
	Long: `Show reports which collection a paper belongs to (queue position or
terminal set with its reason), whether its content was downloaded, and
whether an extraction record exists. It reads local files only.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	showCmd.Flags().Bool("data", false, "print the extracted record data")
	rootCmd.AddCommand(showCmd)
}

type showReport struct {
	ID         types.PaperID    `json:"id"`
	Membership types.Membership `json:"membership"`
	Position   int              `json:"position,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	Title      string           `json:"title,omitempty"`
	PDFPath    string           `json:"pdf_path,omitempty"`
	Items      *int             `json:"items,omitempty"`
	Data       json.RawMessage  `json:"data,omitempty"`
}

func runShow(cmd *cobra.Command, args []string) error {
	p, err := project.Load(projectDir(cmd))
	if err != nil {
		return err
	}
	id := paperid.Normalize(args[0])
	withData, _ := cmd.Flags().GetBool("data")

	store, err := frontier.Open(p.StatePath())
	if err != nil {
		return err
	}
	member, reason, pos := store.Lookup(id)
	r := showReport{ID: id, Membership: member, Reason: reason}
	if pos >= 0 {
		r.Position = pos + 1
	}

	downloads := acquire.NewDownloader(p.ContentRoot(), types.AcquisitionConfig{})
	if meta, err := downloads.ReadMetadata(id); err == nil {
		r.Title = meta.Title
		if _, err := os.Stat(meta.PDFPath); err == nil {
			r.PDFPath = meta.PDFPath
		}
	}

	db, err := openDatasetIfExists(p)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		rec, ok, err := db.Record(context.Background(), id)
		if err != nil {
			return err
		}
		if ok {
			items := rec.Items
			r.Items = &items
			if r.Title == "" {
				r.Title = rec.Title
			}
			if withData {
				r.Data = rec.Data
			}
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %s", r.ID, r.Membership)
	switch {
	case r.Membership == types.MemberQueued:
		fmt.Fprintf(out, " (position %d of %d)", r.Position, store.Counts().Pending)
	case r.Reason != "":
		fmt.Fprintf(out, " (%s)", r.Reason)
	}
	fmt.Fprintln(out)
	if r.Title != "" {
		fmt.Fprintf(out, "  title:   %s\n", r.Title)
	}
	if r.PDFPath != "" {
		fmt.Fprintf(out, "  content: %s\n", r.PDFPath)
	}
	if r.Items != nil {
		fmt.Fprintf(out, "  record:  %d data points\n", *r.Items)
	} else {
		fmt.Fprintln(out, "  record:  none")
	}
	if len(r.Data) > 0 {
		enc := json.NewEncoder(out)
		enc.SetIndent("  ", "  ")
		var v any
		if err := json.Unmarshal(r.Data, &v); err == nil {
			fmt.Fprint(out, "  ")
			return enc.Encode(v)
		}
	}
	return nil
}
