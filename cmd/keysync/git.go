package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"path/filepath"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dshills/keysync/internal/integration/git"
	"github.com/dshills/keysync/internal/project/filestore"
)

func newGitCmd(flags *rootFlags) *cobra.Command {
	var files []string

	cmd := &cobra.Command{
		Use:   "git [root]",
		Short: "Print one git snapshot of the project",
		Long: `Run the git worker once and print the branch, change summary and
per-file status. Files passed with --lines also get their per-line status.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(flags); err != nil {
				return err
			}
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			abs, err := filepath.Abs(root)
			if err != nil {
				return err
			}

			var docs []git.DocumentRequest
			for _, f := range files {
				path := f
				if !filepath.IsAbs(path) {
					path = filepath.Join(abs, path)
				}
				doc, err := filestore.Load(path)
				if err != nil {
					return err
				}
				docs = append(docs, git.DocumentRequest{Path: path, LineCount: doc.LineCount()})
			}

			snap, err := collectOnce(cmd.Context(), git.NewWorker(abs), docs)
			if err != nil {
				return err
			}
			return printSnapshot(cmd.OutOrStdout(), snap)
		},
	}
	cmd.Flags().StringSliceVar(&files, "lines", nil, "Files to compute line status for")
	return cmd
}

// collectOnce runs the worker in the background and waits for the result,
// the same path the event loop takes.
func collectOnce(ctx context.Context, w *git.Worker, docs []git.DocumentRequest) (git.Snapshot, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := w.Spawn(ctx, docs); err != nil {
		return git.Snapshot{}, err
	}
	snap, _, err := w.Wait()
	return snap, err
}

func printSnapshot(out io.Writer, snap git.Snapshot) error {
	if snap.Unavailable {
		_, err := fmt.Fprintln(out, "Missing tools: git")
		return err
	}

	branch := snap.Branch
	if branch == "" {
		branch = "(none)"
	}
	fmt.Fprintf(out, "branch: %s\n", branch)
	fmt.Fprintf(out, "changes: %d files, +%d -%d\n",
		snap.Summary.FilesChanged, snap.Summary.Insertions, snap.Summary.Deletions)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, path := range slices.Sorted(maps.Keys(snap.Files)) {
		fmt.Fprintf(tw, "%s\t%s\n", snap.Files[path], path)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, dl := range snap.Lines {
		rel, err := filepath.Rel(snap.Root, dl.Path)
		if err != nil {
			rel = dl.Path
		}
		fmt.Fprintf(out, "\n%s (%d hunks)\n", filepath.ToSlash(rel), len(dl.Hunks))
		for i, st := range dl.Status {
			if st != git.LineNone {
				fmt.Fprintf(out, "  %4d %s\n", i+1, st)
			}
		}
	}
	return nil
}
