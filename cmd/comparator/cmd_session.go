package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/spaceshipgen/comparator/internal/codec"
	"github.com/spaceshipgen/comparator/internal/domain"
	"github.com/spaceshipgen/comparator/internal/render"
	"github.com/spaceshipgen/comparator/internal/session"
)

var (
	renderStyle string
	renderWidth int
	ranksFlag   string
	outDir      string
	statusFlag  string
)

var uploadCmd = &cobra.Command{
	Use:   "upload <session> <file>...",
	Short: "Upload artifact files into a session",
	Long: `Uploads one batch of artifact files into a session, creating the session
if needed. File names must follow {name}_{seed}_exp{slot}.txt; contents are
either the raw derivation string or a data URL.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runUpload,
}

var viewCmd = &cobra.Command{
	Use:   "view <session>",
	Short: "Show a session's three slots side by side",
	Args:  cobra.ExactArgs(1),
	RunE:  runView,
}

var exportCmd = &cobra.Command{
	Use:   "export <session>",
	Short: "Export a session's ranks per strategy",
	Long: `Maps the ranks given to each slot back to the strategy that produced it
and stores the record. The record is printed and, when an output directory is
set, written there as {seed}_res.json.

Example:
  comparator export sess-1 --ranks 1=3,2=1,3=2`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

var tallyCmd = &cobra.Command{
	Use:   "tally",
	Short: "Aggregate ranks over all exported sessions",
	Args:  cobra.NoArgs,
	RunE:  runTally,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessions,
}

func init() {
	for _, c := range []*cobra.Command{uploadCmd, viewCmd} {
		c.Flags().StringVar(&renderStyle, "style", "auto", "Markdown style: auto, dark, light, notty, or empty for plain")
		c.Flags().IntVar(&renderWidth, "width", render.DefaultWidth, "Output width")
	}
	exportCmd.Flags().StringVar(&ranksFlag, "ranks", "", "Slot ranks as slot=rank pairs, e.g. 1=3,2=1,3=2 (required)")
	exportCmd.Flags().StringVarP(&outDir, "out", "o", "", "Directory for the export file (default: export_dir)")
	exportCmd.MarkFlagRequired("ranks")
	sessionsCmd.Flags().StringVar(&statusFlag, "status", "", "Only list sessions with this status")
}

func readUploads(paths []string) ([]domain.UploadFile, error) {
	files := make([]domain.UploadFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		files = append(files, codec.FromFile(p, data))
	}
	return files, nil
}

func printSession(cmd *cobra.Command, s session.Session, status domain.SessionStatus) error {
	r, err := render.New(renderWidth, renderStyle)
	if err != nil {
		return err
	}
	out, err := r.Session(s, status)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	id := args[0]
	files, err := readUploads(args[1:])
	if err != nil {
		return err
	}

	eng, db, err := openEngine(cfg, nil)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := eng.EnsureSession(ctx, id); err != nil {
		return err
	}
	res, err := eng.Upload(ctx, id, files)
	if err != nil {
		return err
	}
	for _, f := range res.Failures() {
		fmt.Fprintf(cmd.ErrOrStderr(), "skipped %s: %s\n", f.Filename, f.Error)
	}
	return printSession(cmd, res.Session, res.Status)
}

func runView(cmd *cobra.Command, args []string) error {
	eng, db, err := openEngine(cfg, nil)
	if err != nil {
		return err
	}
	defer db.Close()

	s, status, err := eng.View(context.Background(), args[0])
	if err != nil {
		return err
	}
	return printSession(cmd, s, status)
}

func runExport(cmd *cobra.Command, args []string) error {
	ranks, err := parseRanks(ranksFlag)
	if err != nil {
		return err
	}
	c := *cfg
	if outDir != "" {
		c.ExportDir = outDir
	}

	eng, db, err := openEngine(&c, nil)
	if err != nil {
		return err
	}
	defer db.Close()

	res, err := eng.Export(context.Background(), args[0], ranks)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(res.Body))
	switch {
	case res.Replayed:
		fmt.Fprintf(cmd.ErrOrStderr(), "session already exported as %s\n", res.Filename)
	case res.Path != "":
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", filepath.Clean(res.Path))
	}
	return nil
}

func runTally(cmd *cobra.Command, args []string) error {
	eng, db, err := openEngine(cfg, nil)
	if err != nil {
		return err
	}
	defer db.Close()

	summary, err := eng.Tally(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), render.Tally(summary))
	return nil
}

func runSessions(cmd *cobra.Command, args []string) error {
	eng, db, err := openEngine(cfg, nil)
	if err != nil {
		return err
	}
	defer db.Close()

	recs, err := eng.ListSessions(context.Background(), domain.SessionStatus(statusFlag))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, rec := range recs {
		if err := enc.Encode(map[string]any{
			"session_id": rec.SessionID,
			"seed":       rec.Seed,
			"status":     rec.Status,
			"updated_at": rec.UpdatedAtUnix,
		}); err != nil {
			return err
		}
	}
	return nil
}
