package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spaceshipgen/comparator/internal/batch"
)

var concurrency int

var batchCmd = &cobra.Command{
	Use:   "batch <root>",
	Short: "Import one session per subdirectory of root",
	Long: `Imports collected experiment data. Every subdirectory of root is a session
named after the directory; its artifact files are uploaded as one batch and,
if it holds a ranks.json such as {"1": 3, "2": 1, "3": 2}, the session is
exported.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().IntVarP(&concurrency, "concurrency", "j", 0, "Sessions processed in parallel (default: max_concurrent_sessions)")
}

func runBatch(cmd *cobra.Command, args []string) error {
	eng, db, err := openEngine(cfg, nil)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n := concurrency
	if n <= 0 {
		n = cfg.MaxConcurrentSessions
	}
	im := &batch.Importer{Engine: eng, Concurrency: n, Logger: logger}
	report, err := im.Run(ctx, args[0])
	if report != nil {
		out := cmd.OutOrStdout()
		for _, it := range report.Items {
			switch {
			case it.SessionID == "":
			case it.Err != nil:
				fmt.Fprintf(out, "%s\tfailed\t%v\n", it.SessionID, it.Err)
			case it.Exported != "":
				fmt.Fprintf(out, "%s\texported\t%s\n", it.SessionID, it.Exported)
			default:
				fmt.Fprintf(out, "%s\tuploaded\t%d files, %d skipped\n", it.SessionID, it.Files, len(it.Failures))
			}
		}
	}
	if err != nil {
		return err
	}
	if n := report.Failed(); n > 0 {
		return fmt.Errorf("%d sessions failed", n)
	}
	return nil
}
