package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spaceshipgen/comparator/internal/watch"
	"github.com/spaceshipgen/comparator/internal/workflow"
)

var watchCmd = &cobra.Command{
	Use:   "watch <session> <dir>",
	Short: "Upload artifact files as they are dropped into a directory",
	Args:  cobra.ExactArgs(2),
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	id, dir := args[0], args[1]

	eng, db, err := openEngine(cfg, nil)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := eng.EnsureSession(ctx, id); err != nil {
		return err
	}

	w := watch.New(dir, id, eng)
	w.Logger = logger
	w.OnBatch = func(res *workflow.UploadResult, err error) {
		if err != nil {
			return
		}
		for _, f := range res.Failures() {
			logger.Warn("file skipped", zap.String("file", f.Filename), zap.String("error", f.Error))
		}
		if res.Status != "" {
			logger.Info("session updated", zap.String("status", string(res.Status)))
		}
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-w.Done()
	w.Stop()

	s := w.Stats()
	logger.Info("watch stopped",
		zap.Int("files", s.FilesSeen),
		zap.Int("batches", s.Batches),
		zap.Int("batch_errors", s.BatchErrors))
	return nil
}
