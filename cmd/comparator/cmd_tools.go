package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spaceshipgen/comparator/internal/codec"
	"github.com/spaceshipgen/comparator/internal/domain"
	"github.com/spaceshipgen/comparator/internal/session"
	"github.com/spaceshipgen/comparator/internal/shuffle"
	"github.com/spaceshipgen/comparator/internal/structure"
)

var reconstructFlag bool

var decodeCmd = &cobra.Command{
	Use:   "decode <file>...",
	Short: "Decode artifact files without touching any session",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDecode,
}

var assignCmd = &cobra.Command{
	Use:   "assign <seed>",
	Short: "Print which strategy a seed assigns to each slot",
	Args:  cobra.ExactArgs(1),
	RunE:  runAssign,
}

func init() {
	decodeCmd.Flags().BoolVarP(&reconstructFlag, "reconstruct", "r", false, "Also run the structure builder and print the slot panel")
}

func runDecode(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	var rec structure.Reconstructor
	if reconstructFlag {
		r, err := newReconstructor(cfg)
		if err != nil {
			return err
		}
		rec = r
	}

	failed := 0
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		f := codec.FromFile(path, data)
		p, err := codec.Decode(f.Name, f.Contents)
		if err != nil {
			failed++
			fmt.Fprintf(out, "%s: %v\n", f.Name, err)
			continue
		}
		fmt.Fprintf(out, "%s: seed %s, slot %d, %d byte derivation\n", f.Name, p.Seed, p.Slot, len(p.Derivation))
		if rec == nil {
			continue
		}
		res, err := rec.Reconstruct(context.Background(), p.Derivation)
		if err != nil {
			failed++
			fmt.Fprintf(out, "  %v\n", err)
			continue
		}
		fmt.Fprintln(out, session.NewSlotView(p.Slot, res).Markdown())
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(args))
	}
	return nil
}

func runAssign(cmd *cobra.Command, args []string) error {
	seed, err := domain.ParseSeed(args[0])
	if err != nil {
		return err
	}
	a, err := shuffle.DeriveAssignment(seed, cfg.Labels)
	if err != nil {
		return err
	}
	for _, slot := range domain.AllSlots() {
		fmt.Fprintf(cmd.OutOrStdout(), "slot %d: %s\n", slot, a.Label(slot))
	}
	return nil
}
