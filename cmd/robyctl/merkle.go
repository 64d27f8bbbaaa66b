package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xela07ax/roby-guard/internal/merkle"
)

func newMerkleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merkle",
		Short: "Build the credential tree off-ledger",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "root <leaf>...",
		Short: "Print the root of the given leaves (hex)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			leaves, err := parseHashes(args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), merkle.NewTree(leaves).Root())
			return nil
		},
	})

	var index int
	proof := &cobra.Command{
		Use:   "proof <leaf>...",
		Short: "Print the proof for the leaf at --index, one sibling per line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			leaves, err := parseHashes(args)
			if err != nil {
				return err
			}
			siblings, err := merkle.NewTree(leaves).Proof(index)
			if err != nil {
				return err
			}
			for _, h := range siblings {
				fmt.Fprintln(cmd.OutOrStdout(), h)
			}
			return nil
		},
	}
	proof.Flags().IntVar(&index, "index", 0, "leaf index")
	cmd.AddCommand(proof)

	return cmd
}

func parseHashes(in []string) ([]merkle.Hash, error) {
	out := make([]merkle.Hash, len(in))
	for i, s := range in {
		h, err := merkle.ParseHash(s)
		if err != nil {
			return nil, fmt.Errorf("hash %d: %w", i, err)
		}
		out[i] = h
	}
	return out, nil
}
