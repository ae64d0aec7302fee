package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func ringCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "ring", Short: "inspect the consistent hash ring"}
	cmd.AddCommand(&cobra.Command{
		Use:   "inspect",
		Short: "print per-shard token ranges and ring balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			dep, err := build()
			if err != nil {
				return err
			}
			for _, shard := range dep.topology.GetAll() {
				min, max, ok := dep.ring.ShardRange(shard.ShardID)
				if !ok {
					continue
				}
				fmt.Printf("%-16s token_range=[%d,%d] healthy=%v\n", shard.ShardID, min, max, shard.IsHealthy)
			}
			fmt.Printf("shards=%d balance_factor=%.2f%%\n", dep.ring.ShardCount(), dep.ring.BalanceFactor())
			return nil
		},
	})
	return cmd
}
