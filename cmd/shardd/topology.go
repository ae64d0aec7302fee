package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func topologyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "topology", Short: "inspect the shard topology"}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "print every shard's endpoint, placement and health",
		RunE: func(cmd *cobra.Command, args []string) error {
			dep, err := build()
			if err != nil {
				return err
			}
			for _, shard := range dep.topology.GetAll() {
				fmt.Printf("%-16s endpoint=%-32s dc=%-10s rack=%-6s healthy=%v caps=%v\n",
					shard.ShardID, shard.PrimaryEndpoint, shard.Datacenter, shard.Rack, shard.IsHealthy, shard.Capabilities)
			}
			return nil
		},
	})
	return cmd
}
