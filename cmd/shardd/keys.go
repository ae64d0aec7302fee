package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func keysCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "keys", Short: "inspect the HSM signing core"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "list key labels visible to the signing core",
		RunE: func(cmd *cobra.Command, args []string) error {
			dep, err := build()
			if err != nil {
				return err
			}
			fmt.Println("token:", dep.hsmCore.TokenInfo())
			for _, label := range dep.hsmCore.ListKeys() {
				fmt.Println(" -", label)
			}
			return nil
		},
	})
	return cmd
}
