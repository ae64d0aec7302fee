// Command shardd is the shard-core process entrypoint: it wires the URN
// resolver, consistent-hash ring, shard topology, mTLS transport, HSM signing
// core and shard router into one running server, and exposes operational
// subcommands for inspecting the same state without starting a server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/themis-db/shardcore/internal/logging"
)

var log = logging.MustGetLogger("shardd")

var configFile string

func main() {
	root := &cobra.Command{
		Use:   "shardd",
		Short: "shard-core: URN-addressed, PKI-governed sharded data plane",
	}
	root.PersistentFlags().StringVar(&configFile, "config", "shardd.yaml", "path to shardd config file")

	root.AddCommand(serveCmd(), keysCmd(), ringCmd(), topologyCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
