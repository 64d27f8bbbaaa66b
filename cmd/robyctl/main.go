// robyctl - операторская утилита: ключи, коммитменты credential, деревья
// Меркла, сборка, подпись и отправка транзакций в robyd.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "robyctl",
		Short:         "Operator CLI for the roby access-control ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newKeygenCmd(),
		newCredentialHashCmd(),
		newHashPasswordCmd(),
		newTokenCmd(),
		newMerkleCmd(),
		newTxCmd(),
	)
	return root
}
