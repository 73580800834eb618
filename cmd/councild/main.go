// Command councild runs a single council member: a proposer/acceptor/learner
// participating in single-decree Paxos elections over a fixed peer set.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tarlanmammadov/paxos-council/pkg/cli"
)

func main() {
	root := &cobra.Command{
		Use:   "councild",
		Short: "Run and operate a Paxos council member",
	}
	cli.AddAll(root)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
