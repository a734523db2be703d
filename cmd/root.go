package cmd

import (
	"fmt"
	"github.com/ValentinKolb/dSess/cmd/node"
	"github.com/ValentinKolb/dSess/cmd/serve"
	"github.com/ValentinKolb/dSess/cmd/session"
	"github.com/ValentinKolb/dSess/cmd/util"
	"github.com/spf13/cobra"
	"os"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dsess",
		Short: "clustered web session replication",
		Long: fmt.Sprintf(`dSess (v%s)

Replicates web sessions across a cluster of application nodes and keeps
requests of a session on the node that owns it.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dSess",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dSess v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(node.NodeCmd)
	RootCmd.AddCommand(session.SessionCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer to use (json, gob)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "http", util.WrapString("transport to use (http)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
