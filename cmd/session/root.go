package session

import (
	"encoding/json"
	"fmt"
	cmdUtil "github.com/ValentinKolb/dSess/cmd/util"
	"github.com/ValentinKolb/dSess/lib/sessionstore"
	"github.com/ValentinKolb/dSess/rpc/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
)

var (
	// SessionCommands inspects replicated sessions on a shard server
	SessionCommands = &cobra.Command{
		Use:   "session",
		Short: "Inspect replicated sessions",
		Long: `Read or delete sessions directly on the session store shard.
Sessions are addressed by their real id, i.e. the id without the route suffix.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return cmdUtil.BindCommandFlags(cmd)
		},
	}
	getCmd = &cobra.Command{
		Use:   "get <realId>",
		Short: "Print a session as json",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			p, err := s.Get(args[0])
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("session %s not found", args[0])
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(p)
		},
	}
	rmCmd = &cobra.Command{
		Use:   "rm <realId>",
		Short: "Delete a session from the cluster",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			if err := s.Remove(args[0]); err != nil {
				return err
			}
			fmt.Printf("removed %s\n", args[0])
			return nil
		},
	}
)

func init() {
	cobra.OnInitialize(cmdUtil.InitConfig)
	cmdUtil.SetupRPCClientFlags(SessionCommands)
	SessionCommands.PersistentFlags().Uint64("store-shard", 100, cmdUtil.WrapString("Shard id of the session store"))

	SessionCommands.AddCommand(getCmd)
	SessionCommands.AddCommand(rmCmd)
}

func openStore() (*sessionstore.Store, error) {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return nil, err
	}
	t, err := cmdUtil.GetTransport()
	if err != nil {
		return nil, err
	}
	kv, err := client.NewRPCStore(viper.GetUint64("store-shard"), cmdUtil.GetClientConfig(), t, s)
	if err != nil {
		return nil, err
	}
	return sessionstore.New(kv), nil
}
