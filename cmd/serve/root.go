package serve

import (
	"fmt"
	cmdUtil "github.com/ValentinKolb/dSess/cmd/util"
	"github.com/ValentinKolb/dSess/rpc/common"
	"github.com/ValentinKolb/dSess/rpc/server"
	"github.com/ValentinKolb/dSess/rpc/transport/http"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:   "serve",
		Short: "Start a shard server for session and lock storage",
		Long: `Start a shard server that stores replicated sessions and session locks for dsess nodes.
The configuration can be set via command line flags or environment variables. The format of the environment variables is DSESS_<flag> (e.g. DSESS_TIMEOUT=15)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	cobra.OnInitialize(cmdUtil.InitConfig)

	key := "shards"
	ServeCmd.PersistentFlags().String(key, "100=lstore,200=lockmgr(lstore)", cmdUtil.WrapString("Comma-separated list of shards to serve. Format: ID=TYPE where TYPE is one of: lstore, dstore, rstore, lockmgr(lstore), lockmgr(dstore), lockmgr(rstore)"))

	key = "rtt-millisecond"
	ServeCmd.PersistentFlags().Int(key, 100, cmdUtil.WrapString("(dstore) Average Round Trip Time in milliseconds between two NodeHost instances. Election and heartbeat timeouts are derived from it"))

	key = "snapshot-entries"
	ServeCmd.PersistentFlags().Int(key, 10, cmdUtil.WrapString("(dstore) Number of applied raft log entries after which the state machine is snapshotted. 0 disables automatic snapshots"))

	key = "compaction-overhead"
	ServeCmd.PersistentFlags().Int(key, 5, cmdUtil.WrapString("(dstore) Number of log entries retained after a snapshot. About 1/2 of snapshot-entries is recommended"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("(dstore) Directory for the raft log and snapshots"))

	key = "replica-id"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(dstore) Unique name of this NodeHost instance (e.g. 'node-1')"))

	key = "cluster-members"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(dstore) Comma-separated list of NodeHost addresses in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))

	key = "redis-addr"
	ServeCmd.PersistentFlags().String(key, "localhost:6379", cmdUtil.WrapString("(rstore) Address of the redis server"))

	key = "redis-prefix"
	ServeCmd.PersistentFlags().String(key, "dsess:", cmdUtil.WrapString("(rstore) Prefix of all redis keys. The shard id is appended"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout in seconds for raft proposals and redis round trips"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig converts the flags and environment variables to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	shards, err := cmdUtil.ParseShards(viper.GetString("shards"))
	if err != nil {
		return err
	}
	serveCmdConfig.Shards = shards

	serveCmdConfig.RTTMillisecond = viper.GetUint64("rtt-millisecond")
	serveCmdConfig.SnapshotEntries = viper.GetUint64("snapshot-entries")
	serveCmdConfig.CompactionOverhead = viper.GetUint64("compaction-overhead")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.RedisAddr = viper.GetString("redis-addr")
	serveCmdConfig.RedisPrefix = viper.GetString("redis-prefix")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if !serveCmdConfig.HasRaftShard() {
		return nil
	}

	// raft settings are only required for dstore shards
	id := viper.GetString("replica-id")
	if id == "" {
		return fmt.Errorf("replica-id is required for dstore shards")
	}
	serveCmdConfig.ReplicaID = cmdUtil.ReplicaID(id)

	members := viper.GetString("cluster-members")
	if members == "" {
		return fmt.Errorf("cluster-members is required for dstore shards")
	}
	if serveCmdConfig.ClusterMembers, err = cmdUtil.ParseClusterMembers(members); err != nil {
		return err
	}
	if _, ok := serveCmdConfig.ClusterMembers[serveCmdConfig.ReplicaID]; !ok {
		return fmt.Errorf("no address found for replica %s in cluster members", id)
	}
	return nil
}

func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}
	if t := viper.GetString("transport"); t != "http" {
		return fmt.Errorf("invalid transport %s", t)
	}

	serv := server.NewRPCServer(*serveCmdConfig, http.NewHttpServerTransport(), s)
	defer serv.Close()
	return serv.Serve()
}
