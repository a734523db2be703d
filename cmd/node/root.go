package node

import (
	"context"
	"errors"
	"fmt"
	cmdUtil "github.com/ValentinKolb/dSess/cmd/util"
	"github.com/ValentinKolb/dSess/lib/db"
	"github.com/ValentinKolb/dSess/lib/db/engines/maple"
	"github.com/ValentinKolb/dSess/lib/manager"
	"github.com/ValentinKolb/dSess/lib/ownership"
	"github.com/ValentinKolb/dSess/lib/routing"
	"github.com/ValentinKolb/dSess/lib/session"
	"github.com/ValentinKolb/dSess/lib/sessionstore"
	"github.com/ValentinKolb/dSess/lib/store"
	"github.com/ValentinKolb/dSess/lib/store/lstore"
	"github.com/ValentinKolb/dSess/lib/web"
	"github.com/ValentinKolb/dSess/rpc/client"
	"github.com/ValentinKolb/dSess/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var (
	nodeCmdConfig = manager.DefaultConfig()
	NodeCmd       = &cobra.Command{
		Use:   "node",
		Short: "Run an application node with the session engine",
		Long: `Run an application node that serves a small session demo over HTTP.
Sessions are replicated through the shards of a "dsess serve" cluster, so any node can continue a session another node created.
The configuration can be set via command line flags or environment variables (e.g. DSESS_SNAPSHOT_MODE=instant)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	cobra.OnInitialize(cmdUtil.InitConfig)
	cmdUtil.SetupRPCClientFlags(NodeCmd)
	flags := NodeCmd.PersistentFlags()

	flags.String("listen", "0.0.0.0:8081", cmdUtil.WrapString("The address on which the node serves HTTP"))
	flags.String("route", "", cmdUtil.WrapString("Route of this node. It is appended to session ids so the balancer can send requests back here (required)"))
	flags.String("hash-routes", "", cmdUtil.WrapString("Comma-separated routes of all nodes. If set, new sessions are spread over the nodes by rendezvous hashing"))
	flags.Int("hash-owners", 1, cmdUtil.WrapString("Number of preferred nodes per session when hash-routes is set"))
	flags.Bool("distributed", true, cmdUtil.WrapString("Replicate sessions through the shard server. With false everything stays in this process"))
	flags.Uint64("store-shard", 100, cmdUtil.WrapString("Shard id of the session store"))
	flags.Uint64("lock-shard", 200, cmdUtil.WrapString("Shard id of the lock manager"))
	flags.Duration("lock-lease", 30*time.Second, cmdUtil.WrapString("How long a session lock survives a crashed node"))
	flags.String("snapshot-mode", "interval", cmdUtil.WrapString("When dirty sessions are replicated: interval (batched) or instant (at the end of every request)"))
	flags.Duration("snapshot-interval", time.Second, cmdUtil.WrapString("Replication interval in interval mode"))
	flags.Duration("full-replication-window", session.DefaultFullReplicationWindow, cmdUtil.WrapString("After a session moved to this node it is replicated completely for this long"))
	flags.Int("max-inactive-interval", 1800, cmdUtil.WrapString("Idle timeout of sessions in seconds. 0 or less never expires"))
	flags.Int64("max-unreplicated-interval", -1, cmdUtil.WrapString("Time in ms after which a read only access is replicated. -1 disables, 0 replicates every access"))
	flags.String("trigger", "SET_AND_NON_PRIMITIVE_GET", cmdUtil.WrapString("Which attribute reads mark a session dirty: SET, SET_AND_GET or SET_AND_NON_PRIMITIVE_GET"))
	flags.Duration("lock-timeout", 5*time.Second, cmdUtil.WrapString("How long a request waits for the session lock"))
	flags.Int("max-active-sessions", -1, cmdUtil.WrapString("Maximum number of sessions on this node, -1 is unlimited"))
	flags.Duration("expiration-interval", time.Minute, cmdUtil.WrapString("How often idle sessions are expired and passivated"))
	flags.Duration("passivation-min-idle-time", 0, cmdUtil.WrapString("While max-active-sessions is reached, sessions idle for this long are evicted from memory. 0 disables"))
	flags.Duration("passivation-max-idle-time", 0, cmdUtil.WrapString("Sessions idle for this long are evicted from memory, they stay in the store. 0 disables"))
	flags.String("notification-policy", "local", cmdUtil.WrapString("Which session events are reported: local (caused on this node), all or none"))
	flags.String("session-id", "cookie", cmdUtil.WrapString("How the session id travels: cookie or path (;jsessionid=)"))
	flags.String("cookie-name", web.DefaultCookieName, cmdUtil.WrapString("Name of the session cookie"))
	flags.String("log-level", "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	mode, err := manager.ParseSnapshotMode(viper.GetString("snapshot-mode"))
	if err != nil {
		return err
	}
	trigger, err := session.ParseTrigger(viper.GetString("trigger"))
	if err != nil {
		return err
	}
	policy, err := session.ParseNotificationPolicy(viper.GetString("notification-policy"))
	if err != nil {
		return err
	}

	nodeCmdConfig.Route = viper.GetString("route")
	nodeCmdConfig.Distributed = viper.GetBool("distributed")
	nodeCmdConfig.SnapshotMode = mode
	nodeCmdConfig.SnapshotInterval = viper.GetDuration("snapshot-interval")
	nodeCmdConfig.FullReplicationWindow = viper.GetDuration("full-replication-window")
	nodeCmdConfig.MaxInactiveInterval = viper.GetInt("max-inactive-interval")
	nodeCmdConfig.MaxUnreplicatedInterval = viper.GetInt64("max-unreplicated-interval")
	nodeCmdConfig.Trigger = trigger
	nodeCmdConfig.LockTimeout = viper.GetDuration("lock-timeout")
	nodeCmdConfig.MaxActiveSessions = viper.GetInt("max-active-sessions")
	nodeCmdConfig.ExpirationInterval = viper.GetDuration("expiration-interval")
	nodeCmdConfig.NotificationPolicy = policy
	nodeCmdConfig.PassivationMinIdleTime = viper.GetDuration("passivation-min-idle-time")
	nodeCmdConfig.PassivationMaxIdleTime = viper.GetDuration("passivation-max-idle-time")

	if nodeCmdConfig.Route == "" && nodeCmdConfig.Distributed {
		return fmt.Errorf("route is required in distributed mode")
	}
	return nil
}

// backends connects to the shard server or creates an in-process store
func backends() (store.IStore, ownership.LockSupport, error) {
	if !nodeCmdConfig.Distributed {
		return lstore.NewLocalStore(func() db.KVDB { return maple.NewMapleDB(nil) }), nil, nil
	}

	config := cmdUtil.GetClientConfig()
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return nil, nil, err
	}
	kvTransport, err := cmdUtil.GetTransport()
	if err != nil {
		return nil, nil, err
	}
	lockTransport, err := cmdUtil.GetTransport()
	if err != nil {
		return nil, nil, err
	}

	kv, err := client.NewRPCStore(viper.GetUint64("store-shard"), config, kvTransport, s)
	if err != nil {
		return nil, nil, fmt.Errorf("connect store shard: %w", err)
	}
	locks, err := client.NewRPCLockMgr(viper.GetUint64("lock-shard"), config, lockTransport, s)
	if err != nil {
		return nil, nil, fmt.Errorf("connect lock shard: %w", err)
	}
	cl, err := ownership.NewClusterLock(locks, kv, nodeCmdConfig.Route, &ownership.ClusterLockOptions{
		Lease:    viper.GetDuration("lock-lease"),
		OwnerTTL: sessionstore.TTL(nodeCmdConfig.MaxInactiveInterval),
	})
	if err != nil {
		return nil, nil, err
	}
	return kv, cl, nil
}

func sessionConfig() (web.SessionConfig, error) {
	switch viper.GetString("session-id") {
	case "cookie":
		c := web.DefaultCookieConfig()
		c.Name = viper.GetString("cookie-name")
		return c, nil
	case "path":
		return web.DefaultPathParameterConfig(), nil
	default:
		return nil, fmt.Errorf("invalid session-id %q, must be cookie or path", viper.GetString("session-id"))
	}
}

func run(_ *cobra.Command, _ []string) error {
	if err := common.InitLoggers(viper.GetString("log-level")); err != nil {
		return err
	}

	kv, locks, err := backends()
	if err != nil {
		return err
	}
	sc, err := sessionConfig()
	if err != nil {
		return err
	}

	var affinity routing.AffinityProvider
	if routes := cmdUtil.SplitList(viper.GetString("hash-routes")); len(routes) > 0 {
		affinity = routing.NewHashAffinity(nodeCmdConfig.Route, routes, viper.GetInt("hash-owners"))
	}

	m := manager.New(nodeCmdConfig, sessionstore.New(kv), locks, affinity)
	log.Infof("%s", m.Config().String())
	m.AddListener(countEvent)
	m.Open()
	defer func() {
		if err := m.Close(); err != nil {
			log.Warningf("failed to replicate sessions on shutdown: %v", err)
		}
	}()

	srv := &http.Server{
		Addr:              viper.GetString("listen"),
		Handler:           NewRouter(m, sc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Infof("node %q listening on %s", nodeCmdConfig.Route, srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		log.Infof("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
