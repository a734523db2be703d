package common

import (
	"fmt"
	"github.com/lni/dragonboat/v4/config"
	"sort"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Dragonboat configuration
// --------------------------------------------------------------------------

// Dragonboat measures election and heartbeat timeouts in RTTs.
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// ToDragonboatConfig returns the raft configuration of a dstore shard.
func (c *ServerConfig) ToDragonboatConfig(shardId uint64) config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            shardId,
		ElectionRTT:        electionRTTFactor,
		HeartbeatRTT:       heartbeatRTTFactor,
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
	}
}

// ToNodeHostConfig returns the configuration of the NodeHost shared by all dstore shards.
func (c *ServerConfig) ToNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.DataDir,
		NodeHostDir:    c.DataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}

// --------------------------------------------------------------------------
// Server configuration
// --------------------------------------------------------------------------

// ServerShardType names the backend of a shard.
type ServerShardType string

const (
	ShardTypeLocalStore       ServerShardType = "lstore"
	ShardTypeRaftStore        ServerShardType = "dstore"
	ShardTypeRedisStore       ServerShardType = "rstore"
	ShardTypeLocalLockManager ServerShardType = "lockmgr(lstore)"
	ShardTypeRaftLockManager  ServerShardType = "lockmgr(dstore)"
	ShardTypeRedisLockManager ServerShardType = "lockmgr(rstore)"
)

// ParseShardType parses one of the ShardType constants.
func ParseShardType(s string) (ServerShardType, error) {
	switch t := ServerShardType(strings.ToLower(strings.TrimSpace(s))); t {
	case ShardTypeLocalStore, ShardTypeRaftStore, ShardTypeRedisStore,
		ShardTypeLocalLockManager, ShardTypeRaftLockManager, ShardTypeRedisLockManager:
		return t, nil
	default:
		return "", fmt.Errorf("invalid shard type %q", s)
	}
}

// IsLockManager reports whether the shard serves lock requests.
func (t ServerShardType) IsLockManager() bool {
	return strings.HasPrefix(string(t), "lockmgr(")
}

// Backend returns the store type behind the shard.
func (t ServerShardType) Backend() ServerShardType {
	if t.IsLockManager() {
		return ServerShardType(strings.TrimSuffix(strings.TrimPrefix(string(t), "lockmgr("), ")"))
	}
	return t
}

type ServerShard struct {
	ShardID uint64
	Type    ServerShardType
}

// ServerConfig holds the configuration of the shard server.
type ServerConfig struct {
	Shards []ServerShard

	// Dragonboat parameters, only used by dstore shards
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	DataDir            string
	ReplicaID          uint64
	ClusterMembers     map[uint64]string

	// Redis parameters, only used by rstore shards
	RedisAddr   string
	RedisPrefix string

	TimeoutSecond int64
	Endpoint      string
	LogLevel      string
}

// Timeout returns the request timeout of the backends.
func (c *ServerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// uses reports whether any shard is backed by b
func (c *ServerConfig) uses(b ServerShardType) bool {
	for _, shard := range c.Shards {
		if shard.Type.Backend() == b {
			return true
		}
	}
	return false
}

// HasRaftShard reports whether a NodeHost has to be started.
func (c *ServerConfig) HasRaftShard() bool {
	return c.uses(ShardTypeRaftStore)
}

// HasRedisShard reports whether a redis connection is needed.
func (c *ServerConfig) HasRedisShard() bool {
	return c.uses(ShardTypeRedisStore)
}

func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}
	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("RPC Server")
	addField("Endpoint", c.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	addSection("Shards")
	for _, shard := range c.Shards {
		addField(strconv.FormatUint(shard.ShardID, 10), string(shard.Type))
	}

	if c.HasRedisShard() {
		addSection("Redis")
		addField("Address", c.RedisAddr)
		addField("Key Prefix", c.RedisPrefix)
	}

	if c.HasRaftShard() {
		addSection("Node Identity")
		addField("RAFT Address", c.ClusterMembers[c.ReplicaID])
		addField("Node ID", strconv.FormatUint(c.ReplicaID, 10))

		addSection("RAFT Parameters")
		addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", c.RTTMillisecond))
		addField("Election RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*electionRTTFactor))
		addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*heartbeatRTTFactor))
		addField("Snapshot Entries", fmt.Sprintf("%d", c.SnapshotEntries))
		addField("Compaction Overhead", fmt.Sprintf("%d", c.CompactionOverhead))
		addField("Data Directory", c.DataDir)

		addSection("Cluster")
		var keys []uint64
		for k := range c.ClusterMembers {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("    Node %d: %s\n", k, c.ClusterMembers[k]))
		}
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// Client configuration
// --------------------------------------------------------------------------

type ClientConfig struct {
	Endpoints     []string
	TimeoutSecond int
	RetryCount    int
}

// Timeout returns the timeout of a single request.
func (c *ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

func (c *ClientConfig) String() string {
	var sb strings.Builder
	sb.WriteString("\nCLIENT CONFIGURATION\n")
	sb.WriteString(fmt.Sprintf("  %-22s: %d sec\n", "Timeout", c.TimeoutSecond))
	sb.WriteString(fmt.Sprintf("  %-22s: %d\n", "Retry Count", c.RetryCount))
	sb.WriteString("\nENDPOINTS\n")
	for i, endpoint := range c.Endpoints {
		sb.WriteString(fmt.Sprintf("  %-22d: %s\n", i, endpoint))
	}
	return sb.String()
}
