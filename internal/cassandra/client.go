package cassandra

import (
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"github.com/elmchat/elm-chat/internal/config"
)

const defaultConsistency = gocql.LocalQuorum

// Client owns the gocql session shared by the repositories.
type Client struct {
	session *gocql.Session
}

func NewClient(cfg config.CassandraConfig) (*Client, error) {
	session, err := newCluster(cfg, cfg.Keyspace).CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cassandra %s: %w", strings.Join(cfg.Hosts, ","), err)
	}
	return &Client{session: session}, nil
}

// newCluster builds the cluster config. An empty keyspace is used for
// schema statements that run before the keyspace exists.
func newCluster(cfg config.CassandraConfig, keyspace string) *gocql.ClusterConfig {
	c := gocql.NewCluster(cfg.Hosts...)
	c.Keyspace = keyspace
	c.Consistency = consistency(cfg.Consistency)
	// Conditional updates (IF EXISTS) run their Paxos round in the local DC.
	c.SerialConsistency = gocql.LocalSerial
	c.ConnectTimeout = cfg.ConnectTimeout
	c.Timeout = cfg.Timeout
	c.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.RoundRobinHostPolicy())
	c.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{NumRetries: 3, Min: 100 * time.Millisecond, Max: 2 * time.Second}
	if cfg.NumConns > 0 {
		c.NumConns = cfg.NumConns
	}
	if cfg.Username != "" {
		c.Authenticator = gocql.PasswordAuthenticator{Username: cfg.Username, Password: cfg.Password}
	}
	return c
}

func (c *Client) Session() *gocql.Session {
	return c.session
}

func (c *Client) Close() {
	if c.session != nil {
		c.session.Close()
	}
}

// consistency parses names like "local_quorum"; unknown or empty names fall
// back to LOCAL_QUORUM.
func consistency(name string) gocql.Consistency {
	if name == "" {
		return defaultConsistency
	}
	level, err := gocql.ParseConsistencyWrapper(strings.ToUpper(name))
	if err != nil {
		return defaultConsistency
	}
	return level
}
