package cassandra

import (
	"context"
	"fmt"
	"regexp"

	"github.com/elmchat/elm-chat/internal/config"
	"github.com/elmchat/elm-chat/pkg/log"
)

var keyspacePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{0,47}$`)

// tableStatements create the tables and the secondary indexes the user
// lookups by email and reset code rely on.
var tableStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id text PRIMARY KEY,
		email text,
		firstname text,
		lastname text,
		isadmin boolean,
		isverified boolean,
		passwordhash text,
		salt text,
		verificationstring text,
		avatarurl text,
		passwordresetcode text
	)`,
	`CREATE INDEX IF NOT EXISTS users_email_idx ON users (email)`,
	`CREATE INDEX IF NOT EXISTS users_passwordresetcode_idx ON users (passwordresetcode)`,
	`CREATE TABLE IF NOT EXISTS chat (
		userid text PRIMARY KEY,
		messages text
	)`,
}

// Migrate creates the keyspace (SimpleStrategy) and all tables.
func Migrate(ctx context.Context, cfg config.CassandraConfig) error {
	l := log.Ctx(ctx)

	if !keyspacePattern.MatchString(cfg.Keyspace) {
		return fmt.Errorf("invalid keyspace name %q", cfg.Keyspace)
	}
	rf := cfg.ReplicationFactor
	if rf < 1 {
		rf = 1
	}

	admin, err := newCluster(cfg, "").CreateSession()
	if err != nil {
		return fmt.Errorf("failed to create Cassandra session: %w", err)
	}
	defer admin.Close()

	stmt := fmt.Sprintf(
		`CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': %d}`,
		cfg.Keyspace, rf,
	)
	if err := admin.Query(stmt).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to create keyspace: %w", err)
	}
	l.Info().Str("keyspace", cfg.Keyspace).Int("replication_factor", rf).Msg("keyspace ready")

	client, err := NewClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	for _, stmt := range tableStatements {
		if err := client.Session().Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	l.Info().Int("statements", len(tableStatements)).Msg("schema migration completed")

	return nil
}
