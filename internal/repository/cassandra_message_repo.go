package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/gocql/gocql"

	"github.com/elmchat/elm-chat/internal/domain"
)

type CassandraMessageLogRepository struct {
	session *gocql.Session
}

func NewCassandraMessageLogRepository(session *gocql.Session) *CassandraMessageLogRepository {
	return &CassandraMessageLogRepository{session: session}
}

func (r *CassandraMessageLogRepository) GetMessageLog(ctx context.Context, userID string) (*domain.UserMessageLog, error) {
	row := domain.UserMessageLog{UserID: userID}
	err := r.session.Query(`SELECT messages FROM chat WHERE userid = ?`, userID).
		WithContext(ctx).
		Scan(&row.Messages)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrMessageLogNotFound
		}
		return nil, fmt.Errorf("failed to read message log: %w", err)
	}
	return &row, nil
}

func (r *CassandraMessageLogRepository) PutMessageLog(ctx context.Context, userID, messages string) error {
	err := r.session.Query(`INSERT INTO chat (userid, messages) VALUES (?, ?)`, userID, messages).
		WithContext(ctx).
		Exec()
	if err != nil {
		return fmt.Errorf("failed to insert message log: %w", err)
	}
	return nil
}

func (r *CassandraMessageLogRepository) UpdateMessageLogIfExists(ctx context.Context, userID, messages string) (bool, error) {
	return casApplied(r.session.Query(
		`UPDATE chat SET messages = ? WHERE userid = ? IF EXISTS`,
		messages, userID,
	).WithContext(ctx))
}

func (r *CassandraMessageLogRepository) ListMessageLogs(ctx context.Context) ([]domain.UserMessageLog, error) {
	iter := r.session.Query(`SELECT userid, messages FROM chat`).WithContext(ctx).Iter()

	var rows []domain.UserMessageLog
	var row domain.UserMessageLog
	for iter.Scan(&row.UserID, &row.Messages) {
		rows = append(rows, row)
		row = domain.UserMessageLog{}
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to iterate message logs: %w", err)
	}
	return rows, nil
}

// casApplied executes a lightweight transaction and returns its [applied]
// column.
func casApplied(q *gocql.Query) (bool, error) {
	applied, err := q.MapScanCAS(map[string]any{})
	if err != nil {
		return false, fmt.Errorf("failed to execute conditional update: %w", err)
	}
	return applied, nil
}
