package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/elmchat/elm-chat/internal/domain"
	"github.com/elmchat/elm-chat/internal/metrics"
	"github.com/elmchat/elm-chat/internal/repository"
	"github.com/elmchat/elm-chat/pkg/log"
)

type historyService struct {
	logs repository.MessageLogRepository
}

func NewHistoryService(logs repository.MessageLogRepository) HistoryService {
	return &historyService{logs: logs}
}

// FetchHistory scans every message log and returns all entries ordered by
// timestamp. Entries with equal timestamps keep scan order. Pieces that do
// not decode are skipped.
func (s *historyService) FetchHistory(ctx context.Context) ([]domain.AggregatedMessage, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.HistoryFetchDuration)

	l := log.Ctx(ctx)

	rows, err := s.logs.ListMessageLogs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list message logs: %w", err)
	}

	messages := make([]domain.AggregatedMessage, 0)
	skipped := 0
	for _, row := range rows {
		for _, piece := range domain.SplitLog(row.Messages) {
			entry, err := domain.DecodeEntry(piece)
			if err != nil {
				skipped++
				l.Warn().Err(err).Str(log.FieldUserID, row.UserID).Msg("skipping undecodable history entry")
				continue
			}
			messages = append(messages, entry.ToAggregated(row.UserID))
		}
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp < messages[j].Timestamp
	})

	l.Debug().Int("rows", len(rows)).Int("messages", len(messages)).Int("skipped", skipped).Msg("history rebuilt")
	return messages, nil
}
