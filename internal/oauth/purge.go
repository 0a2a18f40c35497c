package oauth

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropDatabas3/grantd/internal/observability/logger"
	"github.com/dropDatabas3/grantd/internal/security/token"
)

type PurgeParams struct {
	Count           int64
	Delay           time.Duration
	BatchSize       int64
	IgnoreClientIDs []string // hex, must be non-empty
}

// Purge runs one bounded expired-token reclamation pass. Every ignored id
// must resolve to a registered client before anything is deleted; a store
// error stops the run but never crashes the host.
func (s *Service) Purge(ctx context.Context, p PurgeParams) (int64, error) {
	if len(p.IgnoreClientIDs) == 0 {
		return 0, fmt.Errorf("purge: ignore list must be non-empty")
	}
	ignore := make([][]byte, 0, len(p.IgnoreClientIDs))
	for _, idHex := range p.IgnoreClientIDs {
		id, err := hex.DecodeString(idHex)
		if err != nil || len(id) != token.ClientIDLen {
			return 0, fmt.Errorf("purge: bad client id %q", idHex)
		}
		if _, err := s.store.GetClient(ctx, id); err != nil {
			return 0, fmt.Errorf("purge: ignored client %s: %w", idHex, err)
		}
		ignore = append(ignore, id)
	}

	run := uuid.NewString()
	log := logger.From(ctx).With(zap.String("purge_run", run))
	log.Info("purge start",
		zap.Int64("count", p.Count),
		zap.Int64("batch_size", p.BatchSize),
		zap.Duration("delay", p.Delay),
		zap.Int("ignored_clients", len(ignore)))

	start := time.Now()
	deleted, err := s.store.PurgeExpiredTokens(ctx, p.Count, p.Delay, ignore, p.BatchSize)
	if err != nil {
		log.Error("purge stopped", zap.Int64("deleted", deleted), zap.Error(err))
		return deleted, err
	}
	log.Info("purge done",
		zap.Int64("deleted", deleted),
		zap.Duration("elapsed", time.Since(start)))
	return deleted, nil
}
