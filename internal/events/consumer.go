// Package events consumes externally delivered account events and revokes
// the affected user's credentials. Account deletion drops everything;
// password change or reset drops the grant-capable and client-management
// credentials only.
package events

import (
	"context"
	"encoding/hex"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dropDatabas3/grantd/internal/observability/logger"
	"github.com/dropDatabas3/grantd/internal/security/token"
	"github.com/dropDatabas3/grantd/internal/store/core"
)

const (
	EventDelete         = "delete"
	EventPasswordChange = "passwordChange"
	EventPasswordReset  = "reset"
)

type message struct {
	Event string `json:"event"`
	UID   string `json:"uid"`
}

type Consumer struct {
	rdb     *redis.Client
	channel string
	store   core.Store
}

func NewConsumer(rdb *redis.Client, channel string, store core.Store) *Consumer {
	return &Consumer{rdb: rdb, channel: channel, store: store}
}

// Run subscribes and processes events until ctx is done. Malformed
// messages are logged and skipped; the consumer itself never crashes.
func (c *Consumer) Run(ctx context.Context) error {
	sub := c.rdb.Subscribe(ctx, c.channel)
	defer sub.Close()

	log := logger.From(ctx).Named("events")
	log.Info("consuming account events", zap.String("channel", c.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			c.handle(ctx, msg.Payload)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, payload string) {
	log := logger.From(ctx).Named("events")

	var m message
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		log.Warn("malformed event payload", zap.Error(err))
		return
	}
	uid, err := hex.DecodeString(m.UID)
	if err != nil || len(uid) != token.UserIDLen {
		log.Warn("malformed uid in event", zap.String("event", m.Event), zap.String("uid", m.UID))
		return
	}

	switch m.Event {
	case EventDelete:
		err = c.store.RemoveUser(ctx, uid)
	case EventPasswordChange, EventPasswordReset:
		err = c.store.RemovePublicAndCanGrantTokens(ctx, uid)
	default:
		log.Debug("ignoring event", zap.String("event", m.Event))
		return
	}
	if err != nil {
		log.Error("event handling failed",
			zap.String("event", m.Event), zap.String("uid", m.UID), zap.Error(err))
		return
	}
	log.Info("event handled", zap.String("event", m.Event), zap.String("uid", m.UID))
}
