package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/uma-arai/sbcntr-happypaws/internal/model"
)

const defaultPublishTimeout = 3 * time.Second

// publish はイベントをバックグラウンドで発行します。発行の失敗はログにのみ残します
// ブローカーの遅延がレスポンスを遅らせないように、リクエストのキャンセルからは切り離します
func (h *Handler) publish(ctx context.Context, events ...model.ReservationEvent) {
	if len(events) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.publishWait)
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		defer cancel()
		if err := h.events.Publish(ctx, events...); err != nil {
			h.log.Warn("failed to publish reservation events", slog.Int("events", len(events)), slog.Any("error", err))
		}
	}()
}
