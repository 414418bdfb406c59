package gemini

import (
	"context"
	"time"

	"go.uber.org/zap"

	"quel-relay-server/modules/common/apperr"
)

// invokeWithFailover - 기본은 1회 호출
// FailoverOnKeyError 가 켜져 있으면 인증/쿼터 에러일 때 다음 키로 한 번만 더 시도
func (inv *Invoker) invokeWithFailover(ctx context.Context, payload Payload) (*Result, error) {
	maxAttempts := 1
	if inv.opts.FailoverOnKeyError && inv.rotator.Size() > 1 {
		maxAttempts = 2
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		cred, err := inv.rotator.Next(ctx)
		if err != nil {
			return nil, ClassifyError(err)
		}

		if attempt > 1 {
			inv.logger.Warn("🔄 [Gemini] Retrying with next API key",
				zap.Int("key_index", cred.Index),
				zap.Int("attempt", attempt),
				zap.String("previous_kind", string(apperr.KindOf(lastErr))))
		}

		start := time.Now()
		resp, err := inv.call(ctx, cred, payload)
		elapsed := time.Since(start)
		inv.metrics.ObserveUpstream(cred.Index, elapsed, string(apperr.KindOf(err)))

		if err == nil {
			inv.logger.Info("✅ [Gemini] Upstream call succeeded",
				zap.Int("key_index", cred.Index),
				zap.Int("attempt", attempt),
				zap.Duration("elapsed", elapsed))
			return &Result{Response: resp, KeyIndex: cred.Index, Attempts: attempt}, nil
		}

		lastErr = err
		inv.logger.Warn("⚠️  [Gemini] Upstream call failed",
			zap.Int("key_index", cred.Index),
			zap.Int("attempt", attempt),
			zap.String("kind", string(apperr.KindOf(err))),
			zap.Duration("elapsed", elapsed))

		if !isKeyError(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}
