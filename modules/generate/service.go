package generate

import (
	"context"
	"time"

	"go.uber.org/zap"

	"quel-relay-server/modules/common/apperr"
	"quel-relay-server/modules/common/gemini"
	"quel-relay-server/modules/common/metrics"
	"quel-relay-server/modules/common/requestid"
	"quel-relay-server/modules/common/upload"
)

// Generator - 업스트림 호출기 (gemini.Invoker)
type Generator interface {
	Invoke(ctx context.Context, payload gemini.Payload) (*gemini.Result, error)
}

// Service - build → invoke → classify
type Service struct {
	generator Generator
	logger    *zap.Logger
	metrics   *metrics.Recorder
}

// NewService - metrics 는 nil 허용
func NewService(generator Generator, logger *zap.Logger, rec *metrics.Recorder) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{generator: generator, logger: logger, metrics: rec}
}

// Generate - 항상 Outcome 하나를 돌려준다 (에러도 ErrorOutcome 으로)
func (s *Service) Generate(ctx context.Context, prompt string, img *upload.Image) Outcome {
	start := time.Now()
	log := s.logger.With(zap.String("request_id", requestid.FromContext(ctx)))

	outcome, keyIndex := s.generate(ctx, prompt, img, log)

	fields := []zap.Field{
		zap.String("outcome", string(outcome.Type())),
		zap.Duration("latency", time.Since(start)),
	}
	if keyIndex >= 0 {
		fields = append(fields, zap.Int("key_index", keyIndex))
	}
	if e, ok := outcome.(ErrorOutcome); ok {
		fields = append(fields, zap.String("kind", string(e.Kind)), zap.String("message", e.Message))
		log.Warn("⚠️  [Generate] Finished with error outcome", fields...)
	} else {
		log.Info("✅ [Generate] Finished", fields...)
	}

	s.metrics.ObserveOutcome(string(outcome.Type()))
	return outcome
}

func (s *Service) generate(ctx context.Context, prompt string, img *upload.Image, log *zap.Logger) (Outcome, int) {
	payload, err := BuildPayload(prompt, img)
	if err != nil {
		return ErrorOutcomeFrom(err), -1
	}

	if img != nil {
		log.Info("🎨 [Generate] Calling upstream",
			zap.Int("prompt_length", len(prompt)),
			zap.String("image_mime", img.MIMEType),
			zap.Int("image_bytes", len(img.Bytes)))
	} else {
		log.Info("🎨 [Generate] Calling upstream", zap.Int("prompt_length", len(prompt)))
	}

	result, err := s.generator.Invoke(ctx, payload)
	if err != nil {
		return ErrorOutcomeFrom(gemini.ClassifyError(err)), -1
	}
	if result == nil {
		return Classify(nil), -1
	}

	outcome := ClassifyGenai(result.Response)
	if e, ok := outcome.(ErrorOutcome); ok && e.Kind == apperr.ClassificationFailure {
		log.Error("❌ [Generate] Failed to classify upstream response", zap.String("cause", e.Diagnostic))
	}
	return outcome, result.KeyIndex
}
