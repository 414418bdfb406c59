package gemini

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"quel-relay-server/modules/common/metrics"
)

// ContentGenerator - genai.Models 의 GenerateContent 와 같은 서명
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// ClientFactory - API 키 하나당 클라이언트 생성
type ClientFactory func(ctx context.Context, apiKey string) (ContentGenerator, error)

// NewGenaiFactory - Gemini API 백엔드용 genai 클라이언트 팩토리
func NewGenaiFactory() ClientFactory {
	return func(ctx context.Context, apiKey string) (ContentGenerator, error) {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, err
		}
		return client.Models, nil
	}
}

// Payload - 업스트림으로 보낼 요청 본문
type Payload interface {
	Contents() []*genai.Content
	Config() *genai.GenerateContentConfig
}

// Options - Invoker 설정
type Options struct {
	Model              string
	Timeout            time.Duration
	FailoverOnKeyError bool
}

// Result - 업스트림 응답과 사용된 키 정보
type Result struct {
	Response *genai.GenerateContentResponse
	KeyIndex int
	Attempts int
}

// Invoker - 키 로테이션 + 타임아웃 + 에러 분류를 묶은 업스트림 호출기
// 프로세스 시작 시 한 번 만들고 핸들러들이 공유한다
type Invoker struct {
	rotator Rotator
	factory ClientFactory
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Recorder

	slots []clientSlot
}

// clientSlot - 키 하나의 캐시된 클라이언트 (생성 중에는 이 슬롯만 잠근다)
type clientSlot struct {
	mu sync.Mutex
	c  ContentGenerator
}

// NewInvoker - rotator/factory 는 필수, metrics 는 nil 허용
func NewInvoker(rotator Rotator, factory ClientFactory, opts Options, logger *zap.Logger, rec *metrics.Recorder) (*Invoker, error) {
	if rotator == nil || rotator.Size() == 0 {
		return nil, ErrEmptyPool
	}
	if factory == nil {
		return nil, fmt.Errorf("gemini: client factory is required")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("gemini: model is required")
	}
	if opts.Timeout <= 0 {
		return nil, fmt.Errorf("gemini: timeout must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Invoker{
		rotator: rotator,
		factory: factory,
		opts:    opts,
		logger:  logger,
		metrics: rec,
		slots:   make([]clientSlot, rotator.Size()),
	}, nil
}

// Model - 설정된 모델 ID (진단용)
func (inv *Invoker) Model() string {
	return inv.opts.Model
}

// Invoke - 다음 키로 GenerateContent 호출
// 실패는 항상 apperr 분류 에러로 반환된다
func (inv *Invoker) Invoke(ctx context.Context, payload Payload) (*Result, error) {
	return inv.invokeWithFailover(ctx, payload)
}

// call - 한 번의 업스트림 호출 (타임아웃 적용)
func (inv *Invoker) call(ctx context.Context, cred Credential, payload Payload) (*genai.GenerateContentResponse, error) {
	client, err := inv.client(cred)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, inv.opts.Timeout)
	defer cancel()

	resp, err := client.GenerateContent(callCtx, inv.opts.Model, payload.Contents(), payload.Config())
	if err != nil {
		// SDK 가 ctx 에러를 감싸지 않는 경우도 타임아웃으로 본다
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, ClassifyError(fmt.Errorf("%w: %v", context.DeadlineExceeded, err))
		}
		return nil, ClassifyError(err)
	}
	return resp, nil
}

// client - 키 인덱스별 클라이언트 캐시
// 생성 실패는 캐시하지 않아 다음 요청에서 다시 시도한다
func (inv *Invoker) client(cred Credential) (ContentGenerator, error) {
	if cred.Index < 0 || cred.Index >= len(inv.slots) {
		return nil, ClassifyError(fmt.Errorf("gemini: key index %d out of range", cred.Index))
	}
	slot := &inv.slots[cred.Index]
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.c != nil {
		return slot.c, nil
	}

	// 캐시된 클라이언트는 요청보다 오래 살기 때문에 요청 ctx 를 쓰지 않는다
	c, err := inv.factory(context.Background(), cred.Key)
	if err != nil {
		inv.logger.Error("❌ [Gemini] Failed to create client", zap.Int("key_index", cred.Index), zap.Error(err))
		return nil, ClassifyError(err)
	}
	slot.c = c
	return c, nil
}
