package gemini

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrEmptyPool - API 키가 하나도 없을 때 (시작 시 치명적 에러)
var ErrEmptyPool = errors.New("gemini: credential pool is empty")

// Credential - 로테이션으로 뽑힌 API 키
// 로그에는 Index 만 남기고 Key 는 절대 남기지 않는다
type Credential struct {
	Key   string
	Index int
}

// Rotator - 요청마다 다음 키를 돌려주는 라운드로빈
type Rotator interface {
	Next(ctx context.Context) (Credential, error)
	Size() int
}

// RoundRobin - 프로세스 내 atomic 커서
type RoundRobin struct {
	keys []string
	next atomic.Uint64
}

// NewRoundRobin - 키 목록은 복사해서 보관 (이후 불변)
func NewRoundRobin(keys []string) (*RoundRobin, error) {
	if len(keys) == 0 {
		return nil, ErrEmptyPool
	}
	return &RoundRobin{keys: append([]string(nil), keys...)}, nil
}

// Next - fetch-and-add 한 번으로 읽기와 전진을 같이 처리
func (r *RoundRobin) Next(ctx context.Context) (Credential, error) {
	n := r.next.Add(1)
	return r.at(n - 1), nil
}

func (r *RoundRobin) at(n uint64) Credential {
	i := int(n % uint64(len(r.keys)))
	return Credential{Key: r.keys[i], Index: i}
}

// Size - 풀 크기
func (r *RoundRobin) Size() int {
	return len(r.keys)
}

// Cursor - 다음에 나갈 인덱스
func (r *RoundRobin) Cursor() int {
	return int(r.next.Load() % uint64(len(r.keys)))
}

// RedisRoundRobin - 여러 릴레이 인스턴스가 하나의 커서를 공유 (Redis INCR)
// 커서 정수만 저장하고 요청 데이터는 저장하지 않는다
type RedisRoundRobin struct {
	rdb       redis.Cmdable
	cursorKey string
	local     *RoundRobin
	logger    *zap.Logger
}

// NewRedisRoundRobin - Redis 장애 시에는 로컬 커서로 대체
func NewRedisRoundRobin(rdb redis.Cmdable, cursorKey string, keys []string, logger *zap.Logger) (*RedisRoundRobin, error) {
	local, err := NewRoundRobin(keys)
	if err != nil {
		return nil, err
	}
	if rdb == nil {
		return nil, errors.New("gemini: redis client is required")
	}
	if cursorKey == "" {
		return nil, errors.New("gemini: redis cursor key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRoundRobin{rdb: rdb, cursorKey: cursorKey, local: local, logger: logger}, nil
}

// Next - INCR 결과(1부터 시작)에서 1을 뺀 값이 이번 인덱스
func (r *RedisRoundRobin) Next(ctx context.Context) (Credential, error) {
	n, err := r.rdb.Incr(ctx, r.cursorKey).Result()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Credential{}, ctxErr
		}
		r.logger.Warn("⚠️  [Rotator] Redis cursor unavailable, using local cursor", zap.Error(err))
		return r.local.Next(ctx)
	}

	size := int64(len(r.local.keys))
	i := (n - 1) % size
	if i < 0 {
		i += size
	}
	return r.local.at(uint64(i)), nil
}

// Size - 풀 크기
func (r *RedisRoundRobin) Size() int {
	return r.local.Size()
}
