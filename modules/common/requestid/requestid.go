package requestid

import (
	"context"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

// Header - 요청 ID 헤더
const Header = "X-Request-ID"

type ctxKey struct{}

// 클라이언트가 보낸 ID 는 이 형식일 때만 그대로 사용
var validID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// FromContext - 요청 ID 조회 (없으면 빈 문자열)
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}

// WithID - ctx 에 요청 ID 저장
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// Middleware - X-Request-ID 전파, 없으면 uuid 발급
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if !validID.MatchString(id) {
			id = uuid.NewString()
		}
		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
	})
}
