package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind - 릴레이 전체에서 쓰는 에러 분류
type Kind string

const (
	InvalidInput          Kind = "INVALID_INPUT"
	UploadRejected        Kind = "UPLOAD_REJECTED"
	UpstreamAuthFailure   Kind = "UPSTREAM_AUTH_FAILURE"
	UpstreamQuotaExceeded Kind = "UPSTREAM_QUOTA_EXCEEDED"
	UpstreamBlocked       Kind = "UPSTREAM_BLOCKED"
	UpstreamUnavailable   Kind = "UPSTREAM_UNAVAILABLE"
	UpstreamTimeout       Kind = "UPSTREAM_TIMEOUT"
	ClassificationFailure Kind = "CLASSIFICATION_FAILURE"
	InternalUnexpected    Kind = "INTERNAL_UNEXPECTED"
)

// Status - Kind 별 HTTP 상태 코드
func (k Kind) Status() int {
	switch k {
	case InvalidInput, UploadRejected, UpstreamBlocked:
		return http.StatusBadRequest
	case UpstreamAuthFailure:
		return http.StatusUnauthorized
	case UpstreamQuotaExceeded:
		return http.StatusTooManyRequests
	case UpstreamUnavailable:
		return http.StatusBadGateway
	case UpstreamTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// IsUpstream - Gemini 호출 단계에서 발생한 에러인지 여부
func (k Kind) IsUpstream() bool {
	switch k {
	case UpstreamAuthFailure, UpstreamQuotaExceeded, UpstreamBlocked, UpstreamUnavailable, UpstreamTimeout:
		return true
	}
	return false
}

// Error - 분류된 에러
// Message 는 사용자에게 노출 가능한 문구, Detail 은 업스트림 원문 (개발 모드에서만 노출)
type Error struct {
	Kind    Kind
	Message string
	Detail  string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Status - HTTP 상태 코드
func (e *Error) Status() int {
	return e.Kind.Status()
}

// WithDetail - 진단용 원문 메시지 설정
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// New - 새 에러 생성
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap - cause 를 감싼 에러 생성
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// As - 체인에서 *Error 추출
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf - 에러 분류 조회 (분류되지 않은 에러는 InternalUnexpected)
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return InternalUnexpected
}

// StatusOf - 에러에 해당하는 HTTP 상태 코드
func StatusOf(err error) int {
	return KindOf(err).Status()
}
