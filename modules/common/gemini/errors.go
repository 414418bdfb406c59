package gemini

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"quel-relay-server/modules/common/apperr"
)

// 사용자에게 보여줄 문구 (업스트림 원문은 Detail 로만 보관)
const (
	msgAuthFailure = "Upstream credential was rejected"
	msgQuota       = "Upstream quota exceeded, please retry later"
	msgBlocked     = "Request blocked by upstream safety filters"
	msgUnavailable = "Upstream generation service is unavailable"
	msgTimeout     = "Upstream generation timed out"
	msgCancelled   = "Request was cancelled before the upstream call completed"
)

// ClassifyError - SDK/전송 에러를 에러 분류로 변환
// 이미 분류된 에러는 그대로 돌려준다
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if ae, ok := apperr.As(err); ok {
		return ae
	}

	detail := err.Error()

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(apperr.UpstreamTimeout, msgTimeout, err).WithDetail(detail)
	case errors.Is(err, context.Canceled):
		return apperr.Wrap(apperr.UpstreamUnavailable, msgCancelled, err).WithDetail(detail)
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		kind := kindForAPIError(apiErr.Code, apiErr.Status, apiErr.Message, apiErr.Details)
		return apperr.Wrap(kind, messageFor(kind), err).WithDetail(detail)
	}

	kind := kindForText(detail)
	return apperr.Wrap(kind, messageFor(kind), err).WithDetail(detail)
}

func kindForAPIError(code int, status, message string, details []map[string]any) apperr.Kind {
	status = strings.ToUpper(status)
	lower := strings.ToLower(message)

	// ErrorInfo.reason 이 있으면 문구보다 우선
	switch detailReason(details) {
	case "API_KEY_INVALID", "API_KEY_EXPIRED", "API_KEY_SERVICE_BLOCKED", "PERMISSION_DENIED", "SERVICE_DISABLED":
		return apperr.UpstreamAuthFailure
	case "RATE_LIMIT_EXCEEDED", "RESOURCE_EXHAUSTED":
		return apperr.UpstreamQuotaExceeded
	}

	switch {
	// Gemini 는 잘못된 키를 400 INVALID_ARGUMENT(API_KEY_INVALID) 로 돌려준다
	case code == http.StatusUnauthorized || code == http.StatusForbidden ||
		status == "UNAUTHENTICATED" || status == "PERMISSION_DENIED" || isAuthText(lower):
		return apperr.UpstreamAuthFailure
	case code == http.StatusTooManyRequests || status == "RESOURCE_EXHAUSTED" || isQuotaText(lower):
		return apperr.UpstreamQuotaExceeded
	case code == http.StatusBadRequest && isBlockedText(lower):
		return apperr.UpstreamBlocked
	case code == http.StatusGatewayTimeout || status == "DEADLINE_EXCEEDED":
		return apperr.UpstreamTimeout
	default:
		return apperr.UpstreamUnavailable
	}
}

// detailReason - google.rpc.ErrorInfo 의 reason 값 (없으면 "")
func detailReason(details []map[string]any) string {
	for _, d := range details {
		if t, _ := d["@type"].(string); t != "" && !strings.HasSuffix(t, "google.rpc.ErrorInfo") {
			continue
		}
		if reason, ok := d["reason"].(string); ok && reason != "" {
			return strings.ToUpper(reason)
		}
	}
	return ""
}

// kindForText - APIError 가 아닌 에러는 문구로 추정 (429 판별 휴리스틱과 같은 방식)
func kindForText(text string) apperr.Kind {
	lower := strings.ToLower(text)
	switch {
	case isAuthText(lower) || strings.Contains(lower, "401") || strings.Contains(lower, "unauthenticated"):
		return apperr.UpstreamAuthFailure
	case strings.Contains(lower, "429") || isQuotaText(lower):
		return apperr.UpstreamQuotaExceeded
	case isBlockedText(lower):
		return apperr.UpstreamBlocked
	case strings.Contains(lower, "deadline exceeded") || strings.Contains(lower, "timeout"):
		return apperr.UpstreamTimeout
	default:
		return apperr.UpstreamUnavailable
	}
}

func isAuthText(lower string) bool {
	return strings.Contains(lower, "api_key_invalid") ||
		strings.Contains(lower, "api key not valid") ||
		strings.Contains(lower, "permission_denied") ||
		strings.Contains(lower, "permission denied")
}

func isQuotaText(lower string) bool {
	return strings.Contains(lower, "resource_exhausted") ||
		strings.Contains(lower, "quota") ||
		strings.Contains(lower, "rate limit")
}

func isBlockedText(lower string) bool {
	return strings.Contains(lower, "safety") || strings.Contains(lower, "blocked")
}

func messageFor(kind apperr.Kind) string {
	switch kind {
	case apperr.UpstreamAuthFailure:
		return msgAuthFailure
	case apperr.UpstreamQuotaExceeded:
		return msgQuota
	case apperr.UpstreamBlocked:
		return msgBlocked
	case apperr.UpstreamTimeout:
		return msgTimeout
	default:
		return msgUnavailable
	}
}

// isKeyError - 다른 키로 바꾸면 해결될 수 있는 에러
func isKeyError(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.UpstreamAuthFailure, apperr.UpstreamQuotaExceeded:
		return true
	}
	return false
}
