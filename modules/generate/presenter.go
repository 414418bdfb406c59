package generate

import (
	"net/http"
	"strings"

	"quel-relay-server/modules/common/apperr"
)

// ImageResponse - 200 이미지 응답
type ImageResponse struct {
	ImageURL string  `json:"imageUrl"`
	Text     *string `json:"text"`
}

// TextResponse - 200 텍스트 응답
type TextResponse struct {
	Text string `json:"text"`
}

// MessageResponse - 200 빈 결과 응답
type MessageResponse struct {
	Message string        `json:"message"`
	Details *EmptyDetails `json:"details,omitempty"`
}

// EmptyDetails - 개발 모드 전용 진단 정보
type EmptyDetails struct {
	Diagnostic string        `json:"diagnostic,omitempty"`
	Parts      []PartSummary `json:"parts,omitempty"`
}

// ErrorResponse - 에러 응답
type ErrorResponse struct {
	Error   string        `json:"error"`
	Details *ErrorDetails `json:"details,omitempty"`
}

// ErrorDetails - safetyRatings 는 항상, 나머지는 개발 모드에서만
type ErrorDetails struct {
	SafetyRatings []SafetyRating `json:"safetyRatings,omitempty"`
	Kind          string         `json:"kind,omitempty"`
	Diagnostic    string         `json:"diagnostic,omitempty"`
}

// Present - Outcome 을 HTTP 상태 코드와 JSON 본문으로 변환
func Present(outcome Outcome, devMode bool) (int, any) {
	switch o := outcome.(type) {
	case ImageOutcome:
		return http.StatusOK, ImageResponse{ImageURL: o.DataURI, Text: o.Caption}
	case TextOutcome:
		return http.StatusOK, TextResponse{Text: o.Text}
	case EmptyOutcome:
		body := MessageResponse{Message: o.Reason}
		if devMode && (o.Diagnostic != "" || len(o.Parts) > 0) {
			body.Details = &EmptyDetails{Diagnostic: o.Diagnostic, Parts: o.Parts}
		}
		return http.StatusOK, body
	case ErrorOutcome:
		return errorStatus(o), ErrorResponse{Error: o.Message, Details: errorDetails(o, devMode)}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "unrecognized outcome"}
	}
}

// PresentError - 분류된 에러를 ErrorOutcome 으로 바꿔서 Present
func PresentError(err error, devMode bool) (int, any) {
	return Present(ErrorOutcomeFrom(err), devMode)
}

// ErrorOutcomeFrom - apperr 에러를 ErrorOutcome 으로
// 분류되지 않은 에러는 원문을 Diagnostic 에만 남긴다
func ErrorOutcomeFrom(err error) ErrorOutcome {
	if ae, ok := apperr.As(err); ok {
		diag := ae.Detail
		if diag == "" && ae.Cause != nil {
			diag = ae.Cause.Error()
		}
		return ErrorOutcome{Message: ae.Message, Kind: ae.Kind, Diagnostic: diag}
	}
	return ErrorOutcome{
		Message:    "Internal server error",
		Kind:       apperr.InternalUnexpected,
		Diagnostic: err.Error(),
	}
}

// errorStatus - 분류된 Kind 가 있으면 그 상태 코드
// 응답 분류에서 나온 에러는 "blocked" 포함 여부로 400/500
func errorStatus(o ErrorOutcome) int {
	if o.Kind != "" && o.Kind != apperr.ClassificationFailure {
		return o.Kind.Status()
	}
	if strings.Contains(strings.ToLower(o.Message), "blocked") {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func errorDetails(o ErrorOutcome, devMode bool) *ErrorDetails {
	d := &ErrorDetails{SafetyRatings: o.SafetyRatings}
	if devMode {
		d.Kind = string(o.Kind)
		d.Diagnostic = o.Diagnostic
	}
	if len(d.SafetyRatings) == 0 && d.Kind == "" && d.Diagnostic == "" {
		return nil
	}
	return d
}
