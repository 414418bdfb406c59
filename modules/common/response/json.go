package response

import (
	"encoding/json"
	"net/http"
)

// ErrorBody - 라우팅/일반 에러 응답
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteJSON - JSON 응답 작성
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	// 헤더를 이미 보냈으므로 인코딩 실패는 무시
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError - {error: <status text>, message} 응답
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorBody{
		Error:   http.StatusText(status),
		Message: message,
	})
}
