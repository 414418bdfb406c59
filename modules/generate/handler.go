package generate

import (
	"net/http"

	"go.uber.org/zap"

	"quel-relay-server/modules/common/requestid"
	"quel-relay-server/modules/common/response"
	"quel-relay-server/modules/common/upload"
)

// Handler - /api/generate
type Handler struct {
	service        *Service
	maxUploadBytes int64
	devMode        bool
	logger         *zap.Logger
}

// NewHandler - devMode 가 켜지면 업스트림 원문을 details 에 노출
func NewHandler(service *Service, maxUploadBytes int64, devMode bool, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:        service,
		maxUploadBytes: maxUploadBytes,
		devMode:        devMode,
		logger:         logger,
	}
}

// HandleGenerate - POST /api/generate (multipart: prompt, image)
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	form, err := upload.ParseGenerateForm(w, r, h.maxUploadBytes)
	if err != nil {
		// 업로드/입력 검증 실패는 업스트림을 부르기 전에 종료
		h.logger.Info("🚫 [Generate] Rejected request",
			zap.String("request_id", requestid.FromContext(r.Context())),
			zap.Error(err))
		status, body := PresentError(err, h.devMode)
		response.WriteJSON(w, status, body)
		return
	}

	outcome := h.service.Generate(r.Context(), form.Prompt, form.Image)
	status, body := Present(outcome, h.devMode)
	response.WriteJSON(w, status, body)
}
