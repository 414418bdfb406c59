package upload

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"quel-relay-server/modules/common/apperr"
)

const (
	// PromptField / ImageField - multipart 필드명
	PromptField = "prompt"
	ImageField  = "image"

	// 프롬프트와 multipart 헤더용 여유분
	formOverhead = 1 << 20

	// MsgPromptRequired - 프롬프트 누락 시 사용자 메시지
	MsgPromptRequired = "Text prompt is required and must be a non-empty string"
)

// Image - 요청 범위에서만 쓰는 업로드 이미지 버퍼
type Image struct {
	Bytes    []byte
	MIMEType string
	Filename string
}

// Form - /api/generate 요청 폼
type Form struct {
	Prompt string
	Image  *Image
}

// ParseGenerateForm - multipart 폼 파싱 + 검증
// 크기/개수/타입 위반은 UploadRejected, 프롬프트 누락과 잘못된 폼은 InvalidInput
func ParseGenerateForm(w http.ResponseWriter, r *http.Request, maxBytes int64) (*Form, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+formOverhead)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return nil, apperr.Wrap(apperr.UploadRejected, sizeMessage(maxBytes), err)
		}
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return nil, apperr.Wrap(apperr.InvalidInput, "Request must be multipart/form-data", err)
		}
		return nil, apperr.Wrap(apperr.InvalidInput, "Malformed multipart form", err)
	}
	defer r.MultipartForm.RemoveAll()

	form := &Form{Prompt: strings.TrimSpace(firstValue(r.MultipartForm.Value[PromptField]))}

	files := r.MultipartForm.File[ImageField]
	switch {
	case len(files) > 1:
		return nil, apperr.New(apperr.UploadRejected, "Only one image file may be uploaded")
	case len(files) == 1:
		img, err := readImage(files[0], maxBytes)
		if err != nil {
			return nil, err
		}
		form.Image = img
	}

	// 파일 검증이 끝난 뒤 프롬프트 검증
	if form.Prompt == "" {
		return nil, apperr.New(apperr.InvalidInput, MsgPromptRequired)
	}
	return form, nil
}

func readImage(fh *multipart.FileHeader, maxBytes int64) (*Image, error) {
	if fh.Size > maxBytes {
		return nil, apperr.New(apperr.UploadRejected, sizeMessage(maxBytes))
	}

	f, err := fh.Open()
	if err != nil {
		return nil, apperr.Wrap(apperr.UploadRejected, "Could not read uploaded image", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, apperr.Wrap(apperr.UploadRejected, "Could not read uploaded image", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, apperr.New(apperr.UploadRejected, sizeMessage(maxBytes))
	}
	if len(data) == 0 {
		return nil, apperr.New(apperr.UploadRejected, "Uploaded image is empty")
	}

	mimeType, err := resolveMIME(fh.Header.Get("Content-Type"), data)
	if err != nil {
		return nil, err
	}
	return &Image{Bytes: data, MIMEType: mimeType, Filename: fh.Filename}, nil
}

// resolveMIME - 선언된 타입과 스니핑 결과 둘 다 image/* 여야 함
// 선언이 없거나 octet-stream 이면 스니핑 결과를 사용
func resolveMIME(declared string, data []byte) (string, error) {
	sniffed := mediaType(http.DetectContentType(data))
	declared = mediaType(declared)

	if declared == "" || declared == "application/octet-stream" {
		if !IsImageMIME(sniffed) {
			return "", apperr.New(apperr.UploadRejected, "Only image files are allowed")
		}
		return sniffed, nil
	}

	if !IsImageMIME(declared) {
		return "", apperr.New(apperr.UploadRejected, "Only image files are allowed")
	}
	// 스니핑이 판별 못한 포맷(heic 등)은 선언값을 신뢰
	if sniffed != "application/octet-stream" && !IsImageMIME(sniffed) {
		return "", apperr.New(apperr.UploadRejected, "Uploaded file content is not an image")
	}
	return declared, nil
}

// IsImageMIME - image/ 로 시작하는지
func IsImageMIME(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(mimeType), "image/")
}

func mediaType(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return strings.ToLower(v)
	}
	return mt
}

func firstValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func sizeMessage(maxBytes int64) string {
	return fmt.Sprintf("Image exceeds the %d MB upload limit", maxBytes>>20)
}
