package utils

import (
	"encoding/base64"
	"strings"
)

// ConvertImageToBase64 - 이미지 바이너리를 base64로 변환
func ConvertImageToBase64(imageData []byte) string {
	return base64.StdEncoding.EncodeToString(imageData)
}

// ToDataURI - "data:<mime>;base64,<data>" 형태로 변환
func ToDataURI(mimeType string, imageData []byte) string {
	var b strings.Builder
	encoded := ConvertImageToBase64(imageData)
	b.Grow(len("data:;base64,") + len(mimeType) + len(encoded))
	b.WriteString("data:")
	b.WriteString(mimeType)
	b.WriteString(";base64,")
	b.WriteString(encoded)
	return b.String()
}
