package generate

import (
	"google.golang.org/genai"

	"quel-relay-server/modules/common/apperr"
	"quel-relay-server/modules/common/upload"
)

// Payload - 업스트림으로 보낼 요청 (사용자 content 하나)
type Payload struct {
	parts []*genai.Part
}

// BuildPayload - 프롬프트 텍스트 파트 + (있으면) 이미지 인라인 파트
// 크기/빈 값 검증은 업로드 단계에서 끝났다고 본다
func BuildPayload(prompt string, img *upload.Image) (*Payload, error) {
	parts := []*genai.Part{genai.NewPartFromText(prompt)}

	if img != nil {
		if !upload.IsImageMIME(img.MIMEType) {
			return nil, apperr.New(apperr.InvalidInput, "Uploaded file must be an image")
		}
		parts = append(parts, genai.NewPartFromBytes(img.Bytes, img.MIMEType))
	}

	return &Payload{parts: parts}, nil
}

// Contents - GenerateContent 에 넘길 contents
func (p *Payload) Contents() []*genai.Content {
	return []*genai.Content{genai.NewContentFromParts(p.parts, genai.RoleUser)}
}

// Config - 텍스트와 이미지 응답을 모두 요청
func (p *Payload) Config() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}
}

// Parts - 파트 개수 (로그용)
func (p *Payload) Parts() int {
	return len(p.parts)
}
