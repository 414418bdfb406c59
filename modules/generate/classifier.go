package generate

import (
	"fmt"
	"strings"

	"google.golang.org/genai"

	"quel-relay-server/modules/common/apperr"
	"quel-relay-server/modules/common/upload"
	"quel-relay-server/modules/common/utils"
)

// ClassifyGenai - genai 응답 변환과 분류를 같은 panic 가드 안에서 실행
func ClassifyGenai(resp *genai.GenerateContentResponse) (out Outcome) {
	defer recoverInto(&out)
	return classify(FromGenai(resp))
}

// Classify - RawResult 를 정규화된 결과 하나로 분류
// 항상 Outcome 을 돌려주며 panic 을 밖으로 내보내지 않는다
func Classify(raw *RawResult) (out Outcome) {
	defer recoverInto(&out)
	return classify(raw)
}

func recoverInto(out *Outcome) {
	if r := recover(); r != nil {
		*out = ErrorOutcome{
			Message:    fmt.Sprintf("failed to process response: %v", r),
			Kind:       apperr.ClassificationFailure,
			Diagnostic: fmt.Sprint(r),
		}
	}
}

// classify - 위에서부터 처음 맞는 규칙이 결과를 정한다
func classify(raw *RawResult) Outcome {
	if raw == nil {
		return ErrorOutcome{Message: "no response object"}
	}

	if pf := raw.PromptFeedback; pf != nil && pf.BlockReason != "" {
		ratings := pf.SafetyRatings
		if len(raw.Candidates) > 0 && len(raw.Candidates[0].SafetyRatings) > 0 {
			ratings = raw.Candidates[0].SafetyRatings
		}
		return ErrorOutcome{
			Message:       "blocked: " + pf.BlockReason,
			Kind:          apperr.UpstreamBlocked,
			SafetyRatings: ratings,
		}
	}

	if len(raw.Candidates) == 0 {
		if raw.FinishReason.Abnormal() {
			return TextOutcome{Text: fmt.Sprintf("generation stopped due to %s", raw.FinishReason)}
		}
		return EmptyOutcome{Reason: "no content"}
	}

	// 후보는 첫 번째만 본다
	cand := raw.Candidates[0]

	if cand.FinishReason.Abnormal() {
		switch {
		case cand.FinishReason.IsSafety():
			return ErrorOutcome{Message: "stopped due to safety", SafetyRatings: cand.SafetyRatings}
		case cand.FinishReason.IsRecitation():
			return ErrorOutcome{Message: "stopped due to potential recitation"}
		default:
			return TextOutcome{Text: fmt.Sprintf("generation stopped unexpectedly (%s); partial content may be missing", cand.FinishReason)}
		}
	}

	if len(cand.Parts) == 0 {
		diag := "candidate content is empty"
		if !cand.HasContent {
			diag = "candidate has no content"
		}
		return EmptyOutcome{Reason: "candidate returned no content parts", Diagnostic: diag}
	}

	return scanParts(cand.Parts)
}

// scanParts - 이미지는 마지막 것을 사용, 텍스트는 구분자 없이 이어붙임
func scanParts(parts []Part) Outcome {
	var (
		image   *BlobPart
		text    strings.Builder
		summary = make([]PartSummary, 0, len(parts))
	)

	for _, p := range parts {
		switch v := p.(type) {
		case TextPart:
			text.WriteString(v.Text)
			summary = append(summary, PartSummary{Type: "text", Size: len(v.Text)})
		case BlobPart:
			summary = append(summary, PartSummary{Type: "inlineData", MIMEType: v.MIMEType, Size: len(v.Data)})
			if upload.IsImageMIME(v.MIMEType) && len(v.Data) > 0 {
				blob := v
				image = &blob
			}
		case OtherPart:
			summary = append(summary, PartSummary{Type: v.Kind})
		default:
			panic(fmt.Sprintf("unhandled part type %T", p))
		}
	}

	if image != nil {
		out := ImageOutcome{DataURI: utils.ToDataURI(image.MIMEType, image.Data)}
		if text.Len() > 0 {
			caption := text.String()
			out.Caption = &caption
		}
		return out
	}
	if text.Len() > 0 {
		return TextOutcome{Text: text.String()}
	}
	return EmptyOutcome{Reason: "no usable text or image data", Parts: summary}
}
