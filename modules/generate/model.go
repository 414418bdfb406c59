package generate

import (
	"google.golang.org/genai"

	"quel-relay-server/modules/common/apperr"
)

// FinishReason - 업스트림이 알려주는 생성 종료 사유
type FinishReason string

const (
	FinishReasonStop        FinishReason = FinishReason(genai.FinishReasonStop)
	FinishReasonSafety      FinishReason = FinishReason(genai.FinishReasonSafety)
	FinishReasonRecitation  FinishReason = FinishReason(genai.FinishReasonRecitation)
	FinishReasonUnspecified FinishReason = FinishReason(genai.FinishReasonUnspecified)

	FinishReasonBlocklist              FinishReason = "BLOCKLIST"
	FinishReasonProhibitedContent      FinishReason = "PROHIBITED_CONTENT"
	FinishReasonSPII                   FinishReason = "SPII"
	FinishReasonImageSafety            FinishReason = "IMAGE_SAFETY"
	FinishReasonImageProhibitedContent FinishReason = "IMAGE_PROHIBITED_CONTENT"
	FinishReasonImageRecitation        FinishReason = "IMAGE_RECITATION"
)

// IsSafety - 안전 필터 계열 종료 사유 (텍스트/이미지 모두)
func (f FinishReason) IsSafety() bool {
	switch f {
	case FinishReasonSafety, FinishReasonBlocklist, FinishReasonProhibitedContent, FinishReasonSPII,
		FinishReasonImageSafety, FinishReasonImageProhibitedContent:
		return true
	}
	return false
}

// IsRecitation - 인용(저작물 재현) 계열 종료 사유
func (f FinishReason) IsRecitation() bool {
	return f == FinishReasonRecitation || f == FinishReasonImageRecitation
}

// Abnormal - 값이 있고 정상 종료(STOP)가 아닌 경우
// UNSPECIFIED 는 값이 없는 것으로 취급
func (f FinishReason) Abnormal() bool {
	return f != "" && f != FinishReasonStop && f != FinishReasonUnspecified
}

// SafetyRating - 안전성 평가 한 건
type SafetyRating struct {
	Category    string `json:"category"`
	Probability string `json:"probability"`
	Blocked     bool   `json:"blocked,omitempty"`
}

// PromptFeedback - 요청 자체에 대한 차단 정보
type PromptFeedback struct {
	BlockReason   string
	SafetyRatings []SafetyRating
}

// RawResult - SDK 와 분리된 업스트림 응답
type RawResult struct {
	PromptFeedback *PromptFeedback
	// 후보가 없을 때만 의미 있음
	FinishReason FinishReason
	Candidates   []Candidate
}

// Candidate - 후보 응답 하나
type Candidate struct {
	FinishReason  FinishReason
	SafetyRatings []SafetyRating
	Parts         []Part
	HasContent    bool
}

// Part - TextPart, BlobPart, OtherPart 중 하나
type Part interface {
	isPart()
}

// TextPart - 텍스트
type TextPart struct {
	Text string
}

// BlobPart - 인라인 바이너리
type BlobPart struct {
	MIMEType string
	Data     []byte
}

// OtherPart - 이 릴레이가 쓰지 않는 파트 (함수 호출, 파일 참조, thought 등)
type OtherPart struct {
	Kind string
}

func (TextPart) isPart()  {}
func (BlobPart) isPart()  {}
func (OtherPart) isPart() {}

// OutcomeType - 정규화된 결과 타입
type OutcomeType string

const (
	OutcomeImage OutcomeType = "image"
	OutcomeText  OutcomeType = "text"
	OutcomeEmpty OutcomeType = "empty"
	OutcomeError OutcomeType = "error"
)

// Outcome - ImageOutcome, TextOutcome, EmptyOutcome, ErrorOutcome 중 하나
// 분류기에서 한 번 만들어지고 이후 변경되지 않는다
type Outcome interface {
	Type() OutcomeType
	isOutcome()
}

// ImageOutcome - 이미지 (+ 선택적 캡션)
type ImageOutcome struct {
	DataURI string
	Caption *string
}

// TextOutcome - 텍스트만
type TextOutcome struct {
	Text string
}

// EmptyOutcome - 쓸 수 있는 내용 없음
type EmptyOutcome struct {
	Reason     string
	Diagnostic string
	Parts      []PartSummary
}

// ErrorOutcome - 에러
// Kind 가 비어 있으면 응답 분류 단계에서 만들어진 에러
type ErrorOutcome struct {
	Message       string
	Kind          apperr.Kind
	SafetyRatings []SafetyRating
	Diagnostic    string
}

func (ImageOutcome) Type() OutcomeType { return OutcomeImage }
func (TextOutcome) Type() OutcomeType  { return OutcomeText }
func (EmptyOutcome) Type() OutcomeType { return OutcomeEmpty }
func (ErrorOutcome) Type() OutcomeType { return OutcomeError }

func (ImageOutcome) isOutcome() {}
func (TextOutcome) isOutcome()  {}
func (EmptyOutcome) isOutcome() {}
func (ErrorOutcome) isOutcome() {}

// PartSummary - 진단용 파트 요약 (바이너리 본문은 싣지 않음)
type PartSummary struct {
	Type     string `json:"type"`
	MIMEType string `json:"mimeType,omitempty"`
	Size     int    `json:"size,omitempty"`
}

// FromGenai - genai 응답을 RawResult 로 변환 (nil 이면 nil)
func FromGenai(resp *genai.GenerateContentResponse) *RawResult {
	if resp == nil {
		return nil
	}

	raw := &RawResult{}
	if pf := resp.PromptFeedback; pf != nil {
		reason := string(pf.BlockReason)
		if pf.BlockReason == genai.BlockedReasonUnspecified {
			reason = ""
		}
		raw.PromptFeedback = &PromptFeedback{
			BlockReason:   reason,
			SafetyRatings: convertRatings(pf.SafetyRatings),
		}
	}

	for _, c := range resp.Candidates {
		if c == nil {
			raw.Candidates = append(raw.Candidates, Candidate{})
			continue
		}
		cand := Candidate{
			FinishReason:  FinishReason(c.FinishReason),
			SafetyRatings: convertRatings(c.SafetyRatings),
		}
		if c.Content != nil {
			cand.HasContent = true
			for _, p := range c.Content.Parts {
				cand.Parts = append(cand.Parts, convertPart(p))
			}
		}
		raw.Candidates = append(raw.Candidates, cand)
	}
	return raw
}

func convertRatings(ratings []*genai.SafetyRating) []SafetyRating {
	if len(ratings) == 0 {
		return nil
	}
	out := make([]SafetyRating, 0, len(ratings))
	for _, r := range ratings {
		if r == nil {
			continue
		}
		out = append(out, SafetyRating{
			Category:    string(r.Category),
			Probability: string(r.Probability),
			Blocked:     r.Blocked,
		})
	}
	return out
}

func convertPart(p *genai.Part) Part {
	switch {
	case p == nil:
		return OtherPart{Kind: "nil"}
	case p.InlineData != nil:
		return BlobPart{MIMEType: p.InlineData.MIMEType, Data: p.InlineData.Data}
	case p.Thought:
		return OtherPart{Kind: "thought"}
	case p.FunctionCall != nil:
		return OtherPart{Kind: "functionCall"}
	case p.FunctionResponse != nil:
		return OtherPart{Kind: "functionResponse"}
	case p.FileData != nil:
		return OtherPart{Kind: "fileData"}
	case p.ExecutableCode != nil:
		return OtherPart{Kind: "executableCode"}
	case p.CodeExecutionResult != nil:
		return OtherPart{Kind: "codeExecutionResult"}
	default:
		return TextPart{Text: p.Text}
	}
}
