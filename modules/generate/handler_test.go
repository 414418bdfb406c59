package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"quel-relay-server/modules/common/gemini"
	"quel-relay-server/modules/common/metrics"
)

// countingRotator - Next 호출 횟수를 센다
type countingRotator struct {
	inner *gemini.RoundRobin
	calls atomic.Int32
}

func (c *countingRotator) Next(ctx context.Context) (gemini.Credential, error) {
	c.calls.Add(1)
	return c.inner.Next(ctx)
}

func (c *countingRotator) Size() int { return c.inner.Size() }

// scriptedUpstream - 고정 응답을 돌려주고 받은 contents 를 기록
type scriptedUpstream struct {
	mu       sync.Mutex
	resp     *genai.GenerateContentResponse
	err      error
	received [][]*genai.Content
}

func (s *scriptedUpstream) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, contents)
	return s.resp, s.err
}

type testServer struct {
	handler  *Handler
	rotator  *countingRotator
	upstream *scriptedUpstream
}

func newTestServer(t *testing.T, upstream *scriptedUpstream, devMode bool) *testServer {
	t.Helper()
	rr, err := gemini.NewRoundRobin([]string{"key-one", "key-two"})
	require.NoError(t, err)
	rot := &countingRotator{inner: rr}

	factory := func(ctx context.Context, apiKey string) (gemini.ContentGenerator, error) {
		return upstream, nil
	}
	rec := metrics.New(prometheus.NewRegistry())
	inv, err := gemini.NewInvoker(rot, factory, gemini.Options{Model: "gemini-test", Timeout: time.Second}, zap.NewNop(), rec)
	require.NoError(t, err)

	svc := NewService(inv, zap.NewNop(), rec)
	return &testServer{
		handler:  NewHandler(svc, 10<<20, devMode, zap.NewNop()),
		rotator:  rot,
		upstream: upstream,
	}
}

func multipartBody(t *testing.T, prompt string, image []byte, mime string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("prompt", prompt))
	if image != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="image"; filename="in.png"`)
		h.Set("Content-Type", mime)
		pw, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = pw.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func (s *testServer) post(t *testing.T, prompt string, image []byte, mime string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	body, contentType := multipartBody(t, prompt, image, mime)
	req := httptest.NewRequest(http.MethodPost, "/api/generate", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	s.handler.HandleGenerate(rec, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	return rec, decoded
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonStop,
			Content:      genai.NewContentFromText(text, genai.RoleModel),
		}},
	}
}

func TestHandleGenerateTextOnly(t *testing.T) {
	s := newTestServer(t, &scriptedUpstream{resp: textResponse("Here is...")}, false)

	rec, body := s.post(t, "Add sunglasses", nil, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"text": "Here is..."}, body)
	assert.Equal(t, int32(1), s.rotator.calls.Load())

	require.Len(t, s.upstream.received, 1)
	contents := s.upstream.received[0]
	require.Len(t, contents, 1)
	require.Len(t, contents[0].Parts, 1)
	assert.Equal(t, "Add sunglasses", contents[0].Parts[0].Text)
}

func TestHandleGenerateWithImage(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonStop,
			Content: genai.NewContentFromParts([]*genai.Part{
				genai.NewPartFromText("done"),
				genai.NewPartFromBytes([]byte("out"), "image/png"),
			}, genai.RoleModel),
		}},
	}
	s := newTestServer(t, &scriptedUpstream{resp: resp}, false)

	rec, body := s.post(t, "make it blue", png, "image/png")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "data:image/png;base64,b3V0", body["imageUrl"])
	assert.Equal(t, "done", body["text"])

	parts := s.upstream.received[0][0].Parts
	require.Len(t, parts, 2)
	assert.Equal(t, png, parts[1].InlineData.Data)
}

func TestHandleGenerateImageWithoutCaptionHasNullText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: genai.NewContentFromParts([]*genai.Part{genai.NewPartFromBytes([]byte("out"), "image/webp")}, genai.RoleModel),
		}},
	}
	s := newTestServer(t, &scriptedUpstream{resp: resp}, false)

	_, body := s.post(t, "p", nil, "")
	text, present := body["text"]
	assert.True(t, present)
	assert.Nil(t, text)
}

func TestHandleGenerateEmptyPrompt(t *testing.T) {
	s := newTestServer(t, &scriptedUpstream{resp: textResponse("unused")}, false)

	rec, body := s.post(t, "   ", nil, "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Text prompt is required and must be a non-empty string", body["error"])
	assert.Equal(t, int32(0), s.rotator.calls.Load())
	assert.Empty(t, s.upstream.received)
}

func TestHandleGenerateOversizedUpload(t *testing.T) {
	s := newTestServer(t, &scriptedUpstream{resp: textResponse("unused")}, false)
	big := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 12<<20)...)

	rec, body := s.post(t, "p", big, "image/png")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, body["error"])
	assert.Equal(t, int32(0), s.rotator.calls.Load())
}

func TestHandleGenerateNonImageUpload(t *testing.T) {
	s := newTestServer(t, &scriptedUpstream{resp: textResponse("unused")}, false)

	rec, _ := s.post(t, "p", []byte("plain text"), "text/plain")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, int32(0), s.rotator.calls.Load())
}

func TestHandleGeneratePromptBlocked(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		PromptFeedback: &genai.GenerateContentResponsePromptFeedback{
			BlockReason: genai.BlockedReasonSafety,
			SafetyRatings: []*genai.SafetyRating{
				{Category: genai.HarmCategoryDangerousContent, Probability: genai.HarmProbabilityHigh, Blocked: true},
			},
		},
	}
	s := newTestServer(t, &scriptedUpstream{resp: resp}, false)

	rec, body := s.post(t, "something bad", nil, "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "blocked: SAFETY", body["error"])
	details, ok := body["details"].(map[string]any)
	require.True(t, ok)
	ratings, ok := details["safetyRatings"].([]any)
	require.True(t, ok)
	require.Len(t, ratings, 1)
	assert.Equal(t, "HARM_CATEGORY_DANGEROUS_CONTENT", ratings[0].(map[string]any)["category"])
}

func TestHandleGenerateUpstreamQuota(t *testing.T) {
	upstream := &scriptedUpstream{err: genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED", Message: "Quota exceeded for key"}}

	s := newTestServer(t, upstream, false)
	rec, body := s.post(t, "p", nil, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotContains(t, body["error"], "Quota exceeded for key")
	assert.Nil(t, body["details"])

	dev := newTestServer(t, upstream, true)
	_, body = dev.post(t, "p", nil, "")
	details, ok := body["details"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, details["diagnostic"], "Quota exceeded for key")
}

func TestHandleGenerateEmptyResponse(t *testing.T) {
	s := newTestServer(t, &scriptedUpstream{resp: &genai.GenerateContentResponse{}}, false)

	rec, body := s.post(t, "p", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"message": "no content"}, body)
}

func TestHandleGenerateNilResponse(t *testing.T) {
	s := newTestServer(t, &scriptedUpstream{}, false)

	rec, body := s.post(t, "p", nil, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "no response object", body["error"])
}

func TestHandleGenerateRotatesKeysPerRequest(t *testing.T) {
	var mu sync.Mutex
	var keys []string
	rr, _ := gemini.NewRoundRobin([]string{"key-one", "key-two"})
	factory := func(ctx context.Context, apiKey string) (gemini.ContentGenerator, error) {
		return generatorFunc(func() (*genai.GenerateContentResponse, error) {
			mu.Lock()
			keys = append(keys, apiKey)
			mu.Unlock()
			return textResponse("ok"), nil
		}), nil
	}
	inv, err := gemini.NewInvoker(rr, factory, gemini.Options{Model: "m", Timeout: time.Second}, nil, nil)
	require.NoError(t, err)
	h := NewHandler(NewService(inv, nil, nil), 10<<20, false, nil)
	s := &testServer{handler: h}

	for i := 0; i < 4; i++ {
		rec, _ := s.post(t, "p", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, []string{"key-one", "key-two", "key-one", "key-two"}, keys)
}

type generatorFunc func() (*genai.GenerateContentResponse, error)

func (f generatorFunc) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return f()
}
