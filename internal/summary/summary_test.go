package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/medinotes/internal/model"
)

func testRequest() model.ConsultationRequest {
	return model.ConsultationRequest{
		PatientName: "Jane Doe",
		DateOfVisit: "2024-01-15",
		Notes:       "BP 120/80.\nFollow up in 2 weeks.",
	}
}

func collect(t *testing.T, s Summarizer) ([]string, error) {
	t.Helper()
	var fragments []string
	err := s.Stream(context.Background(), testRequest(), func(f string) error {
		fragments = append(fragments, f)
		return nil
	})
	return fragments, err
}

func TestUserPrompt(t *testing.T) {
	p := UserPrompt(testRequest())
	assert.Contains(t, p, "Patient Name: Jane Doe")
	assert.Contains(t, p, "Date of Visit: 2024-01-15")
	assert.True(t, strings.HasSuffix(p, "Follow up in 2 weeks."))
}

func TestWordsConcatenateBack(t *testing.T) {
	for _, text := range []string{"", "one", "a b", "line\n\nnext ", "  spaced  "} {
		assert.Equal(t, text, strings.Join(Words(text), ""))
	}
}

func TestEchoStreamsDigest(t *testing.T) {
	fragments, err := collect(t, Echo{})
	require.NoError(t, err)
	require.Greater(t, len(fragments), 10)

	doc := strings.Join(fragments, "")
	assert.Equal(t, Digest(testRequest()), doc)
	assert.Contains(t, doc, "- **Patient:** Jane Doe")
	assert.Contains(t, doc, "  - Follow up in 2 weeks.")
	assert.Contains(t, doc, "Dear Jane Doe,")
}

func TestEchoStopsOnEmitError(t *testing.T) {
	boom := errors.New("client gone")
	calls := 0
	err := Echo{}.Stream(context.Background(), testRequest(), func(string) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, ErrEmit)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestEchoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Echo{Delay: time.Millisecond}.Stream(ctx, testRequest(), func(string) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func chunk(content string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"id":      "chatcmpl-1",
		"object":  "chat.completion.chunk",
		"created": 1,
		"model":   "gpt-4o-mini",
		"choices": []map[string]interface{}{
			{"index": 0, "delta": map[string]string{"content": content}},
		},
	})
	return string(b)
}

func fakeOpenAI(t *testing.T, fail *atomic.Bool, parts ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		if fail != nil && fail.Load() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error":{"message":"upstream down","type":"server_error"}}`)
			return
		}

		var body struct {
			Model    string `json:"model"`
			Stream   bool   `json:"stream"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.Stream)
		if assert.Len(t, body.Messages, 2) {
			assert.Equal(t, "system", body.Messages[0].Role)
			assert.Contains(t, body.Messages[1].Content, "Jane Doe")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, p := range parts {
			fmt.Fprintf(w, "data: %s\n\n", chunk(p))
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func TestOpenAIStream(t *testing.T) {
	srv := fakeOpenAI(t, nil, "### Summary", "\n- BP ", "", "normal")
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1"}, nil)
	fragments, err := collect(t, o)
	require.NoError(t, err)
	assert.Equal(t, []string{"### Summary", "\n- BP ", "normal"}, fragments)
}

func TestOpenAIBreakerOpensOnUpstreamFailures(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	srv := fakeOpenAI(t, &fail, "ok")
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{
		APIKey:             "test",
		BaseURL:            srv.URL + "/v1",
		BreakerMaxFailures: 2,
		BreakerTimeout:     time.Hour,
	}, nil)

	for i := 0; i < 2; i++ {
		_, err := collect(t, o)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}

	fail.Store(false)
	_, err := collect(t, o)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestOpenAIClientDisconnectDoesNotTripBreaker(t *testing.T) {
	srv := fakeOpenAI(t, nil, "a", "b")
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1", BreakerMaxFailures: 1}, nil)
	gone := errors.New("client gone")
	for i := 0; i < 3; i++ {
		err := o.Stream(context.Background(), testRequest(), func(string) error { return gone })
		assert.ErrorIs(t, err, ErrEmit)
	}
	fragments, err := collect(t, o)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, fragments)
}
