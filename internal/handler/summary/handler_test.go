package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/medinotes/internal/model"
	"github.com/jwalitptl/medinotes/internal/summary"
	"github.com/jwalitptl/medinotes/pkg/httputil"
	"github.com/jwalitptl/medinotes/pkg/metrics"
)

type fakeSummarizer struct {
	fragments []string
	err       error
	got       model.ConsultationRequest
}

func (f *fakeSummarizer) Name() string { return "fake" }

func (f *fakeSummarizer) Stream(_ context.Context, req model.ConsultationRequest, emit func(string) error) error {
	f.got = req
	for _, frag := range f.fragments {
		if err := emit(frag); err != nil {
			return err
		}
	}
	return f.err
}

func setup(t *testing.T, s summary.Summarizer) (*gin.Engine, *metrics.Metrics) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	m := metrics.New("test", prometheus.NewRegistry())
	r := gin.New()
	NewHandler(s, m, nil).RegisterRoutes(r)
	return r, m
}

func post(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const validBody = `{"patient_name":"Jane Doe","date_of_visit":"2026-10-18","notes":"Mild cough for three days."}`

func TestStreamFramesFragmentsAsEvents(t *testing.T) {
	fake := &fakeSummarizer{fragments: []string{"## Summary\nline two", " tail", "a\r\nb"}}
	r, m := setup(t, fake)

	w := post(r, validBody)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t,
		"data: ## Summary\ndata: line two\n\n"+
			"data:  tail\n\n"+
			"data: a\ndata: b\n\n",
		w.Body.String())
	assert.Equal(t, "Jane Doe", fake.got.PatientName)
	assert.Equal(t, "2026-10-18", fake.got.DateOfVisit)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.StreamFragments))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StreamsFinished.WithLabelValues(outcomeComplete)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.StreamsInFlight))
}

func TestStreamWithNoFragmentsStillOpensStream(t *testing.T) {
	r, _ := setup(t, &fakeSummarizer{})

	w := post(r, validBody)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Empty(t, w.Body.String())
}

func TestStreamRejectsInvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"patient_name":`},
		{"missing notes", `{"patient_name":"Jane","date_of_visit":"2026-10-18"}`},
		{"bad date", `{"patient_name":"Jane","date_of_visit":"18/10/2026","notes":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeSummarizer{fragments: []string{"never"}}
			r, _ := setup(t, fake)

			w := post(r, tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, fake.got.PatientName)
		})
	}
}

func TestStreamErrorsBeforeFirstFragment(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"unavailable", summary.ErrUnavailable, http.StatusServiceUnavailable},
		{"upstream failure", errors.New("boom"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, m := setup(t, &fakeSummarizer{err: tt.err})

			w := post(r, validBody)

			assert.Equal(t, tt.status, w.Code)
			var resp httputil.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.NotContains(t, resp.Error.Message, "boom")
			assert.Equal(t, 1.0, testutil.ToFloat64(m.SummarizerErrors.WithLabelValues("fake")))
		})
	}
}

func TestStreamErrorAfterFirstFragmentSendsErrorEvent(t *testing.T) {
	r, m := setup(t, &fakeSummarizer{fragments: []string{"A", "B"}, err: errors.New("upstream reset")})

	w := post(r, validBody)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "data: A\n\ndata: B\n\nevent: error\ndata: summary generation failed\n\n", w.Body.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StreamsFinished.WithLabelValues(outcomeFailed)))
}

func TestStreamWithEchoSummarizer(t *testing.T) {
	r, _ := setup(t, summary.Echo{})

	w := post(r, validBody)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "data: ")
	assert.Contains(t, w.Body.String(), "Jane")
}

func TestWriteEvent(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeEvent(&buf, "error", "x\ny"))
	assert.Equal(t, "event: error\ndata: x\ndata: y\n\n", buf.String())

	buf.Reset()
	require.NoError(t, writeEvent(&buf, "", "trailing\n"))
	assert.Equal(t, "data: trailing\ndata: \n\n", buf.String())
}
