// Package summary serves POST /api, the streamed consultation summary.
package summary

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/medinotes/internal/middleware"
	"github.com/jwalitptl/medinotes/internal/model"
	"github.com/jwalitptl/medinotes/internal/summary"
	apperrors "github.com/jwalitptl/medinotes/pkg/errors"
	"github.com/jwalitptl/medinotes/pkg/httputil"
	"github.com/jwalitptl/medinotes/pkg/logger"
	"github.com/jwalitptl/medinotes/pkg/metrics"
)

const (
	outcomeComplete   = "complete"
	outcomeClientGone = "client_gone"
	outcomeFailed     = "failed"
)

type Handler struct {
	summarizer summary.Summarizer
	metrics    *metrics.Metrics
	log        *logger.Logger
}

func NewHandler(s summary.Summarizer, m *metrics.Metrics, l *logger.Logger) *Handler {
	if l == nil {
		l = logger.Nop()
	}
	return &Handler{summarizer: s, metrics: m, log: l.With("summary_handler")}
}

// RegisterRoutes mounts the stream on r. Authentication and the plan check
// belong to r's middleware.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/api", h.Stream)
}

// Stream answers with text/event-stream. Each fragment becomes one event
// whose data lines are the fragment split on newlines. Failures before the
// first fragment are ordinary JSON errors; later ones end the stream with an
// "error" event.
func (h *Handler) Stream(c *gin.Context) {
	var req model.ConsultationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(middleware.ValidationMessage(err), err))
		return
	}

	ctx := c.Request.Context()
	start := time.Now()
	h.streamStarted()
	defer h.streamDone(start)

	started := false
	emit := func(fragment string) error {
		if !started {
			started = true
			openStream(c)
		}
		if err := writeEvent(c.Writer, "", fragment); err != nil {
			return err
		}
		c.Writer.Flush()
		if h.metrics != nil {
			h.metrics.StreamFragments.Inc()
		}
		return nil
	}

	err := h.summarizer.Stream(ctx, req, emit)
	switch {
	case err == nil:
		if !started {
			openStream(c)
			c.Writer.Flush()
		}
		h.finish(outcomeComplete)
	case clientGone(ctx, err):
		h.log.Debug("client left mid-stream", "request_id", c.GetString(middleware.ContextRequestID))
		h.finish(outcomeClientGone)
		c.Abort()
	case !started:
		h.failed(c, err)
		if errors.Is(err, summary.ErrUnavailable) {
			httputil.RespondWithError(c, apperrors.Unavailable("summarizer unavailable, try again shortly", err))
			return
		}
		httputil.RespondWithError(c, apperrors.BadGateway("summary generation failed", err))
	default:
		h.failed(c, err)
		if werr := writeEvent(c.Writer, "error", "summary generation failed"); werr == nil {
			c.Writer.Flush()
		}
	}
}

func openStream(c *gin.Context) {
	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-store")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
}

var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// writeEvent frames data as one server-sent event. A bare CR would end the
// line early on the reading side, so line endings are normalized first.
func writeEvent(w io.Writer, event, data string) error {
	var b strings.Builder
	if event != "" {
		b.WriteString("event: ")
		b.WriteString(event)
		b.WriteByte('\n')
	}
	for _, line := range strings.Split(lineBreaks.Replace(data), "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

func clientGone(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, summary.ErrEmit) ||
		errors.Is(err, context.Canceled)
}

func (h *Handler) failed(c *gin.Context, err error) {
	h.log.Error(err, "summary stream failed",
		"summarizer", h.summarizer.Name(),
		"request_id", c.GetString(middleware.ContextRequestID))
	if h.metrics != nil {
		h.metrics.SummarizerErrors.WithLabelValues(h.summarizer.Name()).Inc()
	}
	h.finish(outcomeFailed)
}

func (h *Handler) streamStarted() {
	if h.metrics == nil {
		return
	}
	h.metrics.StreamsStarted.Inc()
	h.metrics.StreamsInFlight.Inc()
}

func (h *Handler) streamDone(start time.Time) {
	if h.metrics == nil {
		return
	}
	h.metrics.StreamsInFlight.Dec()
	h.metrics.StreamDuration.Observe(time.Since(start).Seconds())
}

func (h *Handler) finish(outcome string) {
	if h.metrics != nil {
		h.metrics.StreamsFinished.WithLabelValues(outcome).Inc()
	}
}
