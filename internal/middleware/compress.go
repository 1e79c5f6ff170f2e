package middleware

import (
	"compress/gzip"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
)

// CompressConfig represents compression configuration
type CompressConfig struct {
	Level int
}

// DefaultCompressConfig returns default compression configuration
func DefaultCompressConfig() CompressConfig {
	return CompressConfig{Level: gzip.DefaultCompression}
}

// gzipWriter starts compressing on the first body write, so responses that
// never write a body (HEAD, 304) and bodies written around it go out as is.
type gzipWriter struct {
	gin.ResponseWriter
	pool *sync.Pool
	gz   *gzip.Writer
}

func (g *gzipWriter) Write(data []byte) (int, error) {
	if g.gz == nil {
		if g.Written() {
			return g.ResponseWriter.Write(data)
		}
		h := g.Header()
		h.Set("Content-Encoding", "gzip")
		h.Add("Vary", "Accept-Encoding")
		h.Del("Content-Length")
		g.gz = g.pool.Get().(*gzip.Writer)
		g.gz.Reset(g.ResponseWriter)
	}
	return g.gz.Write(data)
}

func (g *gzipWriter) WriteString(s string) (int, error) {
	return g.Write([]byte(s))
}

func (g *gzipWriter) Flush() {
	if g.gz != nil {
		_ = g.gz.Flush()
	}
	g.ResponseWriter.Flush()
}

func (g *gzipWriter) close() {
	if g.gz == nil {
		return
	}
	_ = g.gz.Close()
	g.pool.Put(g.gz)
	g.gz = nil
}

// Compress gzips response bodies for clients that accept it. It is meant for
// static assets; never put it in front of the summary stream.
func Compress(config CompressConfig) gin.HandlerFunc {
	pool := &sync.Pool{New: func() interface{} {
		gz, err := gzip.NewWriterLevel(nil, config.Level)
		if err != nil {
			gz = gzip.NewWriter(nil)
		}
		return gz
	}}

	return func(c *gin.Context) {
		if !strings.Contains(c.Request.Header.Get("Accept-Encoding"), "gzip") {
			c.Next()
			return
		}

		// Byte ranges of the uncompressed file are meaningless once gzipped.
		c.Request.Header.Del("Range")

		w := &gzipWriter{ResponseWriter: c.Writer, pool: pool}
		c.Writer = w
		defer w.close()

		c.Next()
	}
}
