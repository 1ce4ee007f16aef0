// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"
)

// DefaultMinCompressSize is the smallest body Compress gzips.
const DefaultMinCompressSize = 1024

var gzipWriterPool = sync.Pool{
	New: func() interface{} {
		return gzip.NewWriter(io.Discard)
	},
}

// compressWriter buffers the first minSize bytes of a response and only
// switches to gzip once the body is known to be large enough.
type compressWriter struct {
	http.ResponseWriter
	minSize int
	status  int
	buf     []byte
	gz      *gzip.Writer
	plain   bool
}

func (w *compressWriter) WriteHeader(status int) {
	if w.status != 0 {
		return
	}
	w.status = status
	if status == http.StatusNoContent || status == http.StatusNotModified ||
		w.Header().Get("Content-Encoding") != "" {
		w.plain = true
		w.ResponseWriter.WriteHeader(status)
	}
}

func (w *compressWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.WriteHeader(http.StatusOK)
	}
	switch {
	case w.plain:
		return w.ResponseWriter.Write(b)
	case w.gz != nil:
		return w.gz.Write(b)
	}
	w.buf = append(w.buf, b...)
	if len(w.buf) >= w.minSize {
		if err := w.startGzip(); err != nil {
			return 0, err
		}
	}
	return len(b), nil
}

func (w *compressWriter) startGzip() error {
	h := w.Header()
	h.Set("Content-Encoding", "gzip")
	h.Del("Content-Length")
	w.ResponseWriter.WriteHeader(w.status)

	w.gz = gzipWriterPool.Get().(*gzip.Writer)
	w.gz.Reset(w.ResponseWriter)
	buf := w.buf
	w.buf = nil
	_, err := w.gz.Write(buf)
	return err
}

// finish flushes whatever the handler left behind.
func (w *compressWriter) finish() {
	if w.gz != nil {
		_ = w.gz.Close()
		gzipWriterPool.Put(w.gz)
		w.gz = nil
		return
	}
	if w.plain || w.status == 0 {
		return
	}
	w.ResponseWriter.WriteHeader(w.status)
	if len(w.buf) > 0 {
		_, _ = w.ResponseWriter.Write(w.buf)
	}
}

// Compress gzips response bodies of at least minSize bytes for clients
// that accept gzip. Websocket upgrades and HEAD requests pass through.
// A non-positive minSize means DefaultMinCompressSize.
func Compress(minSize int) func(http.Handler) http.Handler {
	if minSize <= 0 {
		minSize = DefaultMinCompressSize
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Accept-Encoding")
			if r.Method == http.MethodHead ||
				!strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") ||
				strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, r)
				return
			}

			cw := &compressWriter{ResponseWriter: w, minSize: minSize}
			defer cw.finish()
			next.ServeHTTP(cw, r)
		})
	}
}
