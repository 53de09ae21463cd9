// Copyright 2025 Zintix Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package middleware

import (
	"bufio"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// CompressConfig 壓縮等級。
type CompressConfig struct {
	GzipLevel int
	ZstdLevel zstd.EncoderLevel
}

var DefaultCompressConfig = CompressConfig{
	GzipLevel: gzip.DefaultCompression,
	ZstdLevel: zstd.SpeedFastest,
}

// compressibleTypes 只壓縮文字類回應（JSON API、Dev Panel HTML）。
var compressibleTypes = map[string]bool{
	"application/json":       true,
	"application/javascript": true,
	"text/html":              true,
	"text/plain":             true,
	"text/css":               true,
	"text/csv":               true,
}

// encoder 是 gzip.Writer 與 zstd.Encoder 的共同介面。
type encoder interface {
	io.Writer
	Flush() error
	Close() error
}

type codec struct {
	name    string
	acquire func(w io.Writer) encoder
	release func(e encoder)
}

var (
	gzipPool sync.Pool
	zstdPool sync.Pool
)

// codecs 依偏好排序；協商時同 q 值取前者。
var codecs = []codec{
	{
		name: "zstd",
		acquire: func(w io.Writer) encoder {
			if v := zstdPool.Get(); v != nil {
				zw := v.(*zstd.Encoder)
				zw.Reset(w)
				return zw
			}
			zw, err := zstd.NewWriter(w,
				zstd.WithEncoderLevel(DefaultCompressConfig.ZstdLevel),
				zstd.WithEncoderConcurrency(1),
			)
			if err != nil {
				panic(err)
			}
			return zw
		},
		release: func(e encoder) {
			_ = e.Close()
			zstdPool.Put(e)
		},
	},
	{
		name: "gzip",
		acquire: func(w io.Writer) encoder {
			if v := gzipPool.Get(); v != nil {
				gw := v.(*gzip.Writer)
				gw.Reset(w)
				return gw
			}
			gw, _ := gzip.NewWriterLevel(w, DefaultCompressConfig.GzipLevel)
			return gw
		},
		release: func(e encoder) {
			_ = e.Close()
			gzipPool.Put(e)
		},
	},
}

// negotiate 依 Accept-Encoding（含 q 值）挑選 codec；q=0 視為拒絕。
func negotiate(header string) (codec, bool) {
	if header == "" {
		return codec{}, false
	}
	q := map[string]float64{}
	for _, part := range strings.Split(header, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		weight := 1.0
		if k, v, ok := strings.Cut(strings.TrimSpace(params), "="); ok && strings.TrimSpace(k) == "q" {
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				weight = f
			}
		}
		q[name] = weight
	}
	best, bestQ, found := codec{}, 0.0, false
	for _, c := range codecs {
		w, ok := q[c.name]
		if !ok {
			w, ok = q["*"]
		}
		if !ok || w <= 0 {
			continue
		}
		if w > bestQ {
			best, bestQ, found = c, w, true
		}
	}
	return best, found
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade") ||
		r.Header.Get("Upgrade") != ""
}

func isNoBodyStatus(code int) bool {
	return (code >= 100 && code < 200) || code == http.StatusNoContent || code == http.StatusNotModified
}

func isCompressible(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return compressibleTypes[mt]
}

// compressWriter 在第一次 WriteHeader/Write 時才決定是否壓縮：
// 無 body 的 status 或非文字類 Content-Type 直接透傳。
type compressWriter struct {
	http.ResponseWriter
	codec   codec
	enc     encoder
	decided bool
}

func (cw *compressWriter) decide(status int, sniff []byte) {
	if cw.decided {
		return
	}
	cw.decided = true
	h := cw.Header()
	if isNoBodyStatus(status) || h.Get("Content-Encoding") != "" {
		return
	}
	ct := h.Get("Content-Type")
	if ct == "" && len(sniff) > 0 {
		ct = http.DetectContentType(sniff)
		h.Set("Content-Type", ct)
	}
	if !isCompressible(ct) {
		return
	}
	h.Del("Content-Length")
	h.Set("Content-Encoding", cw.codec.name)
	h.Add("Vary", "Accept-Encoding")
	cw.enc = cw.codec.acquire(cw.ResponseWriter)
}

func (cw *compressWriter) WriteHeader(code int) {
	cw.decide(code, nil)
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *compressWriter) Write(b []byte) (int, error) {
	if !cw.decided {
		cw.decide(http.StatusOK, b)
	}
	if cw.enc == nil {
		return cw.ResponseWriter.Write(b)
	}
	return cw.enc.Write(b)
}

func (cw *compressWriter) Flush() {
	if cw.enc != nil {
		_ = cw.enc.Flush()
	}
	if f, ok := cw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (cw *compressWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := cw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("underlying response writer does not support Hijacker")
	}
	return hj.Hijack()
}

func (cw *compressWriter) close() {
	if cw.enc != nil {
		cw.codec.release(cw.enc)
		cw.enc = nil
	}
}

// Compression 依 Accept-Encoding 以 zstd 或 gzip 壓縮文字類回應。
func Compression(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead || isWebSocketUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}
		c, ok := negotiate(r.Header.Get("Accept-Encoding"))
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		cw := &compressWriter{ResponseWriter: w, codec: c}
		defer cw.close()
		next.ServeHTTP(cw, r)
	})
}
