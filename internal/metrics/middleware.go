package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// responseRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rr *responseRecorder) WriteHeader(code int) {
	rr.statusCode = code
	rr.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware はリクエストの結果と処理時間をメトリクスに記録するミドルウェアを返す。
// パスラベルにはカーディナリティ爆発を避けるためchiのルートパターンを使用する
// （例: /api/notes/{noteID}）。
func (c *Collector) HTTPMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rec := &responseRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rec, r)

			path := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					path = pattern
				}
			}

			c.RecordHTTPRequest(r.Method, path, rec.statusCode, time.Since(start))
		})
	}
}
