package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/shashiranjanraj/filebot/pkg/logger"
	"github.com/shashiranjanraj/filebot/pkg/metrics"
	"github.com/shashiranjanraj/filebot/pkg/response"
)

// Recovery turns a panic in any downstream handler into a 500 JSON
// response and logs the stack with the request id. The connection and
// the rest of the process keep serving.
//
// http.ErrAbortHandler is re-raised so net/http can abort the response
// silently, as it expects.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			err := recover()
			if err == nil {
				return
			}
			if err == http.ErrAbortHandler {
				panic(err)
			}

			metrics.PanicsRecovered.Inc()
			logger.WithCtx(r.Context()).Error("panic recovered",
				"error", fmt.Sprintf("%v", err),
				"stack", string(debug.Stack()),
				"method", r.Method,
				"path", r.URL.Path,
			)
			response.InternalError(w)
		}()
		next.ServeHTTP(w, r)
	})
}
