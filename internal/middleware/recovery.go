package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// headerTracker はレスポンスの書き出しが始まったかを記録する。
type headerTracker struct {
	http.ResponseWriter
	started bool
}

func (t *headerTracker) WriteHeader(code int) {
	t.started = true
	t.ResponseWriter.WriteHeader(code)
}

func (t *headerTracker) Write(b []byte) (int, error) {
	t.started = true
	return t.ResponseWriter.Write(b)
}

// NewRecoveryMiddleware はハンドラーのpanicを回復し、500のエラー画面を返すミドルウェアを生成する。
// レスポンスの書き出しが始まった後のpanicはログに記録するだけで、画面は追記しない。
func NewRecoveryMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tw := &headerTracker{ResponseWriter: w}
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				attrs := []any{
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Bool("response_started", tw.started),
				}
				if info := requestInfoFrom(r.Context()); info != nil {
					info.mu.Lock()
					attrs = append(attrs,
						slog.String("request_id", info.requestID),
						slog.String("user_id", info.userID),
					)
					info.mu.Unlock()
				}
				attrs = append(attrs, slog.String("stack", string(debug.Stack())))
				logger.Error("panic recovered", attrs...)

				if !tw.started {
					WriteInternalServerError(w)
				}
			}()
			next.ServeHTTP(tw, r)
		})
	}
}
