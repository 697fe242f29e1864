package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"wadispatch/pkg/logx"
)

// Router wires the handlers behind the standard middleware stack.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)
	r.Route("/api", func(r chi.Router) {
		r.Post("/broadcasts", h.CreateBroadcast)
		r.Get("/broadcasts/{id}", h.GetBroadcast)
		r.Get("/deliveries", h.ListDeliveries)
	})
	if h.opt.Profiler {
		r.Mount("/debug", middleware.Profiler())
	}
	return r
}

func requestLogger(log logx.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []logx.Field{
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.Int("status", status),
				logx.Int("bytes", ww.BytesWritten()),
				logx.Duration("took", time.Since(start)),
				logx.String("request_id", middleware.GetReqID(r.Context())),
			}
			if status >= 500 {
				log.Warn("http request", fields...)
				return
			}
			log.Debug("http request", fields...)
		})
	}
}
