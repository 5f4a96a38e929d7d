package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/sweeper/pkg/appcontext"
)

type statusWriter struct {
	http.ResponseWriter
	status int
	length int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.length += n
	return n, err
}

// routeTemplate returns the path template of the matched route, e.g. "/rules/{id}".
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}

	return "unmatched"
}

func WithRequestLogging(next http.Handler, logger logrus.FieldLogger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startAt := time.Now()
		sw := statusWriter{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			logger := appcontext.LoggerFromContext(logger, r.Context()).WithFields(logrus.Fields{
				"host":           r.Host,
				"remote_addr":    r.RemoteAddr,
				"method":         r.Method,
				"request_uri":    r.RequestURI,
				"status":         sw.status,
				"content_length": sw.length,
				"user_agent":     r.UserAgent(),
				"duration_ns":    time.Since(startAt).Nanoseconds(),
			})

			switch {
			case sw.status >= http.StatusInternalServerError:
				logger.Error("request")
			case sw.status >= http.StatusBadRequest:
				logger.Warn("request")
			default:
				logger.Info("request")
			}
		}()

		next.ServeHTTP(&sw, r)
	})
}
