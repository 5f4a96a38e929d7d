package serverfx

import (
	"context"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/yurykabanov/sweeper/pkg/http/middleware"
)

const (
	ConfigServerAddress      = "server.address"
	ConfigServerTimeoutRead  = "server.timeout.read"
	ConfigServerTimeoutWrite = "server.timeout.write"
	ConfigServerLogRequests  = "server.log.requests"
)

type HttpServerConfig struct {
	Address           string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	EnableRequestsLog bool
}

func HttpServerConfigProvider(v *viper.Viper) (*HttpServerConfig, error) {
	return &HttpServerConfig{
		Address:           v.GetString(ConfigServerAddress),
		ReadTimeout:       v.GetDuration(ConfigServerTimeoutRead),
		WriteTimeout:      v.GetDuration(ConfigServerTimeoutWrite),
		EnableRequestsLog: v.GetBool(ConfigServerLogRequests),
	}, nil
}

func HttpMetrics() *middleware.HttpMetrics {
	return middleware.NewHttpMetrics(prometheus.DefaultRegisterer)
}

func HttpRouter(metrics *middleware.HttpMetrics) (*mux.Router, error) {
	router := mux.NewRouter()
	router.Use(metrics.Middleware)

	return router, nil
}

func HttpServer(
	config *HttpServerConfig,
	logger *logrus.Logger,
	defaultLogger *log.Logger,
	router *mux.Router,
) (*http.Server, error) {
	return &http.Server{
		Addr:         config.Address,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		ErrorLog:     defaultLogger,
		Handler:      wrapHandler(config, logger, router),
	}, nil
}

func wrapHandler(config *HttpServerConfig, logger logrus.FieldLogger, router *mux.Router) http.Handler {
	var h http.Handler = router

	if config.EnableRequestsLog {
		h = middleware.WithRequestLogging(router, logger)
	}

	return middleware.WithRequestId(h, middleware.DefaultRequestIdProvider)
}

func Listener(config *HttpServerConfig) (net.Listener, error) {
	return net.Listen("tcp", config.Address)
}

func RunServer(lc fx.Lifecycle, logger *logrus.Logger, listener net.Listener, server *http.Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.WithField("address", listener.Addr().String()).Info("Starting HTTP server")

			go func() {
				if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
					logger.WithError(err).Error("HTTP server stopped unexpectedly")
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}
