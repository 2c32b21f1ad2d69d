package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/noah-isme/mute-meter-api/internal/service"
	"github.com/noah-isme/mute-meter-api/pkg/config"
)

// Module serves the dashboard over HTTP for the lifetime of the fx app.
var Module = fx.Module("http.server",
	fx.Provide(
		provideRoutes,
		registerGin,
	),
	fx.Invoke(run),
)

func registerGin(cfg *config.Config, logr *zap.Logger, metrics *service.MetricsService, routes Routes) *gin.Engine {
	r := NewEngine(cfg, logr, metrics)
	RegisterRoutes(r, cfg, routes, logr)
	return r
}

func run(lc fx.Lifecycle, cfg *config.Config, r *gin.Engine, logr *zap.Logger) {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logr.Fatal("server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
