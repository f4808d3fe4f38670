package main

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"fruitmart/config"
	"fruitmart/logging"
	"fruitmart/server"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// fruitmart 中继入口：房间广播频道 + 在线状态（WebSocket），不做任何模拟
func main() {
	fx.New(
		fx.Provide(
			config.New,
			newLogger,
			newRoomManager,
			server.NewHandler,
			newEcho,
		),
		fx.WithLogger(func(log *zap.SugaredLogger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Desugar()}
		}),
		fx.Invoke(startServer),
	).Run()
}

// newLogger 初始化全局日志，供各包共用
func newLogger(cfg *config.Config) (*zap.SugaredLogger, error) {
	if err := logging.Init(logging.Options{
		Level: cfg.Env.Log.Level,
		File:  cfg.Env.Log.File,
		JSON:  cfg.Env.Log.JSON,
	}); err != nil {
		return nil, err
	}
	return logging.Log.With("service", cfg.Env.ServiceName), nil
}

// newRoomManager 依赖 logger，保证全局日志先于房间初始化
func newRoomManager(cfg *config.Config, _ *zap.SugaredLogger) *server.RoomManager {
	return server.NewRoomManager(cfg.Relay)
}

func newEcho(h *server.Handler, log *zap.SugaredLogger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/healthz"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Debugw("request", "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))
	h.Register(e)
	return e
}

func startServer(lc fx.Lifecycle, cfg *config.Config, e *echo.Echo, rm *server.RoomManager, log *zap.SugaredLogger) {
	srv := &http.Server{
		Addr:         net.JoinHostPort("0.0.0.0", strconv.Itoa(cfg.HTTP.Port)),
		ReadTimeout:  cfg.HTTP.Timeouts.ReadTimeout,
		WriteTimeout: cfg.HTTP.Timeouts.WriteTimeout,
		IdleTimeout:  cfg.HTTP.Timeouts.IdleTimeout,
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				log.Infow("relay listening", "addr", srv.Addr)
				if err := e.StartServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatalw("listen", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down...")
			rm.Shutdown()
			err := e.Shutdown(ctx)
			logging.Sync()
			return errors.WithStack(err)
		},
	})
}
