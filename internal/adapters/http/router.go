package http

import (
	"context"
	stdhttp "net/http"

	"github.com/dkeye/yogasync/internal/adapters/rtc"
	"github.com/dkeye/yogasync/internal/adapters/signal"
	"github.com/dkeye/yogasync/internal/app"
	"github.com/dkeye/yogasync/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type Deps struct {
	Signal *signal.SignalWSController
	Rooms  *app.RoomManager
	Hub    *signal.Hub
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("YogaSyncSession", store))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(stdhttp.StatusOK, gin.H{
			"status":      "ok",
			"rooms":       deps.Rooms.Len(),
			"connections": deps.Hub.Len(),
		})
	})

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")
	api.Use(IdentityMiddleware(cfg.Auth))

	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(stdhttp.StatusOK, gin.H{"rooms": deps.Rooms.List()})
	})

	iceServers := []gin.H{}
	for _, s := range rtc.Configuration(cfg.ICEServers).ICEServers {
		iceServers = append(iceServers, gin.H{"urls": s.URLs})
	}
	api.GET("/rtc/config", func(c *gin.Context) {
		c.JSON(stdhttp.StatusOK, gin.H{"iceServers": iceServers})
	})

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Msg("ws signal endpoint hit")
		deps.Signal.HandleSignal(ctx, c)
	})

	return r
}
