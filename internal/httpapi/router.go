// Package httpapi exposes the meeting REST API and the signaling websocket
// endpoint on a gin router.
package httpapi

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Rudra9905/Studify/internal/config"
	"github.com/Rudra9905/Studify/internal/meetings"
	"github.com/Rudra9905/Studify/internal/relay"
)

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, svc *meetings.Service, hub *relay.Hub) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("StudifySessions", store))
	r.Use(ClientTokenMiddleware())

	api := r.Group("/api")

	mc := &meetingController{svc: svc, hub: hub}
	api.POST("/meetings/createClassroomMeeting", mc.createClassroomMeeting)
	api.POST("/meetings/createNormalMeeting", mc.createNormalMeeting)
	api.POST("/meetings/join", mc.join)
	api.POST("/meetings/end", mc.end)
	api.GET("/meetings/status/:code", mc.status)

	api.GET("/ws/meet", func(c *gin.Context) {
		handleMeetWS(ctx, cfg, hub, c)
	})

	log.Info().Str("module", "httpapi").Msg("router setup")
	return r
}
