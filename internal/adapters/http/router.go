package http

import (
	"context"
	"net/http"

	"github.com/dkeye/Relay/internal/adapters/auth"
	"github.com/dkeye/Relay/internal/adapters/signal"
	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/config"
	rest "github.com/dkeye/Relay/internal/transport/http"
	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// AuthMiddleware stores the verified user id under signal.UserKey. Requests
// without a token pass through anonymously; a bad token is rejected.
func AuthMiddleware(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.TokenFrom(c.GetHeader("Authorization"), c.Query("token"))
		if token == "" || v == nil {
			c.Next()
			return
		}
		user, err := v.Verify(token)
		if err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Str("ip", c.ClientIP()).Msg("rejected token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(signal.UserKey, user)
		c.Next()
	}
}

func iceServers(cfg []config.ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(cfg))
	for _, s := range cfg {
		srv := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			srv.Username = s.Username
			srv.Credential = s.Credential
		}
		out = append(out, srv)
	}
	return out
}

func SetupRouter(ctx context.Context, cfg *config.Config, ctrl *signal.SignalWSController, reg *app.Registry, verifier TokenVerifier) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	handlers := rest.NewHandlers(reg, iceServers(cfg.ICEServers))
	r.GET("/healthz", handlers.Health)

	api := r.Group("/api")
	handlers.Register(api)

	api.GET("/ws", AuthMiddleware(verifier), func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("ip", c.ClientIP()).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Int("ice_servers", len(handlers.ICE)).Msg("router setup")
	return r
}
