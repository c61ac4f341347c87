// Package httpapi implements A3: the thin HTTP admission surface
// (SPEC_FULL §4.16) that sits in front of the orchestrator — health
// probes plus the invite-agent trigger that starts a Session, using a
// route-group-per-concern layout with plain gin handlers.
package httpapi

import (
	"context"
	"net"
	"net/url"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/orbitalk/agent/internal/commons"
	"github.com/orbitalk/agent/internal/config"
)

// SessionInitializer is the subset of session bootstrap the
// invite-agent endpoint drives. Kept narrow so httpapi doesn't import
// orchestrator directly, mirroring room's Orchestrator interface.
type SessionInitializer interface {
	Initialize(ctx context.Context, contextID, accessToken string) error
}

// NewEngine builds the gin engine with health probes and the
// invite-agent trigger wired (SPEC_FULL §4.16).
func NewEngine(cfg *config.AppConfig, logger commons.Logger, initializer SessionInitializer) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))
	engine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Authorization", "Content-Type"},
		MaxAge:          12 * time.Hour,
	}))

	h := &handlers{cfg: cfg, logger: logger, initializer: initializer}

	apiv1 := engine.Group("")
	{
		apiv1.GET("/healthz", h.healthz)
		apiv1.GET("/readiness", h.readiness)
		apiv1.POST("/invite-agent", h.inviteAgent)
	}

	return engine
}

func requestLogger(logger commons.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Benchmark("http_request:"+c.Request.URL.Path, time.Since(start))
	}
}

// signalingDNSReachable resolves the signaling server's host, never
// blocking request handling beyond a short dial-style timeout. A
// lookup failure degrades, it does not fail the probe (SPEC_FULL §4.16).
func signalingDNSReachable(signalingURL string) bool {
	u, err := url.Parse(signalingURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Hostname()
	resolver := net.Resolver{}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err = resolver.LookupHost(ctx, host)
	return err == nil
}
