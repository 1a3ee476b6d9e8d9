package webserver

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/communityfund/funding/src/fundingd/config"
	"github.com/communityfund/funding/src/fundingd/proposals"
)

func New(cfg config.Config, db *gorm.DB, svc *proposals.Service) *gin.Engine {
	g := gin.New()
	g.Use(gin.Logger(), gin.Recovery())
	g.Use(cors.Default())
	attachRoutes(g, cfg, db, svc)
	return g
}

func attachRoutes(g *gin.Engine, cfg config.Config, db *gorm.DB, svc *proposals.Service) {
	h := handlers{cfg: cfg, db: db, svc: svc}
	limiter := NewRateLimiter(5, time.Minute)

	api := g.Group("/api/1")
	api.POST("/login", RateLimitMiddleware(limiter), h.login)
	api.GET("/proposals", h.list)
	api.GET("/proposals/:slug", h.view)

	authed := api.Group("", JWT(cfg, db))
	authed.POST("/proposals", h.upsert)
	authed.POST("/proposals/:slug/transfer", h.transfer)
}

type handlers struct {
	cfg config.Config
	db  *gorm.DB
	svc *proposals.Service
}
