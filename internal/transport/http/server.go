package transporthttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"quorum/internal/engine"
	"quorum/internal/logger"
	"quorum/internal/modelpool"
	"quorum/internal/pkg/circuit"
)

// Server 暴露最小化的运维接口：健康检查、最近周期/对阵表查询、
// 模型池状态与手动重置。
type Server struct {
	addr   string
	router *gin.Engine
}

type ServerConfig struct {
	Addr    string
	Engine  *engine.Engine
	Pool    *modelpool.Pool
	Breaker *circuit.Breaker
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil || cfg.Pool == nil {
		return nil, errors.New("http server requires engine and pool")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9980"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/cycle/latest", func(c *gin.Context) {
		cr, ok := cfg.Engine.LatestCycle()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no cycle completed yet"})
			return
		}
		c.JSON(http.StatusOK, cr)
	})
	api.GET("/bracket/latest", func(c *gin.Context) {
		cr, ok := cfg.Engine.LatestCycle()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no cycle completed yet"})
			return
		}
		c.JSON(http.StatusOK, cr.Bracket)
	})
	api.GET("/pool", func(c *gin.Context) {
		c.JSON(http.StatusOK, cfg.Pool.Snapshot())
	})
	api.POST("/pool/reset", func(c *gin.Context) {
		force := c.Query("force") == "1"
		if err := cfg.Pool.ResetFailures(force); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "reset"})
	})
	if cfg.Breaker != nil {
		api.GET("/circuit", func(c *gin.Context) {
			st := cfg.Breaker.CheckStatus()
			c.JSON(http.StatusOK, gin.H{"level": st.Level.String(), "reason": st.Reason})
		})
	}

	return &Server{addr: cfg.Addr, router: router}, nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			method, path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}

// Addr 返回监听地址。
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Router 暴露内部 router，供 httptest 使用。
func (s *Server) Router() http.Handler {
	return s.router
}
