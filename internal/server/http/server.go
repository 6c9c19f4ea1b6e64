package httpserver

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rzbill/taglog/internal/logctx"
	"github.com/rzbill/taglog/internal/runtime"
	"github.com/rzbill/taglog/internal/server/http/controllers"
	logpkg "github.com/rzbill/taglog/pkg/log"
)

// Header names read by the request context middleware.
const (
	HeaderRequestID = "X-Request-Id"
	HeaderLogTags   = "X-Log-Tags"
)

type Server struct {
	rt     *runtime.Runtime
	srv    *http.Server
	mu     sync.Mutex
	lis    net.Listener
	logger logpkg.Logger
}

func New(rt *runtime.Runtime, logger logpkg.Logger) *Server {
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NewNullOutput()))
	}
	logger = logger.WithComponent("http")

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), cors(), rt.Metrics().GinMiddleware(), requestContext(), accessLog(logger))
	controllers.NewControllerRegistry(rt).RegisterAllRoutes(router)
	router.GET("/metrics", gin.WrapH(rt.Metrics().Handler()))

	return &Server{rt: rt, logger: logger, srv: &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.lis = l
	s.mu.Unlock()
	s.logger.Info("http listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Addr returns the bound address once ListenAndServe is running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis == nil {
		return ""
	}
	return s.lis.Addr().String()
}

func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+HeaderRequestID+", "+HeaderLogTags)
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requestContext pushes a logctx frame for the request: X-Log-Tags (comma
// separated) become tags and the request id becomes an attribute, so every
// record written while serving the request carries them.
func requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(HeaderRequestID, reqID)

		var tags []string
		for _, t := range strings.Split(c.GetHeader(HeaderLogTags), ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
		ctx := logpkg.ContextWithRequestID(c.Request.Context(), reqID)
		ctx = logctx.With(ctx, logctx.Frame{Tags: tags, Attrs: map[string]any{logpkg.RequestIDKey: reqID}})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func accessLog(logger logpkg.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithContext(c.Request.Context()).Debug("request",
			logpkg.Str("method", c.Request.Method),
			logpkg.Str("path", c.Request.URL.Path),
			logpkg.Int("status", c.Writer.Status()),
			logpkg.Duration("elapsed", time.Since(start)),
		)
	}
}
