package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/davicafu/hexabooks/internal/shared/infra/platform/metrics"
)

// RouterOptions agrupa el middleware transversal. Los limitadores son opcionales.
type RouterOptions struct {
	Metrics     *metrics.Metrics
	Log         *zap.Logger
	GlobalLimit gin.HandlerFunc
	SearchLimit gin.HandlerFunc
}

// NewRouter monta el engine con middleware, rutas de libros, analítica y operación.
func NewRouter(handler *BookHandler, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), accessLog(opts.Log), opts.Metrics.GinMiddleware())
	if opts.GlobalLimit != nil {
		r.Use(opts.GlobalLimit)
	}

	RegisterBookRoutes(r, handler, opts.SearchLimit)

	r.GET("/analytics/books/daily", handler.DailyActivity)
	r.GET("/health", handler.Health)
	r.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))

	return r
}

func RegisterBookRoutes(r *gin.Engine, handler *BookHandler, searchLimit gin.HandlerFunc) {
	search := []gin.HandlerFunc{handler.SearchBooks}
	if searchLimit != nil {
		search = append([]gin.HandlerFunc{searchLimit}, search...)
	}

	books := r.Group("/books")
	{
		books.POST("", handler.CreateBook)
		books.GET("", search...)
		books.GET("/search", search...)
		books.GET("/:book_id", handler.GetBook)
		books.PUT("/:book_id", handler.UpdateBook)
		books.DELETE("/:book_id", handler.DeleteBook)
	}
}

func accessLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
