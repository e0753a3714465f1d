package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davicafu/hexabooks/internal/book/application"
	bookDomain "github.com/davicafu/hexabooks/internal/book/domain"
	"github.com/davicafu/hexabooks/internal/shared/infra/platform/metrics"
	"github.com/davicafu/hexabooks/pkg/utils"
)

const (
	msgInvalidCursor = "invalid pagination cursor, restart pagination"
	msgInternal      = "internal server error"
	defaultDaysRange = 7
)

// BookHandler encapsula los endpoints HTTP del catálogo.
type BookHandler struct {
	service   *application.BookService
	analytics bookDomain.BookAnalyticsRepository
	metrics   *metrics.Metrics
	log       *zap.Logger
}

// NewBookHandler crea un BookHandler. analytics puede ser nil si ClickHouse no está configurado.
func NewBookHandler(service *application.BookService, analytics bookDomain.BookAnalyticsRepository, m *metrics.Metrics, log *zap.Logger) *BookHandler {
	return &BookHandler{service: service, analytics: analytics, metrics: m, log: log}
}

type bookRequest struct {
	Title  *string  `json:"title"`
	Author *string  `json:"author"`
	ISBN   *string  `json:"isbn"`
	Pages  *int     `json:"pages"`
	Rating *float64 `json:"rating"`
}

// ---------------- Handlers ----------------

// CreateBook endpoint POST /books
func (h *BookHandler) CreateBook(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, "invalid request body")
		return
	}

	book, err := h.service.CreateBook(c.Request.Context(), bookDomain.BookInput{
		Title:  deref(req.Title),
		Author: deref(req.Author),
		ISBN:   req.ISBN,
		Pages:  req.Pages,
		Rating: req.Rating,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, book)
}

// GetBook endpoint GET /books/:book_id
func (h *BookHandler) GetBook(c *gin.Context) {
	id, ok := parseBookID(c)
	if !ok {
		return
	}

	book, err := h.service.GetBook(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, book)
}

// UpdateBook endpoint PUT /books/:book_id. Un campo ausente o null no se modifica.
func (h *BookHandler) UpdateBook(c *gin.Context) {
	id, ok := parseBookID(c)
	if !ok {
		return
	}

	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, "invalid request body")
		return
	}

	book, err := h.service.UpdateBook(c.Request.Context(), id, bookDomain.BookPatch{
		Title:  req.Title,
		Author: req.Author,
		ISBN:   req.ISBN,
		Pages:  req.Pages,
		Rating: req.Rating,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, book)
}

// DeleteBook endpoint DELETE /books/:book_id
func (h *BookHandler) DeleteBook(c *gin.Context) {
	id, ok := parseBookID(c)
	if !ok {
		return
	}

	if err := h.service.DeleteBook(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// SearchBooks endpoint GET /books/search (y GET /books)
func (h *BookHandler) SearchBooks(c *gin.Context) {
	opts := bookDomain.SearchOptions{
		Filters: bookDomain.SearchFilters{
			Title:       c.Query("title"),
			Author:      c.Query("author"),
			SearchQuery: c.Query("search_query"),
		},
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
		Cursor:    c.Query("cursor"),
	}

	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			utils.SendBadRequest(c, "limit must be an integer")
			return
		}
		opts.Limit = limit
	}

	var err error
	if opts.Filters.MinRating, err = queryFloat(c, "min_rating"); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}
	if opts.Filters.MaxRating, err = queryFloat(c, "max_rating"); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}

	page, err := h.service.SearchBooks(c.Request.Context(), opts)
	if err != nil {
		h.writeError(c, err)
		return
	}

	sortBy := opts.SortBy
	if sortBy == "" {
		sortBy = bookDomain.SortCreatedAt
	}
	h.metrics.SearchPage(sortBy)

	c.JSON(http.StatusOK, page)
}

// DailyActivity endpoint GET /analytics/books/daily?from=&to= (RFC3339)
func (h *BookHandler) DailyActivity(c *gin.Context) {
	if h.analytics == nil {
		utils.SendServiceUnavailable(c, "analytics are not enabled")
		return
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -defaultDaysRange)
	var err error
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			utils.SendBadRequest(c, "to must be an RFC3339 timestamp")
			return
		}
		from = to.AddDate(0, 0, -defaultDaysRange)
	}
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			utils.SendBadRequest(c, "from must be an RFC3339 timestamp")
			return
		}
	}
	if !from.Before(to) {
		utils.SendBadRequest(c, "from must be before to")
		return
	}

	days, err := h.analytics.GetDailyActivity(c.Request.Context(), from, to)
	if err != nil {
		h.log.Error("Failed to read book analytics", zap.Error(err))
		utils.SendInternalServerError(c, msgInternal)
		return
	}
	if days == nil {
		days = []bookDomain.DailyBookActivity{}
	}

	utils.SendSuccess(c, http.StatusOK, days)
}

// Health endpoint GET /health
func (h *BookHandler) Health(c *gin.Context) {
	n, err := h.service.CountBooks(c.Request.Context())
	if err != nil {
		h.log.Error("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "books": n})
}

// ---------------- Helpers ----------------

// writeError traduce los errores de dominio a respuestas HTTP. Los detalles internos solo se registran.
func (h *BookHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, bookDomain.ErrInvalidCursor):
		h.metrics.InvalidCursor()
		utils.SendBadRequest(c, msgInvalidCursor)
	case errors.Is(err, bookDomain.ErrInvalidSort):
		utils.SendBadRequest(c, fmt.Sprintf("invalid sort: sort_by must be one of %s and sort_order asc or desc",
			strings.Join(h.service.SortColumns(), ", ")))
	case errors.Is(err, bookDomain.ErrInvalidBook), errors.Is(err, bookDomain.ErrInvalidSearch):
		utils.SendBadRequest(c, err.Error())
	case errors.Is(err, bookDomain.ErrBookNotFound):
		utils.SendNotFound(c, err.Error())
	case errors.Is(err, bookDomain.ErrDuplicateISBN):
		utils.SendConflict(c, err.Error())
	default:
		h.log.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		utils.SendInternalServerError(c, msgInternal)
	}
}

func parseBookID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("book_id"))
	if err != nil {
		utils.SendBadRequest(c, "invalid book id")
		return uuid.Nil, false
	}
	return id, true
}

func queryFloat(c *gin.Context, name string) (*float64, error) {
	v := c.Query(name)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("%s must be a number", name)
	}
	return &f, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
