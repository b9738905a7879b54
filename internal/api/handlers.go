package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"goladium-analytics/internal/domain"
	"goladium-analytics/internal/history"
	"goladium-analytics/internal/ingestion"
	"goladium-analytics/internal/storage"
	"goladium-analytics/internal/timeseries"
)

// MaxHistoryLimit caps the limit query parameter of value-history.
const MaxHistoryLimit = 1000

func (s *Server) handleValueHistory(c *gin.Context) {
	rangeKey, err := timeseries.ParseRange(c.DefaultQuery("range", string(timeseries.Range1D)))
	if err != nil {
		s.writeError(c, err)
		return
	}
	category, ok := parseCategory(c, domain.CategoryFinancial)
	if !ok {
		return
	}
	limit, ok := parseLimit(c, 0, MaxHistoryLimit)
	if !ok {
		return
	}

	result, err := s.history.ValueHistory(c.Request.Context(), history.Query{
		UserID:   c.Param("user_id"),
		Category: category,
		Range:    rangeKey,
		Limit:    limit,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewValueHistoryResponse(result))
}

func (s *Server) handleRecentEvents(c *gin.Context) {
	category, ok := parseCategory(c, domain.CategoryInventory)
	if !ok {
		return
	}
	// Out-of-range limits are clamped, not rejected.
	limit, ok := parseLimit(c, 0, 0)
	if !ok {
		return
	}

	userID := c.Param("user_id")
	result, err := s.history.RecentEvents(c.Request.Context(), userID, category, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	resp, err := newRecentEventsResponse(userID, category, result)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleAppendEvents(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		s.writeError(c, storage.ErrInvalidInput)
		return
	}

	events, rejected, err := ingestion.DecodeEvents(body)
	if err != nil {
		s.writeError(c, err)
		return
	}

	// Map positions in events back to positions in the payload.
	skip := make(map[int]bool, len(rejected))
	for _, r := range rejected {
		skip[r.Index] = true
	}
	payloadIdx := make([]int, 0, len(events))
	for i := 0; len(payloadIdx) < len(events); i++ {
		if !skip[i] {
			payloadIdx = append(payloadIdx, i)
		}
	}

	res, err := s.writer.Write(c.Request.Context(), events)
	if err != nil {
		s.writeError(c, fmt.Errorf("%w: %w", history.ErrStoreUnavailable, err))
		return
	}

	resp := AppendResponse{
		Stored:      res.Stored,
		Duplicates:  res.Duplicates,
		ChainBreaks: res.ChainBreaks,
		Rejected:    make([]RejectionDTO, 0, len(rejected)+len(res.Rejected)),
	}
	for _, r := range rejected {
		resp.Rejected = append(resp.Rejected, RejectionDTO{Index: r.Index, Error: r.Err.Error()})
	}
	for _, r := range res.Rejected {
		resp.Rejected = append(resp.Rejected, RejectionDTO{Index: payloadIdx[r.Index], Error: r.Err.Error()})
	}

	status := http.StatusOK
	if len(resp.Rejected) > 0 && res.Stored == 0 && res.Duplicates == 0 {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, resp)
}

func parseCategory(c *gin.Context, def domain.Category) (domain.Category, bool) {
	category := domain.Category(c.DefaultQuery("category", string(def)))
	if !category.IsValid() {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{
			Error:   "invalid_category",
			Message: "category must be financial or inventory",
		})
		return "", false
	}
	return category, true
}

// parseLimit reads the limit query parameter. With max == 0 any integer is accepted.
func parseLimit(c *gin.Context, min, max int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: "invalid_limit", Message: "limit must be an integer"})
		return 0, false
	}
	if max > 0 && (limit < min || limit > max) {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{
			Error:   "invalid_limit",
			Message: fmt.Sprintf("limit must be between %d and %d", min, max),
		})
		return 0, false
	}
	return limit, true
}

// writeError maps service errors to status codes. Store failures never
// return partial data.
func (s *Server) writeError(c *gin.Context, err error) {
	var (
		status int
		code   string
	)
	switch {
	case errors.Is(err, timeseries.ErrInvalidRange):
		status, code = http.StatusBadRequest, "invalid_range"
	case errors.Is(err, storage.ErrInvalidInput):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, history.ErrStoreUnavailable):
		status, code = http.StatusServiceUnavailable, "store_unavailable"
	case errors.Is(err, timeseries.ErrUnsortedInput):
		status, code = http.StatusInternalServerError, "unsorted_stream"
	default:
		status, code = http.StatusInternalServerError, "internal_error"
	}
	if status >= 500 {
		s.logger.WithError(err).WithField("path", c.Request.URL.Path).Error("request failed")
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: code, Message: err.Error()})
}
