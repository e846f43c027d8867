package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"buildex/backoffice/internal/errs"
	"buildex/backoffice/internal/models"
	"buildex/backoffice/internal/utils"
)

const dateLayout = "2006-01-02"

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// respondList writes a page of results. A nil slice is sent as [].
func respondList[T any](c *gin.Context, items []T, page models.PageRequest, total int64) {
	if items == nil {
		items = []T{}
	}
	page = page.Normalize()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    items,
		"pagination": models.Pagination{
			Page:  page.Page,
			Limit: page.Limit,
			Total: total,
		},
	})
}

func respondFail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrGone):
		return http.StatusGone
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, errs.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, errs.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError attaches err to the context for the request logger. Internal
// errors are reported to the caller without detail.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		respondFail(c, status, "Internal server error")
		return
	}
	respondFail(c, status, err.Error())
}

// bindJSON reports a malformed body as a validation error.
func bindJSON(c *gin.Context, out interface{}) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		respondError(c, errs.Validation("invalid request body: %v", err))
		return false
	}
	return true
}

func pathID(c *gin.Context, name string) (utils.SixID, bool) {
	id, err := utils.ParseSixID(c.Param(name))
	if err != nil {
		respondError(c, errs.Validation("invalid %s", name))
		return utils.SixID{}, false
	}
	return id, true
}

func queryID(c *gin.Context, name string) (*utils.SixID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := utils.ParseSixID(raw)
	if err != nil {
		respondError(c, errs.Validation("invalid %s", name))
		return nil, false
	}
	return &id, true
}

func pageRequest(c *gin.Context) models.PageRequest {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return models.PageRequest{Page: page, Limit: limit}.Normalize()
}

// queryTime accepts RFC 3339 or a plain date.
func queryTime(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	for _, layout := range []string{time.RFC3339, dateLayout} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, true
		}
	}
	respondError(c, errs.Validation("invalid %s, expected RFC 3339 or YYYY-MM-DD", name))
	return nil, false
}

// queryDateRange reads from/to. A plain-date "to" covers that whole day.
func queryDateRange(c *gin.Context) (from, to *time.Time, ok bool) {
	if from, ok = queryTime(c, "from"); !ok {
		return nil, nil, false
	}
	if to, ok = queryTime(c, "to"); !ok {
		return nil, nil, false
	}
	if to != nil && len(c.Query("to")) == len(dateLayout) {
		end := to.Add(24*time.Hour - time.Nanosecond)
		to = &end
	}
	return from, to, true
}
