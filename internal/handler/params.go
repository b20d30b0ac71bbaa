package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/jwalitptl/herd-api/pkg/errors"
	"github.com/jwalitptl/herd-api/pkg/httputil"
)

// BindJSON decodes the body into req. On failure it records a bind error
// for the validation middleware to answer and returns false.
func BindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return false
	}
	return true
}

// ParseID reads a positive integer path parameter, answering 400 otherwise.
func ParseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		httputil.RespondWithError(c, apperrors.NewBadRequest("invalid "+name, err))
		return 0, false
	}
	return id, true
}
