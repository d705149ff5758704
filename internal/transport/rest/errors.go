package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mschirtzinger/teamboard/internal/schema"
	"github.com/mschirtzinger/teamboard/internal/service"
)

type errorBody struct {
	Error  string              `json:"error"`
	Fields []schema.FieldError `json:"fields,omitempty"`
}

// writeError maps domain errors to status codes. Unknown errors are logged
// and reported as 500 without detail.
func (s *Server) writeError(c *gin.Context, err error) {
	var ve *schema.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, errorBody{Error: schema.ErrValidation.Error(), Fields: ve.Errors})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, errorBody{Error: err.Error()})
	default:
		s.logger.Error("request failed", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorBody{Error: msg})
}
