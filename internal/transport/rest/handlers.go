package rest

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mschirtzinger/teamboard/internal/auditindex"
	"github.com/mschirtzinger/teamboard/internal/datespec"
	"github.com/mschirtzinger/teamboard/internal/schema"
	"github.com/mschirtzinger/teamboard/internal/service"
)

const maxBodySize = 1 << 20 // 1MB

func (s *Server) registerCollections(api *gin.RouterGroup) {
	for _, c := range s.app.Collections() {
		g := api.Group("/" + c.Kind().Plural())
		g.GET("", s.handleList(c))
		g.GET("/:id", s.handleGet(c))
		g.POST("", s.handleCreate(c))
		g.PUT("/:id", s.handleUpdate(c))
		g.PATCH("/:id", s.handlePatch(c))
		g.DELETE("/:id", s.handleDelete(c))
	}
}

func readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, errorBody{Error: "request body too large"})
		return nil, false
	}
	return body, true
}

func (s *Server) handleList(coll service.Collection) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := s.filterList(c, coll)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		if items == nil {
			items = []schema.Entity{}
		}
		c.JSON(http.StatusOK, items)
	}
}

func (s *Server) handleGet(coll service.Collection) gin.HandlerFunc {
	return func(c *gin.Context) {
		e, err := coll.GetEntity(c.Param("id"))
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, e)
	}
}

func (s *Server) handleCreate(coll service.Collection) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, ok := readBody(c)
		if !ok {
			return
		}
		e, err := coll.CreateJSON(c.Request.Context(), body)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, e)
	}
}

func (s *Server) handleUpdate(coll service.Collection) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, ok := readBody(c)
		if !ok {
			return
		}
		e, err := coll.UpdateJSON(c.Request.Context(), c.Param("id"), body)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, e)
	}
}

func (s *Server) handlePatch(coll service.Collection) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, ok := readBody(c)
		if !ok {
			return
		}
		e, err := coll.PatchJSON(c.Request.Context(), c.Param("id"), body)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, e)
	}
}

func (s *Server) handleDelete(coll service.Collection) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := coll.Delete(c.Request.Context(), c.Param("id")); err != nil {
			s.writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) handleAudit(c *gin.Context) {
	f := auditindex.Filter{
		EntityID: c.Query("entityId"),
		UserID:   c.Query("userId"),
		Action:   schema.Action(c.Query("action")),
		Limit:    100,
	}
	if kind := c.Query("entityType"); kind != "" {
		k := schema.Kind(kind)
		if !k.Valid() {
			var ok bool
			if k, ok = schema.KindFromPlural(kind); !ok {
				badRequest(c, "unknown entityType "+kind)
				return
			}
		}
		f.EntityType = k
	}
	if f.Action != "" && !f.Action.Valid() {
		badRequest(c, "unknown action "+string(f.Action))
		return
	}
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			badRequest(c, "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}
	var err error
	now := time.Now()
	if since := c.Query("since"); since != "" {
		if f.Since, err = datespec.Parse(since, now); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	if until := c.Query("until"); until != "" {
		if f.Until, err = datespec.Parse(until, now); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	entries, err := s.app.QueryAudit(c.Request.Context(), f)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if entries == nil {
		entries = []schema.AuditLog{}
	}
	c.JSON(http.StatusOK, entries)
}

var exportContentTypes = map[string]string{
	service.FormatYAML: "application/yaml",
	service.FormatJSON: "application/json",
	service.FormatTOML: "application/toml",
}

func (s *Server) handleExport(c *gin.Context) {
	format := c.DefaultQuery("format", service.FormatYAML)
	contentType, ok := exportContentTypes[format]
	if !ok {
		badRequest(c, "format must be yaml, json or toml")
		return
	}
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", `attachment; filename="teamboard.`+format+`"`)
	c.Status(http.StatusOK)
	if err := s.app.Export(c.Writer, format); err != nil {
		s.logger.Error("export failed", "format", format, "error", err)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	counts := make(map[string]int)
	for _, coll := range s.app.Collections() {
		counts[coll.Kind().Plural()] = coll.Len()
	}
	clients := 0
	if s.hub != nil {
		clients = s.hub.ClientCount()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"version":     s.config.Version,
		"clients":     clients,
		"collections": counts,
		"auditIndex":  s.app.Index != nil,
	})
}
