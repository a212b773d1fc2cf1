package handlers

import (
	"github.com/gin-gonic/gin"

	"docforge/internal/domain"
	"docforge/internal/domain/filter"
	"docforge/internal/infrastructure/http/v1/dto"
)

// DocumentHandler serves documents of every doctype under
// /documents/:doctype.
type DocumentHandler struct {
	*BaseHandler
	service *domain.DocumentService
}

// NewDocumentHandler creates a new document handler.
func NewDocumentHandler(base *BaseHandler, service *domain.DocumentService) *DocumentHandler {
	return &DocumentHandler{BaseHandler: base, service: service}
}

// List handles GET /documents/:doctype?filters=[...]&limit=&offset=&order_by=
func (h *DocumentHandler) List(c *gin.Context) {
	var req dto.ListRequest
	if !h.BindQuery(c, &req) {
		return
	}

	f := domain.DefaultListFilter()
	if req.Limit > 0 {
		f.Limit = req.Limit
	}
	f.Offset = req.Offset
	if req.OrderBy != "" {
		f.OrderBy = req.OrderBy
	}
	if req.Filters != "" {
		filters, err := filter.Parse([]byte(req.Filters))
		if err != nil {
			h.Error(c, err)
			return
		}
		f.Filters = filters
	}

	doctype := c.Param("doctype")
	res, err := h.service.List(c.Request.Context(), doctype, f)
	if err != nil {
		h.Error(c, notFoundDoctype(doctype, err))
		return
	}
	h.OK(c, dto.ListResponse{
		Items:      res.Items,
		TotalCount: res.TotalCount,
		Limit:      res.Limit,
		Offset:     res.Offset,
	})
}

// Create handles POST /documents/:doctype
func (h *DocumentHandler) Create(c *gin.Context) {
	var raw map[string]any
	if !h.BindJSON(c, &raw) {
		return
	}
	doctype := c.Param("doctype")
	doc, err := h.service.Create(c.Request.Context(), doctype, raw)
	if err != nil {
		h.Error(c, notFoundDoctype(doctype, err))
		return
	}
	h.Created(c, doc)
}

// Validate handles POST /validate/:doctype. Nothing is stored.
func (h *DocumentHandler) Validate(c *gin.Context) {
	var raw map[string]any
	if !h.BindJSON(c, &raw) {
		return
	}
	doctype := c.Param("doctype")
	values, err := h.service.Validate(c.Request.Context(), doctype, raw)
	if err != nil {
		h.Error(c, notFoundDoctype(doctype, err))
		return
	}
	h.OK(c, dto.ValidateResponse{Valid: true, Values: values})
}

// Get handles GET /documents/:doctype/:id
func (h *DocumentHandler) Get(c *gin.Context) {
	doctype := c.Param("doctype")
	doc, err := h.service.Get(c.Request.Context(), doctype, c.Param("id"))
	if err != nil {
		h.Error(c, notFoundDoctype(doctype, err))
		return
	}
	h.OK(c, doc)
}

// Update handles PUT /documents/:doctype/:id with a partial body.
func (h *DocumentHandler) Update(c *gin.Context) {
	var changes map[string]any
	if !h.BindJSON(c, &changes) {
		return
	}
	doctype := c.Param("doctype")
	doc, err := h.service.Update(c.Request.Context(), doctype, c.Param("id"), changes)
	if err != nil {
		h.Error(c, notFoundDoctype(doctype, err))
		return
	}
	h.OK(c, doc)
}

// Submit handles POST /documents/:doctype/:id/submit
func (h *DocumentHandler) Submit(c *gin.Context) {
	doctype := c.Param("doctype")
	doc, err := h.service.Submit(c.Request.Context(), doctype, c.Param("id"))
	if err != nil {
		h.Error(c, notFoundDoctype(doctype, err))
		return
	}
	h.OK(c, doc)
}

// Cancel handles POST /documents/:doctype/:id/cancel
func (h *DocumentHandler) Cancel(c *gin.Context) {
	doctype := c.Param("doctype")
	doc, err := h.service.Cancel(c.Request.Context(), doctype, c.Param("id"))
	if err != nil {
		h.Error(c, notFoundDoctype(doctype, err))
		return
	}
	h.OK(c, doc)
}

// History handles GET /documents/:doctype/:id/history?limit=
// A positive limit keeps only the most recent transitions.
func (h *DocumentHandler) History(c *gin.Context) {
	doctype := c.Param("doctype")
	transitions, err := h.service.History(c.Request.Context(), doctype, c.Param("id"))
	if err != nil {
		h.Error(c, notFoundDoctype(doctype, err))
		return
	}
	if limit := h.ParseIntQuery(c, "limit", 0); limit > 0 && len(transitions) > limit {
		transitions = transitions[len(transitions)-limit:]
	}
	h.OK(c, dto.HistoryResponse{Items: transitions})
}

// FilterHandler evaluates filter lists without storage.
type FilterHandler struct {
	*BaseHandler
}

// NewFilterHandler creates a filter handler.
func NewFilterHandler(base *BaseHandler) *FilterHandler {
	return &FilterHandler{BaseHandler: base}
}

// Match handles POST /filters/match: {"filters": [[f, op, v], ...], "document": {...}}.
func (h *FilterHandler) Match(c *gin.Context) {
	var req dto.MatchRequest
	if !h.BindJSON(c, &req) {
		return
	}
	filters, err := filter.Parse(req.Filters)
	if err != nil {
		h.Error(c, err)
		return
	}
	m, err := filter.NewMatcher(filters)
	if err != nil {
		h.Error(c, err)
		return
	}
	ok, err := m.Match(req.Document)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.MatchResponse{Match: ok, Filters: filters})
}
