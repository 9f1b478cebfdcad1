// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	terminology "github.com/AleutianAI/terminology/services/terminology"
	"github.com/AleutianAI/terminology/services/terminology/query"
	"github.com/AleutianAI/terminology/services/terminology/search"
	"github.com/AleutianAI/terminology/services/terminology/store"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the machine-readable error code.
	Code string `json:"code,omitempty"`
}

// Handlers contains the HTTP handlers for the terminology API.
//
// Thread Safety: Handlers is safe for concurrent use.
type Handlers struct {
	svc *terminology.Service
	log *slog.Logger
}

// NewHandlers creates handlers over an open terminology service.
func NewHandlers(svc *terminology.Service, log *slog.Logger) *Handlers {
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{svc: svc, log: log}
}

// HandleConcept handles GET /v1/concepts/:id.
func (h *Handlers) HandleConcept(c *gin.Context) {
	id, ok := conceptParam(c)
	if !ok {
		return
	}
	concept, err := h.svc.Concept(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, concept)
}

// HandleDescriptions handles GET /v1/concepts/:id/descriptions.
func (h *Handlers) HandleDescriptions(c *gin.Context) {
	id, ok := conceptParam(c)
	if !ok {
		return
	}
	descs, err := h.svc.ConceptDescriptions(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, descs)
}

// HandlePreferred handles GET /v1/concepts/:id/preferred.
//
// Description:
//
//	Resolves the concept's preferred synonym under the locale given by
//	the "locale" query parameter or, failing that, the Accept-Language
//	header. With neither, the service default applies.
func (h *Handlers) HandlePreferred(c *gin.Context) {
	id, ok := conceptParam(c)
	if !ok {
		return
	}
	locale := c.Query("locale")
	if locale == "" {
		locale = c.GetHeader("Accept-Language")
	}
	desc, err := h.svc.PreferredSynonym(c.Request.Context(), id, locale)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, desc)
}

// HandleFSN handles GET /v1/concepts/:id/fsn.
func (h *Handlers) HandleFSN(c *gin.Context) {
	id, ok := conceptParam(c)
	if !ok {
		return
	}
	desc, err := h.svc.FullySpecifiedName(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, desc)
}

// HandleExtended handles GET /v1/concepts/:id/extended.
func (h *Handlers) HandleExtended(c *gin.Context) {
	id, ok := conceptParam(c)
	if !ok {
		return
	}
	ec, err := h.svc.ExtendedConcept(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ec)
}

// HandleParents handles GET /v1/concepts/:id/parents. An optional
// "type" query parameter restricts to one relationship type.
func (h *Handlers) HandleParents(c *gin.Context) {
	id, ok := conceptParam(c)
	if !ok {
		return
	}
	if typeParam := c.Query("type"); typeParam != "" {
		typeID, err := strconv.ParseInt(typeParam, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "type must be a SCTID",
				Code:  "INVALID_PARAMETER",
			})
			return
		}
		rels, err := h.svc.ParentRelationshipsOfType(c.Request.Context(), id, typeID)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, rels)
		return
	}
	rels, err := h.svc.ParentRelationships(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rels)
}

// HandleRefsets handles GET /v1/concepts/:id/refsets. An optional
// "refset" query parameter restricts to one refset.
func (h *Handlers) HandleRefsets(c *gin.Context) {
	id, ok := conceptParam(c)
	if !ok {
		return
	}
	var refsetID int64
	if rs := c.Query("refset"); rs != "" {
		parsed, err := strconv.ParseInt(rs, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "refset must be a SCTID",
				Code:  "INVALID_PARAMETER",
			})
			return
		}
		refsetID = parsed
	}
	items, err := h.svc.ComponentRefsetItems(c.Request.Context(), id, refsetID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// HandleAssociations handles GET /v1/concepts/:id/associations,
// returning historical associations grouped by association refset.
func (h *Handlers) HandleAssociations(c *gin.Context) {
	id, ok := conceptParam(c)
	if !ok {
		return
	}
	assocs, err := h.svc.HistoricalAssociations(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make(map[string][]int64, len(assocs))
	for refsetID, items := range assocs {
		targets := make([]int64, 0, len(items))
		for _, item := range items {
			targets = append(targets, item.TargetComponentID)
		}
		out[strconv.FormatInt(refsetID, 10)] = targets
	}
	c.JSON(http.StatusOK, out)
}

// searchResponse wraps search hits for the wire.
type searchResponse struct {
	Items []search.Result `json:"items"`
	Total int             `json:"total"`
}

// HandleSearch handles GET /v1/search.
//
// Query parameters:
//
//	s        - query text (required)
//	max      - maximum hits
//	locale   - BCP-47 priority list for preferred terms
//	refset   - repeatable; restrict to members of any listed refset
//	property - repeatable <typeId>=<valueId>; require a direct attribute value
//	fsn      - include fully specified names
//	inactive - include inactive concepts
//	fuzzy    - fuzzy token matching from the start
//	ranked   - OR semantics across tokens instead of AND
func (h *Handlers) HandleSearch(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.log.With("request_id", requestID, "handler", "HandleSearch")

	term := c.Query("s")
	if term == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "query parameter s is required",
			Code:  "EMPTY_QUERY",
		})
		return
	}

	req := terminology.SearchRequest{Locale: c.Query("locale")}
	req.Term = term
	req.Fuzzy = c.Query("fuzzy") == "true"
	req.FallbackFuzzy = !req.Fuzzy
	req.IncludeFSN = c.Query("fsn") == "true"
	req.IncludeInactiveConcepts = c.Query("inactive") == "true"
	req.Ranked = c.Query("ranked") == "true"
	if maxParam := c.Query("max"); maxParam != "" {
		maxHits, err := strconv.Atoi(maxParam)
		if err != nil || maxHits < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "max must be a non-negative integer",
				Code:  "INVALID_PARAMETER",
			})
			return
		}
		req.MaxHits = maxHits
	}
	for _, rs := range c.QueryArray("refset") {
		refsetID, err := strconv.ParseInt(rs, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "refset must be a SCTID",
				Code:  "INVALID_PARAMETER",
			})
			return
		}
		req.ConceptRefsets = append(req.ConceptRefsets, refsetID)
	}
	for _, prop := range c.QueryArray("property") {
		typeStr, valueStr, found := strings.Cut(prop, "=")
		typeID, typeErr := strconv.ParseInt(typeStr, 10, 64)
		valueID, valueErr := strconv.ParseInt(valueStr, 10, 64)
		if !found || typeErr != nil || valueErr != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "property must be <typeId>=<valueId>",
				Code:  "INVALID_PARAMETER",
			})
			return
		}
		req.Properties = append(req.Properties, search.Property{
			TypeID: typeID, ValueID: valueID,
		})
	}

	results, err := h.svc.Search(c.Request.Context(), req)
	if err != nil {
		searchesTotal.WithLabelValues("error").Inc()
		logger.Warn("search failed", "error", err)
		h.fail(c, err)
		return
	}
	searchesTotal.WithLabelValues("ok").Inc()
	if results == nil {
		results = []search.Result{}
	}
	c.JSON(http.StatusOK, searchResponse{Items: results, Total: len(results)})
}

// eclRequest is the POST /v1/ecl body: a JSON-encoded syntax tree plus
// an optional result cap.
type eclRequest struct {
	Expression expressionJSON `json:"expression"`
	Limit      int            `json:"limit"`
}

type eclResponse struct {
	ConceptIDs []int64 `json:"concept_ids"`
	Total      int     `json:"total"`
}

// HandleECL handles POST /v1/ecl, realizing an expression constraint
// to its sorted concept-id set.
func (h *Handlers) HandleECL(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.log.With("request_id", requestID, "handler", "HandleECL")

	var req eclRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	expr, err := req.Expression.expression()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_EXPRESSION",
		})
		return
	}

	ids, err := h.svc.RealizeECL(c.Request.Context(), expr)
	if err != nil {
		eclRealizationsTotal.WithLabelValues("error").Inc()
		logger.Warn("ecl realization failed", "error", err)
		h.fail(c, err)
		return
	}
	eclRealizationsTotal.WithLabelValues("ok").Inc()

	total := len(ids)
	if req.Limit > 0 && len(ids) > req.Limit {
		ids = ids[:req.Limit]
	}
	if ids == nil {
		ids = []int64{}
	}
	c.JSON(http.StatusOK, eclResponse{ConceptIDs: ids, Total: total})
}

// HandleReverseMap handles GET /v1/refsets/:id/reverse-map?target=...,
// finding map members whose target code matches, e.g. an ICD-10 code
// back to SNOMED.
func (h *Handlers) HandleReverseMap(c *gin.Context) {
	refsetID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "refset id must be a SCTID",
			Code:  "INVALID_ID",
		})
		return
	}
	target := c.Query("target")
	if target == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "query parameter target is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}
	items, err := h.svc.ReverseMap(c.Request.Context(), refsetID, target)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// HandleStatus handles GET /v1/status.
func (h *Handlers) HandleStatus(c *gin.Context) {
	counts, err := h.svc.Status(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

// fail maps service errors onto HTTP statuses.
func (h *Handlers) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: err.Error(),
			Code:  "NOT_FOUND",
		})
	case errors.Is(err, terminology.ErrNoIndex):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "search index not built; run the index command",
			Code:  "NO_INDEX",
		})
	case errors.Is(err, query.ErrInvalidRange),
		errors.Is(err, query.ErrBadOperator),
		errors.Is(err, query.ErrEmptyRefsets),
		errors.Is(err, query.ErrUnsupported):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_EXPRESSION",
		})
	default:
		h.log.Error("request failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "INTERNAL",
		})
	}
}

func conceptParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "concept id must be a SCTID",
			Code:  "INVALID_ID",
		})
		return 0, false
	}
	return id, true
}

func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
