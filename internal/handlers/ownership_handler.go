package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/sakaguchi/ownerstats/internal/catalog"
	"github.com/sakaguchi/ownerstats/internal/entities"
	"github.com/sakaguchi/ownerstats/internal/services/ownership"
)

// OwnershipHandler serves the owned-entities aggregation endpoint.
type OwnershipHandler struct {
	service ownership.ServiceInterface
	catalog catalog.Client
	logger  *slog.Logger
}

// NewOwnershipHandler creates a new OwnershipHandler.
func NewOwnershipHandler(service ownership.ServiceInterface, cat catalog.Client, logger *slog.Logger) *OwnershipHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OwnershipHandler{service: service, catalog: cat, logger: logger}
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	var eb errorBody
	eb.Error.Message = message
	writeJSON(w, status, eb)
}

// OwnedEntities handles
// GET /api/ownership/{kind}/{namespace}/{name}/owned-entities.
//
// Query parameters:
//
//	mode   - "aggregated" (default) or "direct"
//	kinds  - comma-separated kind filter, e.g. "component,api"
//	limit  - maximum number of rows
func (h *OwnershipHandler) OwnedEntities(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ref := entities.Ref{
		Kind:      vars["kind"],
		Namespace: vars["namespace"],
		Name:      vars["name"],
	}
	if err := ref.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	mode, err := ownership.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var kinds []string
	if raw := r.URL.Query().Get("kinds"); raw != "" {
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				kinds = append(kinds, k)
			}
		}
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
	}

	entity, err := h.loadEntity(r, ref)
	if err != nil {
		h.logger.Error("failed to load entity", "ref", ref.String(), "error", err)
		writeError(w, http.StatusBadGateway, "failed to load entity from catalog")
		return
	}
	if entity == nil {
		writeError(w, http.StatusNotFound, "entity not found: "+ref.String())
		return
	}

	resp, err := h.service.OwnedEntities(r.Context(), &ownership.OwnedEntitiesRequest{
		Entity: entity,
		Mode:   mode,
		Kinds:  kinds,
		Limit:  limit,
	})
	if err != nil {
		if catalog.IsFetchError(err) {
			h.logger.Error("catalog fetch failed", "ref", ref.String(), "error", err)
			writeError(w, http.StatusBadGateway, "catalog request failed")
			return
		}
		h.logger.Error("ownership aggregation failed", "ref", ref.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *OwnershipHandler) loadEntity(r *http.Request, ref entities.Ref) (*entities.Entity, error) {
	found, err := h.catalog.EntitiesByRefs(r.Context(), catalog.ByRefsRequest{
		Refs:   []entities.Ref{ref},
		Fields: catalog.TraversalFields,
	})
	if err != nil {
		return nil, err
	}
	return found[0], nil
}
