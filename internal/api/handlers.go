package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/hay-kot/criterio"

	"itemsvc/internal/item"
)

// handleListItems processes GET /api/items.
func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	h.metrics.RecordAPICall()

	q := parseQuery(r).Normalize()
	items, total, err := h.store.List(r.Context(), q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, listResponse{
		Success: true,
		Data:    items,
		Pagination: pagination{
			Page:  q.Page,
			Limit: q.Limit,
			Total: total,
			Pages: q.Pages(total),
		},
	})
}

// handleGetItem processes GET /api/items/{id}.
func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	h.metrics.RecordAPICall()

	it, err := h.store.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, itemResponse{Success: true, Data: it})
}

// handleCreateItem processes POST /api/items.
func (h *Handler) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	h.metrics.RecordAPICall()

	var f item.Fields
	if err := decodeJSON(w, r, &f); err != nil {
		h.writeError(w, r, err)
		return
	}

	it, err := h.store.Create(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/items/%s", it.ID))
	writeJSON(w, http.StatusCreated, itemResponse{
		Success: true,
		Data:    it,
		Message: "Item created successfully",
	})
}

// handleUpdateItem processes PUT /api/items/{id}.
func (h *Handler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	h.metrics.RecordAPICall()

	var f item.Fields
	if err := decodeJSON(w, r, &f); err != nil {
		h.writeError(w, r, err)
		return
	}

	it, err := h.store.Update(r.Context(), mux.Vars(r)["id"], f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, itemResponse{
		Success: true,
		Data:    it,
		Message: "Item updated successfully",
	})
}

// handleDeleteItem processes DELETE /api/items/{id}.
func (h *Handler) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	h.metrics.RecordAPICall()

	removed, err := h.store.Delete(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !removed {
		h.writeError(w, r, item.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Item deleted successfully"})
}

// bulkRequest is the payload for POST /api/items/bulk.
type bulkRequest struct {
	Items json.RawMessage `json:"items"`
}

// handleBulkCreate processes POST /api/items/bulk.
func (h *Handler) handleBulkCreate(w http.ResponseWriter, r *http.Request) {
	h.metrics.RecordAPICall()

	var req bulkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	fs, err := decodeBatch(req.Items)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items, err := h.store.BulkCreate(r.Context(), fs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, bulkResponse{
		Success: true,
		Data:    items,
		Count:   len(items),
		Message: fmt.Sprintf("%d items created successfully", len(items)),
	})
}

// decodeBatch requires raw to be a JSON array and decodes its entries.
func decodeBatch(raw json.RawMessage) ([]item.Fields, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, criterio.NewFieldErrors("items", errors.New("must be a non-empty array"))
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var fs []item.Fields
	if err := dec.Decode(&fs); err != nil {
		return nil, fmt.Errorf("%w: invalid items: %v", item.ErrInvalidInput, err)
	}
	return fs, nil
}

// parseQuery reads list parameters. Values that do not parse are left at
// zero so Normalize applies the defaults.
func parseQuery(r *http.Request) item.Query {
	v := r.URL.Query()
	q := item.Query{
		Status: item.Status(v.Get("status")),
		SortBy: v.Get("sortBy"),
		Order:  v.Get("order"),
	}
	q.Page, _ = strconv.Atoi(v.Get("page"))
	q.Limit, _ = strconv.Atoi(v.Get("limit"))
	return q
}
