package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"itemsvc/internal/item"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Success bool          `json:"success"`
	Error   string        `json:"error"`
	Message string        `json:"message,omitempty"`
	Path    string        `json:"path,omitempty"`
	Details []fieldDetail `json:"details,omitempty"`
	Stack   string        `json:"stack,omitempty"`
}

type fieldDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type itemResponse struct {
	Success bool      `json:"success"`
	Data    item.Item `json:"data"`
	Message string    `json:"message,omitempty"`
}

type listResponse struct {
	Success    bool        `json:"success"`
	Data       []item.Item `json:"data"`
	Pagination pagination  `json:"pagination"`
}

type pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type bulkResponse struct {
	Success bool        `json:"success"`
	Data    []item.Item `json:"data"`
	Count   int         `json:"count"`
	Message string      `json:"message"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a store or decoding error onto the response table:
// validation and malformed input are 400, missing items 404, anything else
// 500 with the detail hidden in production.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if fieldErrs, ok := item.AsValidation(err); ok {
		details := make([]fieldDetail, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			details = append(details, fieldDetail{Field: fe.Field, Message: fe.Err.Error()})
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Validation failed", Details: details})
		return
	}

	switch {
	case errors.Is(err, item.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request", Message: err.Error()})
	case errors.Is(err, item.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Item not found"})
	default:
		h.logger.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "Internal server error",
			Message: h.detail(err.Error()),
		})
	}
}

func (h *Handler) detail(msg string) string {
	if h.opts.Production {
		return "Something went wrong"
	}
	return msg
}

// decodeJSON strictly decodes a single JSON value from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request payload: %v", item.ErrInvalidInput, err)
	}
	if err := ensureSingleJSON(dec); err != nil {
		return fmt.Errorf("%w: %v", item.ErrInvalidInput, err)
	}
	return nil
}

// ensureSingleJSON ensures only a single JSON value is in the request body.
func ensureSingleJSON(dec *json.Decoder) error {
	if t, err := dec.Token(); err != io.EOF || t != nil {
		return errors.New("request body must only contain a single JSON object")
	}
	return nil
}
