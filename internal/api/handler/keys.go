package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/finsight/internal/api/response"
	"github.com/kiranshivaraju/finsight/internal/apikey"
	"github.com/kiranshivaraju/finsight/internal/store"
	"github.com/kiranshivaraju/finsight/pkg/models"
)

// KeyManager defines the API key administration operations.
type KeyManager interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

// NewCreateKeyHandler returns an http.HandlerFunc for POST /admin/keys.
// The raw key appears in this response only.
func NewCreateKeyHandler(keys KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name   string   `json:"name"`
			Scopes []string `json:"scopes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		key, raw, err := apikey.Generate(req.Name, req.Scopes)
		if err != nil {
			if errors.Is(err, apikey.ErrNameRequired) || errors.Is(err, apikey.ErrUnknownScope) {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
				return
			}
			slog.Error("generating api key", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}

		if err := keys.CreateAPIKey(r.Context(), key); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				response.Error(w, http.StatusConflict, "DUPLICATE_KEY", "Key collision, retry the request", nil)
				return
			}
			slog.Error("storing api key", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}

		slog.Info("api key created", "key_id", key.ID, "key_prefix", key.KeyPrefix)
		response.Created(w, createdKey{APIKey: key, Key: raw})
	}
}

// NewListKeysHandler returns an http.HandlerFunc for GET /admin/keys.
func NewListKeysHandler(keys KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := keys.ListAPIKeys(r.Context())
		if err != nil {
			slog.Error("listing api keys", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}
		if list == nil {
			list = []*models.APIKey{}
		}
		response.JSON(w, list)
	}
}

// NewRevokeKeyHandler returns an http.HandlerFunc for DELETE /admin/keys/{keyID}.
func NewRevokeKeyHandler(keys KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "keyID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_KEY_ID", "key id must be a UUID", nil)
			return
		}

		if err := keys.RevokeAPIKey(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "API key not found", nil)
				return
			}
			slog.Error("revoking api key", "key_id", id, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}
		slog.Info("api key revoked", "key_id", id)
		response.NoContent(w)
	}
}

type createdKey struct {
	*models.APIKey
	Key string `json:"key"`
}
