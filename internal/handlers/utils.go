package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/mindwell/apiserver/internal/apperror"
	"github.com/mindwell/apiserver/types"
)

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
	maxBodyBytes = 1 << 20
)

type contextKey string

const (
	contextIdentityKey contextKey = "identity"
	contextTokenKey    contextKey = "token"
)

// ErrorResponse is the error payload returned by every endpoint.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// MessageResponse is a payload carrying only a human readable message.
type MessageResponse struct {
	Message string `json:"message"`
}

func withIdentity(ctx context.Context, identity types.Identity, token string) context.Context {
	ctx = context.WithValue(ctx, contextIdentityKey, identity)
	return context.WithValue(ctx, contextTokenKey, token)
}

func identityFromContext(ctx context.Context) (types.Identity, error) {
	identity, ok := ctx.Value(contextIdentityKey).(types.Identity)
	if !ok || identity.ID == "" {
		return types.Identity{}, apperror.Unauthorized("Authentication required")
	}
	return identity, nil
}

func tokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(contextTokenKey).(string)
	return token
}

func decodeJSON(r *http.Request, v any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.BadRequest("Request body is required")
		}
		return apperror.BadRequest("Invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, err *apperror.Error) {
	writeJSON(w, err.Code, ErrorResponse{Status: err.Status(), Message: err.Message})
}

// writeServiceError writes operational errors as they are and hides
// everything else behind a generic 500 after logging it.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	if appErr, ok := apperror.As(err); ok {
		writeError(w, appErr)
		return
	}
	logger.Error("unhandled error",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	writeError(w, apperror.Internal("Something went wrong"))
}

func parsePagination(r *http.Request) (page, limit, offset int, err error) {
	page = defaultPage
	limit = defaultLimit

	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, 0, apperror.BadRequest("invalid page")
		}
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return 0, 0, 0, apperror.BadRequest("invalid limit")
		}
	}

	if limit > maxLimit {
		limit = maxLimit
	}

	offset = (page - 1) * limit
	return page, limit, offset, nil
}
