package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"liferoom.ai/internal/model"
	"liferoom.ai/internal/persistence/store"
	"liferoom.ai/internal/protocol"
)

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeOK(rw http.ResponseWriter, status int, data any) {
	writeJSON(rw, status, protocol.OK(data))
}

func writeErr(rw http.ResponseWriter, e *protocol.Error) {
	writeJSON(rw, protocol.HTTPStatus(e.Code), protocol.Fail(e.Code, e.Message, e.Hint))
}

func errInternal(msg string, err error) *protocol.Error {
	return protocol.NewError(protocol.ErrInternal, msg, err.Error())
}

// readBody enforces the body cap and validates against schema. The raw bytes
// are returned so callers can decode into their own shapes.
func (s *Server) readBody(rw http.ResponseWriter, r *http.Request, schema string) ([]byte, *protocol.Error) {
	limit := int64(s.opts.Room.Limits.MaxBodyBytes)
	if limit <= 0 {
		limit = 1 << 20
	}
	raw, err := io.ReadAll(http.MaxBytesReader(rw, r.Body, limit))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, protocol.NewError(protocol.ErrBadRequest, "Request body too large", "limit is "+strconv.FormatInt(limit, 10)+" bytes")
		}
		return nil, protocol.NewError(protocol.ErrBadRequest, "Could not read body", err.Error())
	}
	if s.Validator != nil {
		if err := s.Validator.Validate(schema, raw); err != nil {
			var pe *protocol.Error
			if errors.As(err, &pe) {
				return nil, pe
			}
			return nil, errInternal("Schema check failed", err)
		}
	}
	return raw, nil
}

func (s *Server) decode(rw http.ResponseWriter, r *http.Request, schema string, v any) *protocol.Error {
	raw, perr := s.readBody(rw, r, schema)
	if perr != nil {
		return perr
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return protocol.NewError(protocol.ErrBadRequest, "Invalid JSON body", err.Error())
	}
	return nil
}

// page parses limit/offset. Bad or missing values fall back to the defaults;
// limit is clamped to [1, max].
func (s *Server) page(r *http.Request, max int) (limit, offset int) {
	def := s.opts.Room.Limits.DefaultPage
	if def <= 0 {
		def = 20
	}
	if max < def {
		max = def
	}
	q := r.URL.Query()
	limit = def
	if n, err := strconv.Atoi(q.Get("limit")); err == nil {
		limit = n
	}
	if limit < 1 {
		limit = 1
	}
	if limit > max {
		limit = max
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n > 0 {
		offset = n
	}
	return limit, offset
}

func bearer(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

type agentHandler func(rw http.ResponseWriter, r *http.Request, a model.Agent)

func (s *Server) withAgent(h agentHandler) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		key := bearer(r)
		if key == "" {
			writeErr(rw, protocol.NewError(protocol.ErrUnauthorized, "Missing API key", "Include Authorization: Bearer YOUR_API_KEY"))
			return
		}
		a, err := s.Store.AgentByAPIKey(r.Context(), key)
		if errors.Is(err, store.ErrNotFound) {
			writeErr(rw, protocol.NewError(protocol.ErrUnauthorized, "Invalid API key", "Agent not found"))
			return
		}
		if err != nil {
			writeErr(rw, errInternal("Failed to authenticate", err))
			return
		}
		h(rw, r, a)
	}
}

// withAdmin requires X-Admin-Key when an admin key is configured. Without
// one, admin routes are reachable from loopback only.
func (s *Server) withAdmin(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if s.opts.AdminKey == "" {
			if !isLoopbackRemote(r.RemoteAddr) {
				writeErr(rw, protocol.NewError(protocol.ErrForbidden, "Forbidden", "admin endpoints are local-only without an admin key"))
				return
			}
			h(rw, r)
			return
		}
		got := strings.TrimSpace(r.Header.Get("X-Admin-Key"))
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.AdminKey)) != 1 {
			writeErr(rw, protocol.NewError(protocol.ErrUnauthorized, "Unauthorized", "Invalid admin key"))
			return
		}
		h(rw, r)
	}
}

// touch records agent activity. Failures are only logged.
func (s *Server) touch(ctx context.Context, a model.Agent) {
	if err := s.Store.TouchAgent(ctx, a.ID, s.now().UTC()); err != nil {
		s.printf("touch agent=%s: %v", a.Name, err)
	}
}
