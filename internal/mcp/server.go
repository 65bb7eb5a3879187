// Package mcp exposes the room's agent API as JSON-RPC tools for agent
// runtimes that speak MCP instead of plain HTTP. Every tool call is forwarded
// to the room with the caller's own API key.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const ProtocolVersion = "2024-11-05"

type Config struct {
	Room       Room
	HMACSecret string
	Logger     *log.Logger
}

type Server struct {
	room       Room
	hmacSecret []byte
	replay     *replayGuard
	logger     *log.Logger
	now        func() time.Time
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Room == nil {
		return nil, errors.New("nil room")
	}
	s := &Server{
		room:   cfg.Room,
		logger: cfg.Logger,
		now:    time.Now,
	}
	if strings.TrimSpace(cfg.HMACSecret) != "" {
		s.hmacSecret = []byte(cfg.HMACSecret)
		s.replay = newReplayGuard(0)
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard, "", 0)
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/mcp", s.handleMCP)
	return mux
}

func (s *Server) handleMCP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(rw, "bad body", http.StatusBadRequest)
		return
	}
	_ = r.Body.Close()

	sessionKey := strings.TrimSpace(r.Header.Get(headerAgentID))
	if len(s.hmacSecret) > 0 {
		now := s.now()
		vr := verifyHMAC(r, body, s.hmacSecret, now)
		if vr.HTTPStatus != 0 {
			http.Error(rw, vr.Message, vr.HTTPStatus)
			return
		}
		if !s.replay.allow(vr.SessionKey, vr.Signature, now) {
			http.Error(rw, "replayed request", http.StatusUnauthorized)
			return
		}
		sessionKey = vr.SessionKey
	}

	rw.Header().Set("Content-Type", "application/json")
	req, err := parseRPCRequest(body)
	if err != nil {
		_ = json.NewEncoder(rw).Encode(rpcErr(nil, codeParse, "bad jsonrpc request", err.Error()))
		return
	}
	resp := s.dispatch(r.Context(), bearer(r), req)
	if resp.Error != nil && resp.Error.Code == codeToolFailed {
		s.logger.Printf("session=%q method=%s err=%s", sessionKey, req.Method, resp.Error.Message)
	}
	_ = json.NewEncoder(rw).Encode(resp)
}

func (s *Server) dispatch(ctx context.Context, apiKey string, req rpcRequest) rpcResponse {
	switch req.Method {
	case "initialize":
		return rpcOK(req.ID, map[string]any{
			"protocolVersion": ProtocolVersion,
			"serverInfo":      map[string]any{"name": "liferoom"},
			"capabilities": map[string]any{
				"tools": map[string]any{"listChanged": false},
			},
		})

	case "tools/list", "list_tools":
		out := make([]map[string]any, 0, len(tools))
		for _, t := range tools {
			out = append(out, map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"inputSchema": t.Input,
			})
		}
		return rpcOK(req.ID, map[string]any{"tools": out})

	case "tools/call", "call_tool":
		var p struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if len(req.Params) == 0 {
			return rpcErr(req.ID, codeInvalidParams, "missing params", nil)
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return rpcErr(req.ID, codeInvalidParams, "bad params", err.Error())
		}
		t, ok := toolByName(p.Name)
		if !ok {
			return rpcErr(req.ID, codeMethodNotFound, "tool not found", map[string]any{"name": p.Name})
		}
		out, err := s.callTool(ctx, apiKey, t, p.Arguments)
		if err != nil {
			var ae *APIError
			if errors.As(err, &ae) {
				return rpcErr(req.ID, codeToolFailed, ae.Error(), ae)
			}
			var ie invalidArgs
			if errors.As(err, &ie) {
				return rpcErr(req.ID, codeInvalidParams, ie.Error(), nil)
			}
			return rpcErr(req.ID, codeToolFailed, err.Error(), nil)
		}
		return rpcOK(req.ID, out)

	default:
		return rpcErr(req.ID, codeMethodNotFound, "method not found", nil)
	}
}

type invalidArgs string

func (e invalidArgs) Error() string { return string(e) }

func (s *Server) callTool(ctx context.Context, apiKey string, t tool, raw json.RawMessage) (json.RawMessage, error) {
	args := map[string]any{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, invalidArgs("arguments must be an object")
		}
	}
	if t.Auth && apiKey == "" {
		return nil, invalidArgs("missing room api key (send Authorization: Bearer <key>)")
	}

	path := t.Path
	if t.PathArg != "" {
		v, _ := args[t.PathArg].(string)
		if strings.TrimSpace(v) == "" {
			return nil, invalidArgs("missing " + t.PathArg)
		}
		path = strings.Replace(path, "{"+t.PathArg+"}", url.PathEscape(strings.TrimSpace(v)), 1)
		delete(args, t.PathArg)
	}
	if len(t.Query) > 0 {
		q := url.Values{}
		for _, k := range t.Query {
			switch v := args[k].(type) {
			case string:
				q.Set(k, v)
			case float64:
				q.Set(k, strconv.Itoa(int(v)))
			}
		}
		if len(q) > 0 {
			path += "?" + q.Encode()
		}
	}

	var body json.RawMessage
	if t.Method != http.MethodGet {
		b, err := json.Marshal(args)
		if err != nil {
			return nil, err
		}
		body = b
	}
	key := ""
	if t.Auth {
		key = apiKey
	}
	return s.room.Do(ctx, t.Method, path, key, body)
}
