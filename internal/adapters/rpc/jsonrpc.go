package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"cctp-forwarder/go-backend/internal/domains/forwarding/model"
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

const maxRPCBodyBytes int64 = 1 << 20 // 1 MiB

type queryAccountResult struct {
	Address string `json:"address,omitempty"`
	Exists  bool   `json:"exists"`
	Cached  bool   `json:"cached"`
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if !s.preflight(w, r, http.MethodPost) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	var req rpcRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeRPC(w, rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: codeParseError, Message: "parse error"},
		})
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeRPCInvalidRequest(w, req.ID)
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeRPCInvalidRequest(w, req.ID)
		return
	}

	reqID := requestID(r)
	w.Header().Set(requestIDHeader, reqID)
	started := time.Now()
	s.logger.Info("rpc request",
		"component", componentName,
		"operation", req.Method,
		"correlation_id", reqID,
		"rpc_id", string(req.ID),
	)

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	result, rpcErr := s.dispatchRPC(ctx, req.Method, req.Params)
	if rpcErr != nil {
		s.logger.Warn("rpc failed",
			"component", componentName,
			"operation", req.Method,
			"correlation_id", reqID,
			"rpc_code", rpcErr.Code,
			"latency_ms", time.Since(started).Milliseconds(),
		)
	} else {
		s.logger.Info("rpc response",
			"component", componentName,
			"operation", req.Method,
			"correlation_id", reqID,
			"latency_ms", time.Since(started).Milliseconds(),
		)
	}
	writeRPC(w, rpcResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  result,
		Error:   rpcErr,
	})
}

func (s *Server) dispatchRPC(ctx context.Context, method string, rawParams json.RawMessage) (any, *rpcError) {
	switch method {
	case "health_check":
		return map[string]string{"status": "ok"}, nil
	case "rpc.version":
		return rpcVersionInfo(), nil
	case "forwarding.ensure_account":
		p, err := decodeForwardingParams(rawParams)
		if err != nil {
			return nil, rpcInvalidParams()
		}
		if rpcErr := validateMethodVersion(method, p.APIVersion); rpcErr != nil {
			return nil, rpcErr
		}
		res, err := s.forwarder.EnsureAccount(ctx, p.Recipient, p.Options)
		if err != nil {
			_, rpcErr := mapForwardingError(err)
			return nil, rpcErr
		}
		return res, nil
	case "forwarding.query_account":
		p, err := decodeForwardingParams(rawParams)
		if err != nil {
			return nil, rpcInvalidParams()
		}
		if rpcErr := validateMethodVersion(method, p.APIVersion); rpcErr != nil {
			return nil, rpcErr
		}
		res, cached, err := s.forwarder.QueryAccount(ctx, p.Recipient, p.Options)
		if err != nil {
			_, rpcErr := mapForwardingError(err)
			return nil, rpcErr
		}
		switch res.Outcome {
		case model.QueryPresent:
			return queryAccountResult{Address: res.Record.Address, Exists: true, Cached: cached}, nil
		case model.QueryAbsent:
			return queryAccountResult{}, nil
		default:
			return nil, &rpcError{Code: codeQueryUnavailable, Message: errString(res.Err, "forwarding query unavailable")}
		}
	default:
		return nil, &rpcError{Code: codeMethodNotFound, Message: "method not found"}
	}
}

func writeRPC(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func writeRPCInvalidRequest(w http.ResponseWriter, id json.RawMessage) {
	writeRPC(w, rpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: codeInvalidRequest, Message: "invalid request"},
	})
}

func errString(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	return err.Error()
}
