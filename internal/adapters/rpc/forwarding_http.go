package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"cctp-forwarder/go-backend/internal/domains/forwarding/model"
)

const (
	msgRegistered      = "Forwarding account registered successfully."
	msgExists          = "Forwarding account exists."
	msgAddressRequired = "Hex address is required."
)

func (s *Server) handleProcessForwarding(w http.ResponseWriter, r *http.Request) {
	if !s.preflight(w, r, http.MethodPost) {
		return
	}
	reqID := requestID(r)
	w.Header().Set(requestIDHeader, reqID)

	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	var body processForwardingRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(body.HexAddress) == "" {
		writeJSONError(w, http.StatusBadRequest, msgAddressRequired)
		return
	}
	opts := model.EnsureOptions{Channel: body.Channel, Fallback: body.Fallback}
	if err := validateForwardingInput(body.HexAddress, opts); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	started := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	res, err := s.forwarder.EnsureAccount(ctx, body.HexAddress, opts)
	if err != nil {
		status, _ := mapForwardingError(err)
		s.logger.Error("error processing forwarding account",
			"component", componentName,
			"operation", "process_forwarding",
			"correlation_id", reqID,
			"recipient", body.HexAddress,
			"error", err.Error(),
		)
		writeJSONError(w, status, err.Error())
		return
	}

	message := msgExists
	if res.NewlyRegistered {
		message = msgRegistered
	}
	s.logger.Info("forwarding account ensured",
		"component", componentName,
		"operation", "process_forwarding",
		"correlation_id", reqID,
		"recipient", body.HexAddress,
		"cached", res.Cached,
		"newly_registered", res.NewlyRegistered,
		"latency_ms", time.Since(started).Milliseconds(),
	)
	writeJSON(w, http.StatusOK, processForwardingResponse{
		Message:         message,
		NobleAddress:    res.Address,
		FromCache:       res.Cached,
		NewlyRegistered: res.NewlyRegistered,
		TxHash:          res.TxHash,
	})
}
