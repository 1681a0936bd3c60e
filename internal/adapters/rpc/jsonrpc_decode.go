package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"cctp-forwarder/go-backend/internal/domains/forwarding/model"
	"cctp-forwarder/go-backend/internal/domains/forwarding/policy"
)

type forwardingParams struct {
	Recipient  string
	Options    model.EnsureOptions
	APIVersion *int
}

// decodeForwardingParams accepts either a positional array
// [recipient, channel?, fallback?] or an object with named fields.
func decodeForwardingParams(raw json.RawMessage) (forwardingParams, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return forwardingParams{}, errInvalidParams
	}
	if raw[0] == '[' {
		var arr []string
		if err := json.Unmarshal(raw, &arr); err != nil || len(arr) < 1 || len(arr) > 3 {
			return forwardingParams{}, errInvalidParams
		}
		p := forwardingParams{Recipient: arr[0]}
		if len(arr) > 1 {
			p.Options.Channel = arr[1]
		}
		if len(arr) > 2 {
			p.Options.Fallback = arr[2]
		}
		return p, validateRecipientParam(p)
	}

	var obj struct {
		Recipient  string `json:"recipient"`
		HexAddress string `json:"hexAddress"`
		Channel    string `json:"channel"`
		Fallback   string `json:"fallback"`
		APIVersion *int   `json:"api_version"`
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&obj); err != nil {
		return forwardingParams{}, errInvalidParams
	}
	recipient := obj.Recipient
	if recipient == "" {
		recipient = obj.HexAddress
	}
	p := forwardingParams{
		Recipient:  recipient,
		Options:    model.EnsureOptions{Channel: obj.Channel, Fallback: obj.Fallback},
		APIVersion: obj.APIVersion,
	}
	return p, validateRecipientParam(p)
}

func validateRecipientParam(p forwardingParams) error {
	if strings.TrimSpace(p.Recipient) == "" {
		return errInvalidParams
	}
	return validateForwardingInput(p.Recipient, p.Options)
}

func validateForwardingInput(recipient string, opts model.EnsureOptions) error {
	if _, err := policy.ValidateHexRecipient(recipient); err != nil {
		return err
	}
	if err := policy.ValidateChannel(opts.Channel); err != nil {
		return fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	if err := policy.ValidateFallback(opts.Fallback); err != nil {
		return fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	return nil
}

// processForwardingRequest is the REST body. chain is accepted for
// compatibility with existing callers and otherwise ignored.
type processForwardingRequest struct {
	HexAddress string `json:"hexAddress"`
	Chain      string `json:"chain,omitempty"`
	Channel    string `json:"channel,omitempty"`
	Fallback   string `json:"fallback,omitempty"`
}

type processForwardingResponse struct {
	Message         string `json:"message"`
	NobleAddress    string `json:"nobleAddress"`
	FromCache       bool   `json:"fromCache"`
	NewlyRegistered bool   `json:"newlyRegistered"`
	TxHash          string `json:"txHash,omitempty"`
}
