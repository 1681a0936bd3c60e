package forwarderd

import (
	"io"
	"log/slog"
	"strings"

	"cctp-forwarder/go-backend/internal/config"
	"cctp-forwarder/go-backend/internal/platform/privacylog"
)

// NewLogger builds the process logger. Every record passes through the
// privacy sanitizer before it is written.
func NewLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	var base slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		base = slog.NewTextHandler(w, opts)
	} else {
		base = slog.NewJSONHandler(w, opts)
	}
	return slog.New(privacylog.WrapHandler(base)), nil
}
