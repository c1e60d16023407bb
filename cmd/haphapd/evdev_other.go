//go:build !linux

package main

import (
	"fmt"
	"log/slog"
)

// EvdevBackend is unavailable off Linux; it probes as unsupported so every
// session operation is a noop.
type EvdevBackend struct {
	cfg    EvdevConfig
	logger *slog.Logger
}

func NewEvdevBackend(cfg EvdevConfig, controlHz int, logger *slog.Logger) Backend {
	return &EvdevBackend{cfg: cfg, logger: logger}
}

func (b *EvdevBackend) Name() string { return "evdev" }

func (b *EvdevBackend) Probe() Capabilities {
	b.logger.Warn("evdev backend is only available on linux", "device", b.cfg.Device)
	return Capabilities{}
}

func (b *EvdevBackend) CreateEngine(EngineCallbacks) (Engine, error) {
	return nil, fmt.Errorf("%w: evdev requires linux", ErrNotSupported)
}
