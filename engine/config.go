package engine

import (
	"log/slog"

	"github.com/hazyhaar/glotfile/idgen"
	"github.com/hazyhaar/glotfile/observability"
)

// Config configures an Engine.
type Config struct {
	// DeepPDF runs pdfcpu validation on every PDF input before planning.
	DeepPDF bool

	// IDs names outputs; the id ends up in the suggested filename.
	IDs idgen.Generator

	Logger *slog.Logger

	// Metrics and Generations are optional sinks; nil records nothing.
	Metrics     *observability.MetricsManager
	Generations *observability.GenerationLog
}

func (c *Config) defaults() {
	if c.IDs == nil {
		c.IDs = idgen.NanoID(10)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
