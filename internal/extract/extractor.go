package extract

import (
	"context"
	"log/slog"

	"github.com/pkordes/tripcrew/backend/internal/content"
	"github.com/pkordes/tripcrew/backend/internal/domain"
)

// Extractor calls the service and parses its reply. Failures come back as
// text for the message's extraction_error column, never as errors: a failed
// extraction still yields a stored, reviewable message.
type Extractor struct {
	client Client
	logger *slog.Logger
}

// NewExtractor wraps a Client.
func NewExtractor(client Client, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{client: client, logger: logger.With(slog.String("component", "extractor"))}
}

// Run returns the extraction, or an empty extraction and a non-empty
// errText describing what went wrong.
func (e *Extractor) Run(ctx context.Context, blocks []content.Block) (domain.Extraction, string) {
	raw, err := e.client.Extract(ctx, blocks)
	if err != nil {
		e.logger.WarnContext(ctx, "extraction call failed", slog.String("error", err.Error()))
		return domain.Extraction{}, "extraction failed: " + err.Error()
	}

	x, err := ParseResponse(raw)
	if err != nil {
		e.logger.WarnContext(ctx, "extraction response unreadable",
			slog.Int("response_bytes", len(raw)),
			slog.String("error", err.Error()))
		return domain.Extraction{}, "unreadable extraction response: " + err.Error()
	}
	return x, ""
}
