package content

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pkordes/tripcrew/backend/internal/domain"
)

// Input is a channel payload normalized by the webhook handlers.
type Input struct {
	Text        string
	Media       []MediaRef
	Attachments []Attachment
}

// Assembly is the assembler output: media blocks first, then exactly one
// text block holding Prompt.
type Assembly struct {
	Blocks  []Block
	Prompt  string
	Dropped int
}

// MediaCount returns the number of non-text blocks.
func (a Assembly) MediaCount() int {
	n := 0
	for _, b := range a.Blocks {
		if b.Type != BlockText {
			n++
		}
	}
	return n
}

// Assembler builds extraction input from a message.
type Assembler struct {
	fetcher Fetcher
	logger  *slog.Logger
}

// NewAssembler constructs an Assembler. fetcher may be nil when no channel
// delivers remote media.
func NewAssembler(fetcher Fetcher, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{fetcher: fetcher, logger: logger.With(slog.String("component", "assembler"))}
}

// Assemble downloads and classifies media, then renders the prompt.
// Unsupported or undownloadable media are dropped with a warning. Returns
// domain.ErrNoContent when nothing is left to extract from.
func (a *Assembler) Assemble(ctx context.Context, in Input, pc PromptContext) (Assembly, error) {
	var out Assembly

	for _, ref := range in.Media {
		blockType, ok := BlockTypeFor(ref.ContentType)
		if !ok {
			a.logger.InfoContext(ctx, "unsupported media dropped", slog.String("content_type", ref.ContentType))
			out.Dropped++
			continue
		}
		if a.fetcher == nil {
			out.Dropped++
			continue
		}
		data, _, err := a.fetcher.Fetch(ctx, ref.URL)
		if err != nil {
			a.logger.WarnContext(ctx, "media fetch failed",
				slog.String("content_type", ref.ContentType),
				slog.String("error", err.Error()))
			out.Dropped++
			continue
		}
		if len(data) == 0 {
			out.Dropped++
			continue
		}
		out.Blocks = append(out.Blocks, Block{Type: blockType, MediaType: NormalizeMediaType(ref.ContentType), Data: data})
	}

	for _, att := range in.Attachments {
		blockType, ok := BlockTypeFor(att.ContentType)
		if !ok || len(att.Data) == 0 {
			a.logger.InfoContext(ctx, "attachment dropped",
				slog.String("name", att.Name),
				slog.String("content_type", att.ContentType))
			out.Dropped++
			continue
		}
		out.Blocks = append(out.Blocks, Block{Type: blockType, MediaType: NormalizeMediaType(att.ContentType), Data: att.Data})
	}

	if strings.TrimSpace(in.Text) == "" && len(out.Blocks) == 0 {
		return Assembly{Dropped: out.Dropped}, fmt.Errorf("content.Assembler.Assemble: %w", domain.ErrNoContent)
	}

	out.Prompt = RenderPrompt(pc, in.Text)
	out.Blocks = append(out.Blocks, Block{Type: BlockText, Text: out.Prompt})
	return out, nil
}
