package content

import (
	"context"

	"github.com/latticecrm/lattice/internal/pkg/logger"
)

// Composite prefers the remote generator and silently falls back to the
// local one on any error. Callers cannot tell which source answered.
type Composite struct {
	remote Generator
	local  Generator
	log    *logger.Logger
}

// NewComposite builds the fallback chain. remote may be nil when no API key
// is configured; everything then comes from local.
func NewComposite(remote, local Generator) *Composite {
	return &Composite{remote: remote, local: local, log: logger.With("content")}
}

func (c *Composite) CampaignContent(ctx context.Context, req ContentRequest) (string, error) {
	if c.remote != nil {
		out, err := c.remote.CampaignContent(ctx, req)
		if err == nil {
			return out, nil
		}
		c.log.Warn("remote content generation failed, using fallback", "error", err.Error())
	}
	return c.local.CampaignContent(ctx, req)
}

func (c *Composite) SuggestSegment(ctx context.Context, prompt string) (*SegmentSuggestion, error) {
	if c.remote != nil {
		out, err := c.remote.SuggestSegment(ctx, prompt)
		if err == nil {
			return out, nil
		}
		c.log.Warn("remote segment suggestion failed, using fallback", "error", err.Error())
	}
	return c.local.SuggestSegment(ctx, prompt)
}
