package llm

import (
	"context"
)

// DefaultPromptPrefix is prepended to every chunk
const DefaultPromptPrefix = "Optimize the following Laravel PHP code:\n\n"

// 📝 Prompter wraps a Client so callers hand it raw chunks
type Prompter struct {
	Client *Client
	Prefix string
}

// Transform builds the prompt for chunk and sends it through the client
func (p *Prompter) Transform(ctx context.Context, chunk string) (string, error) {
	return p.Client.Transform(ctx, p.Prefix+chunk)
}
