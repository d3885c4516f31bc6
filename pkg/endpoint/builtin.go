package endpoint

import (
	"encoding/json"
	"fmt"

	"relaycap.dev/pkg/utils/context"
)

// Built-in interactive-mode surface: list_tools/remove_tool/discover
// bypass the executor/relay path entirely, operating directly on the
// local registries (remove_tool, list_tools) or an ad-hoc short-lived
// relay query (discover).

func (e *Endpoint) removeTool(params json.RawMessage) (any, error) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("malformed remove_tool params: %w", err)
	}
	removed := e.regs.Tools.Remove(req.ID)
	return map[string]any{"removed": removed}, nil
}

func (e *Endpoint) discover(ctx context.T, params json.RawMessage) (any, error) {
	var req struct {
		Relay     string   `json:"relay"`
		Keywords  []string `json:"keywords"`
		Integrate bool     `json:"integrate"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("malformed discover params: %w", err)
	}
	if e.discoverer == nil {
		return nil, fmt.Errorf("endpoint: discover tool unavailable (no discoverer wired)")
	}
	matches, err := e.discoverer.Discover(ctx, req.Relay, req.Keywords, req.Integrate)
	if err != nil {
		return nil, err
	}
	return map[string]any{"matches": matches}, nil
}
