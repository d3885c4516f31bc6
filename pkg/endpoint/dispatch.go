package endpoint

import (
	"encoding/json"
	"fmt"

	"relaycap.dev/pkg/capability"
	"relaycap.dev/pkg/executor"
	"relaycap.dev/pkg/utils/context"
)

// dispatch routes one CAP-RPC method call to its handler. The returned
// error becomes a JSON-RPC protocol-level error for every method except
// tools/call, which instead folds executor failures into an
// isError=true content result so host apps see tool errors rather than
// transport errors.
func (e *Endpoint) dispatch(ctx context.T, method string, params json.RawMessage) (any, error) {
	switch method {
	case "tools/list":
		return e.listTools(), nil
	case "tools/call":
		return e.callTool(ctx, params), nil
	case "resources/list":
		return e.listResources(), nil
	case "resources/templates/list":
		return e.listResourceTemplates(), nil
	case "resources/read":
		return e.readResource(ctx, params)
	case "prompts/list":
		return e.listPrompts(), nil
	case "prompts/get":
		return e.getPrompt(ctx, params)
	case "completion/complete":
		return e.complete(ctx, params)
	case "ping":
		return e.pingMethod(ctx, params)
	case "list_tools":
		if e.interactive {
			return e.listTools(), nil
		}
	case "remove_tool":
		if e.interactive {
			return e.removeTool(params)
		}
	case "discover":
		if e.interactive {
			return e.discover(ctx, params)
		}
	}
	return nil, fmt.Errorf("endpoint: unknown method %q", method)
}

func (e *Endpoint) listTools() any {
	ids := e.regs.Tools.ListWithIDs()
	type entry struct {
		ID string `json:"id"`
		capability.ToolDef
	}
	out := make([]entry, 0, len(ids))
	for id, info := range ids {
		if info.Tool == nil {
			continue
		}
		out = append(out, entry{ID: id, ToolDef: *info.Tool})
	}
	return map[string]any{"tools": out}
}

func (e *Endpoint) callTool(ctx context.T, params json.RawMessage) any {
	var req struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return errorContent(fmt.Sprintf("malformed tools/call params: %v", err))
	}
	result, err := e.tools.Call(ctx, req.Name, req.Arguments)
	if err != nil {
		return errorContent(err.Error())
	}
	var out any
	if err = json.Unmarshal(result, &out); err != nil {
		return errorContent(fmt.Sprintf("malformed tool response: %v", err))
	}
	return out
}

func errorContent(msg string) map[string]any {
	return map[string]any{
		"content": []map[string]string{{"type": "text", "text": msg}},
		"isError": true,
	}
}

func (e *Endpoint) listResources() any {
	ids := e.regs.Resources.ListWithIDs()
	type entry struct {
		ID string `json:"id"`
		capability.ResourceDef
	}
	out := make([]entry, 0, len(ids))
	for id, info := range ids {
		if info.Resource == nil {
			continue
		}
		out = append(out, entry{ID: id, ResourceDef: *info.Resource})
	}
	return map[string]any{"resources": out}
}

func (e *Endpoint) listResourceTemplates() any {
	ids := e.regs.ResourceTemplates.ListWithIDs()
	type entry struct {
		ID string `json:"id"`
		capability.ResourceTemplateDef
	}
	out := make([]entry, 0, len(ids))
	for id, info := range ids {
		if info.Template == nil {
			continue
		}
		out = append(out, entry{ID: id, ResourceTemplateDef: *info.Template})
	}
	return map[string]any{"resourceTemplates": out}
}

func (e *Endpoint) readResource(ctx context.T, params json.RawMessage) (any, error) {
	var req struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("malformed resources/read params: %w", err)
	}
	result, err := e.resources.Read(ctx, req.URI)
	if err != nil {
		return nil, err
	}
	var out any
	if err = json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("malformed resource response: %w", err)
	}
	return out, nil
}

func (e *Endpoint) listPrompts() any {
	ids := e.regs.Prompts.ListWithIDs()
	type entry struct {
		ID string `json:"id"`
		capability.PromptDef
	}
	out := make([]entry, 0, len(ids))
	for id, info := range ids {
		if info.Prompt == nil {
			continue
		}
		out = append(out, entry{ID: id, PromptDef: *info.Prompt})
	}
	return map[string]any{"prompts": out}
}

func (e *Endpoint) getPrompt(ctx context.T, params json.RawMessage) (any, error) {
	var req struct {
		Name      string            `json:"name"`
		Arguments map[string]string `json:"arguments"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("malformed prompts/get params: %w", err)
	}
	result, err := e.prompts.Get(ctx, req.Name, req.Arguments)
	if err != nil {
		return nil, err
	}
	var out any
	if err = json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("malformed prompt response: %w", err)
	}
	return out, nil
}

func (e *Endpoint) complete(ctx context.T, params json.RawMessage) (any, error) {
	var req struct {
		Ref struct {
			Type string `json:"type"`
			Name string `json:"name"`
		} `json:"ref"`
		Argument executor.Argument `json:"argument"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("malformed completion/complete params: %w", err)
	}
	result, err := e.completions.Complete(ctx, executor.Reference{Type: req.Ref.Type, Name: req.Ref.Name}, req.Argument)
	if err != nil {
		return nil, err
	}
	var out any
	if err = json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("malformed completion response: %w", err)
	}
	return out, nil
}

func (e *Endpoint) pingMethod(ctx context.T, params json.RawMessage) (any, error) {
	var req struct {
		ProviderPubkey string `json:"providerPubkey"`
		ServerID       string `json:"serverId"`
	}
	_ = json.Unmarshal(params, &req)
	server := e.regs.Servers.Get(req.ServerID)
	var providerPubkey []byte
	if server != nil {
		providerPubkey = server.ProviderPubkey
	}
	result := e.ping.Ping(ctx, providerPubkey, req.ServerID)
	return map[string]any{
		"success":          result.Success,
		"response_time_ms": result.ResponseTimeMS,
		"error":            result.Error,
	}, nil
}
