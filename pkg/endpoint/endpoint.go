// Package endpoint implements a newline-delimited JSON-RPC server
// speaking CAP-RPC to a single host byte stream. It surfaces every
// registered capability, routes calls to the matching executor, and
// emits `<kind>/list_changed` notifications on registry mutation.
package endpoint

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"relaycap.dev/pkg/capability"
	"relaycap.dev/pkg/executor"
	"relaycap.dev/pkg/registry"
	"relaycap.dev/pkg/utils/context"
	"relaycap.dev/pkg/utils/log"
)

// Info identifies this endpoint to a connecting host.
type Info struct {
	Name    string
	Version string
	About   string
}

// request is one incoming JSON-RPC frame. A missing ID marks a
// notification (no response is written).
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Endpoint is the Local CAP-RPC Endpoint.
type Endpoint struct {
	info        Info
	regs        *registry.Set
	tools       *executor.ToolExecutor
	resources   *executor.ResourceExecutor
	prompts     *executor.PromptExecutor
	completions *executor.CompletionExecutor
	ping        *executor.PingExecutor
	interactive bool
	discoverer  Discoverer

	wmu sync.Mutex
	w   io.Writer
}

// Discoverer is the ad-hoc-relay-query surface the built-in `discover`
// tool needs; wired to a real implementation in pkg/aggregator so this
// package doesn't depend on relaypool directly.
type Discoverer interface {
	Discover(ctx context.T, relay string, keywords []string, integrate bool) ([]ScoredCapability, error)
}

// ScoredCapability is one discover-tool match.
type ScoredCapability struct {
	ID          string  `json:"id"`
	Kind        string  `json:"kind"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
	Integrated  bool    `json:"integrated"`
}

// New builds an Endpoint. interactive enables the built-in list_tools/
// remove_tool/discover surface; discoverer may be nil when interactive
// is false.
func New(info Info, regs *registry.Set, tools *executor.ToolExecutor, resources *executor.ResourceExecutor, prompts *executor.PromptExecutor, completions *executor.CompletionExecutor, ping *executor.PingExecutor, interactive bool, discoverer Discoverer) *Endpoint {
	e := &Endpoint{
		info: info, regs: regs,
		tools: tools, resources: resources, prompts: prompts, completions: completions, ping: ping,
		interactive: interactive, discoverer: discoverer,
	}
	e.wireSurfaces()
	e.wireExecutionCallbacks()
	return e
}

// wireSurfaces registers a SurfaceFunc on every capability registry so
// Register/Remove emit the corresponding list_changed notification.
func (e *Endpoint) wireSurfaces() {
	e.regs.Tools.SetSurfaceFunc(e.surfaceFuncFor("tools"))
	e.regs.Resources.SetSurfaceFunc(e.surfaceFuncFor("resources"))
	e.regs.ResourceTemplates.SetSurfaceFunc(e.surfaceFuncFor("resources"))
	e.regs.Prompts.SetSurfaceFunc(e.surfaceFuncFor("prompts"))
}

func (e *Endpoint) surfaceFuncFor(kindName string) registry.SurfaceFunc {
	return func(id string, info *capability.Info) registry.SurfaceHandle {
		e.emitListChanged(kindName)
		return func() { e.emitListChanged(kindName) }
	}
}

// wireExecutionCallbacks connects each registry's execution callback to
// this endpoint's own executors, so a local invocation dispatched by a
// registry reaches the right remote call without the registry knowing
// about executors directly.
func (e *Endpoint) wireExecutionCallbacks() {
	e.regs.Tools.SetExecutionCallback(func(id string, params []byte) ([]byte, error) {
		result, err := e.tools.Call(context.Bg(), id, params)
		return result, err
	})
	e.regs.Resources.SetExecutionCallback(func(id string, params []byte) ([]byte, error) {
		info := e.regs.Resources.Get(id)
		if info == nil || info.Resource == nil {
			return nil, fmt.Errorf("endpoint: unknown resource %q", id)
		}
		return e.resources.Read(context.Bg(), info.Resource.URI)
	})
	e.regs.Prompts.SetExecutionCallback(func(id string, params []byte) ([]byte, error) {
		var args struct {
			Arguments map[string]string `json:"arguments"`
		}
		_ = json.Unmarshal(params, &args)
		return e.prompts.Get(context.Bg(), id, args.Arguments)
	})
}

func (e *Endpoint) emitListChanged(kindName string) {
	e.send(notification{JSONRPC: "2.0", Method: kindName + "/list_changed"})
}

// Serve reads newline-delimited JSON-RPC frames from r and writes
// responses/notifications to w until ctx is done or r is exhausted.
func (e *Endpoint) Serve(ctx context.T, r io.Reader, w io.Writer) error {
	e.wmu.Lock()
	e.w = w
	e.wmu.Unlock()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		scanErr <- scanner.Err()
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			if line == "" {
				continue
			}
			e.handleLine(ctx, line)
		}
	}
}

func (e *Endpoint) handleLine(ctx context.T, line string) {
	var req request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		log.W.F("endpoint: malformed frame: %v", err)
		return
	}
	result, err := e.dispatch(ctx, req.Method, req.Params)
	if len(req.ID) == 0 {
		return
	}
	resp := response{JSONRPC: "2.0", ID: req.ID}
	if err != nil {
		resp.Error = &rpcError{Code: -32000, Message: err.Error()}
	} else {
		resp.Result = result
	}
	e.send(resp)
}

func (e *Endpoint) send(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.E.F("endpoint: marshal outgoing frame: %v", err)
		return
	}
	e.wmu.Lock()
	defer e.wmu.Unlock()
	if e.w == nil {
		return
	}
	if _, err = e.w.Write(append(b, '\n')); err != nil {
		log.W.F("endpoint: write frame: %v", err)
	}
}
