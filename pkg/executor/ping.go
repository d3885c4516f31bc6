package executor

import (
	"time"

	"relaycap.dev/pkg/capability"
	"relaycap.dev/pkg/utils/context"
)

// PingExecutor runs `ping`: a liveness probe against a server, not a
// registered capability, so it is addressed directly by provider
// pubkey/server id rather than by registry id.
type PingExecutor struct {
	base *Base
}

// NewPingExecutor builds a PingExecutor.
func NewPingExecutor(base *Base) *PingExecutor {
	return &PingExecutor{base: base}
}

// Result is the outcome of a Ping call.
type Result struct {
	Success        bool
	ResponseTimeMS int64
	Error          string
}

// Ping sends an empty-params ping to providerPubkey/serverID and times
// the round trip, never returning a Go error for a failed/timed-out
// ping - failure is reported in Result.Error so callers can surface a
// structured result rather than a protocol fault.
func (e *PingExecutor) Ping(ctx context.T, providerPubkey []byte, serverID string) Result {
	info := &capability.Info{
		Kind:           capability.Ping,
		ProviderPubkey: providerPubkey,
		ServerID:       serverID,
	}
	start := time.Now()
	_, err := e.base.Execute(ctx, info, "ping", map[string]any{})
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return Result{Success: false, ResponseTimeMS: elapsed, Error: err.Error()}
	}
	return Result{Success: true, ResponseTimeMS: elapsed}
}
