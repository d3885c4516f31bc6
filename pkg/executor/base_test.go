package executor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPendingRegisterUnregisterInvariant(t *testing.T) {
	b := &Base{pending: map[string]*pendingExec{}}
	require.Equal(t, 0, b.PendingCount())

	p := newPendingExec("exec1")
	b.register(p)
	require.Equal(t, 1, b.PendingCount())

	b.unregister("exec1")
	require.Equal(t, 0, b.PendingCount())
}

func TestPendingExecCompleteIsSingleShot(t *testing.T) {
	p := newPendingExec("exec1")
	p.complete([]byte("first"), nil)
	p.complete([]byte("second"), nil)

	out := <-p.resultCh
	require.Equal(t, "first", string(out.result))

	select {
	case <-p.resultCh:
		t.Fatal("expected only one value ever sent to resultCh")
	default:
	}
}
