package lock

import (
	"os"
	"os/signal"
	"syscall"
)

// chanSignal is the concrete channel type used for signal delivery,
// named for readability at the installExitHook call site.
type chanSignal = chan os.Signal

// notifySignals wires c up to the same termination signals
// cmd/catalogtool/main.go handles (SIGINT, SIGTERM), so the exit hook fires on
// Ctrl-C or an orchestrator-issued termination just like the rest of the
// tool.
func notifySignals(c chanSignal) {
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
}
