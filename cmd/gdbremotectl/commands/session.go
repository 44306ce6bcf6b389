package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark-grimes/gdbremote-core/cmd/gdbremotectl/cmdutil"
	"github.com/mark-grimes/gdbremote-core/internal/eventbus"
	"github.com/mark-grimes/gdbremote-core/internal/gdbproto/client"
	"github.com/mark-grimes/gdbremote-core/internal/gdbproto/transport"
	"github.com/mark-grimes/gdbremote-core/internal/stopreply"
	"github.com/mark-grimes/gdbremote-core/pkg/target"
)

// dialTarget builds a Target around a fresh, not yet connected TCP
// transport. Launch/AttachPID/AttachName/ConnectRemote, handed that
// transport, bind a new Remote Client to it in pkg/target's
// connectTransport and connect it there.
func dialTarget() (*target.Target, transport.Transport, error) {
	tr := transport.NewTCP()
	tg := target.New(client.New(tr, nil), nil, cmdutil.Flags.Arch)
	return tg, tr, nil
}

// followStops subscribes to the target's process-state broadcaster and
// prints status plus every stop event until the process exits or the
// process receives an interrupt signal, resuming between stops. This is
// the narrow "connect, run, watch stops" loop the CLI exists to drive.
func followStops(ctx context.Context, tg *target.Target) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	listener := eventbus.NewListener("gdbremotectl")
	tg.BusManager.Subscribe(tg.Broadcaster, listener, eventbus.BitProcessStateChanged)
	defer tg.BusManager.UnsubscribeAll(listener)

	cmdutil.PrintProcessStatus(os.Stdout, tg)

	for {
		if tg.Process.State() == target.StateExited || tg.Process.State() == target.StateDetached {
			return nil
		}
		if tg.Process.State() == target.StateStopped {
			if err := tg.Resume(ctx, nil); err != nil {
				return fmt.Errorf("resume: %w", err)
			}
		}

		evt, ok := listener.NextEvent(5 * time.Second)
		if !ok {
			if ctx.Err() != nil {
				return haltAndDetach(tg)
			}
			continue
		}
		if ev, ok := evt.Payload.(*stopreply.StopEvent); ok {
			cmdutil.PrintStopEvent(os.Stdout, ev)
		}
		if tg.Process.State() == target.StateExited {
			cmdutil.PrintProcessStatus(os.Stdout, tg)
			return nil
		}
	}
}

// haltAndDetach is run when the CLI itself is interrupted mid-session: it
// halts the inferior and detaches rather than leaving the stub waiting on
// a resume that will never come.
func haltAndDetach(tg *target.Target) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if tg.Process.State() == target.StateRunning {
		if err := tg.Halt(ctx); err != nil {
			return fmt.Errorf("halt on interrupt: %w", err)
		}
	}
	return tg.Detach(ctx, false)
}
