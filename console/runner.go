// Package console provides a front-panel runner for the pdp8 package.
// It polls an abstract switch source, drives the machine in bursts, and
// pushes the resulting lamp state to an abstract sink, the same
// responsibility split as the teacher's cli.Runner: the emulator core
// never polls input itself, a wrapper does, once per tick.
package console

import "github.com/user-none/pdp8go/pdp8"

// SwitchSource supplies one front-panel switch snapshot per tick. The
// returned *pdp8.Switches is mutated in place by PollPanel (momentary
// switches are cleared once acted on), so callers owning persistent
// switch state should return a pointer to it directly.
type SwitchSource interface {
	PollSwitches() *pdp8.Switches
}

// LEDSink receives the recomputed lamp state once per tick.
type LEDSink interface {
	SetLEDs(pdp8.LEDs)
}

// ActionHandler is notified of any out-of-band front-panel request
// (reboot, shutdown, device mount/unmount) a tick produced.
type ActionHandler func(pdp8.PendingAction)

// Runner wraps a *pdp8.System for interactive front-panel operation. It
// handles switch polling and lamp refresh (System responsibilities it
// deliberately stays out of), and runs the machine in short bursts
// between polls rather than instruction-by-instruction, matching the
// teacher's per-frame RunFrame granularity.
type Runner struct {
	sys      *pdp8.System
	switches SwitchSource
	leds     LEDSink
	onAction ActionHandler

	instrPerTick int
	lastHalt     pdp8.HaltReason
}

// NewRunner builds a Runner driving sys, polling switches from source,
// and pushing lamp state to sink. instrPerTick bounds how many
// instructions Update executes per call while the machine is running;
// it is ignored for single-step bursts, which always run exactly one.
func NewRunner(sys *pdp8.System, source SwitchSource, sink LEDSink, instrPerTick int) *Runner {
	if instrPerTick <= 0 {
		instrPerTick = 1
	}
	return &Runner{
		sys:          sys,
		switches:     source,
		leds:         sink,
		instrPerTick: instrPerTick,
	}
}

// OnAction installs the callback Update invokes when a polling pass
// reports a pending out-of-band action. A nil handler (the default)
// silently drops such requests.
func (r *Runner) OnAction(handler ActionHandler) { r.onAction = handler }

// LastHalt returns the HaltReason produced by the most recent Update,
// HaltNone if the machine was stopped or the burst ran to completion.
func (r *Runner) LastHalt() pdp8.HaltReason { return r.lastHalt }

// Update runs one polling-and-execution tick: it samples the switch
// source, applies any panel action, runs a burst of instructions if the
// machine is in the run state, and refreshes the LED sink. It returns
// the HaltReason the burst stopped on (HaltNone if the budget simply
// expired or the machine was not running).
func (r *Runner) Update() pdp8.HaltReason {
	r.lastHalt = pdp8.HaltNone

	if r.switches != nil {
		if sw := r.switches.PollSwitches(); sw != nil {
			action := r.sys.PollPanel(sw)
			if action.Kind != pdp8.ActionNone && r.onAction != nil {
				r.onAction(action)
			}
		}
	}

	if r.sys.Running() {
		if r.sys.SingleStepArmed() {
			r.lastHalt = r.sys.Step()
			r.sys.ConsumeSingleStep()
		} else {
			_, halt := r.sys.Run(r.instrPerTick)
			r.lastHalt = halt
			if halt != pdp8.HaltNone {
				r.sys.Halt()
			}
		}
	}

	if r.leds != nil {
		var l pdp8.LEDs
		r.sys.RefreshLEDs(&l)
		l.Break = r.lastHalt == pdp8.HaltBreakpoint
		r.leds.SetLEDs(l)
	}

	return r.lastHalt
}
