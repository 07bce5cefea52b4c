package pdp8

// Switches is the front-panel switch register bank: three 12-bit
// registers (data/address/SR) plus the momentary control switches.
// Data, Address, and FieldSel carry the active-low hardware encoding of
// switchstatus[0]/[1] (asserting a bit clears it); PollPanel XORs them
// against WordMask before use, the same as the original's
// `switchstatus[0] ^ 07777`. Word fields are read word-atomically by
// PollPanel, so no lock is needed (see the concurrency note in
// the core doc).
type Switches struct {
	Data     uint16 // data switches (active-low), loaded into AC/MB on Deposit
	Address  uint16 // address switches (active-low), loaded into PC on Load Address
	FieldSel uint16 // field-selector row (active-low): bits 11-9 select DF, bits 8-6 select IF
	SR       uint16 // switch register proper; PollPanel does not read it, and OSR reads the value set by System.SetSwitchRegister

	Start      bool
	Continue   bool
	Stop       bool
	SingleStep bool
	LoadAddr   bool
	Examine    bool
	Deposit    bool
}

// decodeFieldSel derives DF/IF from a FieldSel row the same way the
// original does: three active-low bits each, high bit worth 4.
func decodeFieldSel(fieldSel uint16) (df, ifield int) {
	if fieldSel>>11&1 == 0 {
		df |= 4
	}
	if fieldSel>>10&1 == 0 {
		df |= 2
	}
	if fieldSel>>9&1 == 0 {
		df |= 1
	}
	if fieldSel>>8&1 == 0 {
		ifield |= 4
	}
	if fieldSel>>7&1 == 0 {
		ifield |= 2
	}
	if fieldSel>>6&1 == 0 {
		ifield |= 1
	}
	return df, ifield
}

// LEDs is the front-panel lamp bank, refreshed once per polling pass.
type LEDs struct {
	PC, MA, MB, AC, MQ uint16
	InstructionClass   uint16 // one-hot bar: bit (MB>>9)&07, the opcode field
	Defer              bool
	Ion, Run, Pause    bool
	CarryOrLink        bool
	Break              bool
	DF, IF             uint16
	Link               uint16
}

// ActionKind identifies an out-of-band request PollPanel reports back to
// its caller, replacing the original's single boolean "awful hack" shell
// signal with a small typed set.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionReboot
	ActionShutdown
	ActionMountDevice
	ActionUnmountDevice
)

// PendingAction is the return value of PollPanel, typed to carry a
// request outside the instruction set itself (a reboot, a shutdown, or a
// device mount/unmount) rather than encoding it as global process state.
// PollPanel does not detect switch chords, so it always returns an
// ActionNone value.
type PendingAction struct {
	Kind ActionKind
	Arg  int // device code for mount/unmount actions
}

// PollPanel runs one front-panel polling pass against sw, mutating
// System state for Load Address / Examine / Deposit / Start / Continue
// / Stop / Single Step and clearing each momentary switch once acted
// on. Callers (typically a console.Runner) drive this once per tick.
func (s *System) PollPanel(sw *Switches) PendingAction {
	if sw == nil {
		return PendingAction{}
	}

	if sw.LoadAddr {
		sw.LoadAddr = false
		s.pc = (sw.Address ^ WordMask) & WordMask
		df, ifield := decodeFieldSel(sw.FieldSel)
		s.df = df
		s.ifReg = ifield
		s.running = false
	}
	if sw.Examine {
		sw.Examine = false
		ma := s.ifReg*FieldSize + int(s.pc)
		s.lastMB = s.mem.Get(ma)
		s.pc = (s.pc + 1) & WordMask
		s.running = false
	}
	if sw.Deposit {
		sw.Deposit = false
		ma := s.ifReg*FieldSize + int(s.pc)
		val := (sw.Data ^ WordMask) & WordMask
		s.mem.Set(ma, val)
		s.lastMB = val
		s.pc = (s.pc + 1) & WordMask
		s.running = false
	}
	if sw.Stop {
		sw.Stop = false
		s.running = false
	}
	if sw.Start {
		sw.Start = false
		s.ion = false
		s.ac = 0
		s.link = 0
		s.lastMB = 0
		s.running = true
	}
	if sw.Continue {
		sw.Continue = false
		s.running = true
	}
	if sw.SingleStep {
		sw.SingleStep = false
		s.running = true
		s.singleStep = true
	}

	return PendingAction{}
}

// Running reports whether the front panel has the machine in the run
// state (Start/Continue/Single Step raised, not yet Stopped or halted).
func (s *System) Running() bool { return s.running }

// Halt clears the run state, the analogue of a Device or Step-loop
// caller noticing a HaltReason and releasing the RUN lamp.
func (s *System) Halt() { s.running = false }

// SingleStepArmed reports whether the last panel action was Single Step
// rather than Continue, so a Runner knows to execute exactly one
// instruction and drop back out of the run state.
func (s *System) SingleStepArmed() bool { return s.singleStep }

// LastMB returns the last value examined or deposited through the front
// panel, the analogue of the original's MB lamp latch between polls.
func (s *System) LastMB() uint16 { return s.lastMB }

// ConsumeSingleStep drops the machine back out of the run state after a
// single-step burst, clearing the Single Step latch armed by PollPanel.
func (s *System) ConsumeSingleStep() {
	s.singleStep = false
	s.running = false
}

// RefreshLEDs recomputes the lamp bank from current processor state, the
// analogue of setleds().
func (s *System) RefreshLEDs(l *LEDs) {
	if l == nil {
		return
	}
	ma := s.ifReg*FieldSize + int(s.pc)
	mb := s.mem.Get(ma)

	l.PC = s.pc
	l.MA = uint16(ma & WordMask)
	l.MB = mb
	l.AC = s.ac
	l.MQ = s.mq
	l.InstructionClass = 1 << ((mb >> 9) & 07)
	l.Defer = (mb>>8)&1 == 1 && (mb>>9)&07 <= 05
	l.Ion = s.ion
	l.Run = s.running
	l.Pause = !s.running
	l.CarryOrLink = s.link != 0
	l.DF = uint16(s.df)
	l.IF = uint16(s.ifReg)
	l.Link = s.link
}
