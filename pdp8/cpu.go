package pdp8

// System is the whole machine: memory, the processor registers, the
// attached IOT devices, and the bookkeeping (PC queue, instruction
// history) that exists purely for inspection. It is the analogue of
// the teacher's EmulatorBase: one struct gluing together the pieces
// that, individually, know nothing about each other.
type System struct {
	mem     *Memory
	devices *deviceTable
	hist    *historyRing
	pcq     pcQueue

	breakpoints map[uint16]bool

	pc   uint16 // 12-bit offset within the current instruction field
	ac   uint16 // 12-bit accumulator
	link uint16 // 0 or 1
	mq   uint16 // 12-bit multiplier-quotient
	sr   uint16 // front-panel switch register

	ifReg, ibReg, df int // fields, 0-7
	ub, uf           int // user-mode flag and its buffer, 0 or 1
	sf               int // save field, latched at interrupt/trap entry

	sc    uint16 // EAE shift counter
	gtf   bool   // EAE greater-than flag
	emode bool   // EAE mode: false=A, true=B

	ion        bool // interrupts enabled
	ionInhibit bool // suppress interrupt check for one instruction after ION
	cifPending bool // a field change is pending commit by the next JMP/JMS

	reqMask uint64 // bit i: device i has an interrupt request pending

	trapPending bool   // a user-mode protection trap is pending entry
	trapIR      uint16 // instruction that caused the trap
	trapCDF     bool   // trapped instruction was a CDF-shaped IOT

	pwrFailPending bool // power-fail interrupt request (device 010)

	trapOnUserMode bool // whether IOT/HLT/OSR/JMS/JMP trap in user mode

	stopOnIllegal bool // whether an unattached IOT halts (true) or is a silent no-op (false), mirroring stop_inst

	running    bool
	singleStep bool
	lastMB     uint16
}

// Option configures a System at construction time.
type Option func(*System)

// WithFields sets the installed memory-extension field count (1-8).
func WithFields(fields int) Option {
	return func(s *System) { s.mem = NewMemory(fields) }
}

// WithUserModeTraps sets whether an IOT, HLT, OSR, JMS, or JMP executed
// with the user flag set raises a pending trap to field 0. IOT, HLT, and
// OSR are not executed in user mode either way; JMS and JMP still
// transfer control (a trapping JMS commits neither IF nor UF and stores
// no return address).
func WithUserModeTraps(enabled bool) Option {
	return func(s *System) { s.trapOnUserMode = enabled }
}

// WithStopOnIllegalInstruction sets whether an IOT addressed to an
// unattached device halts the machine (true) or is silently a no-op
// (false). The original's stop_inst defaults to clear (no-op), so that
// is this option's default too.
func WithStopOnIllegalInstruction(enabled bool) Option {
	return func(s *System) { s.stopOnIllegal = enabled }
}

// WithHistoryDepth enables the instruction history ring with the given
// capacity. Zero (the default) disables history recording.
func WithHistoryDepth(depth int) Option {
	return func(s *System) { s.hist = newHistoryRing(depth) }
}

// NewSystem builds a machine with 32K words of memory (8 fields) and
// all IOT device slots unattached, ready for Attach and a boot image.
func NewSystem(opts ...Option) *System {
	s := &System{
		mem:         NewMemory(MaxFields),
		devices:     newDeviceTable(),
		hist:        newHistoryRing(0),
		breakpoints: make(map[uint16]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mem exposes the memory array for boot-image loading and inspection.
func (s *System) Mem() *Memory { return s.mem }

// Attach installs d at the given 6-bit device code, returning an error
// if that slot is already occupied. If d implements InterruptSource, it
// is handed a callback it can use to assert or clear its interrupt
// request line.
func (s *System) Attach(devNum int, d Device) error {
	if err := s.devices.attach(devNum, d); err != nil {
		return err
	}
	if src, ok := d.(InterruptSource); ok {
		src.SetInterruptFunc(func(assert bool) { s.setDeviceRequest(devNum, assert) })
	}
	return nil
}

// Detach removes whatever is installed at devNum, restoring the
// trap-on-unconfigured-device sentinel.
func (s *System) Detach(devNum int) {
	s.devices.detach(devNum)
	s.setDeviceRequest(devNum, false)
}

// InterruptSource is implemented by devices that can request a CPU
// interrupt asynchronously (outside of their own IOT handling), e.g. a
// device that finishes a transfer between instructions.
type InterruptSource interface {
	SetInterruptFunc(request func(assert bool))
}

func (s *System) setDeviceRequest(devNum int, assert bool) {
	if devNum < 0 || devNum >= DeviceMax {
		return
	}
	bit := uint64(1) << uint(devNum)
	if assert {
		s.reqMask |= bit
	} else {
		s.reqMask &^= bit
	}
}

func (s *System) requestPending() bool {
	return s.reqMask != 0 || s.trapPending || s.pwrFailPending
}

// SetBreakpoint arms or disarms a breakpoint at a flat address
// (field*4096+offset).
func (s *System) SetBreakpoint(addr uint16, on bool) {
	if on {
		s.breakpoints[addr] = true
	} else {
		delete(s.breakpoints, addr)
	}
}

// SetSwitchRegister sets the value OSR reads.
func (s *System) SetSwitchRegister(v uint16) { s.sr = v & WordMask }

// History returns the recorded instruction history, oldest first.
func (s *System) History() []HistoryEntry { return s.hist.Recent() }

// PCQueue returns the 64-entry jump-history ring, most-recent-first.
func (s *System) PCQueue() [pcQueueSize]uint16 { return s.pcq.snapshot() }

// Registers snapshots the processor state for inspection or save-state
// serialization.
func (s *System) Registers() Registers {
	return Registers{
		PC: s.pc, AC: s.ac, L: s.link, MQ: s.mq, SR: s.sr,
		IF: uint16(s.ifReg), DF: uint16(s.df), IB: uint16(s.ibReg),
		SF: uint16(s.sf), UB: uint16(s.ub), UF: uint16(s.uf),
		SC: s.sc, GTF: s.gtf, EMode: s.emode,
		Ion: s.ion, IonDelay: s.ionInhibit, CifDelay: s.cifPending,
		IntRequested: s.requestPending(),
		DevDone:      s.reqMask,
	}
}

// SetPC loads the program counter (and, via field arguments, the
// instruction/data fields), the analogue of the front panel's Load
// Address switch.
func (s *System) SetPC(field int, offset uint16) {
	s.ifReg = field & 07
	s.ibReg = field & 07
	s.pc = offset & WordMask
}

// lac treats L:AC as the combined 13-bit register the original
// arithmetic is written against, to keep the opcode bodies below a
// direct transliteration of the reference semantics.
func (s *System) lac() uint32 {
	return (uint32(s.link) << 12) | uint32(s.ac)
}

func (s *System) setLAC(v uint32) {
	s.link = uint16((v >> 12) & 1)
	s.ac = uint16(v) & WordMask
}

// autoIncrement reports whether a pointer address falls in the
// autoincrement range 0010-0017 octal within its field.
func autoIncrement(addr int) bool {
	return addr&07770 == 00010
}

// deref resolves a memory-reference pointer at addr, applying the
// autoincrement rule, and returns the (possibly incremented) pointer
// value.
func (s *System) deref(addr int) int {
	val := int(s.mem.Get(addr))
	if autoIncrement(addr) {
		val = (val + 1) & WordMask
		s.mem.Set(addr, uint16(val))
	}
	return val
}

// Run executes up to maxInstructions instructions, stopping early if
// the machine halts. It returns the number actually executed and the
// reason execution stopped (HaltNone if the budget simply ran out).
func (s *System) Run(maxInstructions int) (int, HaltReason) {
	for i := 0; i < maxInstructions; i++ {
		if halt := s.Step(); halt != HaltNone {
			return i + 1, halt
		}
	}
	return maxInstructions, HaltNone
}

// Step executes exactly one instruction, including any interrupt or
// user-mode-trap entry that precedes it.
func (s *System) Step() HaltReason {
	if s.ion && !s.ionInhibit && !s.cifPending && s.requestPending() {
		s.enterTrap()
	}
	s.ionInhibit = false

	fetchField := s.ifReg
	fetchAddr := fetchField*FieldSize + int(s.pc)

	if s.breakpoints[uint16(fetchAddr)] {
		return HaltBreakpoint
	}

	ir := s.mem.Get(fetchAddr)
	s.pc = (s.pc + 1) & WordMask

	s.recordHistory(fetchAddr, ir)

	return s.execute(ir, fetchAddr)
}

// enterTrap performs the shared interrupt/trap entry sequence: latch
// the save field, push the PC queue, store PC in location 0, and
// vector to location 1 with all fields cleared.
func (s *System) enterTrap() {
	s.sf = (s.uf << 6) | (s.ifReg << 3) | s.df
	s.pcq.push(uint16(s.ifReg*FieldSize) | s.pc)
	s.mem.Set(0, s.pc)
	s.ifReg, s.ibReg, s.df, s.uf, s.ub = 0, 0, 0, 0, 0
	s.pc = 1
	s.ion = false
	s.trapPending = false
}

func (s *System) recordHistory(fetchAddr int, ir uint16) {
	if !s.hist.enabled() {
		return
	}
	entry := HistoryEntry{PC: uint16(fetchAddr), IR: ir, AC: s.ac, MQ: s.mq}
	if ir < 06000 { // memory-reference instruction
		ea := s.memRefAddress(ir, fetchAddr)
		entry.EA = uint16(ea)
		entry.Opnd = s.mem.Get(ea)
	}
	s.hist.record(entry)
}

// memRefAddress computes the effective address for AND/TAD/ISZ/DCA
// without mutating machine state (used only for history recording, so
// it must not itself apply autoincrement side effects twice; callers
// needing the real, side-effecting resolution use resolveAndTadAddr).
func (s *System) memRefAddress(ir uint16, fetchAddr int) int {
	var ma int
	if ir&0200 != 0 {
		ma = (fetchAddr &^ 0x7F) | int(ir&0177)
	} else {
		ma = s.ifReg*FieldSize | int(ir&0177)
	}
	if ir&0400 != 0 {
		val := s.mem.Get(ma)
		if autoIncrement(ma) {
			val = (val + 1) & WordMask
		}
		ma = s.df*FieldSize | int(val)
	}
	return ma
}

// execute decodes and runs one instruction word already fetched from
// fetchAddr (the address it came from, needed for current-page
// addressing).
func (s *System) execute(ir uint16, fetchAddr int) HaltReason {
	switch (ir >> 9) & 07 {
	case 0: // AND
		ea := s.resolveAndTadAddr(ir, fetchAddr)
		s.setLAC(s.lac() & (uint32(s.mem.Get(ea)) | 010000))
	case 1: // TAD
		ea := s.resolveAndTadAddr(ir, fetchAddr)
		s.setLAC((s.lac() + uint32(s.mem.Get(ea))) & 017777)
	case 2: // ISZ
		ea := s.resolveAndTadAddr(ir, fetchAddr)
		mb := (s.mem.Get(ea) + 1) & WordMask
		s.mem.Set(ea, mb)
		if mb == 0 {
			s.pc = (s.pc + 1) & WordMask
		}
	case 3: // DCA
		ea := s.resolveAndTadAddr(ir, fetchAddr)
		s.mem.Set(ea, s.ac)
		s.setLAC(s.lac() & 010000)
	case 4: // JMS
		return s.execJMS(ir, fetchAddr)
	case 5: // JMP
		return s.execJMP(ir, fetchAddr)
	case 6: // IOT
		return s.execIOT(ir)
	case 7: // OPR
		return s.execOPR(ir, fetchAddr)
	}
	return HaltNone
}

// resolveAndTadAddr computes the effective address for AND/TAD/ISZ/DCA,
// applying autoincrement side effects for real (unlike memRefAddress).
func (s *System) resolveAndTadAddr(ir uint16, fetchAddr int) int {
	var ma int
	if ir&0200 != 0 {
		ma = (fetchAddr &^ 0x7F) | int(ir&0177)
	} else {
		ma = s.ifReg*FieldSize | int(ir&0177)
	}
	if ir&0400 != 0 {
		ma = s.df*FieldSize | s.deref(ma)
	}
	return ma
}

func (s *System) execJMS(ir uint16, fetchAddr int) HaltReason {
	s.pcq.push(uint16(fetchAddr))

	var ma int
	if ir&0200 != 0 {
		ma = (fetchAddr & 07600) | int(ir&0177)
	} else {
		ma = int(ir & 0177)
	}
	if ir&0400 != 0 {
		ptr := s.ifReg*FieldSize | ma
		ma = s.deref(ptr)
	}

	trapping := s.uf != 0 && s.trapOnUserMode
	if s.uf != 0 {
		s.trapIR = ir
		s.trapCDF = false
	}
	if trapping {
		s.trapPending = true
	} else {
		s.ifReg = s.ibReg
		s.uf = s.ub
		s.cifPending = false
		target := s.ifReg*FieldSize + ma
		s.mem.Set(target, s.pc)
	}
	s.pc = uint16(ma+1) & WordMask
	return HaltNone
}

func (s *System) execJMP(ir uint16, fetchAddr int) HaltReason {
	s.pcq.push(uint16(fetchAddr))

	var ma int
	if ir&0200 != 0 {
		ma = (fetchAddr & 07600) | int(ir&0177)
	} else {
		ma = int(ir & 0177)
	}
	direct := ir&0400 == 0
	if !direct {
		ptr := s.ifReg*FieldSize | ma
		ma = s.deref(ptr)
	}

	// A direct current-page jump to its own address, with interrupts
	// off and the destination bank unchanged, can never make progress.
	selfJump := direct && ir&0200 != 0 && s.ifReg == s.ibReg &&
		uint16(ma) == (s.pc-1)&WordMask
	if selfJump && !s.ion {
		return HaltInfiniteLoop
	}

	if s.uf != 0 {
		s.trapIR = ir
		s.trapCDF = false
		if s.trapOnUserMode {
			s.trapPending = true
		}
	}
	s.ifReg = s.ibReg
	s.uf = s.ub
	s.cifPending = false
	s.pc = uint16(ma) & WordMask
	return HaltNone
}

// execOPR dispatches OPR group 1 (ir&0400==0) versus groups 2/3
// (ir&0400!=0, split further on bit 0).
func (s *System) execOPR(ir uint16, fetchAddr int) HaltReason {
	if ir&0400 == 0 {
		s.execOPRGroup1(ir, fetchAddr)
		return HaltNone
	}
	if ir&01 == 0 {
		return s.execOPRGroup2(ir)
	}
	return s.execOPRGroup3(ir, fetchAddr)
}

// execOPRGroup1 implements the microprogrammed CLA/CLL/CMA/CML, IAC,
// and shift/rotate (BSW/RAL/RTL/RAR/RTR) sequence.
func (s *System) execOPRGroup1(ir uint16, fetchAddr int) {
	lac := s.lac()
	switch (ir >> 4) & 017 {
	case 0: // nop
	case 1: // CML
		lac ^= 010000
	case 2: // CMA
		lac ^= 07777
	case 3: // CMA CML
		lac ^= 017777
	case 010: // CLA
		lac &= 010000
	case 011: // CLA CML
		lac = (lac & 010000) ^ 010000
	case 012: // CLA CMA = STA
		lac |= 07777
	case 013: // CLA CMA CML
		lac = (lac | 07777) ^ 010000
	case 014: // CLA CLL
		lac = 0
	case 015: // CLA CLL CML
		lac = 010000
	case 016: // CLA CLL CMA
		lac = 07777
	case 017: // CLA CLL CMA CML
		lac = 017777
	case 4: // CLL
		lac &= 07777
	case 5: // CLL CML = STL
		lac |= 010000
	case 6: // CLL CMA
		lac = (lac ^ 07777) & 07777
	case 7: // CLL CMA CML
		lac = (lac ^ 07777) | 010000
	}

	if ir&01 != 0 { // IAC
		lac = (lac + 1) & 017777
	}

	switch (ir >> 1) & 07 {
	case 0: // nop
	case 1: // BSW
		lac = (lac & 010000) | ((lac >> 6) & 077) | ((lac & 077) << 6)
	case 2: // RAL
		lac = ((lac << 1) | (lac >> 12)) & 017777
	case 3: // RTL
		lac = ((lac << 2) | (lac >> 11)) & 017777
	case 4: // RAR
		lac = ((lac >> 1) | (lac << 12)) & 017777
	case 5: // RTR
		lac = ((lac >> 2) | (lac << 11)) & 017777
	case 6: // RAL RAR, undefined: uses the AND path
		lac &= uint32(ir) | 010000
	case 7: // RTL RTR, undefined: uses the address path
		lac = (lac & 010000) | (uint32(fetchAddr) & 07600) | uint32(ir&0177)
	}
	s.setLAC(lac)
}

// execOPRGroup2 implements the eight skip predicates, CLA, and OSR/HLT
// (subject to user-mode trapping).
func (s *System) execOPRGroup2(ir uint16) HaltReason {
	lac := s.lac()
	skip := false
	switch (ir >> 3) & 017 {
	case 0: // nop
	case 1: // SKP
		skip = true
	case 2: // SNL
		skip = lac >= 010000
	case 3: // SZL
		skip = lac < 010000
	case 4: // SZA
		skip = lac&07777 == 0
	case 5: // SNA
		skip = lac&07777 != 0
	case 6: // SZA | SNL
		skip = lac == 0 || lac >= 010000
	case 7: // SNA & SZL
		skip = lac != 0 && lac < 010000
	case 010: // SMA
		skip = lac&04000 != 0
	case 011: // SPA
		skip = lac&04000 == 0
	case 012: // SMA | SNL
		skip = lac >= 04000
	case 013: // SPA & SZL
		skip = lac < 04000
	case 014: // SMA | SZA
		skip = lac&04000 != 0 || lac&07777 == 0
	case 015: // SPA & SNA
		skip = lac&04000 == 0 && lac&07777 != 0
	case 016: // SMA | SZA | SNL
		skip = lac >= 04000 || lac == 0
	case 017: // SPA & SNA & SZL
		skip = lac < 04000 && lac != 0
	}
	if skip {
		s.pc = (s.pc + 1) & WordMask
	}
	if ir&0200 != 0 { // CLA
		lac &= 010000
	}
	s.setLAC(lac)

	if ir&06 != 0 && s.uf != 0 {
		s.trapIR = ir
		s.trapCDF = false
		if s.trapOnUserMode {
			s.trapPending = true
		}
		return HaltNone
	}
	if ir&04 != 0 { // OSR
		s.ac |= s.sr
	}
	if ir&02 != 0 { // HLT
		return HaltInstruction
	}
	return HaltNone
}
