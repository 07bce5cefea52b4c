package pdp8

import "testing"

// memRefWord builds an AND/TAD/ISZ/DCA/JMS/JMP instruction word: a 3-bit
// opcode, the indirect flag (bit 8), the current-page flag (bit 7), and
// a 7-bit page offset.
func memRefWord(opcode uint16, indirect, currentPage bool, offset uint16) uint16 {
	w := (opcode & 07) << 9
	if indirect {
		w |= 0400
	}
	if currentPage {
		w |= 0200
	}
	w |= offset & 0177
	return w
}

// group1Word builds an OPR group 1 instruction word from its CLA/CLL/
// CMA/CML bits, the IAC bit, and the 3-bit shift/rotate field.
func group1Word(cla, cll, cma, cml, iac bool, rotate uint16) uint16 {
	field := uint16(0)
	if cla {
		field |= 010
	}
	if cll {
		field |= 04
	}
	if cma {
		field |= 02
	}
	if cml {
		field |= 01
	}
	w := uint16(7<<9) | (field << 4)
	if iac {
		w |= 01
	}
	w |= (rotate & 07) << 1
	return w
}

// group2Word builds an OPR group 2 instruction word from the 4-bit skip
// predicate field and the CLA/OSR/HLT bits.
func group2Word(skipField uint16, cla, osr, hlt bool) uint16 {
	w := uint16(7<<9) | 0400
	w |= (skipField & 017) << 3
	if cla {
		w |= 0200
	}
	if osr {
		w |= 04
	}
	if hlt {
		w |= 02
	}
	return w
}

func TestTAD_DirectPageZero(t *testing.T) {
	sys := NewSystem(WithFields(1))
	sys.SetPC(0, 0)
	sys.mem.Set(0, memRefWord(1, false, false, 020))
	sys.mem.Set(020, 5)

	if halt := sys.Step(); halt != HaltNone {
		t.Fatalf("TAD: unexpected halt %v", halt)
	}
	if sys.ac != 5 || sys.link != 0 {
		t.Errorf("TAD: AC/L = %o/%d, want 5/0", sys.ac, sys.link)
	}
}

func TestTAD_Overflow(t *testing.T) {
	sys := NewSystem(WithFields(1))
	sys.SetPC(0, 0)
	sys.mem.Set(0, memRefWord(1, false, false, 020))
	sys.mem.Set(020, 1)
	sys.ac = 07777
	sys.link = 0

	sys.Step()
	if sys.ac != 0 || sys.link != 1 {
		t.Errorf("TAD overflow: AC/L = %o/%d, want 0/1", sys.ac, sys.link)
	}
}

func TestAND(t *testing.T) {
	sys := NewSystem(WithFields(1))
	sys.SetPC(0, 0)
	sys.mem.Set(0, memRefWord(0, false, false, 020))
	sys.mem.Set(020, 05252)
	sys.ac = 07777
	sys.link = 1

	sys.Step()
	if sys.ac != 05252 {
		t.Errorf("AND: AC = %o, want 05252", sys.ac)
	}
	if sys.link != 1 {
		t.Errorf("AND: L = %d, want 1 (unaffected)", sys.link)
	}
}

func TestISZ_SkipsOnZero(t *testing.T) {
	sys := NewSystem(WithFields(1))
	sys.SetPC(0, 0)
	sys.mem.Set(0, memRefWord(2, false, false, 020))
	sys.mem.Set(020, 07777)

	sys.Step()
	if got := sys.mem.Get(020); got != 0 {
		t.Errorf("ISZ: memory = %o, want 0", got)
	}
	if sys.pc != 2 {
		t.Errorf("ISZ: PC = %o, want 2 (skip taken)", sys.pc)
	}
}

func TestISZ_NoSkipOnNonzero(t *testing.T) {
	sys := NewSystem(WithFields(1))
	sys.SetPC(0, 0)
	sys.mem.Set(0, memRefWord(2, false, false, 020))
	sys.mem.Set(020, 5)

	sys.Step()
	if got := sys.mem.Get(020); got != 6 {
		t.Errorf("ISZ: memory = %o, want 6", got)
	}
	if sys.pc != 1 {
		t.Errorf("ISZ: PC = %o, want 1 (no skip)", sys.pc)
	}
}

func TestDCA(t *testing.T) {
	sys := NewSystem(WithFields(1))
	sys.SetPC(0, 0)
	sys.mem.Set(0, memRefWord(3, false, false, 030))
	sys.ac = 0123
	sys.link = 1

	sys.Step()
	if got := sys.mem.Get(030); got != 0123 {
		t.Errorf("DCA: memory = %o, want 0123", got)
	}
	if sys.ac != 0 {
		t.Errorf("DCA: AC = %o, want 0", sys.ac)
	}
	if sys.link != 1 {
		t.Errorf("DCA: L = %d, want 1 (preserved)", sys.link)
	}
}

func TestJMP_DirectPageZero(t *testing.T) {
	sys := NewSystem(WithFields(1))
	sys.SetPC(0, 0)
	sys.mem.Set(0, memRefWord(5, false, false, 0100))

	sys.Step()
	if sys.pc != 0100 {
		t.Errorf("JMP: PC = %o, want 0100", sys.pc)
	}
}

func TestJMP_CurrentPage(t *testing.T) {
	sys := NewSystem(WithFields(1))
	sys.SetPC(0, 0200)
	sys.mem.Set(0200, memRefWord(5, false, true, 0050))

	sys.Step()
	if sys.pc != 0250 {
		t.Errorf("JMP current-page: PC = %o, want 0250", sys.pc)
	}
}

func TestJMP_SelfJumpHaltsWithInterruptsOff(t *testing.T) {
	sys := NewSystem(WithFields(1))
	sys.SetPC(0, 0200)
	sys.mem.Set(0200, memRefWord(5, false, true, 0))

	halt := sys.Step()
	if halt != HaltInfiniteLoop {
		t.Errorf("self-jump with ion=false: halt = %v, want HaltInfiniteLoop", halt)
	}
}

func TestJMP_SelfJumpLoopsWithInterruptsOn(t *testing.T) {
	sys := NewSystem(WithFields(1))
	sys.SetPC(0, 0200)
	sys.mem.Set(0200, memRefWord(5, false, true, 0))
	sys.ion = true

	halt := sys.Step()
	if halt != HaltNone {
		t.Errorf("self-jump with ion=true: halt = %v, want HaltNone", halt)
	}
	if sys.pc != 0200 {
		t.Errorf("self-jump with ion=true: PC = %o, want 0200", sys.pc)
	}
}

func TestJMS(t *testing.T) {
	sys := NewSystem(WithFields(1))
	sys.SetPC(0, 0)
	sys.mem.Set(0, memRefWord(4, false, false, 0100))

	sys.Step()
	if got := sys.mem.Get(0100); got != 1 {
		t.Errorf("JMS: return address stored = %o, want 1", got)
	}
	if sys.pc != 0101 {
		t.Errorf("JMS: PC = %o, want 0101", sys.pc)
	}
}

func TestIndirect_AutoIncrementAndDFAsymmetry(t *testing.T) {
	sys := NewSystem(WithFields(4))
	sys.SetPC(0, 0)
	sys.df = 3
	sys.mem.Set(0, memRefWord(0, true, false, 010)) // AND, indirect, offset 010
	sys.mem.Set(010, 0100)                          // pointer, lives in field 0 (IF)
	sys.mem.Set(3*FieldSize+0101, 0077)              // operand, lives in field 3 (DF)
	sys.ac = 07777

	sys.Step()
	if sys.ac != 0077 {
		t.Errorf("indirect AND: AC = %o, want 0077", sys.ac)
	}
	if got := sys.mem.Get(010); got != 0101 {
		t.Errorf("autoincrement: pointer at 010 = %o, want 0101", got)
	}
}

func TestOPRGroup1_ClaCllAndIac(t *testing.T) {
	sys := NewSystem(WithFields(1))
	sys.SetPC(0, 0)
	sys.mem.Set(0, group1Word(true, true, false, false, true, 0))
	sys.ac = 01234
	sys.link = 1

	sys.Step()
	if sys.ac != 1 || sys.link != 0 {
		t.Errorf("CLA CLL IAC: AC/L = %o/%d, want 1/0", sys.ac, sys.link)
	}
}

func TestOPRGroup1_CMA(t *testing.T) {
	sys := NewSystem(WithFields(1))
	sys.SetPC(0, 0)
	sys.mem.Set(0, group1Word(false, false, true, false, false, 0))
	sys.ac = 05252
	sys.link = 0

	sys.Step()
	if sys.ac != 02525 {
		t.Errorf("CMA: AC = %o, want 02525", sys.ac)
	}
	if sys.link != 0 {
		t.Errorf("CMA: L = %d, want 0 (unaffected)", sys.link)
	}
}

func TestOPRGroup1_RAL(t *testing.T) {
	sys := NewSystem(WithFields(1))
	sys.SetPC(0, 0)
	sys.mem.Set(0, group1Word(false, false, false, false, false, 2))
	sys.ac = 04000
	sys.link = 0

	sys.Step()
	if sys.ac != 0 || sys.link != 1 {
		t.Errorf("RAL: AC/L = %o/%d, want 0/1", sys.ac, sys.link)
	}
}

func TestOPRGroup2_SZA(t *testing.T) {
	sys := NewSystem(WithFields(1))
	sys.SetPC(0, 0)
	sys.mem.Set(0, group2Word(4, false, false, false))
	sys.ac = 0

	sys.Step()
	if sys.pc != 2 {
		t.Errorf("SZA on zero AC: PC = %o, want 2 (skip)", sys.pc)
	}

	sys2 := NewSystem(WithFields(1))
	sys2.SetPC(0, 0)
	sys2.mem.Set(0, group2Word(4, false, false, false))
	sys2.ac = 5

	sys2.Step()
	if sys2.pc != 1 {
		t.Errorf("SZA on nonzero AC: PC = %o, want 1 (no skip)", sys2.pc)
	}
}

func TestOPRGroup2_SMA(t *testing.T) {
	sys := NewSystem(WithFields(1))
	sys.SetPC(0, 0)
	sys.mem.Set(0, group2Word(010, false, false, false))
	sys.ac = 04000

	sys.Step()
	if sys.pc != 2 {
		t.Errorf("SMA on negative AC: PC = %o, want 2 (skip)", sys.pc)
	}
}

func TestOPRGroup2_HLT_KernelMode(t *testing.T) {
	sys := NewSystem(WithFields(1))
	sys.SetPC(0, 0)
	sys.mem.Set(0, group2Word(0, false, false, true))

	halt := sys.Step()
	if halt != HaltInstruction {
		t.Errorf("HLT: halt = %v, want HaltInstruction", halt)
	}
}

func TestOPRGroup2_OSR(t *testing.T) {
	sys := NewSystem(WithFields(1))
	sys.SetPC(0, 0)
	sys.mem.Set(0, group2Word(0, false, true, false))
	sys.SetSwitchRegister(01234)
	sys.ac = 0

	halt := sys.Step()
	if halt != HaltNone {
		t.Errorf("OSR: halt = %v, want HaltNone", halt)
	}
	if sys.ac != 01234 {
		t.Errorf("OSR: AC = %o, want 01234", sys.ac)
	}
}

func TestOPRGroup2_HLT_UserModeWithoutTraps(t *testing.T) {
	sys := NewSystem(WithFields(1), WithUserModeTraps(false))
	sys.SetPC(0, 0)
	sys.mem.Set(0, group2Word(0, false, false, true))
	sys.uf = 1

	halt := sys.Step()
	if halt != HaltNone {
		t.Errorf("HLT in user mode without traps: halt = %v, want HaltNone", halt)
	}
	if sys.trapPending {
		t.Errorf("HLT in user mode without traps: trapPending = true, want false")
	}
}

func TestOPRGroup2_HLT_UserModeWithTraps(t *testing.T) {
	sys := NewSystem(WithFields(1), WithUserModeTraps(true))
	sys.SetPC(0, 0)
	word := group2Word(0, false, false, true)
	sys.mem.Set(0, word)
	sys.uf = 1

	halt := sys.Step()
	if halt != HaltNone {
		t.Errorf("HLT in user mode with traps: halt = %v, want HaltNone (trap deferred)", halt)
	}
	if !sys.trapPending {
		t.Fatalf("HLT in user mode with traps: trapPending = false, want true")
	}
	if sys.trapIR != word {
		t.Errorf("HLT in user mode with traps: trapIR = %o, want %o", sys.trapIR, word)
	}

	// The trap actually enters at the start of the *next* Step, not
	// inline: the PC saved at location 0 is the pre-trap PC, and
	// trapPending is consumed before the next instruction fetch. Like any
	// other interrupt request it only vectors with interrupts enabled.
	sys.ion = true
	sys.Step()
	if got := sys.mem.Get(0); got != 1 {
		t.Errorf("trap entry: return PC saved at 0 = %o, want 1", got)
	}
	if sys.trapPending {
		t.Errorf("trap entry: trapPending = true, want false (consumed)")
	}
}

func TestJMS_TrapsInUserModeWithoutCommittingFieldOrReturnAddress(t *testing.T) {
	sys := NewSystem(WithFields(2), WithUserModeTraps(true))
	sys.SetPC(0, 0)
	sys.ibReg = 1
	sys.uf = 1
	sys.ub = 0
	sys.mem.Set(0, memRefWord(4, false, false, 0100))

	sys.Step()
	if sys.ifReg != 0 {
		t.Errorf("trapping JMS: IF = %o, want 0 (not committed)", sys.ifReg)
	}
	if sys.uf != 1 {
		t.Errorf("trapping JMS: UF = %d, want 1 (not committed)", sys.uf)
	}
	if !sys.trapPending {
		t.Errorf("trapping JMS: trapPending = false, want true")
	}
	if got := sys.mem.Get(0100); got != 0 {
		t.Errorf("trapping JMS: return address written = %o, want 0 (skipped)", got)
	}
	if sys.pc != 0101 {
		t.Errorf("trapping JMS: PC = %o, want 0101 (still advances)", sys.pc)
	}
}

func TestJMP_CommitsFieldEvenWhileTrapping(t *testing.T) {
	sys := NewSystem(WithFields(2), WithUserModeTraps(true))
	sys.SetPC(0, 0)
	sys.ibReg = 1
	sys.uf = 1
	sys.ub = 0
	sys.mem.Set(0, memRefWord(5, false, false, 0100))

	sys.Step()
	if sys.ifReg != 1 {
		t.Errorf("trapping JMP: IF = %o, want 1 (committed unconditionally)", sys.ifReg)
	}
	if sys.uf != 0 {
		t.Errorf("trapping JMP: UF = %d, want 0 (committed unconditionally)", sys.uf)
	}
	if !sys.trapPending {
		t.Errorf("trapping JMP: trapPending = false, want true")
	}
	if sys.pc != 0100 {
		t.Errorf("trapping JMP: PC = %o, want 0100", sys.pc)
	}
}

func TestStep_PowerFailAloneVectorsInterrupt(t *testing.T) {
	sys := NewSystem(WithFields(1))
	sys.SetPC(0, 0100)
	sys.mem.Set(0100, memRefWord(1, false, false, 1)) // any instruction, never reached
	sys.ion = true
	sys.pwrFailPending = true

	sys.Step()
	// enterTrap vectors PC to 1 and Step then fetches-and-executes
	// whatever sits there (the zero value, a harmless AND page-zero
	// offset-0) within this same call, so PC ends at 2, not 1.
	if sys.pc != 2 {
		t.Errorf("power-fail alone: PC = %o, want 2 (vectored to 1, then one instruction executed)", sys.pc)
	}
	if got := sys.mem.Get(0); got != 0100 {
		t.Errorf("power-fail alone: saved return PC = %o, want 0100", got)
	}
	if sys.ion {
		t.Errorf("power-fail alone: ion = true, want false after trap entry")
	}
}
