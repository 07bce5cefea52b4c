package pdp8

// Registers is a point-in-time snapshot of the processor state, the
// analogue of the simulator's register table used for inspection and
// save-state serialization.
type Registers struct {
	PC uint16 // program counter, 12 bits
	AC uint16 // accumulator, 12 bits
	L  uint16 // link, 0 or 1
	MQ uint16 // multiplier-quotient, 12 bits
	SR uint16 // front-panel switch register (OSR source)

	IF uint16 // instruction field, 0-7
	DF uint16 // data field, 0-7
	IB uint16 // instruction field buffer, 0-7
	SF uint16 // save field: (UF<<6)|(IF<<3)|DF, latched on interrupt entry
	UB uint16 // user flag buffer
	UF uint16 // user flag

	SC    uint16 // EAE shift counter, 0-37 octal
	GTF   bool   // EAE greater-than flag
	EMode bool   // EAE mode: false=A (default), true=B

	Ion      bool // interrupts enabled
	IonDelay bool // ION takes effect after the following instruction
	CifDelay bool // a CIF/CDF-CIF IOT's field change is pending

	IntRequested bool
	DevDone      uint64 // bit i set => device i has an interrupt request pending
}
