package pdp8

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

// Save-state layout: a fixed 18-byte header (magic, version, CRC32 of
// everything after it) followed by the field count, the full memory
// contents, and the scalar processor registers. Grounded on the
// teacher's own Serialize/Deserialize/VerifyState shape in
// emu/emulator.go, substituting the PDP-8 register set for the Z80's.
const (
	stateMagic      = "PDP8GOSTATE1"
	stateVersion    = 1
	stateHeaderSize = 12 + 2 + 4 // magic + version + dataCRC
	// serializeRegisters writes 14 uint16s, 12 bools, and 1 uint64:
	// pc,ac,link,mq,sr,ifReg,ibReg,df,ub,uf,sf,sc,trapIR,lastMB (14x2),
	// gtf,emode,ion,ionInhibit,cifPending,trapPending,trapCDF,
	// pwrFailPending,trapOnUserMode,stopOnIllegal,running,singleStep
	// (12x1), reqMask (8).
	stateScalarSize = 2*14 + 1*12 + 8
)

// SerializeSize returns the number of bytes Serialize will produce for
// the System's current field count.
func (s *System) SerializeSize() int {
	return stateHeaderSize + 1 + s.mem.Size()*2 + stateScalarSize
}

// Serialize snapshots the whole machine (memory and registers) into a
// byte slice suitable for Deserialize. Attached devices are not included:
// device state itself is out of scope, the same boundary the
// teacher's save state draws around cartridge RAM versus emulator core.
func (s *System) Serialize() ([]byte, error) {
	size := s.SerializeSize()
	data := make([]byte, size)

	copy(data[0:12], stateMagic)
	binary.LittleEndian.PutUint16(data[12:14], stateVersion)

	offset := stateHeaderSize
	data[offset] = byte(s.mem.Fields())
	offset++
	for i := 0; i < s.mem.Size(); i++ {
		binary.LittleEndian.PutUint16(data[offset:], s.mem.Get(i))
		offset += 2
	}
	offset = s.serializeRegisters(data, offset)

	dataCRC := crc32.ChecksumIEEE(data[stateHeaderSize:])
	binary.LittleEndian.PutUint32(data[14:18], dataCRC)
	return data, nil
}

// Deserialize restores System state from a byte slice produced by
// Serialize. The System's memory is reallocated to match the saved
// field count.
func (s *System) Deserialize(data []byte) error {
	if err := s.VerifyState(data); err != nil {
		return err
	}

	offset := stateHeaderSize
	fields := int(data[offset])
	offset++

	s.mem = NewMemory(fields)
	for i := 0; i < s.mem.Size(); i++ {
		s.mem.Set(i, binary.LittleEndian.Uint16(data[offset:]))
		offset += 2
	}
	s.deserializeRegisters(data, offset)
	return nil
}

// VerifyState checks a save state's magic, version, and checksum
// without applying it.
func (s *System) VerifyState(data []byte) error {
	if len(data) < stateHeaderSize+1 {
		return errors.New("pdp8: save state too short")
	}
	if string(data[0:12]) != stateMagic {
		return errors.New("pdp8: invalid save state magic")
	}
	if version := binary.LittleEndian.Uint16(data[12:14]); version > stateVersion {
		return errors.New("pdp8: unsupported save state version")
	}

	fields := int(data[stateHeaderSize])
	want := stateHeaderSize + 1 + fields*FieldSize*2 + stateScalarSize
	if len(data) != want {
		return errors.New("pdp8: save state size does not match its declared field count")
	}

	expectedCRC := binary.LittleEndian.Uint32(data[14:18])
	actualCRC := crc32.ChecksumIEEE(data[stateHeaderSize:])
	if expectedCRC != actualCRC {
		return errors.New("pdp8: save state checksum mismatch")
	}
	return nil
}

func putBool(data []byte, offset int, v bool) int {
	if v {
		data[offset] = 1
	} else {
		data[offset] = 0
	}
	return offset + 1
}

func getBool(data []byte, offset int) (bool, int) {
	return data[offset] != 0, offset + 1
}

func (s *System) serializeRegisters(data []byte, offset int) int {
	put16 := func(v uint16) {
		binary.LittleEndian.PutUint16(data[offset:], v)
		offset += 2
	}
	put16(s.pc)
	put16(s.ac)
	put16(s.link)
	put16(s.mq)
	put16(s.sr)
	put16(uint16(s.ifReg))
	put16(uint16(s.ibReg))
	put16(uint16(s.df))
	put16(uint16(s.ub))
	put16(uint16(s.uf))
	put16(uint16(s.sf))
	put16(s.sc)
	offset = putBool(data, offset, s.gtf)
	offset = putBool(data, offset, s.emode)
	offset = putBool(data, offset, s.ion)
	offset = putBool(data, offset, s.ionInhibit)
	offset = putBool(data, offset, s.cifPending)
	binary.LittleEndian.PutUint64(data[offset:], s.reqMask)
	offset += 8
	offset = putBool(data, offset, s.trapPending)
	binary.LittleEndian.PutUint16(data[offset:], s.trapIR)
	offset += 2
	offset = putBool(data, offset, s.trapCDF)
	offset = putBool(data, offset, s.pwrFailPending)
	offset = putBool(data, offset, s.trapOnUserMode)
	offset = putBool(data, offset, s.stopOnIllegal)
	offset = putBool(data, offset, s.running)
	offset = putBool(data, offset, s.singleStep)
	binary.LittleEndian.PutUint16(data[offset:], s.lastMB)
	offset += 2
	return offset
}

func (s *System) deserializeRegisters(data []byte, offset int) int {
	get16 := func() uint16 {
		v := binary.LittleEndian.Uint16(data[offset:])
		offset += 2
		return v
	}
	s.pc = get16()
	s.ac = get16()
	s.link = get16()
	s.mq = get16()
	s.sr = get16()
	s.ifReg = int(get16())
	s.ibReg = int(get16())
	s.df = int(get16())
	s.ub = int(get16())
	s.uf = int(get16())
	s.sf = int(get16())
	s.sc = get16()
	s.gtf, offset = getBool(data, offset)
	s.emode, offset = getBool(data, offset)
	s.ion, offset = getBool(data, offset)
	s.ionInhibit, offset = getBool(data, offset)
	s.cifPending, offset = getBool(data, offset)
	s.reqMask = binary.LittleEndian.Uint64(data[offset:])
	offset += 8
	s.trapPending, offset = getBool(data, offset)
	s.trapIR = binary.LittleEndian.Uint16(data[offset:])
	offset += 2
	s.trapCDF, offset = getBool(data, offset)
	s.pwrFailPending, offset = getBool(data, offset)
	s.trapOnUserMode, offset = getBool(data, offset)
	s.stopOnIllegal, offset = getBool(data, offset)
	s.running, offset = getBool(data, offset)
	s.singleStep, offset = getBool(data, offset)
	s.lastMB = binary.LittleEndian.Uint16(data[offset:])
	offset += 2
	return offset
}
