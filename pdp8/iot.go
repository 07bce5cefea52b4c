package pdp8

// execIOT decodes and runs an IOT instruction: user-mode trapping, the
// three CPU-internal device codes (0, 010, 020-027), and dispatch to
// whatever Device is attached at the remaining 6-bit device codes.
func (s *System) execIOT(ir uint16) HaltReason {
	if s.uf != 0 {
		s.trapIR = ir
		s.trapCDF = ir&07707 == 06201
		if s.trapOnUserMode {
			s.trapPending = true
		}
		return HaltNone
	}

	device := int((ir >> 3) & 077)
	pulse := ir & 07

	switch {
	case device == 000:
		return s.iotCPUControl(pulse)
	case device == 010:
		return s.iotPowerFail(pulse)
	case device >= 020 && device <= 027:
		return s.iotMemoryExtensionDevRange(device, pulse)
	default:
		return s.iotDispatch(device, ir)
	}
}

// iotCPUControl implements device 0: SKON/ION/IOF/SRQ/GTF/RTF/SGT/CAF.
func (s *System) iotCPUControl(pulse uint16) HaltReason {
	switch pulse {
	case 0: // SKON
		if s.ion {
			s.pc = (s.pc + 1) & WordMask
		}
		s.ion = false
	case 1: // ION
		s.ion = true
		s.ionInhibit = true
	case 2: // IOF
		s.ion = false
	case 3: // SRQ
		if s.requestPending() {
			s.pc = (s.pc + 1) & WordMask
		}
	case 4: // GTF
		ac := uint16(0)
		if s.link != 0 {
			ac |= 1 << 11
		}
		if s.gtf {
			ac |= 1 << 10
		}
		if s.requestPending() {
			ac |= 1 << 9
		}
		if s.ion {
			ac |= 1 << 7
		}
		ac |= uint16(s.sf) & 0177
		s.ac = ac
	case 5: // RTF
		old := s.ac
		s.gtf = old&02000 != 0
		s.ub = int((old & 0100) >> 6)
		s.ibReg = int((old & 0070) >> 3)
		s.df = int(old & 0007)
		if old&04000 != 0 {
			s.link = 1
		} else {
			s.link = 0
		}
		s.ac = old
		s.ion = true
		s.cifPending = true
	case 6: // SGT
		if s.gtf {
			s.pc = (s.pc + 1) & WordMask
		}
	case 7: // CAF
		s.gtf = false
		s.emode = false
		s.ion = false
		s.ionInhibit = false
		s.reqMask = 0
		s.trapPending = false
		s.pwrFailPending = false
		s.ac = 0
		s.link = 0
		s.devices.resetAll()
	}
	return HaltNone
}

// iotPowerFail implements device 010, power fail: SBE/SPL/CAL.
func (s *System) iotPowerFail(pulse uint16) HaltReason {
	switch pulse {
	case 1: // SBE, no-op: no power-fail source is modeled
	case 2: // SPL
		if s.pwrFailPending {
			s.pc = (s.pc + 1) & WordMask
		}
	case 3: // CAL
		s.pwrFailPending = false
	}
	return HaltNone
}

// iotMemoryExtensionDevRange implements devices 020-027, memory
// extension: CDF, CIF, CDF-CIF, and the pulse-4 sub-functions CINT,
// RDF, RIF, RIB, RMF, SINT, CUF, SUF.
func (s *System) iotMemoryExtensionDevRange(device int, pulse uint16) HaltReason {
	field := device & 07
	switch pulse {
	case 1: // CDF
		s.df = field
	case 2: // CIF
		s.ibReg = field
		s.cifPending = true
	case 3: // CDF CIF
		s.df = field
		s.ibReg = field
		s.cifPending = true
	case 4:
		switch device & 07 {
		case 0: // CINT
			s.trapPending = false
		case 1: // RDF
			s.ac |= uint16(s.df) << 3
		case 2: // RIF
			s.ac |= uint16(s.ifReg) << 3
		case 3: // RIB
			s.ac |= uint16(s.sf)
		case 4: // RMF
			s.ub = (s.sf >> 6) & 1
			s.ibReg = (s.sf >> 3) & 07
			s.df = s.sf & 07
			s.cifPending = true
		case 5: // SINT
			if s.trapPending {
				s.pc = (s.pc + 1) & WordMask
			}
		case 6: // CUF
			s.ub = 0
			s.cifPending = true
		case 7: // SUF
			s.ub = 1
			s.cifPending = true
		}
	}
	return HaltNone
}

// iotDispatch sends an IOT to whatever Device is attached at the given
// code, applying the AC-replace/skip/halt response. An IOT to a slot with
// nothing attached halts only when stopOnIllegal is set; otherwise it is
// a no-op.
func (s *System) iotDispatch(device int, ir uint16) HaltReason {
	d := s.devices.get(device)
	resp := d.IOT(ir, s.ac)
	if resp.ReplaceAC {
		s.ac = resp.AC & WordMask
	}
	if resp.Skip {
		s.pc = (s.pc + 1) & WordMask
	}
	if resp.Halt == HaltUnattachedIOT && !s.stopOnIllegal {
		return HaltNone
	}
	return resp.Halt
}
