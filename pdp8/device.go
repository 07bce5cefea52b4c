package pdp8

import "fmt"

// DeviceMax is the number of 6-bit device codes an IOT instruction can
// address (000-077 octal).
const DeviceMax = 64

// DeviceResponse is what a Device hands back after decoding one IOT
// pulse sequence.
type DeviceResponse struct {
	AC        uint16     // replaces AC when ReplaceAC is true
	ReplaceAC bool
	Skip      bool       // skip the next instruction (IOT_SKP)
	Halt      HaltReason // HaltNone unless the device wants Run to stop
}

// Device is anything that can be attached to one of the 64 IOT device
// slots. IOT decodes the device number and pulse bits itself and hands
// the device only the parts it needs: the full instruction word (for
// pulse-bit decoding) and the current AC.
type Device interface {
	IOT(ir uint16, ac uint16) DeviceResponse
}

// unattachedDevice is installed in every device slot nobody has Attach-ed,
// the analogue of bad_dev: any IOT addressed to it reports
// HaltUnattachedIOT, which iotDispatch turns into a halt only when
// stopOnIllegal is set and into a silent no-op otherwise.
type unattachedDevice struct{}

func (unattachedDevice) IOT(ir uint16, ac uint16) DeviceResponse {
	return DeviceResponse{Halt: HaltUnattachedIOT}
}

// deviceTable is the 64-slot IOT dispatch table.
type deviceTable struct {
	slots [DeviceMax]Device
}

func newDeviceTable() *deviceTable {
	dt := &deviceTable{}
	for i := range dt.slots {
		dt.slots[i] = unattachedDevice{}
	}
	return dt
}

// attach installs d at devNum, returning an error if something is
// already there (the attach-time analogue of build_dev_tab's
// duplicate-slot conflict check, paid when the caller configures the
// machine rather than at boot).
func (dt *deviceTable) attach(devNum int, d Device) error {
	if devNum < 0 || devNum >= DeviceMax {
		return fmt.Errorf("pdp8: device number %03o out of range", devNum)
	}
	if _, ok := dt.slots[devNum].(unattachedDevice); !ok {
		return fmt.Errorf("pdp8: device %03o already attached", devNum)
	}
	dt.slots[devNum] = d
	return nil
}

func (dt *deviceTable) detach(devNum int) {
	if devNum >= 0 && devNum < DeviceMax {
		dt.slots[devNum] = unattachedDevice{}
	}
}

func (dt *deviceTable) get(devNum int) Device {
	if devNum < 0 || devNum >= DeviceMax {
		return unattachedDevice{}
	}
	return dt.slots[devNum]
}

// Resettable is implemented by devices that need to reset internal
// state on CAF (Clear All Flags).
type Resettable interface {
	Reset()
}

func (dt *deviceTable) resetAll() {
	for _, d := range dt.slots {
		if r, ok := d.(Resettable); ok {
			r.Reset()
		}
	}
}
