package sxll

import "strings"

// Status is the single byte returned by GetStatus and echoed as the first
// byte of every command response. Bits [7:5] report the circuit mode, bits
// [4:2] the outcome of the last command.
type Status uint8

func (s Status) CircuitMode() CircuitMode     { return CircuitMode(s >> 5 & 0x7) }
func (s Status) CommandStatus() CommandStatus { return CommandStatus(s >> 2 & 0x7) }

// OK reports whether the status byte is acceptable immediately after a
// hardware reset: the chip must be in a standby mode and the last command
// must not have failed.
func (s Status) OK() bool {
	cm := s.CircuitMode()
	if cm != CircuitStandbyRC && cm != CircuitStandbyXOSC {
		return false
	}
	switch s.CommandStatus() {
	case CmdStatusTimeout, CmdStatusProcessingError, CmdStatusExecFailure:
		return false
	}
	return true
}

type CircuitMode uint8

const (
	CircuitStandbyRC   CircuitMode = 0x2
	CircuitStandbyXOSC CircuitMode = 0x3
	CircuitFs          CircuitMode = 0x4
	CircuitRx          CircuitMode = 0x5
	CircuitTx          CircuitMode = 0x6
)

func (c CircuitMode) String() string {
	switch c {
	case CircuitStandbyRC:
		return "stdby_rc"
	case CircuitStandbyXOSC:
		return "stdby_xosc"
	case CircuitFs:
		return "fs"
	case CircuitRx:
		return "rx"
	case CircuitTx:
		return "tx"
	}
	return "reserved"
}

type CommandStatus uint8

const (
	CmdStatusTxProcessed     CommandStatus = 0x1
	CmdStatusDataAvailable   CommandStatus = 0x2
	CmdStatusTimeout         CommandStatus = 0x3
	CmdStatusProcessingError CommandStatus = 0x4
	CmdStatusExecFailure     CommandStatus = 0x5
	CmdStatusTxDone          CommandStatus = 0x6
)

func (c CommandStatus) String() string {
	switch c {
	case CmdStatusTxProcessed:
		return "processed"
	case CmdStatusDataAvailable:
		return "data_available"
	case CmdStatusTimeout:
		return "timeout"
	case CmdStatusProcessingError:
		return "processing_error"
	case CmdStatusExecFailure:
		return "exec_failure"
	case CmdStatusTxDone:
		return "tx_done"
	}
	return "reserved"
}

// IrqStatus is the chip's 16-bit interrupt flag register, transferred
// big-endian on the wire. Bit meaning depends on the operation in flight;
// bit 15 doubles as PreambleDetected and AdvancedRangingDone.
type IrqStatus uint16

const (
	IrqTxDone                     IrqStatus = 1 << 0
	IrqRxDone                     IrqStatus = 1 << 1
	IrqSyncWordValid              IrqStatus = 1 << 2
	IrqSyncWordError              IrqStatus = 1 << 3
	IrqHeaderValid                IrqStatus = 1 << 4
	IrqHeaderError                IrqStatus = 1 << 5
	IrqCrcError                   IrqStatus = 1 << 6
	IrqRangingSlaveResponseDone   IrqStatus = 1 << 7
	IrqRangingSlaveRequestDiscard IrqStatus = 1 << 8
	IrqRangingMasterResultValid   IrqStatus = 1 << 9
	IrqRangingMasterTimeout       IrqStatus = 1 << 10
	IrqRangingSlaveRequestValid   IrqStatus = 1 << 11
	IrqCadDone                    IrqStatus = 1 << 12
	IrqCadDetected                IrqStatus = 1 << 13
	IrqRxTxTimeout                IrqStatus = 1 << 14
	IrqPreambleDetected           IrqStatus = 1 << 15

	// IrqAll is the full clear mask.
	IrqAll IrqStatus = 0xFFFF

	// IrqRxErrors are the receive integrity failure bits.
	IrqRxErrors = IrqSyncWordError | IrqHeaderError | IrqCrcError
)

var irqNames = [16]string{
	"TxDone", "RxDone", "SyncWordValid", "SyncWordError",
	"HeaderValid", "HeaderError", "CrcError", "RangingSlaveResponseDone",
	"RangingSlaveRequestDiscard", "RangingMasterResultValid",
	"RangingMasterTimeout", "RangingSlaveRequestValid",
	"CadDone", "CadDetected", "RxTxTimeout", "PreambleDetected",
}

func (irq IrqStatus) String() string {
	if irq == 0 {
		return "none"
	}
	var sb strings.Builder
	for i := 0; i < 16; i++ {
		if irq&(1<<i) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(irqNames[i])
	}
	return sb.String()
}

// RxBufferStatus reports where the last received payload landed in the
// chip's data buffer.
type RxBufferStatus struct {
	PayloadLength uint8
	StartOffset   uint8
}

// PacketStatus is the diagnostic block returned by GetPacketStatus. Its
// layout depends on the mode that was active when the packet was received.
type PacketStatus struct {
	Mode Mode
	raw  [5]byte
}

// DecodePacketStatus decodes the 5 status bytes following the opcode echo.
// Panics if b is shorter than 5 bytes.
func DecodePacketStatus(mode Mode, b []byte) (ps PacketStatus) {
	_ = b[4]
	ps.Mode = mode
	copy(ps.raw[:], b)
	return ps
}

// RSSIdBm returns the RSSI of the received packet in dBm.
func (ps PacketStatus) RSSIdBm() int {
	if ps.Mode == ModeLoRa || ps.Mode == ModeRanging {
		return -int(ps.raw[0]) / 2
	}
	return -int(ps.raw[1]) / 2
}

// SNRdB returns the estimated signal to noise ratio in dB.
// Only meaningful in LoRa and Ranging modes.
func (ps PacketStatus) SNRdB() int { return int(int8(ps.raw[1])) / 4 }

// Errors returns the GFSK/FLRC packet error byte.
func (ps PacketStatus) Errors() uint8 { return ps.raw[2] }

// StatusByte returns the GFSK/FLRC packet status byte.
func (ps PacketStatus) StatusByte() uint8 { return ps.raw[3] }

// SyncIndex returns which sync address matched, for GFSK/FLRC.
func (ps PacketStatus) SyncIndex() uint8 { return ps.raw[4] & 0x7 }
