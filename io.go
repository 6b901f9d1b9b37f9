package sx1280

import (
	"encoding/binary"
	"errors"

	"github.com/radiolink/sx1280/sxll"
)

var errDataTooLong = errors.New("sx1280: data exceeds chip buffer")

// cmd issues the first n bytes of wbuf as a write-only command.
// Caller holds mu.
func (d *Device) cmd(n int) error {
	if err := d.waitNotBusy(d.busyTimeout); err != nil {
		return err
	}
	return d.tr.Tx(d.wbuf[:n], nil)
}

// xfer issues the first n bytes of wbuf as a full-duplex transfer, clocking
// the response into rbuf. Bytes past the opcode in wbuf must be zeroed by
// the caller. Caller holds mu.
func (d *Device) xfer(n int) error {
	if err := d.waitNotBusy(d.busyTimeout); err != nil {
		return err
	}
	return d.tr.Tx(d.wbuf[:n], d.rbuf[:n])
}

func (d *Device) getStatus() (sxll.Status, error) {
	d.wbuf[0] = byte(sxll.CmdGetStatus)
	if err := d.xfer(1); err != nil {
		return 0, err
	}
	return sxll.Status(d.rbuf[0]), nil
}

// writeRegister writes data to consecutive registers starting at addr.
func (d *Device) writeRegister(addr uint16, data ...byte) error {
	d.wbuf[0] = byte(sxll.CmdWriteRegister)
	binary.BigEndian.PutUint16(d.wbuf[1:3], addr)
	n := copy(d.wbuf[3:], data)
	return d.cmd(3 + n)
}

// readRegister reads len(dst) consecutive registers starting at addr. The
// response data follows the 4-byte command header on the wire.
func (d *Device) readRegister(addr uint16, dst []byte) error {
	if len(dst) > sxll.BufferSize {
		return errDataTooLong
	}
	const hdr = 4
	d.wbuf[0] = byte(sxll.CmdReadRegister)
	binary.BigEndian.PutUint16(d.wbuf[1:3], addr)
	d.wbuf[3] = 0
	n := hdr + len(dst)
	clear(d.wbuf[hdr:n])
	if err := d.xfer(n); err != nil {
		return err
	}
	copy(dst, d.rbuf[hdr:n])
	return nil
}

// writeBuffer stores data into the chip's data buffer at offset.
func (d *Device) writeBuffer(offset uint8, data []byte) error {
	if len(data) > sxll.BufferSize {
		return errDataTooLong
	}
	d.wbuf[0] = byte(sxll.CmdWriteBuffer)
	d.wbuf[1] = offset
	n := copy(d.wbuf[2:], data)
	return d.cmd(2 + n)
}

// readBuffer fetches len(dst) bytes of the chip's data buffer starting at
// offset. The payload follows the 3-byte command header on the wire.
func (d *Device) readBuffer(offset uint8, dst []byte) error {
	if len(dst) > sxll.BufferSize {
		return errDataTooLong
	}
	const hdr = 3
	d.wbuf[0] = byte(sxll.CmdReadBuffer)
	d.wbuf[1] = offset
	d.wbuf[2] = 0
	n := hdr + len(dst)
	clear(d.wbuf[hdr:n])
	if err := d.xfer(n); err != nil {
		return err
	}
	copy(dst, d.rbuf[hdr:n])
	return nil
}

func (d *Device) setSleep(saveBuffer, saveRAM bool) error {
	var cfg byte
	if saveBuffer {
		cfg |= 1 << 1
	}
	if saveRAM {
		cfg |= 1 << 0
	}
	d.wbuf[0] = byte(sxll.CmdSetSleep)
	d.wbuf[1] = cfg
	return d.cmd(2)
}

func (d *Device) setStandby(osc uint8) error {
	d.wbuf[0] = byte(sxll.CmdSetStandby)
	d.wbuf[1] = osc
	return d.cmd(2)
}

// setTx starts a transmission with the given hardware timeout. A count of
// zero disables the timeout.
func (d *Device) setTx(pb sxll.PeriodBase, count uint16) error {
	d.wbuf[0] = byte(sxll.CmdSetTx)
	d.wbuf[1] = byte(pb)
	binary.BigEndian.PutUint16(d.wbuf[2:4], count)
	return d.cmd(4)
}

// setRx opens a receive window with the given hardware timeout. A count of
// zero is single-shot, 0xFFFF is continuous.
func (d *Device) setRx(pb sxll.PeriodBase, count uint16) error {
	d.wbuf[0] = byte(sxll.CmdSetRx)
	d.wbuf[1] = byte(pb)
	binary.BigEndian.PutUint16(d.wbuf[2:4], count)
	return d.cmd(4)
}

func (d *Device) setPacketType(m sxll.Mode) error {
	d.wbuf[0] = byte(sxll.CmdSetPacketType)
	d.wbuf[1] = byte(m)
	return d.cmd(2)
}

func (d *Device) getPacketType() (sxll.Mode, error) {
	d.wbuf[0] = byte(sxll.CmdGetPacketType)
	d.wbuf[1], d.wbuf[2] = 0, 0
	if err := d.xfer(3); err != nil {
		return 0, err
	}
	m := sxll.Mode(d.rbuf[2])
	if m >= sxll.MaxMode {
		return m, ErrInvalidMode
	}
	return m, nil
}

// setRfFrequency programs the 24-bit PLL word, MSB first.
func (d *Device) setRfFrequency(pll uint32) error {
	d.wbuf[0] = byte(sxll.CmdSetRfFrequency)
	d.wbuf[1] = byte(pll >> 16)
	d.wbuf[2] = byte(pll >> 8)
	d.wbuf[3] = byte(pll)
	return d.cmd(4)
}

func (d *Device) setTxParams(power, ramp uint8) error {
	d.wbuf[0] = byte(sxll.CmdSetTxParams)
	d.wbuf[1] = power
	d.wbuf[2] = ramp
	return d.cmd(3)
}

func (d *Device) setBufferBaseAddress(txBase, rxBase uint8) error {
	d.wbuf[0] = byte(sxll.CmdSetBufferBaseAddress)
	d.wbuf[1] = txBase
	d.wbuf[2] = rxBase
	return d.cmd(3)
}

func (d *Device) setModulationParams(p *sxll.ModulationParams) error {
	d.wbuf[0] = byte(sxll.CmdSetModulationParams)
	p.Put(d.wbuf[1 : 1+sxll.ModulationParamsLen])
	return d.cmd(1 + sxll.ModulationParamsLen)
}

func (d *Device) setPacketParams(p *sxll.PacketParams) error {
	d.wbuf[0] = byte(sxll.CmdSetPacketParams)
	p.Put(d.wbuf[1 : 1+sxll.PacketParamsLen])
	return d.cmd(1 + sxll.PacketParamsLen)
}

func (d *Device) getRxBufferStatus() (sxll.RxBufferStatus, error) {
	d.wbuf[0] = byte(sxll.CmdGetRxBufferStatus)
	clear(d.wbuf[1:4])
	if err := d.xfer(4); err != nil {
		return sxll.RxBufferStatus{}, err
	}
	return sxll.RxBufferStatus{
		PayloadLength: d.rbuf[2],
		StartOffset:   d.rbuf[3],
	}, nil
}

func (d *Device) getPacketStatus() (sxll.PacketStatus, error) {
	d.wbuf[0] = byte(sxll.CmdGetPacketStatus)
	clear(d.wbuf[1:7])
	if err := d.xfer(7); err != nil {
		return sxll.PacketStatus{}, err
	}
	return sxll.DecodePacketStatus(d.cfg.Mode, d.rbuf[2:7]), nil
}

func (d *Device) getRssiInst() (uint8, error) {
	d.wbuf[0] = byte(sxll.CmdGetRssiInst)
	d.wbuf[1], d.wbuf[2] = 0, 0
	if err := d.xfer(3); err != nil {
		return 0, err
	}
	return d.rbuf[2], nil
}

// setDioIrqParams selects which interrupt flags are enabled and which of
// the three DIO lines each flag is routed to.
func (d *Device) setDioIrqParams(irq sxll.IrqStatus, dio [3]sxll.IrqStatus) error {
	d.wbuf[0] = byte(sxll.CmdSetDioIrqParams)
	binary.BigEndian.PutUint16(d.wbuf[1:3], uint16(irq))
	binary.BigEndian.PutUint16(d.wbuf[3:5], uint16(dio[0]))
	binary.BigEndian.PutUint16(d.wbuf[5:7], uint16(dio[1]))
	binary.BigEndian.PutUint16(d.wbuf[7:9], uint16(dio[2]))
	return d.cmd(9)
}

func (d *Device) getIrqStatus() (sxll.IrqStatus, error) {
	d.wbuf[0] = byte(sxll.CmdGetIrqStatus)
	clear(d.wbuf[1:4])
	if err := d.xfer(4); err != nil {
		return 0, err
	}
	return sxll.IrqStatus(binary.BigEndian.Uint16(d.rbuf[2:4])), nil
}

func (d *Device) clearIrqStatus(mask sxll.IrqStatus) error {
	d.wbuf[0] = byte(sxll.CmdClrIrqStatus)
	binary.BigEndian.PutUint16(d.wbuf[1:3], uint16(mask))
	return d.cmd(3)
}

func (d *Device) setTxContinuousWave() error {
	d.wbuf[0] = byte(sxll.CmdSetTxContinuousWave)
	return d.cmd(1)
}

func (d *Device) setTxContinuousPreamble() error {
	d.wbuf[0] = byte(sxll.CmdSetTxContinuousPreamble)
	return d.cmd(1)
}

func (d *Device) setRangingRole(role uint8) error {
	d.wbuf[0] = byte(sxll.CmdSetRangingRole)
	d.wbuf[1] = role
	return d.cmd(2)
}
