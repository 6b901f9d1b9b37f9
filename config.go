package sx1280

import (
	"context"
	"errors"
	"time"

	"log/slog"

	"github.com/radiolink/sx1280/sxll"
)

// GFSKConfig holds the GFSK-mode radio settings. Modulation and packet
// fields carry wire codes from the sxll package.
type GFSKConfig struct {
	Modulation    sxll.GFSKModulation
	Packet        sxll.GFSKPacket
	SyncWord1     [5]byte
	CRCSeed       uint16
	CRCPolynomial uint16
}

// FLRCConfig holds the FLRC-mode radio settings.
type FLRCConfig struct {
	Modulation sxll.FLRCModulation
	Packet     sxll.FLRCPacket
	SyncWord1  [5]byte
	CRCSeed    uint16
}

// LoRaConfig holds the LoRa-mode radio settings.
type LoRaConfig struct {
	Modulation sxll.LoRaModulation
	Packet     sxll.LoRaPacket
}

// Ranging role bytes for SetRangingRole.
const (
	RangingRoleSlave  = 0x00
	RangingRoleMaster = 0x01
)

// RangingConfig holds the ranging-mode radio settings. Ranging reuses the
// LoRa modem; it exchanges distance measurements, not payloads.
type RangingConfig struct {
	Modulation    sxll.LoRaModulation
	Packet        sxll.LoRaPacket
	SlaveAddress  uint32
	MasterAddress uint32
	Calibration   uint16
	Role          uint8
}

// ChipConfig is the full radio configuration. All four mode sections are
// retained so switching modes restores that mode's settings; only the
// section selected by Mode is live on the chip.
type ChipConfig struct {
	Mode        sxll.Mode
	FrequencyHz uint32
	PowerDBm    int8
	RampTimeUs  uint8
	// Timeout bounds each hardware Rx window and Tx operation.
	// Zero disables the hardware timer (single-shot).
	Timeout time.Duration
	GFSK    GFSKConfig
	FLRC    FLRCConfig
	LoRa    LoRaConfig
	Ranging RangingConfig
}

// DefaultChipConfig returns a LoRa SF12/BW1600 configuration at 2.4 GHz and
// maximum output power, with sensible GFSK and FLRC sections for mode
// switching.
func DefaultChipConfig() *ChipConfig {
	lora := sxll.LoRaModulation{Spreading: sxll.LoRaSF12, Bandwidth: sxll.LoRaBw1600, CodingRate: sxll.LoRaCrLI48}
	loraPkt := sxll.LoRaPacket{
		PreambleLength: 0x31, // 8 bits
		HeaderType:     sxll.LoRaExplicitHeader,
		PayloadLength:  253,
		CRC:            sxll.LoRaCRCEnable,
		InvertIQ:       sxll.LoRaIQStandard,
	}
	return &ChipConfig{
		Mode:        sxll.ModeLoRa,
		FrequencyHz: 2_400_000_000,
		PowerDBm:    13,
		RampTimeUs:  2,
		Timeout:     100 * time.Millisecond,
		GFSK: GFSKConfig{
			Modulation: sxll.GFSKModulation{
				BitrateBandwidth: sxll.GFSKBr2000Bw2400,
				ModulationIndex:  sxll.ModIndex200,
				BandwidthTime:    sxll.BT10,
			},
			Packet: sxll.GFSKPacket{
				PreambleLength: 0x10, // 8 bits
				SyncWordLength: sxll.SyncWordLen2B,
				SyncWordMatch:  sxll.SyncWordMatchOff,
				HeaderType:     sxll.PacketVariableLength,
				PayloadLength:  255,
				CRCLength:      sxll.CRC2Bytes,
				Whitening:      sxll.WhiteningEnable,
			},
			CRCSeed:       0x9CE4,
			CRCPolynomial: 0x1021,
		},
		FLRC: FLRCConfig{
			Modulation: sxll.FLRCModulation{
				BitrateBandwidth: sxll.FLRCBr1300Bw1200,
				CodingRate:       sxll.FLRCCr34,
				BandwidthTime:    sxll.BT10,
			},
			Packet: sxll.FLRCPacket{
				AGCPreambleLength: 0x10,
				SyncWordLength:    sxll.FLRCSyncWordLen32,
				SyncWordMatch:     sxll.SyncWordMatchOff,
				HeaderType:        sxll.PacketVariableLength,
				PayloadLength:     127,
				CRCLength:         sxll.FLRCCRC2Byte,
				Whitening:         sxll.WhiteningDisable,
			},
			CRCSeed: 0x9CE4,
		},
		LoRa: LoRaConfig{Modulation: lora, Packet: loraPkt},
		Ranging: RangingConfig{
			Modulation: lora,
			Packet:     loraPkt,
			Role:       RangingRoleSlave,
		},
	}
}

// modulationParams assembles the tagged wire union for the active mode.
func (c *ChipConfig) modulationParams() sxll.ModulationParams {
	p := sxll.ModulationParams{Mode: c.Mode}
	switch c.Mode {
	case sxll.ModeFLRC:
		p.FLRC = c.FLRC.Modulation
	case sxll.ModeLoRa:
		p.LoRa = c.LoRa.Modulation
	case sxll.ModeRanging:
		p.LoRa = c.Ranging.Modulation
	default:
		p.GFSK = c.GFSK.Modulation
	}
	return p
}

// packetParams assembles the tagged wire union for the active mode.
func (c *ChipConfig) packetParams() sxll.PacketParams {
	p := sxll.PacketParams{Mode: c.Mode}
	switch c.Mode {
	case sxll.ModeFLRC:
		p.FLRC = c.FLRC.Packet
	case sxll.ModeLoRa:
		p.LoRa = c.LoRa.Packet
	case sxll.ModeRanging:
		p.LoRa = c.Ranging.Packet
	default:
		p.GFSK = c.GFSK.Packet
	}
	return p
}

// SetMode switches the active packet mode, reprogramming the chip from
// standby with the stored configuration for that mode and rearming the
// receiver. Blocks until any in-flight transmission completes; on context
// cancellation the configuration is untouched.
func (d *Device) SetMode(ctx context.Context, mode sxll.Mode) error {
	if mode > sxll.ModeFLRC {
		return ErrInvalidMode
	}
	if err := d.acquireStandby(ctx); err != nil {
		return err
	}
	defer d.mu.Unlock()
	prev := d.cfg.Mode
	d.cfg.Mode = mode
	if err := d.setup(mode); err != nil {
		return err
	}
	d.info("mode switched", slog.String("from", prev.String()), slog.String("to", mode.String()))
	if mode == sxll.ModeRanging {
		return nil // ranging runs no packet traffic
	}
	return d.armRx()
}

// SetFrequency tunes the carrier. The chip accepts 2.4 to 2.5 GHz.
func (d *Device) SetFrequency(ctx context.Context, hz uint32) error {
	if !within(hz, freqMinHz, freqMaxHz) {
		return ErrFrequencyRange
	}
	if err := d.waitIdle(ctx); err != nil {
		return err
	}
	defer d.mu.Unlock()
	d.cfg.FrequencyHz = hz
	return d.setRfFrequency(sxll.FreqToPLL(hz))
}

// SetTxPower sets the output power in dBm, -18 to 13.
func (d *Device) SetTxPower(ctx context.Context, dbm int8) error {
	power, err := sxll.PowerCode(dbm)
	if err != nil {
		return err
	}
	if err := d.waitIdle(ctx); err != nil {
		return err
	}
	defer d.mu.Unlock()
	ramp, _ := sxll.RampTimeCode(d.cfg.RampTimeUs)
	d.cfg.PowerDBm = dbm
	return d.setTxParams(power, ramp)
}

// SetRampTime sets the power amplifier ramp time in microseconds.
// Valid values are 2, 4, 6, 8, 10, 12, 16 and 20.
func (d *Device) SetRampTime(ctx context.Context, us uint8) error {
	ramp, err := sxll.RampTimeCode(us)
	if err != nil {
		return err
	}
	if err := d.waitIdle(ctx); err != nil {
		return err
	}
	defer d.mu.Unlock()
	power, _ := sxll.PowerCode(d.cfg.PowerDBm)
	d.cfg.RampTimeUs = us
	return d.setTxParams(power, ramp)
}

// SetTimeout changes the hardware Rx/Tx timeout. An open receive window is
// reissued so the new timeout takes effect immediately.
func (d *Device) SetTimeout(ctx context.Context, timeout time.Duration) error {
	pb, count, err := sxll.SplitTimeout(timeout)
	if err != nil {
		return err
	}
	if err := d.waitIdle(ctx); err != nil {
		return err
	}
	defer d.mu.Unlock()
	d.cfg.Timeout = timeout
	d.pb = pb
	d.pbCount = count
	if d.state == StateRx {
		return d.armRx()
	}
	return nil
}

// SetGFSKConfig replaces the stored GFSK settings. If GFSK is the active
// mode the chip is reprogrammed in place; the call then waits for any
// in-flight transmission first.
func (d *Device) SetGFSKConfig(ctx context.Context, cfg GFSKConfig) error {
	if err := d.waitIdleIfMode(ctx, sxll.ModeGFSK); err != nil {
		return err
	}
	defer d.mu.Unlock()
	d.cfg.GFSK = cfg
	return d.reapplyIfActive(sxll.ModeGFSK)
}

// SetFLRCConfig replaces the stored FLRC settings, reprogramming the chip
// when FLRC is active.
func (d *Device) SetFLRCConfig(ctx context.Context, cfg FLRCConfig) error {
	if err := d.waitIdleIfMode(ctx, sxll.ModeFLRC); err != nil {
		return err
	}
	defer d.mu.Unlock()
	d.cfg.FLRC = cfg
	return d.reapplyIfActive(sxll.ModeFLRC)
}

// SetLoRaConfig replaces the stored LoRa settings, reprogramming the chip
// when LoRa is active.
func (d *Device) SetLoRaConfig(ctx context.Context, cfg LoRaConfig) error {
	if err := d.waitIdleIfMode(ctx, sxll.ModeLoRa); err != nil {
		return err
	}
	defer d.mu.Unlock()
	d.cfg.LoRa = cfg
	return d.reapplyIfActive(sxll.ModeLoRa)
}

// SetRangingConfig replaces the stored ranging settings, reprogramming the
// chip when ranging is active.
func (d *Device) SetRangingConfig(ctx context.Context, cfg RangingConfig) error {
	if err := d.waitIdleIfMode(ctx, sxll.ModeRanging); err != nil {
		return err
	}
	defer d.mu.Unlock()
	d.cfg.Ranging = cfg
	return d.reapplyIfActive(sxll.ModeRanging)
}

// reapplyIfActive pushes modulation, packet parameters and mode registers
// to the chip when mode is the live one. Caller holds mu.
func (d *Device) reapplyIfActive(mode sxll.Mode) error {
	if d.cfg.Mode != mode {
		return nil
	}
	mp := d.cfg.modulationParams()
	if err := d.setModulationParams(&mp); err != nil {
		return err
	}
	pp := d.cfg.packetParams()
	if err := d.setPacketParams(&pp); err != nil {
		return err
	}
	if err := d.applyModeRegisters(mode); err != nil {
		return err
	}
	if d.state == StateRx {
		return d.armRx()
	}
	return nil
}

var errSyncWordLen = errors.New("sx1280: sync word length invalid for mode")

// SetSyncWord sets the primary sync word. GFSK accepts 1 to 5 bytes, FLRC
// exactly 4; LoRa and ranging have no register sync word here.
func (d *Device) SetSyncWord(ctx context.Context, mode sxll.Mode, sw []byte) error {
	switch mode {
	case sxll.ModeGFSK:
		lenCode, err := sxll.SyncWordLenCode(uint8(len(sw)))
		if err != nil {
			return errSyncWordLen
		}
		if err := d.waitIdleIfMode(ctx, mode); err != nil {
			return err
		}
		defer d.mu.Unlock()
		g := &d.cfg.GFSK
		g.SyncWord1 = [5]byte{}
		copy(g.SyncWord1[:], sw)
		g.Packet.SyncWordLength = lenCode
		return d.reapplyIfActive(mode)
	case sxll.ModeFLRC:
		if len(sw) != 4 {
			return errSyncWordLen
		}
		if err := d.waitIdleIfMode(ctx, mode); err != nil {
			return err
		}
		defer d.mu.Unlock()
		f := &d.cfg.FLRC
		f.SyncWord1 = [5]byte{}
		copy(f.SyncWord1[1:], sw)
		f.Packet.SyncWordLength = sxll.FLRCSyncWordLen32
		return d.reapplyIfActive(mode)
	}
	return ErrInvalidMode
}

// SetPreambleBits sets the preamble length in bits for a mode. GFSK and
// FLRC accept 4 to 32 in steps of 4; LoRa and ranging accept any count
// expressible as mantissa<<exponent with both in 1..15.
func (d *Device) SetPreambleBits(ctx context.Context, mode sxll.Mode, bits uint32) error {
	var code uint8
	var err error
	switch mode {
	case sxll.ModeGFSK, sxll.ModeFLRC:
		if bits > 32 {
			return sxll.ErrPreambleBits
		}
		code, err = sxll.PreambleCodeGFSK(uint8(bits))
	case sxll.ModeLoRa, sxll.ModeRanging:
		code, err = sxll.PreambleCodeLoRa(bits)
	default:
		return ErrInvalidMode
	}
	if err != nil {
		return err
	}
	if err := d.waitIdleIfMode(ctx, mode); err != nil {
		return err
	}
	defer d.mu.Unlock()
	switch mode {
	case sxll.ModeGFSK:
		d.cfg.GFSK.Packet.PreambleLength = code
	case sxll.ModeFLRC:
		d.cfg.FLRC.Packet.AGCPreambleLength = code
	case sxll.ModeLoRa:
		d.cfg.LoRa.Packet.PreambleLength = code
	case sxll.ModeRanging:
		d.cfg.Ranging.Packet.PreambleLength = code
	}
	return d.reapplyIfActive(mode)
}

// SetCRC configures packet integrity checking for a mode. lengthCode is
// the mode's CRC code (sxll.CRC*, sxll.FLRCCRC* or sxll.LoRaCRC*); seed
// seeds the GFSK/FLRC CRC registers and poly the GFSK polynomial, both
// ignored for LoRa.
func (d *Device) SetCRC(ctx context.Context, mode sxll.Mode, lengthCode uint8, seed, poly uint16) error {
	if err := d.waitIdleIfMode(ctx, mode); err != nil {
		return err
	}
	defer d.mu.Unlock()
	switch mode {
	case sxll.ModeGFSK:
		d.cfg.GFSK.Packet.CRCLength = lengthCode
		d.cfg.GFSK.CRCSeed = seed
		d.cfg.GFSK.CRCPolynomial = poly
	case sxll.ModeFLRC:
		d.cfg.FLRC.Packet.CRCLength = lengthCode
		d.cfg.FLRC.CRCSeed = seed
	case sxll.ModeLoRa:
		d.cfg.LoRa.Packet.CRC = lengthCode
	case sxll.ModeRanging:
		d.cfg.Ranging.Packet.CRC = lengthCode
	default:
		return ErrInvalidMode
	}
	return d.reapplyIfActive(mode)
}

// SetWhitening enables or disables payload whitening. GFSK and FLRC only.
func (d *Device) SetWhitening(ctx context.Context, mode sxll.Mode, enable bool) error {
	code := uint8(sxll.WhiteningDisable)
	if enable {
		code = sxll.WhiteningEnable
	}
	switch mode {
	case sxll.ModeGFSK, sxll.ModeFLRC:
	default:
		return ErrInvalidMode
	}
	if err := d.waitIdleIfMode(ctx, mode); err != nil {
		return err
	}
	defer d.mu.Unlock()
	if mode == sxll.ModeGFSK {
		d.cfg.GFSK.Packet.Whitening = code
	} else {
		d.cfg.FLRC.Packet.Whitening = code
	}
	return d.reapplyIfActive(mode)
}

// ContinuousWave transmits an unmodulated carrier for regulatory and
// antenna testing. The engine parks in standby while the test runs;
// SetMode restores packet operation.
func (d *Device) ContinuousWave(ctx context.Context) error {
	if err := d.acquireStandby(ctx); err != nil {
		return err
	}
	defer d.mu.Unlock()
	return d.setTxContinuousWave()
}

// ContinuousPreamble transmits an endless preamble sequence, the chip's
// second transmitter test mode. SetMode restores packet operation.
func (d *Device) ContinuousPreamble(ctx context.Context) error {
	if err := d.acquireStandby(ctx); err != nil {
		return err
	}
	defer d.mu.Unlock()
	return d.setTxContinuousPreamble()
}

// Sleep parks the chip in its lowest power state, optionally retaining the
// data buffer and register contents. Waking requires a hardware reset and
// a new Init.
func (d *Device) Sleep(ctx context.Context, saveBuffer, saveRAM bool) error {
	if err := d.waitIdle(ctx); err != nil {
		return err
	}
	defer d.mu.Unlock()
	if err := d.setSleep(saveBuffer, saveRAM); err != nil {
		return err
	}
	d.setState(StateStandby)
	return nil
}

// Mode returns the active packet mode.
func (d *Device) Mode() sxll.Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.Mode
}

// Frequency returns the configured carrier frequency in Hz.
func (d *Device) Frequency() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.FrequencyHz
}

// RSSI samples the instantaneous RSSI in dBm.
func (d *Device) RSSI() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	raw, err := d.getRssiInst()
	if err != nil {
		return 0, err
	}
	return -int(raw) / 2, nil
}

// FirmwareVersion reads the chip's firmware version register.
func (d *Device) FirmwareVersion() (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var b [2]byte
	if err := d.readRegister(sxll.RegFirmwareVersion, b[:]); err != nil {
		return 0, err
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}
