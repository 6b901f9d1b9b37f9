package sxll

import (
	"errors"
	"time"
)

// ErrPreambleBits reports a preamble bit count the chip cannot encode.
var ErrPreambleBits = errors.New("preamble bit count not encodable")

var (
	errRampTime    = errors.New("ramp time not one of 2,4,6,8,10,12,16,20 us")
	errPower       = errors.New("tx power outside -18..13 dBm")
	errSyncWordLen = errors.New("sync word length outside 1..5 bytes")
	errTimeout     = errors.New("timeout exceeds hardware timer range")
)

// FreqToPLL converts a carrier frequency in Hz to the chip's 24-bit PLL
// word: round(hz * 2^32 / Xosc / 2^14), truncated to 24 bits.
func FreqToPLL(hz uint32) uint32 {
	pll := ((uint64(hz) << 18) + FreqXoscHz/2) / FreqXoscHz
	return uint32(pll) & 0xFF_FFFF
}

// PLLToFreq is the inverse of FreqToPLL, exact to within one PLL step
// (about 198 Hz).
func PLLToFreq(pll uint32) uint32 {
	hz := (uint64(pll)*FreqXoscHz + 1<<17) >> 18
	return uint32(hz)
}

// PreambleCodeGFSK packs a preamble bit count into the linear nibble code
// used by GFSK and FLRC packet parameters. Valid counts are 4..32 in steps
// of 4.
func PreambleCodeGFSK(bits uint8) (uint8, error) {
	if bits < 4 || bits > 32 || bits%4 != 0 {
		return 0, ErrPreambleBits
	}
	return (bits - 4) << 2, nil
}

// PreambleBitsGFSK is the inverse of PreambleCodeGFSK.
func PreambleBitsGFSK(code uint8) uint8 { return (code >> 2) + 4 }

// PreambleCodeLoRa packs a preamble bit count into the LoRa
// mantissa/exponent code: bits [7:4] hold the exponent and bits [3:0] the
// mantissa, both in 1..15, with count = mantissa << exponent. The count is
// reduced by halving while even, exactly as the chip expects.
func PreambleCodeLoRa(bits uint32) (uint8, error) {
	mant := bits
	exp := uint8(0)
	for mant != 0 && mant&1 == 0 {
		mant >>= 1
		exp++
	}
	if mant == 0 || mant > 15 || exp == 0 || exp > 15 {
		return 0, ErrPreambleBits
	}
	return exp<<4 | uint8(mant), nil
}

// PreambleBitsLoRa is the inverse of PreambleCodeLoRa.
func PreambleBitsLoRa(code uint8) uint32 {
	return uint32(code&0xF) << (code >> 4)
}

// RampTimeCode converts a power amplifier ramp time in microseconds to its
// wire code. Valid values are 2..12 in steps of 2, then 16 and 20.
func RampTimeCode(us uint8) (uint8, error) {
	if us < 2 || us > 20 || us%2 != 0 || us == 14 || us == 18 {
		return 0, errRampTime
	}
	if us <= 12 {
		return (us - 2) << 4, nil
	}
	return (us + 8) << 3, nil
}

// RampTimeMicros is the inverse of RampTimeCode.
func RampTimeMicros(code uint8) uint8 {
	if code <= 0xA0 {
		return code>>4 + 2
	}
	return code>>3 - 8
}

// PowerCode converts a transmit power in dBm (-18..13) to the SetTxParams
// power byte.
func PowerCode(dbm int8) (uint8, error) {
	if dbm < -18 || dbm > 13 {
		return 0, errPower
	}
	return uint8(dbm + 18), nil
}

// SyncWordLenCode converts a GFSK sync word length in bytes (1..5) to its
// packet parameter code.
func SyncWordLenCode(bytes uint8) (uint8, error) {
	if bytes < 1 || bytes > 5 {
		return 0, errSyncWordLen
	}
	return (bytes - 1) * 2, nil
}

// PeriodBase is the granularity of the chip's timeout timer. SetTx and
// SetRx pair it with a 16-bit step count.
type PeriodBase uint8

const (
	PeriodBase15us625 PeriodBase = 0x00
	PeriodBase62us5   PeriodBase = 0x01
	PeriodBase1ms     PeriodBase = 0x02
	PeriodBase4ms     PeriodBase = 0x03
)

// Duration returns the length of a single timer step.
func (pb PeriodBase) Duration() time.Duration {
	switch pb {
	case PeriodBase15us625:
		return 15625 * time.Nanosecond
	case PeriodBase62us5:
		return 62500 * time.Nanosecond
	case PeriodBase1ms:
		return time.Millisecond
	default:
		return 4 * time.Millisecond
	}
}

// SplitTimeout converts a duration into the coarsest-grained period base
// that can represent it and a ceiling-divided step count, so the hardware
// timeout is never shorter than requested. Zero requests no timeout
// (single-shot operation with count 0).
func SplitTimeout(d time.Duration) (PeriodBase, uint16, error) {
	if d < 0 || d >= 262144*time.Millisecond {
		return 0, 0, errTimeout
	}
	var pb PeriodBase
	switch {
	case d < 1024*time.Millisecond:
		pb = PeriodBase15us625
	case d < 4096*time.Millisecond:
		pb = PeriodBase62us5
	case d < 65536*time.Millisecond:
		pb = PeriodBase1ms
	default:
		pb = PeriodBase4ms
	}
	step := pb.Duration()
	count := d / step
	if d%step != 0 {
		count++
	}
	return pb, uint16(count), nil
}
