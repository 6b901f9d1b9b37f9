// Package sxll implements the SX1280 wire command set: opcodes, register
// addresses, status and IRQ decoding, and the mode-tagged modulation and
// packet parameter encodings understood by the chip.
package sxll

// Crystal oscillator frequency of the SX1280, used for PLL conversions.
const FreqXoscHz = 52_000_000

// Size of the chip's half-duplex data buffer. Payloads for both directions
// share this single region, never both at once.
const BufferSize = 256

type Opcode uint8

const (
	CmdGetStatus               Opcode = 0xC0
	CmdWriteRegister           Opcode = 0x18
	CmdReadRegister            Opcode = 0x19
	CmdWriteBuffer             Opcode = 0x1A
	CmdReadBuffer              Opcode = 0x1B
	CmdSetSleep                Opcode = 0x84
	CmdSetStandby              Opcode = 0x80
	CmdSetFs                   Opcode = 0xC1
	CmdSetTx                   Opcode = 0x83
	CmdSetRx                   Opcode = 0x82
	CmdSetRxDutyCycle          Opcode = 0x94
	CmdSetCad                  Opcode = 0xC5
	CmdSetTxContinuousWave     Opcode = 0xD1
	CmdSetTxContinuousPreamble Opcode = 0xD2
	CmdSetPacketType           Opcode = 0x8A
	CmdGetPacketType           Opcode = 0x03
	CmdSetRfFrequency          Opcode = 0x86
	CmdSetTxParams             Opcode = 0x8E
	CmdSetCadParams            Opcode = 0x88
	CmdSetBufferBaseAddress    Opcode = 0x8F
	CmdSetModulationParams     Opcode = 0x8B
	CmdSetPacketParams         Opcode = 0x8C
	CmdGetRxBufferStatus       Opcode = 0x17
	CmdGetPacketStatus         Opcode = 0x1D
	CmdGetRssiInst             Opcode = 0x1F
	CmdSetDioIrqParams         Opcode = 0x8D
	CmdGetIrqStatus            Opcode = 0x15
	CmdClrIrqStatus            Opcode = 0x97
	CmdSetRegulatorMode        Opcode = 0x96
	CmdSetSaveContext          Opcode = 0xD5
	CmdSetAutoFs               Opcode = 0x9E
	CmdSetAutoTx               Opcode = 0x98
	CmdSetLongPreamble         Opcode = 0x9B
	CmdSetUartSpeed            Opcode = 0x9D
	CmdSetRangingRole          Opcode = 0xA3
	CmdSetAdvancedRanging      Opcode = 0x9A
)

// Mode is the packet type of the chip. The wire encoding of modulation and
// packet parameters depends entirely on the active mode.
type Mode uint8

const (
	ModeGFSK    Mode = 0x00
	ModeLoRa    Mode = 0x01
	ModeRanging Mode = 0x02
	ModeFLRC    Mode = 0x03
)

// MaxMode is the highest packet type byte the chip may echo back from
// GetPacketType. Values above it indicate a protocol error.
const MaxMode = 0x04

func (m Mode) String() string {
	switch m {
	case ModeGFSK:
		return "gfsk"
	case ModeLoRa:
		return "lora"
	case ModeRanging:
		return "ranging"
	case ModeFLRC:
		return "flrc"
	}
	return "unknown"
}

// PayloadBounds returns the valid payload length range for a packet mode.
func PayloadBounds(m Mode) (min, max int) {
	switch m {
	case ModeFLRC:
		return 6, 127
	case ModeLoRa:
		return 1, 255
	default: // GFSK
		return 0, 255
	}
}

// Standby oscillator selection for SetStandby.
const (
	StandbyRC   = 0x00
	StandbyXOSC = 0x01
)

// Sync word length codes for GFSK (SetPacketParams byte 2).
const (
	SyncWordLen1B = 0x00
	SyncWordLen2B = 0x02
	SyncWordLen3B = 0x04
	SyncWordLen4B = 0x06
	SyncWordLen5B = 0x08
)

// Sync word match combination codes.
const (
	SyncWordMatchOff = 0x00
	SyncWordMatch1   = 0x10
	SyncWordMatch2   = 0x20
	SyncWordMatch12  = 0x30
	SyncWordMatch3   = 0x40
	SyncWordMatch13  = 0x50
	SyncWordMatch23  = 0x60
	SyncWordMatch123 = 0x70
)

// Header type codes (fixed vs variable length packets).
const (
	PacketFixedLength    = 0x00
	PacketVariableLength = 0x20
)

// GFSK CRC length codes.
const (
	CRCOff    = 0x00
	CRC1Byte  = 0x10
	CRC2Bytes = 0x20
)

// Whitening codes. Note that enable is the zero value on this chip.
const (
	WhiteningEnable  = 0x00
	WhiteningDisable = 0x08
)

// FLRC sync word length codes.
const (
	FLRCSyncWordNoSync = 0x00
	FLRCSyncWordLen32  = 0x04
)

// FLRC CRC length codes.
const (
	FLRCCRCOff    = 0x00
	FLRCCRC2Byte  = 0x10
	FLRCCRC3Byte  = 0x20
	FLRCCRC4Byte  = 0x30
)

// LoRa header type codes.
const (
	LoRaExplicitHeader = 0x00
	LoRaImplicitHeader = 0x80
)

// LoRa CRC codes.
const (
	LoRaCRCEnable  = 0x20
	LoRaCRCDisable = 0x00
)

// LoRa IQ polarity codes.
const (
	LoRaIQInverted = 0x00
	LoRaIQStandard = 0x40
)

// GFSK bitrate/bandwidth pair codes.
const (
	GFSKBr2000Bw2400 = 0x04
	GFSKBr1600Bw2400 = 0x28
	GFSKBr1000Bw2400 = 0x4C
	GFSKBr1000Bw1200 = 0x45
	GFSKBr0800Bw2400 = 0x70
	GFSKBr0800Bw1200 = 0x69
	GFSKBr0500Bw1200 = 0x8D
	GFSKBr0500Bw0600 = 0x86
	GFSKBr0400Bw1200 = 0xB1
	GFSKBr0400Bw0600 = 0xAA
	GFSKBr0250Bw0600 = 0xCE
	GFSKBr0250Bw0300 = 0xC7
	GFSKBr0125Bw0300 = 0xEF
)

// GFSK modulation index codes: ModIndex035 is 0.35, each step adds 0.25.
const (
	ModIndex035 = 0x00
	ModIndex050 = 0x01
	ModIndex100 = 0x03
	ModIndex200 = 0x07
	ModIndex400 = 0x0F
)

// Bandwidth-time product codes shared by GFSK and FLRC.
const (
	BTOff = 0x00
	BT10  = 0x10
	BT05  = 0x20
)

// FLRC bitrate/bandwidth pair codes.
const (
	FLRCBr1300Bw1200 = 0x45
	FLRCBr1000Bw1200 = 0x69
	FLRCBr0650Bw0600 = 0x86
	FLRCBr0520Bw0600 = 0xAA
	FLRCBr0325Bw0300 = 0xC7
	FLRCBr0260Bw0300 = 0xEB
)

// FLRC coding rate codes.
const (
	FLRCCr12 = 0x00
	FLRCCr34 = 0x02
	FLRCCr11 = 0x04
)

// LoRa spreading factor codes.
const (
	LoRaSF5  = 0x50
	LoRaSF6  = 0x60
	LoRaSF7  = 0x70
	LoRaSF8  = 0x80
	LoRaSF9  = 0x90
	LoRaSF10 = 0xA0
	LoRaSF11 = 0xB0
	LoRaSF12 = 0xC0
)

// LoRa bandwidth codes.
const (
	LoRaBw1600 = 0x0A
	LoRaBw800  = 0x18
	LoRaBw400  = 0x26
	LoRaBw200  = 0x34
)

// LoRa coding rate codes. The LI variants use long interleaving.
const (
	LoRaCr45   = 0x01
	LoRaCr46   = 0x02
	LoRaCr47   = 0x03
	LoRaCr48   = 0x04
	LoRaCrLI45 = 0x05
	LoRaCrLI46 = 0x06
	LoRaCrLI48 = 0x07
)

// Register addresses.
const (
	RegFirmwareVersion           = 0x153
	RegRxGain                    = 0x891
	RegManualGainSetting         = 0x895
	RegLNAGainValue              = 0x89E
	RegLNAGainControl            = 0x89F
	RegSynchPeakAttenuation      = 0x8C2
	RegPayloadLength             = 0x901
	RegLoRaHeaderMode            = 0x903
	RegRangingRequestAddress     = 0x912 // 4 bytes, MSB first
	RegRangingDeviceAddress      = 0x916 // 4 bytes, MSB first
	RegRangingFilterWindowSize   = 0x91E
	RegResetRangingFilter        = 0x923
	RegRangingResultMux          = 0x924
	RegSFAdditionalConfiguration = 0x925
	RegRangingCalibration        = 0x92B // 3 bytes, MSB first
	RegRangingIDCheckLength      = 0x931
	RegFrequencyErrorCorrection  = 0x93C
	RegCadDetPeak                = 0x942
	RegLoRaSyncWord1             = 0x944
	RegLoRaSyncWord2             = 0x945
	RegHeaderCRC                 = 0x954
	RegCodingRate                = 0x950
	RegFEI                       = 0x954 // 3 bytes, MSB first
	RegRangingResult             = 0x961 // 3 bytes, MSB first
	RegRangingRSSI               = 0x964
	RegFreezeRangingResult       = 0x97F
	RegPacketPreambleSettings    = 0x9C1
	RegWhiteningInitialValue     = 0x9C5
	RegCRCPolynomial             = 0x9C6 // 2 bytes, MSB first
	RegCRCInitialValue           = 0x9C8 // 2 bytes, MSB first
	RegSynchAddressControl       = 0x9CD
	RegSyncAddress1              = 0x9CE // 5 bytes, MSB first
	RegSyncAddress2              = 0x9D3 // 5 bytes, MSB first
	RegSyncAddress3              = 0x9D8 // 5 bytes, MSB first
)
