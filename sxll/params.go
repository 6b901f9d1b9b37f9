package sxll

const (
	// ModulationParamsLen is the wire size of SetModulationParams arguments.
	ModulationParamsLen = 3
	// PacketParamsLen is the wire size of SetPacketParams arguments. Modes
	// with shorter layouts pad with zeros.
	PacketParamsLen = 7
)

// GFSKModulation is the 3-byte GFSK modulation parameter block.
type GFSKModulation struct {
	BitrateBandwidth uint8 // GFSKBr* pair code
	ModulationIndex  uint8 // ModIndex* code
	BandwidthTime    uint8 // BT* code
}

// FLRCModulation is the 3-byte FLRC modulation parameter block.
type FLRCModulation struct {
	BitrateBandwidth uint8 // FLRCBr* pair code
	CodingRate       uint8 // FLRCCr* code
	BandwidthTime    uint8 // BT* code
}

// LoRaModulation is the 3-byte LoRa modulation parameter block, shared by
// the ranging engine.
type LoRaModulation struct {
	Spreading  uint8 // LoRaSF* code
	Bandwidth  uint8 // LoRaBw* code
	CodingRate uint8 // LoRaCr* code
}

// ModulationParams is the mode-tagged union of the chip's modulation
// parameter layouts. Serialization is keyed on Mode; the variants are never
// overlaid in memory.
type ModulationParams struct {
	Mode Mode
	GFSK GFSKModulation
	FLRC FLRCModulation
	LoRa LoRaModulation
}

// Put writes the 3 parameter bytes of the active variant into dst.
// Panics if dst is shorter than ModulationParamsLen.
func (p *ModulationParams) Put(dst []byte) {
	_ = dst[ModulationParamsLen-1]
	switch p.Mode {
	case ModeFLRC:
		dst[0] = p.FLRC.BitrateBandwidth
		dst[1] = p.FLRC.CodingRate
		dst[2] = p.FLRC.BandwidthTime
	case ModeLoRa, ModeRanging:
		dst[0] = p.LoRa.Spreading
		dst[1] = p.LoRa.Bandwidth
		dst[2] = p.LoRa.CodingRate
	default:
		dst[0] = p.GFSK.BitrateBandwidth
		dst[1] = p.GFSK.ModulationIndex
		dst[2] = p.GFSK.BandwidthTime
	}
}

// GFSKPacket is the 7-byte GFSK packet parameter block.
type GFSKPacket struct {
	PreambleLength uint8 // linear nibble code, see PreambleCodeGFSK
	SyncWordLength uint8 // SyncWordLen* code
	SyncWordMatch  uint8 // SyncWordMatch* code
	HeaderType     uint8 // PacketFixedLength or PacketVariableLength
	PayloadLength  uint8
	CRCLength      uint8 // CRC* code
	Whitening      uint8 // Whitening* code
}

// FLRCPacket is the 7-byte FLRC packet parameter block.
type FLRCPacket struct {
	AGCPreambleLength uint8 // linear nibble code, see PreambleCodeGFSK
	SyncWordLength    uint8 // FLRCSyncWord* code
	SyncWordMatch     uint8 // SyncWordMatch* code
	HeaderType        uint8
	PayloadLength     uint8
	CRCLength         uint8 // FLRCCRC* code
	Whitening         uint8
}

// LoRaPacket is the 5-byte LoRa packet parameter block.
type LoRaPacket struct {
	PreambleLength uint8 // mantissa/exponent code, see PreambleCodeLoRa
	HeaderType     uint8 // LoRaExplicitHeader or LoRaImplicitHeader
	PayloadLength  uint8
	CRC            uint8 // LoRaCRCEnable or LoRaCRCDisable
	InvertIQ       uint8 // LoRaIQ* code
}

// PacketParams is the mode-tagged union of the chip's packet parameter
// layouts.
type PacketParams struct {
	Mode Mode
	GFSK GFSKPacket
	FLRC FLRCPacket
	LoRa LoRaPacket
}

// Put writes the 7 parameter bytes of the active variant into dst,
// zero-padding short layouts. Panics if dst is shorter than PacketParamsLen.
func (p *PacketParams) Put(dst []byte) {
	_ = dst[PacketParamsLen-1]
	switch p.Mode {
	case ModeFLRC:
		dst[0] = p.FLRC.AGCPreambleLength
		dst[1] = p.FLRC.SyncWordLength
		dst[2] = p.FLRC.SyncWordMatch
		dst[3] = p.FLRC.HeaderType
		dst[4] = p.FLRC.PayloadLength
		dst[5] = p.FLRC.CRCLength
		dst[6] = p.FLRC.Whitening
	case ModeLoRa, ModeRanging:
		dst[0] = p.LoRa.PreambleLength
		dst[1] = p.LoRa.HeaderType
		dst[2] = p.LoRa.PayloadLength
		dst[3] = p.LoRa.CRC
		dst[4] = p.LoRa.InvertIQ
		dst[5] = 0
		dst[6] = 0
	default:
		dst[0] = p.GFSK.PreambleLength
		dst[1] = p.GFSK.SyncWordLength
		dst[2] = p.GFSK.SyncWordMatch
		dst[3] = p.GFSK.HeaderType
		dst[4] = p.GFSK.PayloadLength
		dst[5] = p.GFSK.CRCLength
		dst[6] = p.GFSK.Whitening
	}
}

// SetPayloadLength overwrites the payload length field of the active
// variant. The engine does this when arming every Rx and Tx operation.
func (p *PacketParams) SetPayloadLength(n uint8) {
	switch p.Mode {
	case ModeFLRC:
		p.FLRC.PayloadLength = n
	case ModeLoRa, ModeRanging:
		p.LoRa.PayloadLength = n
	default:
		p.GFSK.PayloadLength = n
	}
}

// PayloadLength returns the payload length field of the active variant.
func (p *PacketParams) PayloadLength() uint8 {
	switch p.Mode {
	case ModeFLRC:
		return p.FLRC.PayloadLength
	case ModeLoRa, ModeRanging:
		return p.LoRa.PayloadLength
	default:
		return p.GFSK.PayloadLength
	}
}
