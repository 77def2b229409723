package memory

import "fmt"

const (
	entryPointAddress     = 0x100
	titleAddress          = 0x134
	titleLength           = 16
	cgbFlagAddress        = 0x143
	cartridgeTypeAddress  = 0x147
	romSizeAddress        = 0x148
	ramSizeAddress        = 0x149
	headerChecksumAddress = 0x14D
)

// ErrUnknownMBC is returned when the cartridge header names an MBC variant
// this core does not implement.
var ErrUnknownMBC = fmt.Errorf("cartridge: unsupported MBC type")

// ErrROMTooShort is returned when the ROM image is too small to contain a
// full 0x150-byte header.
var ErrROMTooShort = fmt.Errorf("cartridge: ROM shorter than header")

// ErrHeaderChecksum is returned when the computed header checksum does not
// match the byte stored at 0x14D.
var ErrHeaderChecksum = fmt.Errorf("cartridge: header checksum mismatch")

// ramBankCounts maps the RAM size header byte to a bank count (8KB each).
var ramBankCounts = map[uint8]uint8{
	0x00: 0,
	0x01: 1, // unofficial 2KB value, rounded up to one bank
	0x02: 1,
	0x03: 4,
	0x04: 16,
	0x05: 8,
}

// Cartridge owns the ROM image, parsed header fields, and the MBC that
// arbitrates access to the 0x0000-0x7FFF / 0xA000-0xBFFF address windows.
type Cartridge struct {
	data           []byte
	title          string
	cartType       uint8
	romSize        uint8
	ramSize        uint8
	headerChecksum uint8
	mbc            MBC
}

// NewCartridge creates an empty cartridge backed by a NoMBC controller,
// useful for debugging or running headless without a ROM loaded.
func NewCartridge() *Cartridge {
	data := make([]byte, 0x8000)
	return &Cartridge{
		data:  data,
		title: "(none)",
		mbc:   NewNoMBC(data),
	}
}

// NewCartridgeWithData parses a ROM image's header, validates its checksum,
// picks the matching MBC implementation and returns the assembled cartridge.
func NewCartridgeWithData(data []byte) (*Cartridge, error) {
	if len(data) < 0x150 {
		return nil, ErrROMTooShort
	}

	titleBytes := data[titleAddress : titleAddress+titleLength]
	cart := &Cartridge{
		data:           data,
		title:          cleanGameboyTitle(titleBytes),
		cartType:       data[cartridgeTypeAddress],
		romSize:        data[romSizeAddress],
		ramSize:        data[ramSizeAddress],
		headerChecksum: data[headerChecksumAddress],
	}

	if computed := computeHeaderChecksum(data); computed != cart.headerChecksum {
		return nil, fmt.Errorf("%w: computed 0x%02X, header says 0x%02X", ErrHeaderChecksum, computed, cart.headerChecksum)
	}

	ramBanks := ramBankCounts[cart.ramSize]

	mbc, err := newMBCFor(cart.cartType, data, ramBanks)
	if err != nil {
		return nil, err
	}
	cart.mbc = mbc

	return cart, nil
}

// computeHeaderChecksum reproduces the boot ROM's header checksum algorithm
// over bytes 0x134-0x14C.
func computeHeaderChecksum(data []byte) uint8 {
	var sum uint8
	for i := 0x134; i <= 0x14C; i++ {
		sum = sum - data[i] - 1
	}
	return sum
}

// newMBCFor dispatches on the cartridge-type byte to build the right MBC.
func newMBCFor(cartType uint8, data []byte, ramBanks uint8) (MBC, error) {
	switch cartType {
	case 0x00:
		return NewNoMBC(data), nil
	case 0x01, 0x02, 0x03:
		battery := cartType == 0x03
		return NewMBC1(data, battery, ramBanks), nil
	case 0x05, 0x06:
		return NewMBC2(data), nil
	case 0x0F, 0x10, 0x11, 0x12, 0x13:
		hasRTC := cartType == 0x0F || cartType == 0x10
		return NewMBC3(data, hasRTC, ramBanks), nil
	case 0x19, 0x1A, 0x1B, 0x1C, 0x1D, 0x1E:
		hasRumble := cartType == 0x1C || cartType == 0x1D || cartType == 0x1E
		return NewMBC5(data, hasRumble, ramBanks), nil
	default:
		return nil, fmt.Errorf("%w: cartridge type 0x%02X", ErrUnknownMBC, cartType)
	}
}

// Title returns the cleaned-up game title from the ROM header.
func (c *Cartridge) Title() string {
	return c.title
}

// ReadByte reads a byte from the cartridge-owned address space (ROM banks or
// external RAM), routed through the active MBC.
func (c *Cartridge) ReadByte(address uint16) uint8 {
	return c.mbc.Read(address)
}

// WriteByte forwards a write into cartridge space to the active MBC, which
// may interpret it as a banking control write rather than a RAM store.
func (c *Cartridge) WriteByte(address uint16, value uint8) {
	c.mbc.Write(address, value)
}
