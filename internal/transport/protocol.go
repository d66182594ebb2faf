package transport

// Command bytes understood by the panel FPGA.
const (
	CmdConfig     byte = 0x01
	CmdBrightness byte = 0x02
	CmdClear      byte = 0x03
	CmdRow        byte = 0x04
	CmdSwap       byte = 0x05
)

// rowHeader is the size of the CmdRow prefix: cmd, y (2), pixel offset (2).
const rowHeader = 5

// DefaultMaxTxSize is used when the port does not report a limit.
const DefaultMaxTxSize = 4096

// configPacket encodes g. Width and height are 16 bits and the chain length
// one byte on the wire; larger values are rejected before Begin.
func configPacket(g Geometry) []byte {
	refresh := g.MinRefreshRate
	if refresh > 255 {
		refresh = 255
	}
	if refresh < 0 {
		refresh = 0
	}
	return []byte{
		CmdConfig,
		byte(g.PanelWidth >> 8), byte(g.PanelWidth),
		byte(g.PanelHeight >> 8), byte(g.PanelHeight),
		byte(g.ChainLength),
		byte(refresh),
	}
}

// rowChunk returns the pixels per CmdRow transaction for a given
// transaction limit, or 0 when not even one pixel fits.
func rowChunk(maxTx int) int {
	return (maxTx - rowHeader) / 3
}

// appendRow appends the CmdRow packet for pixels [off, off+len(rgb)/3) of row y.
func appendRow(dst []byte, y, off int, rgb []byte) []byte {
	dst = append(dst, CmdRow, byte(y>>8), byte(y), byte(off>>8), byte(off))
	return append(dst, rgb...)
}
