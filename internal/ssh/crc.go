package ssh

import "github.com/sigurn/crc16"

// The protocol family checksums every block with CRC-16/CCITT-FALSE
// (poly 0x1021, init 0xFFFF, no reflection, no xorout; check value of
// "123456789" is 0x29B1). Both frame headers and payloads use it.
var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// CRC returns the protocol checksum of data. CRC(nil) is 0xFFFF, the
// checksum of the empty byte sequence.
func CRC(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}
