package modbus

// CRC16 calculates the Modbus CRC16 checksum over data.
// The returned value already has its high and low bytes swapped to match
// the RTU wire order (low byte transmitted first).
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if (crc & 0x0001) != 0 {
				crc >>= 1
				crc ^= 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return ((crc & 0xFF) << 8) | ((crc >> 8) & 0xFF)
}
