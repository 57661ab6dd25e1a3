package registers

import "encoding/binary"

// uuidSeeds are the four literal seeds from spec §4.5. Each seed produces
// one 32-bit word of the 128-bit device UUID.
var uuidSeeds = [4]uint32{0x12345678, 0x9ABCDEF0, 0xFEDCBA98, 0x76543210}

// writeUUID derives the 128-bit device UUID from (MAC ∥ model ∥ version ∥
// serial) using the four-seed rolling hash in spec §4.5 and writes it to dst
// (which must be 16 bytes) in network byte order. The derivation is
// deterministic: the same identity tuple always yields the same UUID.
func writeUUID(dst []byte, mac [6]byte, model, version, serial string) {
	input := make([]byte, 0, 6+len(model)+len(version)+len(serial))
	input = append(input, mac[:]...)
	input = append(input, model...)
	input = append(input, version...)
	input = append(input, serial...)

	for i, seed := range uuidSeeds {
		h := seed
		for _, by := range input {
			h = h*31 + uint32(by)
			h ^= h >> 16
		}
		binary.BigEndian.PutUint32(dst[i*4:i*4+4], h)
	}
}
