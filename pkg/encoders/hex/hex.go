// Package hex is a thin wrapper over encoding/hex with the Enc/Dec
// naming the rest of the encoders packages expect.
package hex

import "encoding/hex"

// Enc returns the lowercase hex encoding of b.
func Enc(b []byte) string { return hex.EncodeToString(b) }

// Dec decodes a hex string into bytes.
func Dec(s string) ([]byte, error) { return hex.DecodeString(s) }

// DecBytes decodes src (hex) into dst, growing dst if it's too small, and
// returns the decoded slice.
func DecBytes(dst, src []byte) ([]byte, error) {
	need := hex.DecodedLen(len(src))
	if cap(dst) < need {
		dst = make([]byte, need)
	}
	dst = dst[:need]
	if _, err := hex.Decode(dst, src); err != nil {
		return nil, err
	}
	return dst, nil
}
