package msg

import "github.com/keybase/saltpack/encoding/basex"

// FormatDeviceID renders a device_id as a short base62 string for
// human-facing output (logs, CLI), adapted from the teacher's
// Rand256Base62 (util.go), which used the same encoding for
// human-facing random identifiers.
func FormatDeviceID(id uint64) string {
	buf := make([]byte, 8)
	putUint64BE(buf, id)
	return basex.Base62StdEncoding.EncodeToString(buf)
}
