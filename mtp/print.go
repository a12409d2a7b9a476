package mtp

import (
	"fmt"
	"strings"
)

// hexDump renders data as space-separated hex bytes, 16 per line, the
// way the teacher's dataPrint traced raw bulk payloads. Used only
// behind Device.Debug.Data — never on the hot path.
func hexDump(data []byte) string {
	var b strings.Builder
	for i := 0; i < len(data); i += 16 {
		end := i + 16
		if end > len(data) {
			end = len(data)
		}
		row := data[i:end]
		for j, c := range row {
			if j > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%02x", c)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
