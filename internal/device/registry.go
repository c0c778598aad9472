package device

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// ARGB is a 32-bit colour with the alpha channel in the high byte.
type ARGB uint32

// Hex returns the colour as #AARRGGBB.
func (c ARGB) Hex() string {
	return fmt.Sprintf("#%08X", uint32(c))
}

// RGB splits the colour into its red, green and blue channels.
func (c ARGB) RGB() (r, g, b uint8) {
	return uint8(c >> 16), uint8(c >> 8), uint8(c)
}

// Palette is the fixed set of peripheral display colours. Order matters:
// ColorFor indexes into it.
var Palette = [...]ARGB{
	0xFF9C27B0, // purple
	0xFF00BCD4, // cyan
	0xFFFFEB3B, // yellow
	0xFF4CAF50, // green
	0xFFFF5722, // deep orange
}

const watchMarker = "watch"

// Classify infers the device class from an advertised name.
func Classify(name string) Class {
	if strings.Contains(strings.ToLower(name), watchMarker) {
		return Watch
	}
	return Phone
}

// ColorFor picks the display colour for a peripheral id.
//
// The index is the 32-bit FNV-1a hash of the UTF-8 id, taken as an unsigned
// value, modulo the palette size. The result is stable across processes
// and platforms.
func ColorFor(id string) ARGB {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return Palette[h.Sum32()%uint32(len(Palette))]
}
