package term

import (
	"strconv"
	"strings"
)

// Attr is a console text attribute: foreground in the low nibble,
// background in the high nibble.
type Attr uint8

const (
	FgBlue      Attr = 0x01
	FgGreen     Attr = 0x02
	FgRed       Attr = 0x04
	FgIntensity Attr = 0x08
	BgBlue      Attr = 0x10
	BgGreen     Attr = 0x20
	BgRed       Attr = 0x40
	BgIntensity Attr = 0x80

	fgMask Attr = 0x0f
	bgMask Attr = 0xf0

	FgBlack   Attr = 0
	FgCyan         = FgGreen | FgBlue
	FgMagenta      = FgRed | FgBlue
	FgYellow       = FgRed | FgGreen
	FgWhite        = FgRed | FgGreen | FgBlue

	DefaultAttr = FgWhite
)

// sgrColors is indexed by the SGR color digit (30+i, 40+i).
var sgrColors = [8]Attr{
	FgBlack,
	FgRed,
	FgGreen,
	FgYellow,
	FgBlue,
	FgMagenta,
	FgCyan,
	FgWhite,
}

func (a Attr) Fg() Attr {
	return a & fgMask
}

func (a Attr) Bg() Attr {
	return (a & bgMask) >> 4
}

// ApplySGR applies a single SGR parameter to a. Unknown codes leave a
// unchanged.
func ApplySGR(code string, a Attr) Attr {
	switch code {
	case "", "0":
		return DefaultAttr
	case "1":
		return a | FgIntensity
	case "7":
		return (a&fgMask)<<4 | (a&bgMask)>>4
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		return a
	}
	switch {
	case n >= 30 && n <= 37:
		return a&^fgMask | sgrColors[n-30]
	case n >= 40 && n <= 47:
		return a&^bgMask | sgrColors[n-40]<<4
	}
	return a
}

// ApplyParams applies a semicolon separated SGR parameter list. An
// empty list resets.
func ApplyParams(params string, a Attr) Attr {
	if params == "" {
		return DefaultAttr
	}
	for _, code := range strings.Split(params, ";") {
		a = ApplySGR(code, a)
	}
	return a
}

// ansiColor converts between the console bit order (blue=1, red=4) and
// the ANSI one (red=1, blue=4).
func ansiColor(c Attr) int {
	return int((c&FgRed)>>2 | c&FgGreen | (c&FgBlue)<<2)
}

// SGR renders a as a full escape sequence that reproduces it from any
// prior state.
func (a Attr) SGR() string {
	var sb strings.Builder
	sb.WriteString("\x1b[0")
	if a&FgIntensity != 0 {
		sb.WriteString(";1")
	}
	sb.WriteString(";3")
	sb.WriteString(strconv.Itoa(ansiColor(a.Fg() &^ FgIntensity)))
	sb.WriteString(";4")
	sb.WriteString(strconv.Itoa(ansiColor(a.Bg() &^ FgIntensity)))
	sb.WriteByte('m')
	return sb.String()
}
