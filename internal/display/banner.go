package display

import (
	"fmt"
	"io"

	"github.com/backmassage/histpack/internal/term"
)

const banner = ` _     _     _                    _
| |__ (_)___| |_ _ __   __ _  ___| | __
| '_ \| / __| __| '_ \ / _` + "`" + ` |/ __| |/ /
| | | | \__ \ |_| |_) | (_| | (__|   <
|_| |_|_|___/\__| .__/ \__,_|\___|_|\_\
                |_|
`

// PrintBanner writes the ASCII art banner; magenta when colors are enabled.
func PrintBanner(w io.Writer) {
	_, _ = fmt.Fprint(w, term.Magenta.Sprint(banner))
}
