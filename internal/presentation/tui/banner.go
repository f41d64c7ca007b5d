package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []string{
	`             _      _       _        `,
	`   __ _  ___| |_ __| | __ _| |_ __ _ `,
	`  / _' |/ __| __/ _' |/ _' | __/ _' |`,
	` | (_| | (__| || (_| | (_| | || (_| |`,
	`  \__,_|\___|\__\__,_|\__,_|\__\__,_|`,
}

// Indigo to rose, one colour per line.
var bannerColors = []string{"#818cf8", "#a78bfa", "#c084fc", "#e879f9", "#f472b6"}

// PrintBanner writes the actdata banner to w. Writers that are not terminals get plain text.
func PrintBanner(w io.Writer) {
	out := termenv.NewOutput(w)
	p := out.EnvColorProfile()
	fmt.Fprintln(w)
	for i, line := range bannerLines {
		fmt.Fprintln(w, out.String(line).Foreground(p.Color(bannerColors[i])))
	}
	fmt.Fprintln(w)
}
