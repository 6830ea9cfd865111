package report

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"golang.org/x/term"
)

// Series represents a named data series for plotting.
type Series struct {
	Name   string
	Values []float64
}

const (
	defaultPlotHeight   = 8
	minPlotWidth        = 10
	axisLabelWidth      = 9
	axisSeparator       = " │ "
	colorReset          = "\x1b[0m"
	terminalWidthBackup = 80
)

var seriesColors = []string{"\x1b[36m", "\x1b[35m", "\x1b[33m", "\x1b[32m"}

// PlotWidthFor returns the plot width that fits in totalWidth columns
// next to the value axis.
func PlotWidthFor(totalWidth int) int {
	return max(totalWidth-axisLabelWidth-len([]rune(axisSeparator)), minPlotWidth)
}

// PlotSeries renders the series as a braille plot sharing one value axis.
// Zero width fits the terminal.
func PlotSeries(w io.Writer, title string, series []Series, width, height int, forceColor bool) error {
	kept := series[:0:0]
	var all []float64
	for _, s := range series {
		if len(s.Values) > 0 {
			kept = append(kept, s)
			all = append(all, s.Values...)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	if height <= 0 {
		height = defaultPlotHeight
	}
	if width <= 0 {
		width = PlotWidthFor(terminalWidth())
	}
	width = max(width, minPlotWidth)

	lo, hi := minMax(all)
	if hi-lo < 1e-9 {
		lo--
		hi++
	}
	dotsY := height * 4
	grids := make([][][]uint8, len(kept))
	for si, s := range kept {
		grids[si] = makeCells(height, width)
		values := resample(s.Values, width)
		prevX, prevY := -1, -1
		for x, v := range values {
			y := int(math.Round((hi - v) / (hi - lo) * float64(dotsY-1)))
			y = max(0, min(y, dotsY-1))
			px := x * 2
			if prevX >= 0 {
				drawLine(prevX, prevY, px, y, func(dx, dy int) { setDot(grids[si], dx, dy) })
			} else {
				setDot(grids[si], px, y)
			}
			prevX, prevY = px, y
		}
	}

	color := useColor(w, forceColor)
	if title != "" {
		if _, err := fmt.Fprintln(w, title); err != nil {
			return err
		}
	}
	for y := 0; y < height; y++ {
		label := ""
		switch y {
		case 0:
			label = fmt.Sprintf("%.3f", hi)
		case height - 1:
			label = fmt.Sprintf("%.3f", lo)
		}
		var row strings.Builder
		fmt.Fprintf(&row, "%*s%s", axisLabelWidth, label, axisSeparator)
		for x := 0; x < width; x++ {
			var mask uint8
			first := -1
			for si := range grids {
				if m := grids[si][y][x]; m != 0 {
					mask |= m
					if first < 0 {
						first = si
					}
				}
			}
			ch := rune(0x2800 + int(mask))
			if color && first >= 0 {
				row.WriteString(seriesColors[first%len(seriesColors)])
				row.WriteRune(ch)
				row.WriteString(colorReset)
				continue
			}
			row.WriteRune(ch)
		}
		if _, err := fmt.Fprintln(w, row.String()); err != nil {
			return err
		}
	}
	names := make([]string, len(kept))
	for i, s := range kept {
		names[i] = s.Name
		if color {
			names[i] = seriesColors[i%len(seriesColors)] + s.Name + colorReset
		}
	}
	_, err := fmt.Fprintf(w, "Legend: %s\n\n", strings.Join(names, ", "))
	return err
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return terminalWidthBackup
	}
	return width
}

func useColor(w io.Writer, force bool) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if force {
		return true
	}
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

func makeCells(height, width int) [][]uint8 {
	cells := make([][]uint8, height)
	for y := range cells {
		cells[y] = make([]uint8, width)
	}
	return cells
}

// resample averages buckets when shrinking and interpolates when stretching.
func resample(values []float64, width int) []float64 {
	n := len(values)
	out := make([]float64, width)
	switch {
	case n >= width:
		for i := range out {
			start := i * n / width
			end := max((i+1)*n/width, start+1)
			var sum float64
			for _, v := range values[start:end] {
				sum += v
			}
			out[i] = sum / float64(end-start)
		}
	case n == 1 || width == 1:
		for i := range out {
			out[i] = values[0]
		}
	default:
		for i := range out {
			pos := float64(i) * float64(n-1) / float64(width-1)
			idx := min(int(pos), n-2)
			frac := pos - float64(idx)
			out[i] = values[idx]*(1-frac) + values[idx+1]*frac
		}
	}
	return out
}

func drawLine(x0, y0, x1, y1 int, plot func(x, y int)) {
	dx, sx := abs(x1-x0), 1
	if x0 > x1 {
		sx = -1
	}
	dy, sy := -abs(y1-y0), 1
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		plot(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// brailleDots maps a dot at (x%2, y%4) inside a cell to its bit.
var brailleDots = [2][4]uint8{
	{0x01, 0x02, 0x04, 0x40},
	{0x08, 0x10, 0x20, 0x80},
}

func setDot(cells [][]uint8, x, y int) {
	cy, cx := y/4, x/2
	if x < 0 || y < 0 || cy >= len(cells) || cx >= len(cells[cy]) {
		return
	}
	cells[cy][cx] |= brailleDots[x%2][y%4]
}
