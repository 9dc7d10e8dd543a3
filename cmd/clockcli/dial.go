package main

import (
	"math"
	"strings"

	"github.com/flynnfc/clocksync/pkg/clockface"
)

// Terminal cells are roughly twice as tall as they are wide.
const cellAspect = 2.0

// renderDial draws an analog face of the given radius (in rows) with the
// hands from a. Hands are drawn longest first so shorter ones stay visible.
func renderDial(a clockface.Angles, radius int) string {
	rows := 2*radius + 1
	cols := int(2*float64(radius)*cellAspect) + 1
	grid := make([][]rune, rows)
	for i := range grid {
		grid[i] = []rune(strings.Repeat(" ", cols))
	}
	cx, cy := float64(cols/2), float64(radius)

	plot := func(x, y float64, r rune) {
		col, row := int(math.Round(x)), int(math.Round(y))
		if row >= 0 && row < rows && col >= 0 && col < cols {
			grid[row][col] = r
		}
	}

	// Hour marks.
	for h := 0; h < 12; h++ {
		angle := float64(h) * math.Pi / 6
		mark := '·'
		if h%3 == 0 {
			mark = 'o'
		}
		plot(cx+math.Sin(angle)*float64(radius)*cellAspect, cy-math.Cos(angle)*float64(radius), mark)
	}

	hand := func(angle, length float64, r rune) {
		steps := int(length * float64(radius) * cellAspect)
		for i := 1; i <= steps; i++ {
			f := float64(i) / float64(steps) * length * float64(radius)
			plot(cx+math.Sin(angle)*f*cellAspect, cy-math.Cos(angle)*f, r)
		}
	}
	hand(a.Second, 0.9, '.')
	hand(a.Minute, 0.8, '*')
	hand(a.Hour, 0.5, '#')
	plot(cx, cy, '+')

	lines := make([]string, rows)
	for i, row := range grid {
		lines[i] = strings.TrimRight(string(row), " ")
	}
	return strings.Join(lines, "\n")
}
