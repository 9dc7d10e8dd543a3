// Package clockface maps a point in time onto analog clock hands.
package clockface

import (
	"math"
	"time"
)

// Angles are hand positions in radians, measured clockwise from 12 o'clock.
type Angles struct {
	Hour   float64
	Minute float64
	Second float64
}

// AnglesFor returns the hand angles for t in t's location. Every hand moves
// continuously: each one includes the contribution of all smaller units,
// down to fractional milliseconds.
func AnglesFor(t time.Time) Angles {
	h := float64(t.Hour() % 12)
	m := float64(t.Minute())
	s := float64(t.Second())
	ms := float64(t.Nanosecond()) / 1e6

	return Angles{
		Hour:   math.Pi/6*h + math.Pi/360*m + math.Pi/21600*s + math.Pi/21600000*ms,
		Minute: math.Pi/30*m + math.Pi/1800*s + math.Pi/1800000*ms,
		Second: math.Pi/30*s + math.Pi/30000*ms,
	}
}

// Clockwise returns the angles negated. Scene graphs treat positive rotation
// as counter-clockwise, so applying these turns the hands clockwise.
func (a Angles) Clockwise() Angles {
	return Angles{Hour: -a.Hour, Minute: -a.Minute, Second: -a.Second}
}

// Labels returns the date and time text shown next to the clock face.
func Labels(t time.Time) (date, clock string) {
	return t.Format("Monday, January 2, 2006"), t.Format("15:04:05")
}
