package action

import (
	"fmt"
	"strings"
	"time"
)

// Direction is a pointer movement direction.
type Direction string

const (
	Up    Direction = "up"
	Down  Direction = "down"
	Left  Direction = "left"
	Right Direction = "right"
)

// ParseDirection accepts up/down/left/right in any case.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case Up, Down, Left, Right:
		return d, nil
	default:
		return "", fmt.Errorf("unknown mouse move direction: %q", s)
	}
}

// Cartesian converts a direction and distance to a relative (dx, dy). Screen
// coordinates grow downwards.
func (d Direction) Cartesian(distance int) (int, int) {
	switch d {
	case Up:
		return 0, -distance
	case Down:
		return 0, distance
	case Left:
		return -distance, 0
	case Right:
		return distance, 0
	}
	return 0, 0
}

// PressRelease presses a key, holds it, then releases it.
func PressRelease(dev Device, key string, hold time.Duration) Sequence {
	return Sequence{PressKey{dev, key}, Wait{hold}, ReleaseKey{dev, key}}
}

// Click presses a mouse button, holds it, then releases it.
func Click(dev Device, button string, hold time.Duration) Sequence {
	return Sequence{PressButton{dev, button}, Wait{hold}, ReleaseButton{dev, button}}
}

// Look moves the pointer distance pixels in direction d in one step.
func Look(dev Device, d Direction, distance int) MoveMouse {
	dx, dy := d.Cartesian(distance)
	return MoveMouse{Device: dev, DX: dx, DY: dy}
}

// MoveSmooth splits a relative move into steps moves, each followed by
// pause. The steps add up to exactly (dx, dy); the remainder of the division
// goes one pixel at a time to the earliest steps.
func MoveSmooth(dev Device, dx, dy, steps int, pause time.Duration) (Sequence, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("smooth move needs at least one step, got %d", steps)
	}
	seq := make(Sequence, 0, 2*steps)
	for i := 0; i < steps; i++ {
		seq = append(seq, MoveMouse{Device: dev, DX: share(dx, steps, i), DY: share(dy, steps, i)}, Wait{pause})
	}
	return seq, nil
}

// share is step i's part of total split over steps.
func share(total, steps, i int) int {
	part, rem := total/steps, total%steps
	switch {
	case rem > 0 && i < rem:
		part++
	case rem < 0 && i < -rem:
		part--
	}
	return part
}
