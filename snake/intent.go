package snake

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/hoshinonyaruko/snake-torus/structs"
)

var ErrInvalidDirection = errors.New("invalid direction")

// ParseDirection 解析 "up", "down", "left", "right"
func ParseDirection(s string) (structs.Direction, error) {
	switch s {
	case "up":
		return structs.Up, nil
	case "down":
		return structs.Down, nil
	case "left":
		return structs.Left, nil
	case "right":
		return structs.Right, nil
	}
	return structs.Direction{}, fmt.Errorf("%w '%s' provided", ErrInvalidDirection, s)
}

// PointerIntent converts a pointer position, in play-field units relative to its origin,
// into a directional intent along the dominant axis of the displacement from the centre of
// the head cell. |dx| == |dy| picks the vertical axis, so a pointer resting on the centre
// yields the zero Direction.
func PointerIntent(px, py float64, head structs.Coord, cellSize float64) structs.Direction {
	cx := (float64(head.X) + 0.5) * cellSize
	cy := (float64(head.Y) + 0.5) * cellSize
	dx := px - cx
	dy := py - cy

	if math.Abs(dx) > math.Abs(dy) {
		return structs.Direction{X: sign(dx)}
	}
	return structs.Direction{Y: sign(dy)}
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// IntentSlot holds the pending direction between two ticks. Last write wins; the
// tick path reads and clears it with Take.
type IntentSlot struct {
	mu      sync.Mutex
	dir     structs.Direction
	pending bool
}

// Set records d as the pending intent. The zero Direction is ignored.
func (s *IntentSlot) Set(d structs.Direction) {
	if d.IsZero() {
		return
	}
	s.mu.Lock()
	s.dir = d
	s.pending = true
	s.mu.Unlock()
}

// Take returns the pending intent and clears the slot.
func (s *IntentSlot) Take() (structs.Direction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pending {
		return structs.Direction{}, false
	}
	d := s.dir
	s.dir = structs.Direction{}
	s.pending = false
	return d, true
}

// Reset makes d the pending intent, used when a new game starts.
func (s *IntentSlot) Reset(d structs.Direction) {
	s.mu.Lock()
	s.dir = d
	s.pending = !d.IsZero()
	s.mu.Unlock()
}
