package snake

import (
	"errors"
	"math/rand"

	"github.com/hoshinonyaruko/snake-torus/structs"
	"github.com/zyedidia/generic/mapset"
)

// ErrPlacementExhausted is returned when the occupied share of the grid is above the
// placer's safety threshold, or when no free cell is left at all.
var ErrPlacementExhausted = errors.New("placement exhausted: grid too crowded")

const (
	DefaultPlacementAttempts = 64
	DefaultMaxOccupancy      = 0.95
)

// Placer 在地图上随机寻找未被占用的格子
type Placer struct {
	gridSize     int
	rng          *rand.Rand
	attempts     int
	maxOccupancy float64
}

// NewPlacer returns a placer for a gridSize x gridSize torus. Non-positive attempts and
// maxOccupancy fall back to the defaults.
func NewPlacer(gridSize int, rng *rand.Rand, attempts int, maxOccupancy float64) *Placer {
	if attempts <= 0 {
		attempts = DefaultPlacementAttempts
	}
	if maxOccupancy <= 0 || maxOccupancy > 1 {
		maxOccupancy = DefaultMaxOccupancy
	}
	return &Placer{
		gridSize:     gridSize,
		rng:          rng,
		attempts:     attempts,
		maxOccupancy: maxOccupancy,
	}
}

// Place returns a uniformly chosen coordinate that is not in occupied.
func (p *Placer) Place(occupied mapset.Set[structs.Coord]) (structs.Coord, error) {
	cells := p.gridSize * p.gridSize
	used := occupied.Size()
	if used >= cells || float64(used)/float64(cells) > p.maxOccupancy {
		return structs.Coord{}, ErrPlacementExhausted
	}

	// 先随机尝试，命中率高时几次就能找到
	for i := 0; i < p.attempts; i++ {
		c := structs.Coord{X: p.rng.Intn(p.gridSize), Y: p.rng.Intn(p.gridSize)}
		if !occupied.Has(c) {
			return c, nil
		}
	}

	// 运气不好时退化为扫描空格子，保证一定结束
	free := make([]structs.Coord, 0, cells-used)
	for y := 0; y < p.gridSize; y++ {
		for x := 0; x < p.gridSize; x++ {
			c := structs.Coord{X: x, Y: y}
			if !occupied.Has(c) {
				free = append(free, c)
			}
		}
	}
	if len(free) == 0 {
		return structs.Coord{}, ErrPlacementExhausted
	}
	return free[p.rng.Intn(len(free))], nil
}

// PlaceBatch places k mutually disjoint coordinates, none of them in occupied.
// occupied itself is left untouched.
func (p *Placer) PlaceBatch(k int, occupied mapset.Set[structs.Coord]) ([]structs.Coord, error) {
	taken := mapset.New[structs.Coord]()
	occupied.Each(func(c structs.Coord) {
		taken.Put(c)
	})

	out := make([]structs.Coord, 0, k)
	for i := 0; i < k; i++ {
		c, err := p.Place(taken)
		if err != nil {
			return nil, err
		}
		taken.Put(c)
		out = append(out, c)
	}
	return out, nil
}

// occupancy collects every coordinate of the given groups into one set.
func occupancy(groups ...[]structs.Coord) mapset.Set[structs.Coord] {
	set := mapset.New[structs.Coord]()
	for _, g := range groups {
		for _, c := range g {
			set.Put(c)
		}
	}
	return set
}
