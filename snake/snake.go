// 关于蛇的更新
package snake

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/hoshinonyaruko/snake-torus/structs"
	"github.com/rs/zerolog/log"
)

var (
	ErrGameActive         = errors.New("game already active")
	ErrSettingsTooCrowded = errors.New("food and hazard counts leave no room on the grid")
	ErrInvalidSettings    = errors.New("invalid game settings")
)

// Options 创建引擎的参数
type Options struct {
	GridSize     int
	Origin       *structs.Coord // nil 表示地图中心
	Rand         *rand.Rand     // nil 时按当前时间播种
	Attempts     int            // 放置时随机尝试次数
	MaxOccupancy float64        // 占用比例超过该值时放置失败
	NewID        func() string  // 游戏ID生成器，默认 uuid
}

// Engine owns the whole game state and advances it one tick per Step call.
// It is not safe for concurrent use; the scheduler serialises access.
type Engine struct {
	gridSize int
	origin   structs.Coord
	placer   *Placer
	newID    func() string

	gameID   string
	tick     int
	phase    structs.Phase
	body     []structs.Coord // 头在前
	food     []structs.Coord
	hazards  []structs.Hazard
	score    int
	dir      structs.Direction
	cause    structs.Cause
	ate      bool
	settings structs.Settings
}

func New(opts Options) (*Engine, error) {
	if opts.GridSize < 2 {
		return nil, fmt.Errorf("%w: grid size %d", ErrInvalidSettings, opts.GridSize)
	}
	origin := structs.Coord{X: opts.GridSize / 2, Y: opts.GridSize / 2}
	if opts.Origin != nil {
		origin = *opts.Origin
	}
	if origin.X < 0 || origin.X >= opts.GridSize || origin.Y < 0 || origin.Y >= opts.GridSize {
		return nil, fmt.Errorf("%w: origin (%d,%d) outside grid", ErrInvalidSettings, origin.X, origin.Y)
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	e := &Engine{
		gridSize: opts.GridSize,
		origin:   origin,
		placer:   NewPlacer(opts.GridSize, rng, opts.Attempts, opts.MaxOccupancy),
		newID:    newID,
	}
	e.Reset()
	return e, nil
}

// Reset returns the engine to the setup phase from any phase.
func (e *Engine) Reset() {
	e.gameID = ""
	e.settings = structs.Settings{}
	e.tick = 0
	e.phase = structs.PhaseSetup
	e.body = []structs.Coord{e.origin}
	e.food = nil
	e.hazards = nil
	e.score = 0
	e.dir = structs.Right
	e.cause = structs.CauseNone
	e.ate = false
}

// Start begins a new game from the setup or over phase.
func (e *Engine) Start(s structs.Settings) error {
	if e.phase == structs.PhaseActive {
		return ErrGameActive
	}
	if s.Food < 0 || s.Hazards < 0 {
		return fmt.Errorf("%w: food=%d hazards=%d", ErrInvalidSettings, s.Food, s.Hazards)
	}
	if s.Food+s.Hazards+1 >= e.gridSize*e.gridSize {
		return fmt.Errorf("%w: food=%d hazards=%d grid=%d", ErrSettingsTooCrowded, s.Food, s.Hazards, e.gridSize)
	}

	body := []structs.Coord{e.origin}
	spots, err := e.placer.PlaceBatch(s.Hazards, occupancy(body))
	if err != nil {
		return fmt.Errorf("placing hazards: %w", err)
	}
	food, err := e.placer.PlaceBatch(s.Food, occupancy(body, spots))
	if err != nil {
		return fmt.Errorf("placing food: %w", err)
	}

	hazards := make([]structs.Hazard, len(spots))
	for i, c := range spots {
		kind := structs.Poison
		if i%2 == 1 {
			kind = structs.Fire
		}
		hazards[i] = structs.Hazard{Coord: c, Kind: kind}
	}

	e.Reset()
	e.gameID = e.newID()
	e.phase = structs.PhaseActive
	e.body = body
	e.food = food
	e.hazards = hazards
	e.settings = s
	log.Debug().Str("game", e.gameID).Int("food", s.Food).Int("hazards", s.Hazards).Msg("game started")
	return nil
}

// Step advances one tick. intent is the pending direction (zero for none).
// Outside the active phase the state is returned unchanged.
func (e *Engine) Step(intent structs.Direction) structs.Snapshot {
	if e.phase != structs.PhaseActive {
		return e.Snapshot()
	}
	e.tick++
	e.ate = false

	// 方向判定只看本tick生效的方向，禁止直接掉头
	if intent.IsUnit() && intent != e.dir.Opposite() {
		e.dir = intent
	}

	head := e.body[0]
	next := wrap(head.Add(e.dir), e.gridSize)
	foodIdx := e.foodAt(next)
	growing := foodIdx >= 0

	if e.hitsBody(next, growing) {
		e.finish(structs.CauseSelf)
		return e.Snapshot()
	}
	if h, ok := e.hazardAt(next); ok {
		e.finish(structs.Cause(h.Kind))
		return e.Snapshot()
	}

	if !growing {
		// 没吃到：头前进一格，尾巴丢掉
		copy(e.body[1:], e.body[:len(e.body)-1])
		e.body[0] = next
		return e.Snapshot()
	}

	body := make([]structs.Coord, 0, len(e.body)+1)
	body = append(body, next)
	e.body = append(body, e.body...)
	e.score++
	e.ate = true

	remaining := make([]structs.Coord, 0, len(e.food)-1)
	remaining = append(remaining, e.food[:foodIdx]...)
	remaining = append(remaining, e.food[foodIdx+1:]...)
	c, err := e.placer.Place(occupancy(e.body, e.hazardCoords(), remaining))
	if err != nil {
		e.food = remaining
		e.finish(structs.CauseBoardFull)
		return e.Snapshot()
	}
	e.food[foodIdx] = c
	return e.Snapshot()
}

// hitsBody checks next against the pre-move body without the old head. The tail is
// skipped when it vacates its cell this tick, which needs a non-growing snake longer
// than two segments (a two-segment tail is the neck).
func (e *Engine) hitsBody(next structs.Coord, growing bool) bool {
	end := len(e.body)
	if !growing && end > 2 {
		end--
	}
	for _, c := range e.body[1:end] {
		if c == next {
			return true
		}
	}
	return false
}

func (e *Engine) foodAt(c structs.Coord) int {
	for i, f := range e.food {
		if f == c {
			return i
		}
	}
	return -1
}

func (e *Engine) hazardAt(c structs.Coord) (structs.Hazard, bool) {
	for _, h := range e.hazards {
		if h.Coord == c {
			return h, true
		}
	}
	return structs.Hazard{}, false
}

func (e *Engine) hazardCoords() []structs.Coord {
	out := make([]structs.Coord, len(e.hazards))
	for i, h := range e.hazards {
		out[i] = h.Coord
	}
	return out
}

func (e *Engine) finish(cause structs.Cause) {
	e.phase = structs.PhaseOver
	e.cause = cause
	log.Debug().Str("game", e.gameID).Str("cause", string(cause)).Int("score", e.score).Int("tick", e.tick).Msg("game over")
}

// Phase returns the current lifecycle phase.
func (e *Engine) Phase() structs.Phase {
	return e.phase
}

func (e *Engine) GridSize() int {
	return e.gridSize
}

// Snapshot returns a copy of the state that the caller may keep.
func (e *Engine) Snapshot() structs.Snapshot {
	s := structs.Snapshot{
		GameID:    e.gameID,
		Tick:      e.tick,
		Phase:     e.phase,
		GridSize:  e.gridSize,
		Snake:     append([]structs.Coord(nil), e.body...),
		Food:      append([]structs.Coord{}, e.food...),
		Hazards:   append([]structs.Hazard{}, e.hazards...),
		Score:     e.score,
		Direction: e.dir,
		Cause:     e.cause,
		Ate:       e.ate,
		Settings:  e.settings,
	}
	return s
}

func wrap(c structs.Coord, size int) structs.Coord {
	x, y := WrapPosition(c.X, c.Y, size, size)
	return structs.Coord{X: x, Y: y}
}

// WrapPosition 确保位置不会超出地图边界，越过一边就从另一边出来
func WrapPosition(x, y, width, height int) (int, int) {
	x %= width
	if x < 0 {
		x += width
	}
	y %= height
	if y < 0 {
		y += height
	}
	return x, y
}
