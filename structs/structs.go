package structs

import "time"

// Coord 描述游戏地图上的一个格子坐标。
type Coord struct {
	X int `json:"x" msgpack:"x"` // X坐标 [0, gridSize)
	Y int `json:"y" msgpack:"y"` // Y坐标 [0, gridSize)
}

// Add returns c shifted by d without wrapping.
func (c Coord) Add(d Direction) Coord {
	return Coord{X: c.X + d.X, Y: c.Y + d.Y}
}

// Direction 是一个单位向量，Y 轴向下。零值表示"没有方向意图"。
type Direction struct {
	X int `json:"x" msgpack:"x"`
	Y int `json:"y" msgpack:"y"`
}

var (
	Up    = Direction{X: 0, Y: -1}
	Down  = Direction{X: 0, Y: 1}
	Left  = Direction{X: -1, Y: 0}
	Right = Direction{X: 1, Y: 0}
)

// Opposite returns the reversed direction.
func (d Direction) Opposite() Direction {
	return Direction{X: -d.X, Y: -d.Y}
}

// IsZero reports whether d carries no intent.
func (d Direction) IsZero() bool {
	return d.X == 0 && d.Y == 0
}

// IsUnit reports whether d is one of the four movement directions.
func (d Direction) IsUnit() bool {
	return d == Up || d == Down || d == Left || d == Right
}

// String returns the name used by the http api ("up", "down", "left", "right").
func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "none"
	}
}

// Phase 游戏生命周期阶段
type Phase string

const (
	PhaseSetup  Phase = "setup"  // 配置食物/障碍数量
	PhaseActive Phase = "active" // 正在计时推进
	PhaseOver   Phase = "over"   // 游戏结束，只能重新开始
)

// HazardKind 障碍种类，毒药或火焰，效果相同：碰到即死。
type HazardKind string

const (
	Poison HazardKind = "poison"
	Fire   HazardKind = "fire"
)

// Hazard 一个障碍格子
type Hazard struct {
	Coord `msgpack:",inline"`
	Kind  HazardKind `json:"kind" msgpack:"kind"`
}

// Cause 游戏结束原因
type Cause string

const (
	CauseNone      Cause = ""
	CauseSelf      Cause = "self"       // 咬到自己
	CausePoison    Cause = "poison"     // 吃到毒药
	CauseFire      Cause = "fire"       // 撞到火焰
	CauseBoardFull Cause = "board_full" // 地图已满，无法再放置食物
)

// Settings 开局时由玩家选择的数量
type Settings struct {
	Food    int `json:"food" form:"food"`       // 食物数量
	Hazards int `json:"hazards" form:"hazards"` // 障碍数量（毒药与火焰交替）
}

// Snapshot 每个tick之后交给展示层的状态
type Snapshot struct {
	GameID    string    `json:"game_id" msgpack:"game_id"`
	Tick      int       `json:"tick" msgpack:"tick"`
	Phase     Phase     `json:"phase" msgpack:"phase"`
	GridSize  int       `json:"grid_size" msgpack:"grid_size"`
	Snake     []Coord   `json:"snake" msgpack:"snake"` // 头在前
	Food      []Coord   `json:"food" msgpack:"food"`
	Hazards   []Hazard  `json:"hazards" msgpack:"hazards"`
	Score     int       `json:"score" msgpack:"score"`
	Direction Direction `json:"direction" msgpack:"direction"`
	Cause     Cause     `json:"cause,omitempty" msgpack:"cause,omitempty"`
	Ate       bool      `json:"ate,omitempty" msgpack:"ate,omitempty"` // 本tick吃到了食物
	Settings  Settings  `json:"settings" msgpack:"settings"`
}

// Head returns the head segment, or the zero Coord for an empty body.
func (s Snapshot) Head() Coord {
	if len(s.Snake) == 0 {
		return Coord{}
	}
	return s.Snake[0]
}

// Result 一局结束后写入日志表的记录
type Result struct {
	GameID     string    `json:"game_id"`
	Score      int       `json:"score"`
	Length     int       `json:"length"`
	Ticks      int       `json:"ticks"`
	Cause      Cause     `json:"cause"`
	Food       int       `json:"food"`
	Hazards    int       `json:"hazards"`
	FinishedAt time.Time `json:"finished_at"`
}

// ResultFromSnapshot builds the journal row for a finished game.
func ResultFromSnapshot(s Snapshot, at time.Time) Result {
	return Result{
		GameID:     s.GameID,
		Score:      s.Score,
		Length:     len(s.Snake),
		Ticks:      s.Tick,
		Cause:      s.Cause,
		Food:       s.Settings.Food,
		Hazards:    s.Settings.Hazards,
		FinishedAt: at,
	}
}
