// Package tui plays the game in a terminal: two columns per grid cell, keyboard and
// mouse steering.
package tui

import (
	"context"
	"errors"
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/hoshinonyaruko/snake-torus/config"
	"github.com/hoshinonyaruko/snake-torus/scheduler"
	"github.com/hoshinonyaruko/snake-torus/structs"
	"github.com/rs/zerolog/log"
)

// boardTop is the first screen row of the board; row 0 is the status line.
const boardTop = 1

var (
	styleDefault = tcell.StyleDefault
	styleEmpty   = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleHead    = tcell.StyleDefault.Foreground(tcell.ColorGreen)
	styleBody    = tcell.StyleDefault.Foreground(tcell.ColorLightGreen)
	styleFood    = tcell.StyleDefault.Foreground(tcell.ColorRed)
	stylePoison  = tcell.StyleDefault.Foreground(tcell.ColorPurple)
	styleFire    = tcell.StyleDefault.Foreground(tcell.ColorOrange)
	styleOver    = tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
)

// Player makes the eat and game-over sounds. A nil Player is silent.
type Player interface {
	Eat()
	Over()
}

type Client struct {
	ctx    context.Context
	screen tcell.Screen
	sched  *scheduler.Scheduler
	cfg    *config.AppConfig
	player Player

	setup    structs.Settings // counts chosen on the setup screen
	lastTick int
	lastOver bool
}

func NewClient(screen tcell.Screen, sched *scheduler.Scheduler, cfg *config.AppConfig, player Player) *Client {
	return &Client{
		ctx:    context.Background(),
		screen: screen,
		sched:  sched,
		cfg:    cfg,
		player: player,
		setup:  cfg.DefaultSettings(),
	}
}

// Run draws every snapshot and handles input until the player quits or ctx ends.
func (c *Client) Run(ctx context.Context) error {
	c.ctx = ctx
	snaps, unsubscribe := c.sched.Subscribe(8)
	defer unsubscribe()

	events := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := c.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	c.Draw()
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-snaps:
			if !ok {
				return nil
			}
			c.onSnapshot(snap)
			c.Draw()
		case ev := <-events:
			if !c.HandleEvent(ev) {
				return nil
			}
			c.Draw()
		}
	}
}

func (c *Client) onSnapshot(snap structs.Snapshot) {
	over := snap.Phase == structs.PhaseOver
	if c.player != nil {
		if snap.Ate && snap.Tick != c.lastTick {
			c.player.Eat()
		}
		if over && !c.lastOver {
			c.player.Over()
		}
	}
	c.lastTick = snap.Tick
	c.lastOver = over
}

// HandleEvent applies one terminal event. It returns false when the player quits.
func (c *Client) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		return c.handleKey(ev)
	case *tcell.EventMouse:
		x, y := ev.Position()
		c.pointer(x, y)
	case *tcell.EventResize:
		c.screen.Sync()
	}
	return true
}

func (c *Client) handleKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return false
	case tcell.KeyUp:
		c.sched.SetIntent(structs.Up)
		return true
	case tcell.KeyDown:
		c.sched.SetIntent(structs.Down)
		return true
	case tcell.KeyLeft:
		c.sched.SetIntent(structs.Left)
		return true
	case tcell.KeyRight:
		c.sched.SetIntent(structs.Right)
		return true
	case tcell.KeyEnter:
		if c.sched.Snapshot().Phase == structs.PhaseSetup {
			c.start(c.setup)
		}
		return true
	case tcell.KeyRune:
	default:
		return true
	}

	phase := c.sched.Snapshot().Phase
	switch ev.Rune() {
	case 'q':
		return false
	case 'w':
		c.sched.SetIntent(structs.Up)
	case 's':
		c.sched.SetIntent(structs.Down)
	case 'a':
		c.sched.SetIntent(structs.Left)
	case 'd':
		c.sched.SetIntent(structs.Right)
	case ' ':
		// 手动模式下推进一步
		if phase == structs.PhaseActive && !c.sched.Running() {
			c.sched.Step()
		}
	case 'r':
		if _, err := c.sched.Restart(c.ctx, c.cfg.RestartToSetup); err != nil && !errors.Is(err, scheduler.ErrNotOver) {
			log.Error().Err(err).Msg("restart game")
		}
	case 'f', 'F', 'h', 'H':
		if phase == structs.PhaseSetup {
			c.adjust(ev.Rune())
		}
	}
	return true
}

// adjust changes the setup counts: lower case adds one, upper case removes one.
func (c *Client) adjust(key rune) {
	food, hazards := c.setup.Food, c.setup.Hazards
	switch key {
	case 'f':
		food++
	case 'F':
		food--
	case 'h':
		hazards++
	case 'H':
		hazards--
	}
	c.setup = c.cfg.ClampSettings(food, hazards)
}

func (c *Client) start(settings structs.Settings) {
	if _, err := c.sched.Start(c.ctx, settings); err != nil {
		log.Error().Err(err).Msg("start game")
	}
}

// pointer maps a terminal cell to board units so that one grid cell has size 1.
func (c *Client) pointer(x, y int) {
	if c.sched.Snapshot().Phase != structs.PhaseActive {
		return
	}
	px := (float64(x) + 0.5) / 2
	py := float64(y-boardTop) + 0.5
	c.sched.Pointer(px, py, 1)
}

// Draw renders the current state.
func (c *Client) Draw() {
	snap := c.sched.Snapshot()
	c.screen.Clear()

	for y := 0; y < snap.GridSize; y++ {
		for x := 0; x < snap.GridSize; x++ {
			c.cell(structs.Coord{X: x, Y: y}, '·', ' ', styleEmpty)
		}
	}
	for _, h := range snap.Hazards {
		if h.Kind == structs.Fire {
			c.cell(h.Coord, '^', '^', styleFire)
		} else {
			c.cell(h.Coord, 'x', 'x', stylePoison)
		}
	}
	for _, f := range snap.Food {
		c.cell(f, '(', ')', styleFood)
	}
	for i := len(snap.Snake) - 1; i >= 0; i-- {
		if i == 0 {
			c.cell(snap.Snake[i], '█', '█', styleHead)
		} else {
			c.cell(snap.Snake[i], '▓', '▓', styleBody)
		}
	}

	c.status(snap)
	c.screen.Show()
}

func (c *Client) cell(p structs.Coord, left, right rune, style tcell.Style) {
	c.screen.SetContent(2*p.X, boardTop+p.Y, left, nil, style)
	c.screen.SetContent(2*p.X+1, boardTop+p.Y, right, nil, style)
}

func (c *Client) status(snap structs.Snapshot) {
	var text string
	style := styleDefault
	switch snap.Phase {
	case structs.PhaseSetup:
		text = fmt.Sprintf("Food: %d  Hazards: %d  [f/F h/H adjust, enter start, q quit]", c.setup.Food, c.setup.Hazards)
	case structs.PhaseActive:
		text = fmt.Sprintf("Score: %d  Length: %d", snap.Score, len(snap.Snake))
		if !c.sched.Running() {
			text += "  [space step]"
		}
	case structs.PhaseOver:
		text = fmt.Sprintf("GAME OVER (%s)  Score: %d  [r restart, q quit]", snap.Cause, snap.Score)
		style = styleOver
	}
	c.text(0, 0, text, style)
}

func (c *Client) text(x, y int, s string, style tcell.Style) {
	for _, r := range s {
		c.screen.SetContent(x, y, r, nil, style)
		x++
	}
}
