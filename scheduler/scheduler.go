package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hoshinonyaruko/snake-torus/snake"
	"github.com/hoshinonyaruko/snake-torus/structs"
	"github.com/rs/zerolog/log"
)

// ErrNotOver is returned by Restart while the current game is still in setup or active.
var ErrNotOver = errors.New("game is not over")

// Engine is the game state the scheduler drives. *snake.Engine implements it.
type Engine interface {
	Start(structs.Settings) error
	Reset()
	Step(intent structs.Direction) structs.Snapshot
	Snapshot() structs.Snapshot
	Phase() structs.Phase
}

// Scheduler owns one engine and the pending intent slot, and advances the engine on a
// fixed period while the game is active. Intent writes and ticks never overlap.
type Scheduler struct {
	mu      sync.Mutex // guards engine
	engine  Engine
	intents snake.IntentSlot

	interval time.Duration

	lifeMu sync.Mutex // serialises Start/Restart/Reset
	runMu  sync.Mutex // guards cancel/done
	cancel context.CancelFunc
	done   chan struct{}

	subMu   sync.Mutex
	subs    map[int]chan structs.Snapshot
	nextSub int

	// OnOver is called once for every game that ends, outside the engine lock. It may
	// run on the ticker goroutine, so it must not call Stop, Start, Restart or Reset.
	OnOver func(structs.Snapshot)
}

// New returns a scheduler ticking every interval. A zero interval disables the timer;
// the game then only advances through Step.
func New(engine Engine, interval time.Duration) *Scheduler {
	return &Scheduler{
		engine:   engine,
		interval: interval,
		subs:     make(map[int]chan structs.Snapshot),
	}
}

// Start begins a new game, abandoning any game in progress, and starts the ticker.
func (s *Scheduler) Start(ctx context.Context, settings structs.Settings) (structs.Snapshot, error) {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	return s.start(ctx, settings)
}

// Restart begins a new game with the settings of the game that just ended, or puts the
// engine back into setup when toSetup is true. It fails with ErrNotOver unless the
// current game is over.
func (s *Scheduler) Restart(ctx context.Context, toSetup bool) (structs.Snapshot, error) {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	s.mu.Lock()
	snap := s.engine.Snapshot()
	s.mu.Unlock()
	if snap.Phase != structs.PhaseOver {
		return snap, ErrNotOver
	}
	if toSetup {
		return s.reset(), nil
	}
	return s.start(ctx, snap.Settings)
}

// start runs with lifeMu held.
func (s *Scheduler) start(ctx context.Context, settings structs.Settings) (structs.Snapshot, error) {
	s.Stop()

	s.mu.Lock()
	if s.engine.Phase() == structs.PhaseActive {
		s.engine.Reset()
	}
	if err := s.engine.Start(settings); err != nil {
		s.mu.Unlock()
		return structs.Snapshot{}, err
	}
	s.intents.Reset(structs.Right)
	snap := s.engine.Snapshot()
	s.mu.Unlock()

	s.broadcast(snap)
	if s.interval > 0 {
		s.launch(ctx)
	}
	log.Info().Str("game", snap.GameID).Int("food", settings.Food).Int("hazards", settings.Hazards).
		Dur("interval", s.interval).Msg("game scheduled")
	return snap, nil
}

func (s *Scheduler) launch(parent context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	// 同一时间只允许一个计时循环
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	go s.run(ctx, done)
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if snap := s.Step(); snap.Phase != structs.PhaseActive {
				return
			}
		}
	}
}

// Stop halts the ticker and waits for the loop to exit. The game state is kept.
func (s *Scheduler) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}

// Running reports whether the ticker loop is alive.
func (s *Scheduler) Running() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Step consumes the pending intent and advances the engine by one tick.
func (s *Scheduler) Step() structs.Snapshot {
	s.mu.Lock()
	wasActive := s.engine.Phase() == structs.PhaseActive
	intent, _ := s.intents.Take()
	snap := s.engine.Step(intent)
	s.mu.Unlock()

	if wasActive {
		s.broadcast(snap)
	}
	if wasActive && snap.Phase == structs.PhaseOver {
		log.Info().Str("game", snap.GameID).Str("cause", string(snap.Cause)).Int("score", snap.Score).Msg("game over")
		if s.OnOver != nil {
			s.OnOver(snap)
		}
	}
	return snap
}

// Reset stops the ticker and puts the engine back into setup.
func (s *Scheduler) Reset() structs.Snapshot {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	return s.reset()
}

func (s *Scheduler) reset() structs.Snapshot {
	s.Stop()
	s.mu.Lock()
	s.engine.Reset()
	snap := s.engine.Snapshot()
	s.mu.Unlock()
	s.broadcast(snap)
	return snap
}

// SetIntent records a discrete direction for the next tick.
func (s *Scheduler) SetIntent(d structs.Direction) {
	s.mu.Lock()
	s.intents.Set(d)
	s.mu.Unlock()
}

// Pointer turns a pointer position into the pending intent, relative to the current head.
func (s *Scheduler) Pointer(px, py, cellSize float64) structs.Direction {
	s.mu.Lock()
	defer s.mu.Unlock()
	head := s.engine.Snapshot().Head()
	d := snake.PointerIntent(px, py, head, cellSize)
	s.intents.Set(d)
	return d
}

// Snapshot returns the current state.
func (s *Scheduler) Snapshot() structs.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Snapshot()
}

// Subscribe returns a channel receiving every snapshot produced from now on and a
// function to unsubscribe. Slow subscribers miss snapshots instead of blocking ticks.
func (s *Scheduler) Subscribe(buffer int) (<-chan structs.Snapshot, func()) {
	ch := make(chan structs.Snapshot, buffer)
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *Scheduler) broadcast(snap structs.Snapshot) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}
