package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"runtime/debug"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/hoshinonyaruko/snake-torus/config"
	"github.com/hoshinonyaruko/snake-torus/scheduler"
	"github.com/hoshinonyaruko/snake-torus/snake"
	"github.com/hoshinonyaruko/snake-torus/tui"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	gridFlag    = flag.Int("grid", 0, "grid size (0 keeps the config value)")
	tickFlag    = flag.Int("tick", -1, "tick period in ms, 0 for manual stepping with space (-1 keeps the config value)")
	foodFlag    = flag.Int("food", -1, "initial food count on the setup screen")
	hazardsFlag = flag.Int("hazards", -1, "initial hazard count on the setup screen")
	soundFlag   = flag.Bool("sound", true, "play sounds")
	configFlag  = flag.String("config", "", "config file; built-in defaults when empty")
	logFlag     = flag.String("log", "", "write logs to this file")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	setupLogging(cfg)

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	engine, err := snake.New(snake.Options{
		GridSize:     cfg.GridSize,
		Rand:         rand.New(rand.NewSource(seed)),
		Attempts:     cfg.PlacementAttempts,
		MaxOccupancy: cfg.MaxOccupancy,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine: %v\n", err)
		os.Exit(1)
	}
	sched := scheduler.New(engine, time.Duration(cfg.TickMs)*time.Millisecond)

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create screen: %v\n", err)
		os.Exit(1)
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize terminal: %v\n", err)
		os.Exit(1)
	}
	// 崩溃时先恢复终端，再打印堆栈
	defer func() {
		if r := recover(); r != nil {
			screen.Fini()
			fmt.Fprintf(os.Stderr, "snake crashed: %v\n%s\n", r, debug.Stack())
			os.Exit(1)
		}
	}()
	defer screen.Fini()
	screen.EnableMouse()
	screen.HideCursor()

	var player tui.Player
	if *soundFlag {
		if b, err := tui.NewBeeper(); err != nil {
			log.Warn().Err(err).Msg("audio unavailable, running silent")
		} else {
			player = b
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer sched.Stop()

	if err := tui.NewClient(screen, sched, cfg, player).Run(ctx); err != nil {
		log.Error().Err(err).Msg("tui")
	}
}

func loadConfig() (*config.AppConfig, error) {
	cfg := config.Default()
	if *configFlag != "" {
		loaded, err := config.Load(*configFlag)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if *gridFlag > 0 {
		cfg.GridSize = *gridFlag
	}
	if *tickFlag >= 0 {
		cfg.TickMs = *tickFlag
	}
	if *foodFlag >= 0 {
		cfg.DefaultFood = *foodFlag
	}
	if *hazardsFlag >= 0 {
		cfg.DefaultHazards = *hazardsFlag
	}
	return cfg, cfg.Validate()
}

// setupLogging keeps log output off the terminal the game is drawn on.
func setupLogging(cfg *config.AppConfig) {
	var out io.Writer = io.Discard
	if *logFlag != "" {
		f, err := os.OpenFile(*logFlag, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file: %v\n", err)
			os.Exit(1)
		}
		out = f
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log.Logger = zerolog.New(out).Level(level).With().Timestamp().Logger()
}
