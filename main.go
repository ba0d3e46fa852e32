package main

import (
	"context"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hoshinonyaruko/snake-torus/api"
	"github.com/hoshinonyaruko/snake-torus/config"
	"github.com/hoshinonyaruko/snake-torus/memimg"
	"github.com/hoshinonyaruko/snake-torus/scheduler"
	"github.com/hoshinonyaruko/snake-torus/snake"
	"github.com/hoshinonyaruko/snake-torus/sqlite"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Initialize the configuration
	cfg := config.LoadConfig("./config.json")
	setupLogging(cfg.LogLevel)
	EnsureFoldersExist(cfg.SpritesDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 载入贴图到内存，并检测热更新
	sprites := memimg.NewCache(cfg.Blocksize)
	if err := sprites.LoadDir(cfg.SpritesDir); err != nil {
		log.Warn().Err(err).Str("dir", cfg.SpritesDir).Msg("load sprites")
	}
	go func() {
		if err := sprites.Watch(ctx, cfg.SpritesDir); err != nil {
			log.Error().Err(err).Msg("sprite watcher stopped")
		}
	}()

	// 对局记录只保存在内存中
	db, err := sqlite.Open(sqlite.MemoryDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open results journal")
	}
	defer db.Close()

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
		log.Fatal().Err(err).Msg("create engine")
	}
	sched := scheduler.New(engine, time.Duration(cfg.TickMs)*time.Millisecond)
	defer sched.Stop()

	server := api.NewServer(ctx, cfg, sched, db, sprites)
	srv := &http.Server{
		Addr:    ":" + config.GetConfigValue("port").(string),
		Handler: server.Router(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", srv.Addr).Int("grid", cfg.GridSize).Int("tick_ms", cfg.TickMs).Msg("snake server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("listen")
	}
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

// EnsureFoldersExist 检查并创建必需的文件夹
func EnsureFoldersExist(folders ...string) {
	for _, folder := range folders {
		if _, err := os.Stat(folder); os.IsNotExist(err) {
			// 文件夹不存在，尝试创建它
			if err := os.MkdirAll(folder, 0755); err != nil {
				log.Fatal().Err(err).Str("dir", folder).Msg("Failed to create directory")
			}
			log.Info().Str("dir", folder).Msg("Created directory")
		}
	}
}
