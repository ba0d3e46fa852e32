package api

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/hoshinonyaruko/snake-torus/config"
	"github.com/hoshinonyaruko/snake-torus/memimg"
	"github.com/hoshinonyaruko/snake-torus/render"
	"github.com/hoshinonyaruko/snake-torus/scheduler"
	"github.com/hoshinonyaruko/snake-torus/snake"
	"github.com/hoshinonyaruko/snake-torus/sqlite"
	"github.com/hoshinonyaruko/snake-torus/structs"
	"github.com/rs/zerolog/log"
)

// Server wires the http surface to one scheduler.
type Server struct {
	ctx     context.Context // 计时器的生命周期跟随服务，而不是单个请求
	cfg     *config.AppConfig
	sched   *scheduler.Scheduler
	db      *sql.DB
	sprites *memimg.Cache
}

// NewServer registers the results journal as the scheduler's game-over hook.
// ctx bounds every tick loop started through the api.
func NewServer(ctx context.Context, cfg *config.AppConfig, sched *scheduler.Scheduler, db *sql.DB, sprites *memimg.Cache) *Server {
	s := &Server{ctx: ctx, cfg: cfg, sched: sched, db: db, sprites: sprites}
	sched.OnOver = s.recordResult
	return s
}

func (s *Server) recordResult(snap structs.Snapshot) {
	if s.db == nil {
		return
	}
	if err := sqlite.RecordResult(s.db, structs.ResultFromSnapshot(snap, time.Now())); err != nil {
		log.Error().Err(err).Str("game", snap.GameID).Msg("record result")
	}
}

func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestid.New(), requestLogger())

	// 状态与渲染
	router.GET("/state", s.StateHandler())
	router.GET("/render-map", s.RenderMapHandler())
	router.GET("/ws", s.StreamHandler())
	router.GET("/results", s.ResultsHandler())
	// 生命周期
	router.POST("/start", s.StartHandler())
	router.POST("/restart", s.RestartHandler())
	router.POST("/reset", s.ResetHandler())
	router.POST("/stop", s.StopHandler())
	router.POST("/step", s.StepHandler())
	// 处理玩家改变方向
	router.GET("/update-direction", s.UpdateDirection())
	router.POST("/pointer", s.PointerHandler())
	return router
}

type stateResponse struct {
	structs.Snapshot
	CellSize int  `json:"cell_size"`
	Running  bool `json:"running"`
}

func (s *Server) respond(c *gin.Context, snap structs.Snapshot) {
	c.JSON(http.StatusOK, stateResponse{Snapshot: snap, CellSize: s.cfg.Blocksize, Running: s.sched.Running()})
}

func (s *Server) StateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.respond(c, s.sched.Snapshot())
	}
}

type startRequest struct {
	Food    *int `json:"food"`
	Hazards *int `json:"hazards"`
}

func (s *Server) StartHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req startRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start request: " + err.Error()})
				return
			}
		}
		settings := s.cfg.DefaultSettings()
		if req.Food != nil {
			settings.Food = *req.Food
		}
		if req.Hazards != nil {
			settings.Hazards = *req.Hazards
		}
		s.start(c, s.cfg.ClampSettings(settings.Food, settings.Hazards))
	}
}

func (s *Server) start(c *gin.Context, settings structs.Settings) {
	snap, err := s.sched.Start(s.ctx, settings)
	s.lifecycleResponse(c, snap, err)
}

func (s *Server) lifecycleResponse(c *gin.Context, snap structs.Snapshot, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, scheduler.ErrNotOver):
			status = http.StatusConflict
		case errors.Is(err, snake.ErrSettingsTooCrowded),
			errors.Is(err, snake.ErrInvalidSettings),
			errors.Is(err, snake.ErrPlacementExhausted):
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	s.respond(c, snap)
}

// RestartHandler starts a new game with the previous counts, or goes back to setup
// when restart_to_setup is set. Only valid once the game is over.
func (s *Server) RestartHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, err := s.sched.Restart(s.ctx, s.cfg.RestartToSetup)
		s.lifecycleResponse(c, snap, err)
	}
}

func (s *Server) ResetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.respond(c, s.sched.Reset())
	}
}

func (s *Server) StopHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.sched.Stop()
		s.respond(c, s.sched.Snapshot())
	}
}

func (s *Server) StepHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.sched.Running() {
			c.JSON(http.StatusConflict, gin.H{"error": "ticker is running; stop it before stepping"})
			return
		}
		s.respond(c, s.sched.Step())
	}
}

func (s *Server) UpdateDirection() gin.HandlerFunc {
	return func(c *gin.Context) {
		newDirection := c.Query("direction")
		if newDirection == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required query parameter: direction"})
			return
		}
		d, err := snake.ParseDirection(newDirection)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.sched.SetIntent(d)
		c.JSON(http.StatusOK, gin.H{"message": "Direction updated successfully", "intent": d.String()})
	}
}

type pointerRequest struct {
	X *float64 `json:"x" binding:"required"`
	Y *float64 `json:"y" binding:"required"`
}

// PointerHandler takes a pointer position in pixels relative to the board origin.
func (s *Server) PointerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req pointerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "x and y are required"})
			return
		}
		d := s.sched.Pointer(*req.X, *req.Y, float64(s.cfg.Blocksize))
		c.JSON(http.StatusOK, gin.H{"intent": d.String()})
	}
}

func (s *Server) RenderMapHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		img := render.Board(s.sched.Snapshot(), s.cfg.Blocksize, s.sprites)
		c.Header("Content-Type", "image/png")
		c.Header("Cache-Control", "no-store")
		c.Status(http.StatusOK)
		if err := render.EncodePNG(c.Writer, img); err != nil {
			log.Error().Err(err).Msg("encode board")
		}
	}
}

func (s *Server) ResultsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
		if err != nil || limit < 1 || limit > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
			return
		}
		if s.db == nil {
			c.JSON(http.StatusOK, gin.H{"results": []structs.Result{}})
			return
		}
		results, err := sqlite.TopResults(s.db, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to read results"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": results})
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("request_id", requestid.Get(c)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
