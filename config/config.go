package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/hoshinonyaruko/snake-torus/structs"
	"github.com/joho/godotenv"
)

// AppConfig holds the structure of the configuration
type AppConfig struct {
	Port              string  `json:"port" validate:"required,numeric"`
	Blocksize         int     `json:"blocksize" validate:"min=4,max=128"` // 每格像素
	GridSize          int     `json:"grid_size" validate:"min=4,max=100"`
	TickMs            int     `json:"tick_ms" validate:"min=0,max=10000"` // 0 表示手动推进
	FoodMin           int     `json:"food_min" validate:"min=0"`
	FoodMax           int     `json:"food_max" validate:"gtefield=FoodMin"`
	HazardMin         int     `json:"hazard_min" validate:"min=0"`
	HazardMax         int     `json:"hazard_max" validate:"gtefield=HazardMin"`
	DefaultFood       int     `json:"default_food"`
	DefaultHazards    int     `json:"default_hazards"`
	RestartToSetup    bool    `json:"restart_to_setup"`
	MaxOccupancy      float64 `json:"max_occupancy" validate:"gt=0,lte=1"`
	PlacementAttempts int     `json:"placement_attempts" validate:"min=1"`
	Seed              int64   `json:"seed"` // 0 表示按时间播种
	SpritesDir        string  `json:"sprites_dir" validate:"required"`
	LogLevel          string  `json:"log_level" validate:"oneof=trace debug info warn error"`
}

var (
	instance *AppConfig
	once     sync.Once
	validate = validator.New()
)

func init() {
	validate.RegisterStructValidation(gridCapacity, AppConfig{})
}

// gridCapacity rejects ranges that would let food and hazards fill the whole grid, or
// push the occupancy past max_occupancy so that placement refuses to start a game.
func gridCapacity(sl validator.StructLevel) {
	c := sl.Current().Interface().(AppConfig)
	cells := c.GridSize * c.GridSize
	if c.FoodMax+c.HazardMax+1 >= cells {
		sl.ReportError(c.FoodMax, "FoodMax", "food_max", "gridcapacity", "")
		return
	}
	if float64(c.FoodMax+c.HazardMax) > c.MaxOccupancy*float64(cells) {
		sl.ReportError(c.FoodMax, "FoodMax", "food_max", "maxoccupancy", "")
	}
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	return &AppConfig{
		Port:              "38870",
		Blocksize:         20,
		GridSize:          20,
		TickMs:            150,
		FoodMin:           1,
		FoodMax:           10,
		HazardMin:         0,
		HazardMax:         10,
		DefaultFood:       1,
		DefaultHazards:    3,
		MaxOccupancy:      0.95,
		PlacementAttempts: 64,
		SpritesDir:        "./sprites",
		LogLevel:          "info",
	}
}

// LoadConfig initializes and returns the instance of AppConfig
func LoadConfig(filePath string) *AppConfig {
	once.Do(func() {
		cfg, err := Load(filePath)
		if err != nil {
			panic(err)
		}
		instance = cfg
	})
	return instance
}

// Load reads filePath (writing the defaults there first when it does not exist),
// applies .env and SNAKE_* environment overrides and validates the result.
func Load(filePath string) (*AppConfig, error) {
	cfg := Default()
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		if err := saveConfig(filePath, cfg); err != nil {
			return nil, err
		}
	} else if err := loadConfig(filePath, cfg); err != nil {
		return nil, err
	}

	// .env 不存在不算错误
	_ = godotenv.Load()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges and the grid capacity rule.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// loadConfig loads the settings from the file
func loadConfig(filePath string, cfg *AppConfig) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("decode %s: %w", filePath, err)
	}
	return nil
}

// saveConfig saves the current settings to the file
func saveConfig(filePath string, cfg *AppConfig) error {
	file, err := os.Create(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(cfg)
}

func applyEnv(cfg *AppConfig) error {
	if v := os.Getenv("SNAKE_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("SNAKE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	ints := map[string]*int{
		"SNAKE_GRID_SIZE": &cfg.GridSize,
		"SNAKE_TICK_MS":   &cfg.TickMs,
		"SNAKE_BLOCKSIZE": &cfg.Blocksize,
	}
	for key, dst := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}
	if v := os.Getenv("SNAKE_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("SNAKE_SEED: %w", err)
		}
		cfg.Seed = n
	}
	return nil
}

// ClampSettings forces the requested counts into the configured ranges.
func (c *AppConfig) ClampSettings(food, hazards int) structs.Settings {
	return structs.Settings{
		Food:    clamp(food, c.FoodMin, c.FoodMax),
		Hazards: clamp(hazards, c.HazardMin, c.HazardMax),
	}
}

// DefaultSettings returns the clamped default counts.
func (c *AppConfig) DefaultSettings() structs.Settings {
	return c.ClampSettings(c.DefaultFood, c.DefaultHazards)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// GetConfigValue returns the value of the configuration by key
func GetConfigValue(key string) interface{} {
	switch key {
	case "port":
		return instance.Port
	default:
		return ""
	}
}
