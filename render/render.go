package render

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"sync"

	"github.com/fogleman/gg"
	"github.com/hoshinonyaruko/snake-torus/memimg"
	"github.com/hoshinonyaruko/snake-torus/structs"
)

// StatusBar is the height in pixels of the score line under the board.
const StatusBar = 24

const (
	headColor   = "#4CAF50"
	bodyColor   = "#81C784"
	borderColor = "#2E7D32"
	foodColor   = "#FF5252"
	poisonColor = "#800080"
	fireColor   = "#FF9800"
	flameColor  = "#FFEB3B"
)

// 背景网格缓存，key 为 gridSize_cellSize
var drawingCache sync.Map

// Board draws snap as an image: one cellSize box per coordinate plus a status line.
// sprites may be nil; missing sprites are drawn as coloured shapes.
func Board(snap structs.Snapshot, cellSize int, sprites *memimg.Cache) image.Image {
	width := snap.GridSize * cellSize
	height := width + StatusBar

	dc := gg.NewContext(width, height)
	dc.DrawImage(background(snap.GridSize, cellSize), 0, 0)

	for _, h := range snap.Hazards {
		if drawSprite(dc, sprites, string(h.Kind), h.Coord, cellSize) {
			continue
		}
		if h.Kind == structs.Fire {
			drawFire(dc, h.Coord, cellSize)
		} else {
			drawDot(dc, h.Coord, cellSize, poisonColor)
		}
	}
	for _, f := range snap.Food {
		if !drawSprite(dc, sprites, memimg.Food, f, cellSize) {
			drawDot(dc, f, cellSize, foodColor)
		}
	}
	// 从尾到头画，头在最上层
	for i := len(snap.Snake) - 1; i >= 0; i-- {
		name, color := memimg.Body, bodyColor
		if i == 0 {
			name, color = memimg.Head, headColor
		}
		if !drawSprite(dc, sprites, name, snap.Snake[i], cellSize) {
			drawSegment(dc, snap.Snake[i], cellSize, color)
		}
	}

	drawStatus(dc, snap, width, height)
	return dc.Image()
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

func background(gridSize, cellSize int) image.Image {
	cacheKey := fmt.Sprintf("%d_%d", gridSize, cellSize)
	if cached, ok := drawingCache.Load(cacheKey); ok {
		return cached.(image.Image)
	}
	size := gridSize * cellSize
	dc := gg.NewContext(size, size+StatusBar)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	renderGrid(dc, size, size, cellSize)
	img := dc.Image()
	drawingCache.Store(cacheKey, img)
	return img
}

func renderGrid(dc *gg.Context, width, height, blockSize int) {
	dc.SetRGB(0.9, 0.9, 0.9)
	dc.SetLineWidth(1)
	for x := 0; x <= width; x += blockSize {
		dc.DrawLine(float64(x), 0, float64(x), float64(height))
		dc.Stroke()
	}
	for y := 0; y <= height; y += blockSize {
		dc.DrawLine(0, float64(y), float64(width), float64(y))
		dc.Stroke()
	}
}

// drawSprite reports false when no sprite fits, including a cache scaled for another cell size.
func drawSprite(dc *gg.Context, sprites *memimg.Cache, name string, c structs.Coord, cellSize int) bool {
	if sprites == nil || sprites.CellSize() != cellSize {
		return false
	}
	img, found := sprites.Get(name)
	if !found {
		return false
	}
	dc.DrawImage(img, c.X*cellSize, c.Y*cellSize)
	return true
}

func drawSegment(dc *gg.Context, c structs.Coord, cellSize int, color string) {
	x, y, s := float64(c.X*cellSize), float64(c.Y*cellSize), float64(cellSize)
	dc.DrawRoundedRectangle(x, y, s, s, 2)
	dc.SetHexColor(color)
	dc.FillPreserve()
	dc.SetHexColor(borderColor)
	dc.SetLineWidth(1)
	dc.Stroke()
}

func drawDot(dc *gg.Context, c structs.Coord, cellSize int, color string) {
	r := float64(cellSize) / 2
	dc.DrawCircle(float64(c.X*cellSize)+r, float64(c.Y*cellSize)+r, r)
	dc.SetHexColor(color)
	dc.Fill()
}

func drawFire(dc *gg.Context, c structs.Coord, cellSize int) {
	x, y, s := float64(c.X*cellSize), float64(c.Y*cellSize), float64(cellSize)
	dc.MoveTo(x+s/2, y)
	dc.LineTo(x+s, y+s)
	dc.LineTo(x, y+s)
	dc.ClosePath()
	dc.SetHexColor(fireColor)
	dc.Fill()
	dc.DrawCircle(x+s/2, y+s*0.7, s/5)
	dc.SetHexColor(flameColor)
	dc.Fill()
}

func drawStatus(dc *gg.Context, snap structs.Snapshot, width, height int) {
	text := fmt.Sprintf("Score: %d", snap.Score)
	switch snap.Phase {
	case structs.PhaseOver:
		text += "  GAME OVER"
		if snap.Cause != structs.CauseNone {
			text += " (" + string(snap.Cause) + ")"
		}
	case structs.PhaseSetup:
		text = "Press start"
	}
	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(text, 4, float64(height)-float64(StatusBar)/2, 0, 0.5)
}
