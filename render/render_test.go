package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/hoshinonyaruko/snake-torus/memimg"
	"github.com/hoshinonyaruko/snake-torus/structs"
)

func rgba(hex uint32) color.RGBA {
	return color.RGBA{R: uint8(hex >> 16), G: uint8(hex >> 8), B: uint8(hex), A: 255}
}

func pixelAt(img image.Image, x, y int) color.RGBA {
	r, g, b, a := img.At(x, y).RGBA()
	return color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8)}
}

func testSnapshot() structs.Snapshot {
	return structs.Snapshot{
		Phase:    structs.PhaseActive,
		GridSize: 10,
		Snake:    []structs.Coord{{X: 2, Y: 2}, {X: 1, Y: 2}},
		Food:     []structs.Coord{{X: 5, Y: 5}},
		Hazards:  []structs.Hazard{{Coord: structs.Coord{X: 7, Y: 1}, Kind: structs.Poison}},
		Score:    4,
	}
}

func TestBoardDrawsCells(t *testing.T) {
	img := Board(testSnapshot(), 20, nil)
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 200+StatusBar {
		t.Fatalf("image size = %dx%d, want 200x%d", b.Dx(), b.Dy(), 200+StatusBar)
	}

	checks := []struct {
		name string
		x, y int
		want color.RGBA
	}{
		{"head", 2*20 + 10, 2*20 + 10, rgba(0x4CAF50)},
		{"body", 1*20 + 10, 2*20 + 10, rgba(0x81C784)},
		{"food", 5*20 + 10, 5*20 + 10, rgba(0xFF5252)},
		{"poison", 7*20 + 10, 1*20 + 10, rgba(0x800080)},
		{"empty", 9*20 + 10, 9*20 + 10, rgba(0xFFFFFF)},
	}
	for _, c := range checks {
		if got := pixelAt(img, c.x, c.y); got != c.want {
			t.Fatalf("%s pixel = %v, want %v", c.name, got, c.want)
		}
	}
}

func writeSprite(t *testing.T, dir, name string) {
	t.Helper()
	sprite := image.NewRGBA(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			sprite.Set(x, y, color.RGBA{B: 255, A: 255})
		}
	}
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, sprite); err != nil {
		t.Fatal(err)
	}
	f.Close()
}

func TestBoardUsesSprites(t *testing.T) {
	dir := t.TempDir()
	writeSprite(t, dir, "food.png")

	sprites := memimg.NewCache(20)
	if err := sprites.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	img := Board(testSnapshot(), 20, sprites)
	got := pixelAt(img, 5*20+10, 5*20+10)
	if got.R > 2 || got.G > 2 || got.B < 250 {
		t.Fatalf("food pixel = %v, want the blue sprite", got)
	}
	// no head sprite: shape fallback
	if got := pixelAt(img, 2*20+10, 2*20+10); got != rgba(0x4CAF50) {
		t.Fatalf("head pixel = %v", got)
	}
}

func TestBoardSkipsSpritesOfOtherCellSize(t *testing.T) {
	dir := t.TempDir()
	writeSprite(t, dir, "food.png")

	sprites := memimg.NewCache(20)
	if err := sprites.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	img := Board(testSnapshot(), 8, sprites)
	if got := pixelAt(img, 5*8+4, 5*8+4); got != rgba(0xFF5252) {
		t.Fatalf("food pixel = %v, want the drawn dot", got)
	}
}

func TestEncodePNG(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodePNG(&buf, Board(testSnapshot(), 8, nil)); err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 80 {
		t.Fatalf("width = %d, want 80", img.Bounds().Dx())
	}
}
