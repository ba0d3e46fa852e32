package tui

import (
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"
)

const sampleRate = beep.SampleRate(44100)

// Beeper plays short sine tones through the speaker.
type Beeper struct{}

// NewBeeper opens the speaker. Callers should run silent if it fails.
func NewBeeper() (*Beeper, error) {
	if err := speaker.Init(sampleRate, sampleRate.N(time.Second/10)); err != nil {
		return nil, err
	}
	return &Beeper{}, nil
}

func (b *Beeper) Eat() {
	b.tone(880, 60*time.Millisecond)
}

func (b *Beeper) Over() {
	b.tone(220, 400*time.Millisecond)
}

func (b *Beeper) tone(freq float64, d time.Duration) {
	sine, err := generators.SineTone(sampleRate, freq)
	if err != nil {
		return
	}
	speaker.Play(beep.Take(sampleRate.N(d), sine))
}
