package game

import (
	"encoding/binary"
	"math"

	"github.com/ItsNotGoodName/wl-handmade/internal/frame"
	"github.com/ItsNotGoodName/wl-handmade/internal/input"
)

const (
	scrollStep = 25
	pitchLimit = 250
	baseToneHz = 500
	amplitude  = 0.7
)

// Game must only be used from one goroutine.
type Game struct {
	xOffset     uint8
	yOffset     uint8
	pitchOffset int
	sampleIndex float64
}

func New() *Game {
	return &Game{}
}

// PitchOffset returns the tone offset from the base frequency in hertz.
func (g *Game) PitchOffset() int {
	return g.pitchOffset
}

func (g *Game) bendPitch(delta int) {
	g.pitchOffset = min(max(g.pitchOffset+delta, -pitchLimit), pitchLimit)
}

// UpdateAndRender advances one step from keys and draws the gradient.
func (g *Game) UpdateAndRender(img frame.Image, keys input.KeyState) {
	if keys.Left {
		g.xOffset -= scrollStep
		g.bendPitch(-1)
	} else if keys.Right {
		g.xOffset += scrollStep
		g.bendPitch(1)
	}

	if keys.Up {
		g.yOffset -= scrollStep
		g.bendPitch(1)
	} else if keys.Down {
		g.yOffset += scrollStep
		g.bendPitch(-1)
	}

	g.Render(img)
}

// Render draws blue along x and green along y in little-endian XRGB.
func (g *Game) Render(img frame.Image) {
	if img.Width == 0 {
		return
	}
	bpp := img.Stride / img.Width
	for y := 0; y < img.Height; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < img.Width; x++ {
			p := row[x*bpp : x*bpp+bpp]
			p[0] = g.xOffset + uint8(x)
			p[1] = g.yOffset + uint8(y)
			p[2] = 0
			if bpp > 3 {
				p[3] = 0xff
			}
		}
	}
}

// PlaySound fills buf with the tone as interleaved float32 samples.
func (g *Game) PlaySound(buf []byte, sampleRate, channels int) {
	toneHz := float64(baseToneHz + g.pitchOffset)
	k := 2 * math.Pi * toneHz
	rate := float64(sampleRate)

	for i := 0; i+channels*4 <= len(buf); {
		bits := math.Float32bits(float32(amplitude * math.Sin(k*g.sampleIndex/rate)))
		for c := 0; c < channels; c++ {
			binary.NativeEndian.PutUint32(buf[i:], bits)
			i += 4
		}
		g.sampleIndex++
	}
}
