package canvas

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"sync"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/Brownie44l1/eeg-api/internal/config"
	"github.com/Brownie44l1/eeg-api/internal/errors"
	"github.com/Brownie44l1/eeg-api/internal/signal"
)

type Format string

const (
	PNG Format = "png"
	SVG Format = "svg"
)

var (
	strokeColor = drawing.Color{R: 52, G: 152, B: 219, A: 255}
	glowColor   = drawing.Color{R: 52, G: 152, B: 219, A: 77}
)

// Renderer draws a buffer as a line plot, x evenly spaced across the width and
// value 1 at the top of the padded plot area.
type Renderer struct {
	yPadding int
}

func NewRenderer(cfg config.RenderConfig) *Renderer {
	return &Renderer{yPadding: cfg.YPadding}
}

// Render clears and redraws the whole canvas. A nil buffer draws an empty canvas.
func (r *Renderer) Render(w io.Writer, buf *signal.Buffer, width, height int, format Format) error {
	if width <= 0 || height <= 0 {
		return errors.Wrapf(errors.ErrInvalidRequest, "canvas size %dx%d", width, height)
	}
	if 2*r.yPadding >= height {
		return errors.Wrapf(errors.ErrInvalidRequest, "canvas height %d too small for padding %d", height, r.yPadding)
	}
	if buf == nil || buf.Len() < 2 {
		return blank(w, width, height, format)
	}

	size := buf.Len()
	xStep := float64(width) / float64(size)
	xs := make([]float64, size)
	for i := range xs {
		xs[i] = float64(i) * xStep
	}
	ys := buf.Values()

	transparent := chart.Style{FillColor: drawing.ColorTransparent, StrokeColor: drawing.ColorTransparent}
	ch := chart.Chart{
		Width:  width,
		Height: height,
		Background: chart.Style{
			FillColor: drawing.ColorTransparent,
			Padding:   chart.Box{Top: r.yPadding, Bottom: r.yPadding, Left: 0, Right: 0, IsSet: true},
		},
		Canvas: transparent,
		XAxis: chart.XAxis{
			Style: chart.Hidden(),
			Range: &chart.ContinuousRange{Min: 0, Max: float64(width)},
		},
		YAxis: chart.YAxis{
			Style: chart.Hidden(),
			Range: &chart.ContinuousRange{Min: 0, Max: 1},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "signal",
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeColor: strokeColor,
					StrokeWidth: 3,
				},
			},
			chart.ContinuousSeries{
				Name:    "glow",
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeColor: glowColor,
					StrokeWidth: 9,
				},
			},
		},
	}

	var provider chart.RendererProvider = chart.PNG
	if format == SVG {
		provider = chart.SVG
	}
	if err := ch.Render(provider, w); err != nil {
		return errors.Wrap(err, "failed to render waveform")
	}
	return nil
}

// blank writes a transparent canvas; go-chart refuses to render without series.
func blank(w io.Writer, width, height int, format Format) error {
	if format == SVG {
		_, err := fmt.Fprintf(w, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d"></svg>`, width, height)
		return err
	}
	return png.Encode(w, image.NewNRGBA(image.Rect(0, 0, width, height)))
}

type cacheKey struct {
	generation uint64
	width      int
	height     int
	format     Format
}

// Cache keeps the last rendering per format and redraws only when the buffer
// generation or the canvas size changes.
type Cache struct {
	renderer *Renderer

	mu      sync.Mutex
	entries map[Format]cacheEntry
	renders int
}

type cacheEntry struct {
	key  cacheKey
	data []byte
}

func NewCache(r *Renderer) *Cache {
	return &Cache{renderer: r, entries: make(map[Format]cacheEntry)}
}

// Get returns the rendering of buf at the given generation and size.
func (c *Cache) Get(generation uint64, buf *signal.Buffer, width, height int, format Format) ([]byte, error) {
	key := cacheKey{generation: generation, width: width, height: height, format: format}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[format]; ok && e.key == key {
		return e.data, nil
	}

	var out bytes.Buffer
	if err := c.renderer.Render(&out, buf, width, height, format); err != nil {
		return nil, err
	}
	c.renders++
	c.entries[format] = cacheEntry{key: key, data: out.Bytes()}
	return out.Bytes(), nil
}

// Renders counts full redraws, for diagnostics.
func (c *Cache) Renders() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.renders
}
