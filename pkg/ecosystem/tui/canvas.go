package tui

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/overlay/pkg/kernel/animate"
	"github.com/ormasoftchile/overlay/pkg/kernel/registry"
	"github.com/ormasoftchile/overlay/pkg/kernel/schema"
)

type cellClass uint8

const (
	cellPlain cellClass = iota
	cellComponent
	cellOverlay
	cellRipple
	cellCursor
)

var classStyles = map[cellClass]lipgloss.Style{
	cellComponent: componentStyle,
	cellOverlay:   overlayStyle,
	cellRipple:    rippleStyle,
	cellCursor:    cursorStyle,
}

// canvas is a character grid in image percent space: (0,0) is the top
// left of the reference image and (100,100) its bottom right.
type canvas struct {
	w, h  int
	runes [][]rune // 0 marks the second column of a wide rune
	class [][]cellClass
}

func newCanvas(w, h int) *canvas {
	c := &canvas{w: w, h: h}
	c.runes = make([][]rune, h)
	c.class = make([][]cellClass, h)
	for y := range c.runes {
		c.runes[y] = []rune(strings.Repeat(" ", w))
		c.class[y] = make([]cellClass, w)
	}
	return c
}

func (c *canvas) project(p schema.Point) (int, int) {
	col := int(math.Round(p.X / 100 * float64(c.w-1)))
	row := int(math.Round(p.Y / 100 * float64(c.h-1)))
	return clamp(col, 0, c.w-1), clamp(row, 0, c.h-1)
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

func (c *canvas) set(col, row int, r rune, cl cellClass) {
	if col < 0 || col >= c.w || row < 0 || row >= c.h {
		return
	}
	c.runes[row][col] = r
	c.class[row][col] = cl
}

// text writes s from col, clipped at the right edge.
func (c *canvas) text(col, row int, s string, cl cellClass) {
	for _, r := range s {
		rw := runewidth.RuneWidth(r)
		if rw == 0 {
			continue
		}
		if col+rw > c.w {
			return
		}
		c.set(col, row, r, cl)
		if rw == 2 {
			c.set(col+1, row, 0, cl)
		}
		col += rw
	}
}

// box outlines rect and writes label inside, truncated to fit.
func (c *canvas) box(rect schema.Rect, label string, cl cellClass) {
	x0, y0 := c.project(schema.Point{X: rect.X, Y: rect.Y})
	x1, y1 := c.project(schema.Point{X: rect.X + rect.Width, Y: rect.Y + rect.Height})
	if x1-x0 < 2 || y1-y0 < 1 {
		c.set(x0, y0, '■', cl)
		return
	}
	for x := x0 + 1; x < x1; x++ {
		c.set(x, y0, '─', cl)
		c.set(x, y1, '─', cl)
	}
	for y := y0 + 1; y < y1; y++ {
		c.set(x0, y, '│', cl)
		c.set(x1, y, '│', cl)
	}
	c.set(x0, y0, '┌', cl)
	c.set(x1, y0, '┐', cl)
	c.set(x0, y1, '└', cl)
	c.set(x1, y1, '┘', cl)

	inner := x1 - x0 - 1
	if inner <= 0 || label == "" {
		return
	}
	row := y0 + (y1-y0)/2
	c.text(x0+1, row, runewidth.Truncate(label, inner, "…"), cl)
}

func (c *canvas) render() string {
	var b strings.Builder
	for y := 0; y < c.h; y++ {
		var run strings.Builder
		cur := c.class[y][0]
		flush := func() {
			if style, ok := classStyles[cur]; ok {
				b.WriteString(style.Render(run.String()))
			} else {
				b.WriteString(run.String())
			}
			run.Reset()
		}
		for x := 0; x < c.w; x++ {
			if c.class[y][x] != cur {
				flush()
				cur = c.class[y][x]
			}
			if r := c.runes[y][x]; r != 0 {
				run.WriteRune(r)
			}
		}
		flush()
		if y < c.h-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Render draws f as a w×h schematic: the components of the shown image,
// the overlays, ripples and the cursor.
func Render(f Frame, reg *registry.Registry, w, h int) string {
	if w < 4 || h < 2 {
		return ""
	}
	c := newCanvas(w, h)
	if f.Shown && reg != nil {
		for _, comp := range reg.Components(f.Environment) {
			if comp.ImageIndex != f.Image && !comp.Agnostic() {
				continue
			}
			c.box(comp.Rect, comp.Label, cellComponent)
		}
	}
	for _, o := range f.Overlays {
		drawOverlay(c, o)
	}
	for _, p := range f.Ripples {
		col, row := c.project(p)
		for _, d := range [][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
			c.set(col+d[0], row+d[1], []rune(GlyphRipple)[0], cellRipple)
		}
	}
	col, row := c.project(f.Cursor)
	glyph := GlyphCursor
	if f.Pressed {
		glyph = GlyphPressed
	}
	c.text(col, row, glyph, cellCursor)
	return c.render()
}

func drawOverlay(c *canvas, o animate.Overlay) {
	c.box(o.Rect, o.Label, cellOverlay)
	x0, y0 := c.project(schema.Point{X: o.Rect.X, Y: o.Rect.Y})
	_, y1 := c.project(schema.Point{X: o.Rect.X, Y: o.Rect.Y + o.Rect.Height})
	switch o.Kind {
	case animate.OverlayTooltip:
		if o.Text != "" {
			c.text(x0, y1+1, "["+o.Text+"]", cellOverlay)
		}
	case animate.OverlayArrow:
		cx, _ := c.project(o.Rect.Center())
		c.set(cx, y0-1, '▼', cellOverlay)
		if o.Text != "" {
			c.text(cx+2, y0-1, o.Text, cellOverlay)
		}
	}
}
