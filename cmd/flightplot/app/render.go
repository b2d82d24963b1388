package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"time"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/openrocketry/airbrake/internal/flightlog"
)

const (
	dpi            = 120.0
	fontSize       = 11.0
	tickMarkLength = 5
	pixelsPerXTick = 150
	pixelsPerYTick = 80

	// Default border sizes in pixels
	defaultTopBorder    = 40
	defaultLeftBorder   = 80
	defaultBottomBorder = 60
	defaultRightBorder  = 40
)

var (
	altitudeColor  = color.RGBA{R: 0, G: 90, B: 200, A: 255}
	velocityColor  = color.RGBA{R: 200, G: 40, B: 40, A: 255}
	extensionColor = color.RGBA{R: 30, G: 150, B: 60, A: 255}
	phaseColor     = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	gridColor      = color.RGBA{R: 225, G: 225, B: 225, A: 255}
)

// BorderConfig defines the sizes of white space around the chart area
type BorderConfig struct {
	Top    int // Space for the legend
	Left   int // Space for the altitude scale
	Bottom int // Space for the time scale and information bar
	Right  int // Right padding
}

// RenderConfig holds the configuration options for flight visualization
type RenderConfig struct {
	Width    int     // Chart area width in pixels
	Height   int     // Chart area height in pixels
	FontSize float64 // Font size in points
	Borders  BorderConfig
}

// FlightRenderer draws the altitude, velocity and airbrake extension traces
// of one recorded flight, with phase transitions marked on the time axis.
type FlightRenderer struct {
	config   RenderConfig
	context  *freetype.Context
	fontFace font.Face
}

func NewFlightRenderer(config RenderConfig) (*FlightRenderer, error) {
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.Borders.Top == 0 {
		config.Borders.Top = defaultTopBorder
	}
	if config.Borders.Left == 0 {
		config.Borders.Left = defaultLeftBorder
	}
	if config.Borders.Bottom == 0 {
		config.Borders.Bottom = defaultBottomBorder
	}
	if config.Borders.Right == 0 {
		config.Borders.Right = defaultRightBorder
	}

	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &FlightRenderer{
		config:  config,
		context: ctx,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (r *FlightRenderer) Close() error {
	if r.fontFace != nil {
		return r.fontFace.Close()
	}
	return nil
}

// chart maps flight time and values onto the pixel grid of the chart area.
type chart struct {
	area image.Rectangle

	timeMin, timeMax float64
	altMin, altMax   float64
	velMin, velMax   float64
}

func newChart(area image.Rectangle, records []*flightlog.Record) *chart {
	c := &chart{
		area:    area,
		timeMin: records[0].FlightTime,
		timeMax: records[len(records)-1].FlightTime,
		altMin:  math.Inf(1),
		altMax:  math.Inf(-1),
		velMin:  math.Inf(1),
		velMax:  math.Inf(-1),
	}

	for _, rec := range records {
		c.altMin = math.Min(c.altMin, rec.FilteredAltitude)
		c.altMax = math.Max(c.altMax, rec.FilteredAltitude)
		c.velMin = math.Min(c.velMin, rec.FilteredVelocity)
		c.velMax = math.Max(c.velMax, rec.FilteredVelocity)
	}

	// Degenerate ranges still need a non-zero span to map onto pixels
	if c.timeMax <= c.timeMin {
		c.timeMax = c.timeMin + 1
	}
	if c.altMax <= c.altMin {
		c.altMax = c.altMin + 1
	}
	if c.velMax <= c.velMin {
		c.velMax = c.velMin + 1
	}
	return c
}

func (c *chart) x(t float64) int {
	ratio := (t - c.timeMin) / (c.timeMax - c.timeMin)
	return c.area.Min.X + int(ratio*float64(c.area.Dx()-1))
}

func (c *chart) yAltitude(alt float64) int {
	ratio := (alt - c.altMin) / (c.altMax - c.altMin)
	return c.area.Max.Y - 1 - int(ratio*float64(c.area.Dy()-1))
}

func (c *chart) yVelocity(vel float64) int {
	ratio := (vel - c.velMin) / (c.velMax - c.velMin)
	return c.area.Max.Y - 1 - int(ratio*float64(c.area.Dy()-1))
}

func (c *chart) yExtension(ext float64) int {
	return c.area.Max.Y - 1 - int(clamp01(ext)*float64(c.area.Dy()-1))
}

// Render creates an annotated chart image of the flight
func (r *FlightRenderer) Render(flight *flightlog.Flight, records []*flightlog.Record) (*image.RGBA, error) {
	fullWidth := r.config.Width + r.config.Borders.Left + r.config.Borders.Right
	fullHeight := r.config.Height + r.config.Borders.Top + r.config.Borders.Bottom
	img := image.NewRGBA(image.Rect(0, 0, fullWidth, fullHeight))

	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	area := image.Rect(
		r.config.Borders.Left,
		r.config.Borders.Top,
		r.config.Borders.Left+r.config.Width,
		r.config.Borders.Top+r.config.Height,
	)
	c := newChart(area, records)

	r.context.SetClip(img.Bounds())
	r.context.SetDst(img)

	if err := r.drawAltitudeScale(img, c); err != nil {
		return nil, fmt.Errorf("drawing altitude scale: %w", err)
	}
	if err := r.drawTimeScale(img, c); err != nil {
		return nil, fmt.Errorf("drawing time scale: %w", err)
	}
	if err := r.drawPhaseMarkers(img, c, records); err != nil {
		return nil, fmt.Errorf("drawing phase markers: %w", err)
	}

	r.drawTraces(img, c, records)

	if err := r.drawLegend(img); err != nil {
		return nil, fmt.Errorf("drawing legend: %w", err)
	}
	if err := r.drawInfoBar(img, c, flight, records); err != nil {
		return nil, fmt.Errorf("drawing info bar: %w", err)
	}
	return img, nil
}

func (r *FlightRenderer) drawTraces(img *image.RGBA, c *chart, records []*flightlog.Record) {
	for i := 1; i < len(records); i++ {
		prev, cur := records[i-1], records[i]
		x0, x1 := c.x(prev.FlightTime), c.x(cur.FlightTime)

		drawLine(img, x0, c.yAltitude(prev.FilteredAltitude), x1, c.yAltitude(cur.FilteredAltitude), altitudeColor)
		drawLine(img, x0, c.yVelocity(prev.FilteredVelocity), x1, c.yVelocity(cur.FilteredVelocity), velocityColor)
		drawLine(img, x0, c.yExtension(prev.Extension), x1, c.yExtension(cur.Extension), extensionColor)
	}
}

func (r *FlightRenderer) drawAltitudeScale(img *image.RGBA, c *chart) error {
	step := niceStep(c.altMax-c.altMin, c.area.Dy()/pixelsPerYTick)
	start := math.Ceil(c.altMin/step) * step

	metrics := r.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	for alt := start; alt <= c.altMax; alt += step {
		y := c.yAltitude(alt)

		// Gridline across the chart, tick mark in the border
		for x := c.area.Min.X; x < c.area.Max.X; x++ {
			img.Set(x, y, gridColor)
		}
		for x := c.area.Min.X - tickMarkLength; x < c.area.Min.X; x++ {
			img.Set(x, y, color.Black)
		}

		label := humanSI(alt, "m")
		width := font.MeasureString(r.fontFace, label)
		pt := freetype.Pt(c.area.Min.X-tickMarkLength-width.Round()-4, y+fontHeight/2-metrics.Descent.Round())
		if _, err := r.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing altitude label: %w", err)
		}
	}
	return nil
}

func (r *FlightRenderer) drawTimeScale(img *image.RGBA, c *chart) error {
	step := niceStep(c.timeMax-c.timeMin, c.area.Dx()/pixelsPerXTick)
	start := math.Ceil(c.timeMin/step) * step

	metrics := r.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()
	textY := c.area.Max.Y + tickMarkLength + fontHeight

	for t := start; t <= c.timeMax; t += step {
		x := c.x(t)

		for y := c.area.Max.Y; y < c.area.Max.Y+tickMarkLength; y++ {
			img.Set(x, y, color.Black)
		}

		label := fmt.Sprintf("%0.1fs", t)
		width := font.MeasureString(r.fontFace, label)
		pt := freetype.Pt(x-width.Round()/2, textY)
		if _, err := r.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing time label: %w", err)
		}
	}
	return nil
}

func (r *FlightRenderer) drawPhaseMarkers(img *image.RGBA, c *chart, records []*flightlog.Record) error {
	metrics := r.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	for i := 1; i < len(records); i++ {
		if records[i].Phase == records[i-1].Phase {
			continue
		}
		x := c.x(records[i].FlightTime)

		// Dashed vertical marker at the transition
		for y := c.area.Min.Y; y < c.area.Max.Y; y++ {
			if (y/4)%2 == 0 {
				img.Set(x, y, phaseColor)
			}
		}

		pt := freetype.Pt(x+4, c.area.Min.Y+fontHeight)
		if _, err := r.context.DrawString(records[i].Phase, pt); err != nil {
			return fmt.Errorf("drawing phase label: %w", err)
		}
	}
	return nil
}

func (r *FlightRenderer) drawLegend(img *image.RGBA) error {
	metrics := r.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()
	y := (r.config.Borders.Top + fontHeight) / 2

	entries := []struct {
		label string
		color color.RGBA
	}{
		{"altitude", altitudeColor},
		{"velocity", velocityColor},
		{"extension", extensionColor},
	}

	x := r.config.Borders.Left
	for _, e := range entries {
		for dy := -4; dy < 4; dy++ {
			for dx := 0; dx < 12; dx++ {
				img.Set(x+dx, y+dy-fontHeight/4, e.color)
			}
		}

		pt := freetype.Pt(x+16, y)
		if _, err := r.context.DrawString(e.label, pt); err != nil {
			return fmt.Errorf("drawing legend label: %w", err)
		}
		x += 16 + font.MeasureString(r.fontFace, e.label).Round() + 24
	}
	return nil
}

func (r *FlightRenderer) drawInfoBar(img *image.RGBA, c *chart, flight *flightlog.Flight, records []*flightlog.Record) error {
	var maxExt float64
	for _, rec := range records {
		maxExt = math.Max(maxExt, rec.Extension)
	}

	info := fmt.Sprintf("Flight %d (%s); Start: %s; Apogee: %s; Max velocity: %s; Max extension: %0.0f%%; Duration: %0.1fs",
		flight.ID, flight.UUID,
		flight.StartTime.Local().Format(time.DateTime),
		humanSI(c.altMax, "m"),
		humanSI(c.velMax, "m/s"),
		maxExt*100,
		c.timeMax-c.timeMin)

	metrics := r.fontFace.Metrics()
	textY := img.Bounds().Max.Y - metrics.Descent.Round() - 6

	pt := freetype.Pt(r.config.Borders.Left, textY)
	if _, err := r.context.DrawString(info, pt); err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}
	return nil
}

// Helper functions

// drawLine draws a straight segment between two points
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx, dy := abs(x1-x0), abs(y1-y0)
	steps := max(dx, dy)
	if steps == 0 {
		img.Set(x0, y0, c)
		return
	}

	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := x0 + int(math.Round(t*float64(x1-x0)))
		y := y0 + int(math.Round(t*float64(y1-y0)))
		img.Set(x, y, c)
	}
}

// niceStep picks a 1/2/5-series step size producing about the desired number
// of ticks over the range
func niceStep(span float64, desiredTicks int) float64 {
	if desiredTicks < 2 {
		desiredTicks = 2
	}
	target := span / float64(desiredTicks)

	magnitude := math.Pow(10, math.Floor(math.Log10(target)))
	for _, m := range []float64{1, 2, 5, 10} {
		if step := m * magnitude; step >= target {
			return step
		}
	}
	return 10 * magnitude
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
