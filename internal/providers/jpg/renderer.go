package jpg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
	"math"
	"os"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/inconsolata"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"

	"github.com/entrada-events/entrada/internal/providers/pdf"
)

const (
	canvasWidth  = 1200
	canvasHeight = 850
)

// Renderer rasterizes a certificate onto a background image, or onto a
// plain canvas when no background is configured.
type Renderer struct{}

func New() *Renderer { return &Renderer{} }

// Box places one line of text at a fixed position. Size is the glyph
// height in pixels (0 keeps the face's native size), Color a #rrggbb hex
// string and Rotation degrees clockwise about the anchor point.
type Box struct {
	Text     string
	X        int
	Y        int
	Size     int
	Font     string
	Color    string
	Align    string
	Rotation float64
}

// Render draws the certificate. backgroundPath may be empty.
func (r *Renderer) Render(ctx context.Context, data pdf.CertificateData, backgroundPath string, boxes []Box) ([]byte, error) {
	canvas, err := newCanvas(backgroundPath)
	if err != nil {
		return nil, err
	}

	if len(boxes) == 0 {
		boxes = defaultLayout(data, canvas.Bounds())
	}
	for _, box := range boxes {
		drawText(canvas, box)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func newCanvas(backgroundPath string) (*image.RGBA, error) {
	if backgroundPath != "" {
		f, err := os.Open(backgroundPath)
		if err != nil {
			return nil, fmt.Errorf("open background: %w", err)
		}
		defer f.Close()
		src, _, err := image.Decode(f)
		if err != nil {
			return nil, fmt.Errorf("decode background: %w", err)
		}
		canvas := image.NewRGBA(src.Bounds())
		draw.Draw(canvas, canvas.Bounds(), src, image.Point{}, draw.Src)
		return canvas, nil
	}

	canvas := image.NewRGBA(image.Rect(0, 0, canvasWidth, canvasHeight))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return canvas, nil
}

func defaultLayout(data pdf.CertificateData, bounds image.Rectangle) []Box {
	centerX := bounds.Dx() / 2
	return []Box{
		{Text: "Certificate of Participation", X: centerX, Y: 180, Size: 32, Align: "center"},
		{Text: data.RecipientName, X: centerX, Y: 320, Size: 40, Align: "center"},
		{Text: data.EventName, X: centerX, Y: 420, Size: 26, Align: "center"},
		{Text: data.EventDate, X: centerX, Y: 480, Size: 20, Align: "center"},
		{Text: data.CertificateNumber, X: bounds.Dx() - 80, Y: bounds.Dy() - 60, Align: "right"},
	}
}

func drawText(canvas *image.RGBA, box Box) {
	face := faceFor(box.Font)
	src := image.NewUniform(parseColor(box.Color))

	scale := 1.0
	if box.Size > 0 {
		scale = float64(box.Size) / float64(face.Metrics().Height.Ceil())
	}

	// Native size with no rotation draws straight onto the canvas.
	if box.Rotation == 0 && scale == 1 {
		width := font.MeasureString(face, box.Text).Ceil()
		x := box.X
		switch box.Align {
		case "center":
			x -= width / 2
		case "right":
			x -= width
		}
		drawer := &font.Drawer{Dst: canvas, Src: src, Face: face, Dot: fixed.P(x, box.Y)}
		drawer.DrawString(box.Text)
		return
	}

	tile, ascent := renderTile(face, src, box.Text)

	width := float64(tile.Bounds().Dx()) * scale
	ox := 0.0
	switch box.Align {
	case "center":
		ox = -width / 2
	case "right":
		ox = -width
	}
	oy := -float64(ascent) * scale

	theta := box.Rotation * math.Pi / 180
	sin, cos := math.Sin(theta), math.Cos(theta)
	m := f64.Aff3{
		scale * cos, -scale * sin, float64(box.X) + cos*ox - sin*oy,
		scale * sin, scale * cos, float64(box.Y) + sin*ox + cos*oy,
	}
	draw.BiLinear.Transform(canvas, m, tile, tile.Bounds(), draw.Over, nil)
}

// renderTile rasterizes the text at the face's native size; the caller
// scales and rotates the tile onto the canvas.
func renderTile(face font.Face, src image.Image, text string) (*image.RGBA, int) {
	width := font.MeasureString(face, text).Ceil()
	if width < 1 {
		width = 1
	}
	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()
	height := metrics.Height.Ceil()

	tile := image.NewRGBA(image.Rect(0, 0, width, height))
	drawer := &font.Drawer{Dst: tile, Src: src, Face: face, Dot: fixed.P(0, ascent)}
	drawer.DrawString(text)
	return tile, ascent
}

func faceFor(name string) font.Face {
	switch strings.ToLower(name) {
	case "mono", "inconsolata":
		return inconsolata.Regular8x16
	case "mono-bold", "inconsolata-bold", "bold":
		return inconsolata.Bold8x16
	default:
		return basicfont.Face7x13
	}
}

func parseColor(hex string) color.Color {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.Black
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.Black
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xFF}
}
