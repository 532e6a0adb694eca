// Package certificate renders the completion certificate as a PNG image.
package certificate

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Canvas size in pixels.
const (
	Width  = 1000
	Height = 700
)

// DateLayout is the default layout of the issue date ("October 14, 2026").
const DateLayout = "January 2, 2006"

var (
	white       = color.RGBA{0xff, 0xff, 0xff, 0xff}
	black       = color.RGBA{0x00, 0x00, 0x00, 0xff}
	purple      = color.RGBA{0xc0, 0x84, 0xfc, 0xff}
	lightPurple = color.RGBA{0xf0, 0xab, 0xfc, 0xff}
	darkPurple  = color.RGBA{0x58, 0x1c, 0x87, 0xff}
)

// Certificate holds what is printed on the image.
type Certificate struct {
	Username string
	Course   string
	Level    string
	Score    int
	IssuedAt time.Time
	// Labels overrides the English wording. Zero fields fall back to English.
	Labels Labels
}

// Labels is the wording of the certificate. Fields ending in Format are
// fmt formats: CourseFormat takes course and level, ScoreFormat the score,
// IssuedFormat the formatted date.
type Labels struct {
	Title        string
	Certify      string
	Completed    string
	CourseFormat string
	ScoreFormat  string
	IssuedFormat string
	DateLayout   string
}

// English returns the default wording.
func English() Labels {
	return Labels{
		Title:        "Certificate of Completion",
		Certify:      "This is to certify that",
		Completed:    "has successfully completed the course",
		CourseFormat: "%s - %s level",
		ScoreFormat:  "with a score of %d%%",
		IssuedFormat: "Issued on %s",
		DateLayout:   DateLayout,
	}
}

func (l Labels) withDefaults() Labels {
	def := English()
	pick := func(v, d string) string {
		if v == "" {
			return d
		}
		return v
	}
	return Labels{
		Title:        pick(l.Title, def.Title),
		Certify:      pick(l.Certify, def.Certify),
		Completed:    pick(l.Completed, def.Completed),
		CourseFormat: pick(l.CourseFormat, def.CourseFormat),
		ScoreFormat:  pick(l.ScoreFormat, def.ScoreFormat),
		IssuedFormat: pick(l.IssuedFormat, def.IssuedFormat),
		DateLayout:   pick(l.DateLayout, def.DateLayout),
	}
}

type line struct {
	text     string
	size     float64
	bold     bool
	color    color.Color
	baseline int
}

// Lines returns the text printed on the certificate, top to bottom.
func (c Certificate) Lines() []string {
	ls := c.layout()
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = l.text
	}
	return out
}

func (c Certificate) layout() []line {
	l := c.Labels.withDefaults()
	issued := c.IssuedAt
	if issued.IsZero() {
		issued = time.Now()
	}
	return []line{
		{l.Title, 50, true, darkPurple, 150},
		{l.Certify, 30, false, black, 250},
		{c.Username, 40, true, black, 320},
		{l.Completed, 30, false, black, 380},
		{fmt.Sprintf(l.CourseFormat, c.Course, c.Level), 35, true, black, 440},
		{fmt.Sprintf(l.ScoreFormat, c.Score), 30, false, black, 500},
		{fmt.Sprintf(l.IssuedFormat, issued.Format(l.DateLayout)), 25, false, black, 580},
	}
}

var (
	fontsOnce sync.Once
	fontsErr  error
	regular   *opentype.Font
	bold      *opentype.Font
)

func loadFonts() error {
	fontsOnce.Do(func() {
		if regular, fontsErr = opentype.Parse(goregular.TTF); fontsErr != nil {
			return
		}
		bold, fontsErr = opentype.Parse(gobold.TTF)
	})
	return fontsErr
}

// Draw paints the certificate onto a new image.
func Draw(c Certificate) (*image.RGBA, error) {
	if err := loadFonts(); err != nil {
		return nil, fmt.Errorf("load fonts: %w", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(white), image.Point{}, draw.Src)
	strokeRect(img, 20, 20, 960, 660, 20, purple)
	strokeRect(img, 40, 40, 920, 620, 2, lightPurple)

	for _, l := range c.layout() {
		f := regular
		if l.bold {
			f = bold
		}
		face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: l.size, DPI: 72, Hinting: font.HintingFull})
		if err != nil {
			return nil, fmt.Errorf("create font face: %w", err)
		}
		drawCentered(img, face, l.text, l.color, Width/2, l.baseline)
		face.Close()
	}
	return img, nil
}

// Render writes the certificate to w as PNG.
func Render(w io.Writer, c Certificate) error {
	img, err := Draw(c)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// Filename returns the download name "{username}-{course}-certificate.png".
func Filename(username, course string) string {
	clean := strings.NewReplacer("/", "_", `\`, "_", "\x00", "")
	return clean.Replace(username) + "-" + clean.Replace(course) + "-certificate.png"
}

func drawCentered(dst draw.Image, face font.Face, text string, c color.Color, cx, baseline int) {
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(c), Face: face}
	width := d.MeasureString(text)
	d.Dot = fixed.Point26_6{
		X: fixed.I(cx) - width/2,
		Y: fixed.I(baseline),
	}
	d.DrawString(text)
}

// strokeRect outlines the rectangle with a line of width lw centered on its edges.
func strokeRect(dst draw.Image, x, y, w, h, lw int, c color.Color) {
	src := image.NewUniform(c)
	half := lw / 2
	outer := image.Rect(x-half, y-half, x+w+lw-half, y+h+lw-half)
	edges := []image.Rectangle{
		image.Rect(outer.Min.X, outer.Min.Y, outer.Max.X, outer.Min.Y+lw), // top
		image.Rect(outer.Min.X, outer.Max.Y-lw, outer.Max.X, outer.Max.Y), // bottom
		image.Rect(outer.Min.X, outer.Min.Y, outer.Min.X+lw, outer.Max.Y), // left
		image.Rect(outer.Max.X-lw, outer.Min.Y, outer.Max.X, outer.Max.Y), // right
	}
	for _, e := range edges {
		draw.Draw(dst, e, src, image.Point{}, draw.Src)
	}
}
