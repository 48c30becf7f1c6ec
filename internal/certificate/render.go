package certificate

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"vedarc.org/internal/domain"
)

// Placeholders are the values substituted into a credential document.
type Placeholders struct {
	StudentName    string
	TrackName      string
	CompletionDate string
	ManagerName    string
	UserID         string
	CompanyName    string
	Code           string
}

// Renderer produces the document for a credential.
type Renderer interface {
	Render(typ domain.CertificateType, p Placeholders) ([]byte, error)
}

const (
	canvasWidth  = 2000
	canvasHeight = 1414
	borderWidth  = 36
	bodyChars    = 70
)

var (
	paperColor  = color.NRGBA{R: 253, G: 250, B: 240, A: 255}
	borderColor = color.NRGBA{R: 24, G: 54, B: 96, A: 255}
	inkColor    = color.NRGBA{R: 30, G: 30, B: 30, A: 255}
	accentColor = color.NRGBA{R: 24, G: 54, B: 96, A: 255}
)

// ImageRenderer draws credentials as PNG images, optionally on top of a
// background template.
type ImageRenderer struct {
	background image.Image
}

// NewImageRenderer loads the optional background at templatePath.
func NewImageRenderer(templatePath string) (*ImageRenderer, error) {
	r := &ImageRenderer{}
	if strings.TrimSpace(templatePath) == "" {
		return r, nil
	}
	bg, err := imaging.Open(templatePath)
	if err != nil {
		return nil, fmt.Errorf("certificate: open template: %w", err)
	}
	r.background = imaging.Fill(bg, canvasWidth, canvasHeight, imaging.Center, imaging.Lanczos)
	return r, nil
}

type line struct {
	text  string
	scale int
	ink   color.Color
	gap   int
}

// Render returns the PNG encoding of the credential.
func (r *ImageRenderer) Render(typ domain.CertificateType, p Placeholders) ([]byte, error) {
	if strings.TrimSpace(p.StudentName) == "" || strings.TrimSpace(p.TrackName) == "" {
		return nil, domain.Validationf("student_name and track_name are required to render a credential")
	}
	var lines []line
	switch typ {
	case domain.CertificateCompletion:
		lines = []line{
			{text: strings.ToUpper(p.CompanyName), scale: 4, ink: accentColor, gap: 60},
			{text: "CERTIFICATE OF COMPLETION", scale: 7, ink: accentColor, gap: 90},
			{text: "This is to certify that", scale: 3, ink: inkColor, gap: 50},
			{text: p.StudentName, scale: 8, ink: inkColor, gap: 60},
			{text: "has successfully completed the internship in", scale: 3, ink: inkColor, gap: 40},
			{text: p.TrackName, scale: 5, ink: accentColor, gap: 90},
			{text: "Completed on " + p.CompletionDate, scale: 3, ink: inkColor, gap: 40},
			{text: p.ManagerName + ", Program Manager", scale: 3, ink: inkColor, gap: 80},
			{text: "Student ID " + p.UserID + "   Certificate " + p.Code, scale: 2, ink: inkColor},
		}
	case domain.CertificateLOR:
		body := fmt.Sprintf("It is my pleasure to recommend %s, who completed the %s internship at %s on %s. "+
			"Throughout the program %s delivered weekly assignments and a final project that met our standards for quality and ownership. "+
			"I am confident %s will be a valuable addition to any team.",
			p.StudentName, p.TrackName, p.CompanyName, p.CompletionDate, p.StudentName, p.StudentName)
		lines = []line{
			{text: strings.ToUpper(p.CompanyName), scale: 4, ink: accentColor, gap: 60},
			{text: "LETTER OF RECOMMENDATION", scale: 7, ink: accentColor, gap: 100},
		}
		for _, l := range wrap(body, bodyChars) {
			lines = append(lines, line{text: l, scale: 3, ink: inkColor, gap: 20})
		}
		lines = append(lines,
			line{text: "", scale: 3, gap: 40},
			line{text: p.ManagerName + ", Program Manager, " + p.CompanyName, scale: 3, ink: inkColor, gap: 80},
			line{text: "Student ID " + p.UserID + "   Reference " + p.Code, scale: 2, ink: inkColor},
		)
	default:
		return nil, domain.Validationf("Invalid certificate type %q", typ)
	}

	canvas := r.canvas()
	total := 0
	for _, l := range lines {
		total += basicfont.Face7x13.Height*l.scale + l.gap
	}
	y := (canvasHeight - total) / 2
	for _, l := range lines {
		if l.text != "" {
			txt := textImage(l.text, l.ink, l.scale)
			x := (canvasWidth - txt.Bounds().Dx()) / 2
			canvas = imaging.Overlay(canvas, txt, image.Pt(x, y), 1.0)
		}
		y += basicfont.Face7x13.Height*l.scale + l.gap
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.PNG); err != nil {
		return nil, fmt.Errorf("certificate: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *ImageRenderer) canvas() *image.NRGBA {
	if r.background != nil {
		return imaging.Clone(r.background)
	}
	frame := imaging.New(canvasWidth, canvasHeight, borderColor)
	paper := imaging.New(canvasWidth-2*borderWidth, canvasHeight-2*borderWidth, paperColor)
	return imaging.Paste(frame, paper, image.Pt(borderWidth, borderWidth))
}

// textImage draws s with the fixed 7x13 face and scales it up without smoothing.
func textImage(s string, ink color.Color, scale int) *image.NRGBA {
	face := basicfont.Face7x13
	d := &font.Drawer{Face: face}
	w := d.MeasureString(s).Ceil()
	if w == 0 {
		w = 1
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, face.Height))
	d.Dst = img
	d.Src = image.NewUniform(ink)
	d.Dot = fixed.P(0, face.Ascent)
	d.DrawString(s)
	if scale <= 1 {
		return img
	}
	return imaging.Resize(img, w*scale, face.Height*scale, imaging.NearestNeighbor)
}

func wrap(text string, width int) []string {
	var out []string
	var cur strings.Builder
	for _, word := range strings.Fields(text) {
		if cur.Len() > 0 && cur.Len()+1+len(word) > width {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
