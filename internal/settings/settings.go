// Package settings reads and writes processing settings files
package settings

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"astro-postprocessor/internal/core"
)

// Extension is the usual settings file extension
const Extension = ".xml"

type document struct {
	XMLName        xml.Name          `xml:"imppg"`
	Normalization  normalizationNode `xml:"normalization"`
	LucyRichardson lucyNode          `xml:"lucy-richardson"`
	UnsharpMask    unsharpNode       `xml:"unsharp_mask"`
	ToneCurve      toneCurveNode     `xml:"tone_curve"`
}

type normalizationNode struct {
	Enabled bool    `xml:"enabled,attr"`
	Min     float32 `xml:"min,attr"`
	Max     float32 `xml:"max,attr"`
}

type lucyNode struct {
	Sigma      float32 `xml:"sigma,attr"`
	Iterations int     `xml:"iterations,attr"`
	Deringing  bool    `xml:"deringing,attr"`
}

type unsharpNode struct {
	Adaptive  bool    `xml:"adaptive,attr"`
	Sigma     float32 `xml:"sigma,attr"`
	AmountMin float32 `xml:"amount_min,attr"`
	AmountMax float32 `xml:"amount_max,attr"`
	Threshold float32 `xml:"amount_threshold,attr"`
	Width     float32 `xml:"amount_width,attr"`
}

type toneCurveNode struct {
	Smooth  bool    `xml:"smooth,attr"`
	IsGamma bool    `xml:"is_gamma,attr"`
	Gamma   float32 `xml:"gamma,attr"`
	// Points is "x;y;x;y;..."
	Points string `xml:",chardata"`
}

func toDocument(s core.ProcessingSettings) document {
	return document{
		Normalization: normalizationNode{
			Enabled: s.Normalization.Enabled,
			Min:     s.Normalization.Min,
			Max:     s.Normalization.Max,
		},
		LucyRichardson: lucyNode{
			Sigma:      s.LucyRichardson.Sigma,
			Iterations: s.LucyRichardson.Iterations,
			Deringing:  s.LucyRichardson.Deringing,
		},
		UnsharpMask: unsharpNode{
			Adaptive:  s.UnsharpMask.Adaptive,
			Sigma:     s.UnsharpMask.Sigma,
			AmountMin: s.UnsharpMask.AmountMin,
			AmountMax: s.UnsharpMask.AmountMax,
			Threshold: s.UnsharpMask.Threshold,
			Width:     s.UnsharpMask.Width,
		},
		ToneCurve: toneCurveNode{
			Smooth:  s.ToneCurve.Smooth,
			IsGamma: s.ToneCurve.GammaMode,
			Gamma:   s.ToneCurve.Gamma,
			Points:  formatPoints(s.ToneCurve.Points),
		},
	}
}

func (d document) settings() (core.ProcessingSettings, error) {
	points, err := parsePoints(d.ToneCurve.Points)
	if err != nil {
		return core.ProcessingSettings{}, err
	}
	s := core.ProcessingSettings{
		Normalization: core.Normalization{
			Enabled: d.Normalization.Enabled,
			Min:     d.Normalization.Min,
			Max:     d.Normalization.Max,
		},
		LucyRichardson: core.LucyRichardson{
			Sigma:      d.LucyRichardson.Sigma,
			Iterations: d.LucyRichardson.Iterations,
			Deringing:  d.LucyRichardson.Deringing,
		},
		UnsharpMask: core.UnsharpMask{
			Adaptive:  d.UnsharpMask.Adaptive,
			Sigma:     d.UnsharpMask.Sigma,
			AmountMin: d.UnsharpMask.AmountMin,
			AmountMax: d.UnsharpMask.AmountMax,
			Threshold: d.UnsharpMask.Threshold,
			Width:     d.UnsharpMask.Width,
		},
		ToneCurve: core.ToneCurve{
			Points:    points,
			Smooth:    d.ToneCurve.Smooth,
			GammaMode: d.ToneCurve.IsGamma,
			Gamma:     d.ToneCurve.Gamma,
		},
	}
	return s, nil
}

func formatPoints(points []core.CurvePoint) string {
	var b strings.Builder
	for _, p := range points {
		b.WriteString(strconv.FormatFloat(float64(p.X), 'g', -1, 32))
		b.WriteByte(';')
		b.WriteString(strconv.FormatFloat(float64(p.Y), 'g', -1, 32))
		b.WriteByte(';')
	}
	return b.String()
}

func parsePoints(s string) ([]core.CurvePoint, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ';' || r == ' ' || r == '\n' || r == '\t' || r == '\r'
	})
	if len(fields)%2 != 0 {
		return nil, fmt.Errorf("tone curve has an odd number of coordinates (%d)", len(fields))
	}
	points := make([]core.CurvePoint, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		x, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return nil, errors.Wrapf(err, "tone curve point %d", i/2)
		}
		y, err := strconv.ParseFloat(fields[i+1], 32)
		if err != nil {
			return nil, errors.Wrapf(err, "tone curve point %d", i/2)
		}
		points = append(points, core.CurvePoint{X: float32(x), Y: float32(y)})
	}
	return points, nil
}

// Decode reads settings; elements missing from the input keep their
// default values
func Decode(r io.Reader) (core.ProcessingSettings, error) {
	doc := toDocument(core.DefaultSettings())
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return core.ProcessingSettings{}, errors.Wrap(err, "malformed settings document")
	}
	s, err := doc.settings()
	if err != nil {
		return core.ProcessingSettings{}, err
	}
	if err := s.Validate(); err != nil {
		return core.ProcessingSettings{}, errors.Wrap(err, "invalid settings")
	}
	return s, nil
}

// Encode writes settings as an indented XML document
func Encode(w io.Writer, s core.ProcessingSettings) error {
	if err := s.Validate(); err != nil {
		return errors.Wrap(err, "refusing to save invalid settings")
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return errors.Wrap(err, "cannot write settings")
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(toDocument(s)); err != nil {
		return errors.Wrap(err, "cannot encode settings")
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// Load reads a settings file. Failures are reported as
// *core.SettingsLoadError.
func Load(path string) (core.ProcessingSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.ProcessingSettings{}, &core.SettingsLoadError{Path: path, Err: errors.Wrap(err, "cannot read file")}
	}
	s, err := Decode(bytes.NewReader(data))
	if err != nil {
		return core.ProcessingSettings{}, &core.SettingsLoadError{Path: path, Err: err}
	}
	return s, nil
}

// Save writes a settings file
func Save(path string, s core.ProcessingSettings) error {
	var buf bytes.Buffer
	if err := Encode(&buf, s); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, "cannot write %s", path)
	}
	return nil
}
