// Package mapgen renders moderated reports as markers and polygons on a
// static map and publishes the image to object storage.
package mapgen

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"image/png"
	"strconv"
	"strings"

	sm "github.com/flopp/go-staticmaps"
	"github.com/fogleman/gg"
	"github.com/golang/geo/s2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"reportbot/internal/notion"
)

const (
	mapWidth   = 1280
	mapHeight  = 960
	markerSize = 16
	edgeWeight = 2

	legendPad        = 8.0
	legendLineHeight = 16.0
)

// Rendered statuses with their marker glyph and marker/polygon colors.
var statusStyles = []struct {
	Status string
	Label  string
	Fill   color.Color
	Edge   color.Color
}{
	{"Clean", "C", color.RGBA{R: 0x2e, G: 0x8b, B: 0x2e, A: 0xff}, color.RGBA{R: 0x00, G: 0x64, B: 0x00, A: 0xff}},
	{"Dirty", "!", color.RGBA{R: 0xd0, G: 0x2b, B: 0x2b, A: 0xff}, color.RGBA{R: 0x8b, G: 0x00, B: 0x00, A: 0xff}},
}

type Source interface {
	ReportsByStatus(ctx context.Context, databaseID, status string) ([]notion.ReportPage, error)
}

type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Job is the one-shot map rendering batch.
type Job struct {
	src         Source
	store       ObjectStore
	databaseID  string
	detailsHost string
	outputKey   string
	log         *zap.Logger
}

func NewJob(src Source, store ObjectStore, databaseID, detailsHost, outputKey string, log *zap.Logger) *Job {
	return &Job{
		src:         src,
		store:       store,
		databaseID:  databaseID,
		detailsHost: detailsHost,
		outputKey:   outputKey,
		log:         log.Named("mapgen"),
	}
}

// Run queries each rendered status, draws its markers and polygons with a
// per-marker attribution legend, and uploads the resulting image.
func (j *Job) Run(ctx context.Context) error {
	mapCtx := sm.NewContext()
	mapCtx.SetSize(mapWidth, mapHeight)

	objects := 0
	var legend []string
	for _, style := range statusStyles {
		pages, err := j.src.ReportsByStatus(ctx, j.databaseID, style.Status)
		if err != nil {
			return fmt.Errorf("mapgen: %w", err)
		}

		for _, page := range pages {
			if page.Marker != "" {
				pos, err := ParseMarker(page.Marker)
				if err != nil {
					j.log.Warn("bad marker", zap.String("page", page.ID), zap.Error(err))
					continue
				}
				marker := sm.NewMarker(pos, style.Fill, markerSize)
				marker.Label = style.Label
				marker.LabelColor = color.White
				mapCtx.AddObject(marker)
				legend = append(legend, infoText(page, style.Label, j.detailsHost))
				objects++
			}

			if page.Polygon != "" {
				positions, err := ParsePolygon(page.Polygon)
				if err != nil {
					j.log.Warn("bad polygon", zap.String("page", page.ID), zap.Error(err))
					continue
				}
				mapCtx.AddObject(sm.NewArea(positions, style.Edge, style.Fill, edgeWeight))
				objects++
			}
		}
		j.log.Info("status rendered", zap.String("status", style.Status), zap.Int("pages", len(pages)))
	}

	if objects == 0 {
		j.log.Warn("no located reports, skipping render")
		return nil
	}

	img, err := mapCtx.Render()
	if err != nil {
		return fmt.Errorf("mapgen: render: %w", err)
	}

	dc := gg.NewContextForImage(img)
	drawLegend(dc, legend)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return fmt.Errorf("mapgen: encode: %w", err)
	}

	url, err := j.store.Put(ctx, j.outputKey, buf.Bytes(), "image/png")
	if err != nil {
		return fmt.Errorf("mapgen: upload: %w", err)
	}

	j.log.Info("map published", zap.String("url", url), zap.Int("objects", objects))
	return nil
}

// infoText is one legend line for a marker: status glyph, report title,
// reporter attribution, and the public details link when a host is
// configured.
func infoText(page notion.ReportPage, label, host string) string {
	line := label + " " + page.Title
	if page.ReportedBy != "" {
		line += ", reported by " + page.ReportedBy
	}
	if host != "" {
		line += " " + detailsURL(host, page.ID)
	}
	return line
}

// detailsURL builds the public report page link. Page ids are linked with
// their dashes stripped.
func detailsURL(host, pageID string) string {
	return "https://" + host + "/" + strings.ReplaceAll(pageID, "-", "")
}

// drawLegend paints the attribution lines onto a panel in the bottom-left
// corner of the rendered map.
func drawLegend(dc *gg.Context, lines []string) {
	if len(lines) == 0 {
		return
	}

	widest := 0.0
	for _, line := range lines {
		if w, _ := dc.MeasureString(line); w > widest {
			widest = w
		}
	}

	height := float64(len(lines))*legendLineHeight + 2*legendPad
	top := float64(dc.Height()) - height

	dc.SetRGBA(1, 1, 1, 0.85)
	dc.DrawRectangle(0, top, widest+2*legendPad, height)
	dc.Fill()

	dc.SetRGB(0, 0, 0)
	for i, line := range lines {
		dc.DrawString(line, legendPad, top+legendPad+float64(i+1)*legendLineHeight-4)
	}
}

// ParseMarker parses a "lat, lon" marker property.
func ParseMarker(text string) (s2.LatLng, error) {
	lat, lon, err := parsePair(text)
	if err != nil {
		return s2.LatLng{}, fmt.Errorf("marker %q: %w", text, err)
	}
	return s2.LatLngFromDegrees(lat, lon), nil
}

// ParsePolygon parses a YAML polygon property of the form
// {polygon: ["lat, lon", ...]}.
func ParsePolygon(text string) ([]s2.LatLng, error) {
	var doc struct {
		Polygon []string `yaml:"polygon"`
	}
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("polygon: %w", err)
	}
	if len(doc.Polygon) == 0 {
		return nil, fmt.Errorf("polygon: no vertices")
	}

	positions := make([]s2.LatLng, 0, len(doc.Polygon))
	for _, vertex := range doc.Polygon {
		lat, lon, err := parsePair(vertex)
		if err != nil {
			return nil, fmt.Errorf("polygon vertex %q: %w", vertex, err)
		}
		positions = append(positions, s2.LatLngFromDegrees(lat, lon))
	}
	return positions, nil
}

func parsePair(text string) (lat, lon float64, err error) {
	parts := strings.SplitN(text, ",", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("want \"lat, lon\"")
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, err
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}
