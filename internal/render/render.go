// Package render builds the declarative documents the two map renderers
// consume: a Kepler.gl config for the heatmap and a deck.gl JSON document for the
// extruded hexagon view.
package render

import (
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed styles.yaml
var defaultStyles []byte

type ViewState struct {
	Latitude  float64 `yaml:"latitude" json:"latitude"`
	Longitude float64 `yaml:"longitude" json:"longitude"`
	Zoom      float64 `yaml:"zoom" json:"zoom"`
	Pitch     float64 `yaml:"pitch" json:"pitch"`
	Bearing   float64 `yaml:"bearing" json:"bearing"`
}

type ColorRange struct {
	Name     string   `yaml:"name" json:"name"`
	Type     string   `yaml:"type" json:"type"`
	Category string   `yaml:"category" json:"category"`
	Colors   []string `yaml:"colors" json:"colors"`
}

type HeatmapStyle struct {
	DataID           string     `yaml:"dataId"`
	LayerID          string     `yaml:"layerId"`
	Label            string     `yaml:"label"`
	Height           int        `yaml:"height"`
	Opacity          float64    `yaml:"opacity"`
	Coverage         float64    `yaml:"coverage"`
	ColorRange       ColorRange `yaml:"colorRange"`
	ColorField       string     `yaml:"colorField"`
	ColorFieldType   string     `yaml:"colorFieldType"`
	ColorAggregation string     `yaml:"colorAggregation"`
	TooltipFields    []string   `yaml:"tooltipFields"`
	MapState         ViewState  `yaml:"mapState"`
}

type Tooltip struct {
	HTML  string            `yaml:"html" json:"html"`
	Style map[string]string `yaml:"style" json:"style"`
}

type Hex3DStyle struct {
	LayerID        string    `yaml:"layerId"`
	MapStyle       string    `yaml:"mapStyle"`
	ElevationScale float64   `yaml:"elevationScale"`
	ViewState      ViewState `yaml:"viewState"`
	Tooltip        Tooltip   `yaml:"tooltip"`
}

type Styles struct {
	Heatmap HeatmapStyle `yaml:"heatmap"`
	Hex3D   Hex3DStyle   `yaml:"hex3d"`
}

// Load parses a styles document.
func Load(raw []byte) (Styles, error) {
	var s Styles
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return Styles{}, fmt.Errorf("render: decode styles: %w", err)
	}
	if s.Heatmap.DataID == "" || s.Heatmap.LayerID == "" {
		return Styles{}, errors.New("render: heatmap dataId and layerId are required")
	}
	if len(s.Heatmap.ColorRange.Colors) == 0 {
		return Styles{}, errors.New("render: heatmap colorRange needs at least one color")
	}
	if s.Hex3D.LayerID == "" {
		return Styles{}, errors.New("render: hex3d layerId is required")
	}
	return s, nil
}

// Default returns the embedded styles.
func Default() (Styles, error) {
	return Load(defaultStyles)
}
