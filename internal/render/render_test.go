package render

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault_LoadsEmbeddedStyles(t *testing.T) {
	s, err := Default()
	require.NoError(t, err)
	require.Equal(t, "inadimplencia_data", s.Heatmap.DataID)
	require.Equal(t, "inadimplencia_h3_layer", s.Heatmap.LayerID)
	require.Len(t, s.Heatmap.ColorRange.Colors, 6)
	require.Equal(t, -23.65, s.Heatmap.MapState.Latitude)
	require.Equal(t, 50.0, s.Hex3D.ViewState.Pitch)
	require.Equal(t, 0.1, s.Hex3D.ElevationScale)
	require.Contains(t, s.Hex3D.Tooltip.HTML, "{valor_inadimplencia}")
	require.Equal(t, "steelblue", s.Hex3D.Tooltip.Style["backgroundColor"])
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load([]byte("heatmap: ["))
	require.ErrorContains(t, err, "decode styles")

	_, err = Load([]byte("heatmap:\n  dataId: d\n"))
	require.ErrorContains(t, err, "layerId")

	_, err = Load([]byte("heatmap:\n  dataId: d\n  layerId: l\n"))
	require.ErrorContains(t, err, "colorRange")

	_, err = Load([]byte("heatmap:\n  dataId: d\n  layerId: l\n  colorRange:\n    colors: ['#fff']\n"))
	require.ErrorContains(t, err, "hex3d")
}

func TestKeplerConfig_ShapesH3Layer(t *testing.T) {
	s, err := Default()
	require.NoError(t, err)

	raw, err := json.Marshal(KeplerConfig(s.Heatmap, "h3"))
	require.NoError(t, err)
	body := string(raw)
	require.Contains(t, body, `"version":"v1"`)
	require.Contains(t, body, `"hex_id":"h3"`)
	require.Contains(t, body, `"type":"h3"`)
	require.Contains(t, body, `"colorAggregation":"sum"`)
	require.Contains(t, body, `"inadimplencia_data":[{"format":null,"name":"contagem_clientes"},{"format":null,"name":"bairro"}]`)
	require.Contains(t, body, `"latitude":-23.65`)
}

func TestHexagonDeck(t *testing.T) {
	s, err := Default()
	require.NoError(t, err)

	records := []map[string]any{{"h3": "8828308299fffff", FillColorField: [4]int{255, 0, 0, 180}, "valor_inadimplencia": 10.0}}
	deck := HexagonDeck(s.Hex3D, records, "h3", "valor_inadimplencia")
	require.Len(t, deck.Layers, 1)
	layer := deck.Layers[0]
	require.Equal(t, "H3HexagonLayer", layer["@@type"])
	require.Equal(t, "@@=h3", layer["getHexagon"])
	require.Equal(t, "@@=fill_color", layer["getFillColor"])
	require.Equal(t, "@@=valor_inadimplencia", layer["getElevation"])
	require.Equal(t, true, layer["extruded"])
	require.Equal(t, "light", deck.MapStyle)

	raw, err := json.Marshal(deck)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"fill_color":[255,0,0,180]`)
}
