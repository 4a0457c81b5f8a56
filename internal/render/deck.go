package render

// Column names the deck.gl accessors read from each record.
const (
	FillColorField = "fill_color"
)

// Deck is a deck.gl JSON document in the converter dialect ("@@type",
// "@@=" accessors).
type Deck struct {
	InitialViewState ViewState        `json:"initialViewState"`
	MapStyle         string           `json:"mapStyle"`
	Layers           []map[string]any `json:"layers"`
	Tooltip          Tooltip          `json:"tooltip"`
}

// HexagonDeck describes an extruded H3HexagonLayer over records. Each record
// must carry hexColumn, elevationColumn and FillColorField.
func HexagonDeck(s Hex3DStyle, records []map[string]any, hexColumn, elevationColumn string) Deck {
	layer := map[string]any{
		"@@type":         "H3HexagonLayer",
		"id":             s.LayerID,
		"data":           records,
		"getHexagon":     "@@=" + hexColumn,
		"getFillColor":   "@@=" + FillColorField,
		"getElevation":   "@@=" + elevationColumn,
		"extruded":       true,
		"elevationScale": s.ElevationScale,
		"pickable":       true,
		"autoHighlight":  true,
	}
	return Deck{
		InitialViewState: s.ViewState,
		MapStyle:         s.MapStyle,
		Layers:           []map[string]any{layer},
		Tooltip:          s.Tooltip,
	}
}
