package render

// KeplerConfig returns the Kepler.gl v1 config for an H3 layer keyed on
// hexColumn.
func KeplerConfig(s HeatmapStyle, hexColumn string) map[string]any {
	tooltip := make([]map[string]any, 0, len(s.TooltipFields))
	for _, f := range s.TooltipFields {
		tooltip = append(tooltip, map[string]any{"name": f, "format": nil})
	}

	layer := map[string]any{
		"id":   s.LayerID,
		"type": "h3",
		"config": map[string]any{
			"dataId":    s.DataID,
			"label":     s.Label,
			"columns":   map[string]any{"hex_id": hexColumn},
			"isVisible": true,
			"visConfig": map[string]any{
				"opacity":    s.Opacity,
				"colorRange": s.ColorRange,
				"coverage":   s.Coverage,
				"filled":     true,
				"enable3d":   false,
			},
			"colorField": map[string]any{
				"name": s.ColorField,
				"type": s.ColorFieldType,
			},
			"colorAggregation": s.ColorAggregation,
		},
	}

	return map[string]any{
		"version": "v1",
		"config": map[string]any{
			"visState": map[string]any{
				"layers": []any{layer},
				"interactionConfig": map[string]any{
					"tooltip": map[string]any{
						"fieldsToShow": map[string]any{s.DataID: tooltip},
						"enabled":      true,
					},
				},
			},
			"mapState": s.MapState,
		},
	}
}
