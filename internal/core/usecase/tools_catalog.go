package usecase

import "github.com/heliowatt/solar-copilot/internal/core/domain"

// toolCatalog returns the executable analytics tools advertised to the
// model in the free-chat loop.
func toolCatalog() []domain.ToolSpec {
	return []domain.ToolSpec{
		{
			Name:        toolListLoggers,
			Description: "List all monitored solar loggers with their serials, models and last-seen timestamps.",
			Parameters:  objectSchema(nil, nil),
			Kind:        domain.ActionExecute,
		},
		{
			Name:        toolFleetOverview,
			Description: "Get a fleet-wide status summary: device counts, online percentage and today's production.",
			Parameters:  objectSchema(nil, nil),
			Kind:        domain.ActionExecute,
		},
		{
			Name:        toolAnalyzeHealth,
			Description: "Analyze recent telemetry of one inverter and report anomalies such as zero output under high irradiance.",
			Parameters: objectSchema(map[string]any{
				"logger_id": map[string]any{"type": "string", "description": "Serial of the logger to analyze."},
				"date":      map[string]any{"type": "string", "description": "Day to analyze in YYYY-MM-DD; defaults to the most recent data."},
			}, []string{"logger_id"}),
			Kind: domain.ActionExecute,
		},
		{
			Name:        toolPowerCurve,
			Description: "Fetch the power curve of one logger for a given day.",
			Parameters: objectSchema(map[string]any{
				"logger_id": map[string]any{"type": "string"},
				"date":      map[string]any{"type": "string", "description": "Day in YYYY-MM-DD."},
			}, []string{"logger_id"}),
			Kind: domain.ActionExecute,
		},
		{
			Name:        toolCompareLoggers,
			Description: "Compare production statistics of two to five loggers over a date range.",
			Parameters: objectSchema(map[string]any{
				"logger_ids": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"date_start": map[string]any{"type": "string"},
				"date_end":   map[string]any{"type": "string"},
				"metric":     map[string]any{"type": "string"},
			}, []string{"logger_ids"}),
			Kind: domain.ActionExecute,
		},
		{
			Name:        toolFinancialSavings,
			Description: "Calculate money saved by solar production over a time window at a given electricity rate.",
			Parameters: objectSchema(map[string]any{
				"window_days":      map[string]any{"type": "integer"},
				"electricity_rate": map[string]any{"type": "number"},
				"logger_id":        map[string]any{"type": "string"},
				"date_start":       map[string]any{"type": "string", "description": "First day of the window in YYYY-MM-DD."},
				"date_end":         map[string]any{"type": "string", "description": "Last day of the window in YYYY-MM-DD."},
			}, nil),
			Kind: domain.ActionExecute,
		},
		{
			Name:        toolForecastProduction,
			Description: "Forecast fleet production for the next days based on recent history.",
			Parameters: objectSchema(map[string]any{
				"horizon_days": map[string]any{"type": "integer"},
			}, nil),
			Kind: domain.ActionExecute,
		},
		{
			Name:        toolDiagnoseErrors,
			Description: "Explain recent error codes reported by one logger and suggest remediation.",
			Parameters: objectSchema(map[string]any{
				"logger_id": map[string]any{"type": "string"},
			}, []string{"logger_id"}),
			Kind: domain.ActionExecute,
		},
		{
			Name:        toolPerformanceRatio,
			Description: "Calculate the performance ratio of one logger against its rated capacity.",
			Parameters: objectSchema(map[string]any{
				"logger_id": map[string]any{"type": "string"},
			}, []string{"logger_id"}),
			Kind: domain.ActionExecute,
		},
	}
}

// uiActionSpecs returns the pass-through actions the model may request.
// They render on the client and are never executed server side.
func uiActionSpecs() []domain.ToolSpec {
	return []domain.ToolSpec{
		{
			Name:        domain.ActionRenderFleetOverview,
			Description: "Render the fleet overview card with status, production and alerts.",
			Parameters:  objectSchema(nil, nil),
			Kind:        domain.ActionRender,
		},
		{
			Name:        domain.ActionRenderFinancialReport,
			Description: "Render the savings and forecast report.",
			Parameters:  objectSchema(nil, nil),
			Kind:        domain.ActionRender,
		},
		{
			Name:        domain.ActionRenderComparisonChart,
			Description: "Render a side-by-side device comparison chart.",
			Parameters:  objectSchema(nil, nil),
			Kind:        domain.ActionRender,
		},
		{
			Name:        domain.ActionRenderHealthReport,
			Description: "Render a device health report with anomalies and score.",
			Parameters:  objectSchema(nil, nil),
			Kind:        domain.ActionRender,
		},
		{
			Name:        domain.ActionRenderMarkdown,
			Description: "Render free-form markdown content.",
			Parameters: objectSchema(map[string]any{
				"content": map[string]any{"type": "string"},
			}, []string{"content"}),
			Kind: domain.ActionRender,
		},
		{
			Name:        domain.ActionSelectLoggers,
			Description: "Show a device picker so the user can choose which loggers to analyze.",
			Parameters: objectSchema(map[string]any{
				"preselected": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			}, nil),
			Kind: domain.ActionSelection,
		},
		{
			Name:        domain.ActionSelectDate,
			Description: "Show a date picker, optionally constrained to the range where data exists.",
			Parameters: objectSchema(map[string]any{
				"min": map[string]any{"type": "string"},
				"max": map[string]any{"type": "string"},
			}, nil),
			Kind: domain.ActionSelection,
		},
	}
}

func objectSchema(props map[string]any, required []string) map[string]any {
	if props == nil {
		props = map[string]any{}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
