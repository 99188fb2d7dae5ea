package domain

// ActionKind classifies a requested call: a real backend operation, a
// data-rendering instruction, or a user-input request. Render and
// selection actions are terminal for the turn and are never executed
// against the analytics service.
type ActionKind string

const (
	ActionExecute   ActionKind = "execute"
	ActionRender    ActionKind = "render"
	ActionSelection ActionKind = "selection"
)

// UIAction is a non-executable instruction for the front end.
type UIAction struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
	Kind ActionKind     `json:"kind"`
}

// Terminal reports whether emitting this action ends the turn.
func (a UIAction) Terminal() bool {
	return a.Kind == ActionRender || a.Kind == ActionSelection
}

// UI action names understood by the front end.
const (
	ActionRenderFleetOverview   = "render_fleet_overview"
	ActionRenderFinancialReport = "render_financial_report"
	ActionRenderComparisonChart = "render_comparison_chart"
	ActionRenderHealthReport    = "render_health_report"
	ActionRenderMarkdown        = "render_markdown"
	ActionSelectLoggers         = "select_loggers"
	ActionSelectDate            = "select_date"
)

// KindForAction maps a UI action name to its kind. Unknown names are
// treated as executable so the fallback loop sends them to the tool
// executor, which answers with an error-status response.
func KindForAction(name string) ActionKind {
	switch name {
	case ActionRenderFleetOverview, ActionRenderFinancialReport,
		ActionRenderComparisonChart, ActionRenderHealthReport,
		ActionRenderMarkdown:
		return ActionRender
	case ActionSelectLoggers, ActionSelectDate:
		return ActionSelection
	default:
		return ActionExecute
	}
}
