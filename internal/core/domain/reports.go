package domain

// Typed payloads carried in ToolResponse.Result for the tools the flows
// depend on. Field names match the analytics service wire format.

type LoggerInfo struct {
	LoggerID     string `json:"loggerId"`
	LoggerType   string `json:"loggerType"`
	EarliestData string `json:"earliestData,omitempty"`
	LatestData   string `json:"latestData,omitempty"`
	RecordCount  int    `json:"recordCount"`
}

type LoggerList struct {
	Count   int          `json:"count"`
	Loggers []LoggerInfo `json:"loggers"`
	Context *ToolHint    `json:"context,omitempty"`
}

type FleetStatus struct {
	TotalLoggers     int      `json:"totalLoggers"`
	ActiveLoggers    int      `json:"activeLoggers"`
	PercentOnline    float64  `json:"percentOnline"`
	FleetHealth      string   `json:"fleetHealth"`
	OfflineLoggerIDs []string `json:"offlineLoggerIds,omitempty"`
}

type FleetProduction struct {
	CurrentTotalPowerWatts float64 `json:"currentTotalPowerWatts"`
	TodayTotalEnergyKwh    float64 `json:"todayTotalEnergyKwh"`
	SiteAvgIrradiance      float64 `json:"siteAvgIrradiance"`
}

type FleetOverview struct {
	Timestamp  string          `json:"timestamp"`
	Status     FleetStatus     `json:"status"`
	Production FleetProduction `json:"production"`
	Summary    string          `json:"summary,omitempty"`
	Context    *ToolHint       `json:"context,omitempty"`
}

const (
	FleetHealthy  = "Healthy"
	FleetDegraded = "Degraded"
	FleetCritical = "Critical"
)

// ClassifyFleetHealth maps percent-online to the fleet health label.
func ClassifyFleetHealth(percentOnline float64) string {
	switch {
	case percentOnline > 90:
		return FleetHealthy
	case percentOnline > 50:
		return FleetDegraded
	default:
		return FleetCritical
	}
}

type FinancialPeriod struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type FinancialReport struct {
	LoggerID           string          `json:"loggerId,omitempty"`
	Period             FinancialPeriod `json:"period"`
	DaysWithData       int             `json:"daysWithData"`
	TotalEnergyKwh     float64         `json:"totalEnergyKwh"`
	ElectricityRateUSD float64         `json:"electricityRateUsd"`
	SavingsUSD         float64         `json:"savingsUsd"`
	CO2OffsetKg        float64         `json:"co2OffsetKg"`
	TreesEquivalent    float64         `json:"treesEquivalent"`
	Summary            string          `json:"summary,omitempty"`
	Context            *ToolHint       `json:"context,omitempty"`
}

type ForecastDay struct {
	Date        string  `json:"date"`
	ExpectedKwh float64 `json:"expectedKwh"`
	RangeMin    float64 `json:"rangeMin"`
	RangeMax    float64 `json:"rangeMax"`
	Confidence  string  `json:"confidence"`
}

type ProductionForecast struct {
	LoggerID    string        `json:"loggerId,omitempty"`
	Method      string        `json:"method"`
	BasedOnDays int           `json:"basedOnDays"`
	Forecasts   []ForecastDay `json:"forecasts"`
	Summary     string        `json:"summary,omitempty"`
	Context     *ToolHint     `json:"context,omitempty"`
}

// ForecastConfidence maps the coefficient of variation of daily energy
// to a confidence label.
func ForecastConfidence(cv float64) string {
	switch {
	case cv < 0.15:
		return "high"
	case cv < 0.30:
		return "medium"
	default:
		return "low"
	}
}

type LoggerStats struct {
	Avg  float64 `json:"avg"`
	Peak float64 `json:"peak"`
	Min  float64 `json:"min"`
}

type ComparisonReport struct {
	Metric      string                 `json:"metric"`
	LoggerIDs   []string               `json:"loggerIds"`
	Date        string                 `json:"date,omitempty"`
	RecordCount int                    `json:"recordCount"`
	Summary     map[string]LoggerStats `json:"summary"`
	Context     *ToolHint              `json:"context,omitempty"`
}

// ComparisonSeverity classifies the spread between best and worst
// performers.
type ComparisonSeverity string

const (
	SeveritySimilar  ComparisonSeverity = "similar"
	SeverityModerate ComparisonSeverity = "moderate_difference"
	SeverityLarge    ComparisonSeverity = "large_difference"
)

// ClassifySpread maps (best.avg - worst.avg) / best.avg * 100 to a
// severity label.
func ClassifySpread(spreadPercent float64) ComparisonSeverity {
	switch {
	case spreadPercent < 10:
		return SeveritySimilar
	case spreadPercent < 30:
		return SeverityModerate
	default:
		return SeverityLarge
	}
}

type AnomalyPoint struct {
	Timestamp        string   `json:"timestamp"`
	ActivePowerWatts *float64 `json:"activePowerWatts"`
	Irradiance       *float64 `json:"irradiance"`
	Reason           string   `json:"reason"`
	Severity         string   `json:"severity,omitempty"`
}

type HealthReport struct {
	LoggerID     string         `json:"loggerId"`
	DaysAnalyzed int            `json:"daysAnalyzed"`
	TotalRecords int            `json:"totalRecords"`
	AnomalyCount int            `json:"anomalyCount"`
	Points       []AnomalyPoint `json:"points"`
	Context      *ToolHint      `json:"context,omitempty"`
}

// HealthScore derives the 0-100 score from the anomaly count. A clean
// report scores 100; each anomaly costs two points down to zero.
func HealthScore(anomalyCount int) int {
	if anomalyCount <= 0 {
		return 100
	}
	score := 100 - anomalyCount*2
	if score < 0 {
		return 0
	}
	return score
}

type DiagnosticIssue struct {
	Code         string `json:"code"`
	Description  string `json:"description"`
	Severity     string `json:"severity"`
	Occurrences  int    `json:"occurrences"`
	FirstSeen    string `json:"firstSeen,omitempty"`
	LastSeen     string `json:"lastSeen,omitempty"`
	SuggestedFix string `json:"suggestedFix,omitempty"`
}

type DiagnosticsReport struct {
	LoggerID      string            `json:"loggerId"`
	LoggerType    string            `json:"loggerType,omitempty"`
	Period        string            `json:"period,omitempty"`
	OverallHealth string            `json:"overallHealth"`
	IssueCount    int               `json:"issueCount"`
	Issues        []DiagnosticIssue `json:"issues"`
	Summary       string            `json:"summary,omitempty"`
	Context       *ToolHint         `json:"context,omitempty"`
}
