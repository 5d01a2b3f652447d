package planner

import "github.com/swetaais/analysis-agent/internal/intent"

// goalTools ranks candidate tool IDs per goal, best first. Selection walks
// the list and takes the first registered, healthy, data-type-compatible
// candidate; later entries are substitution fallbacks.
var goalTools = map[string][]string{
	intent.GoalAnomalyDetection:   {"anomaly_zscore", "anomaly_isolation_forest"},
	intent.GoalClustering:         {"clustering_kmeans", "clustering_dbscan"},
	intent.GoalFeatureEngineering: {"feature_engineering"},
	intent.GoalForecasting:        {"timeseries_forecast"},
	intent.GoalClassification:     {"classifier_train"},
	intent.GoalRegression:         {"regression_train"},
	intent.GoalStatsComparison:    {"stats_comparison"},
	intent.GoalGeospatial:         {"geospatial_analysis"},
	intent.GoalIncidentDetection:  {"incident_detector"},
	intent.GoalReportGeneration:   {"anomaly_report_generator"},
	intent.GoalVisualization:      {"chart_renderer"},
	intent.GoalSummaryReport:      {"summary_generator"},
}

// goalDependencies lists prerequisite goals that must run before a goal.
// Prerequisites are inserted into the plan even when the caller did not ask
// for them; their outputs feed the dependent step.
var goalDependencies = map[string][]string{
	intent.GoalClustering:        {intent.GoalFeatureEngineering},
	intent.GoalClassification:    {intent.GoalFeatureEngineering},
	intent.GoalRegression:        {intent.GoalFeatureEngineering},
	intent.GoalForecasting:       {intent.GoalFeatureEngineering, intent.GoalAnomalyDetection},
	intent.GoalStatsComparison:   {intent.GoalAnomalyDetection},
	intent.GoalIncidentDetection: {intent.GoalAnomalyDetection},
	intent.GoalReportGeneration:  {intent.GoalAnomalyDetection},
}

// toolDefaults fills parameters a tool requires when the intent did not
// carry them.
var toolDefaults = map[string]map[string]interface{}{
	"anomaly_zscore":           {"zscore_threshold": 2.0},
	"anomaly_isolation_forest": {"contamination": 0.05},
	"clustering_kmeans":        {"n_clusters": 3, "algorithm": "kmeans"},
	"clustering_dbscan":        {"algorithm": "dbscan"},
	"timeseries_forecast":      {"forecast_horizon": 10},
}

// toolParamAliases renames intent parameters into the vocabulary a given
// tool expects.
var toolParamAliases = map[string]map[string]string{
	"anomaly_zscore":           {"threshold": "zscore_threshold", "zscore": "zscore_threshold"},
	"anomaly_isolation_forest": {"threshold": "contamination"},
}

// incompatibleOutputs lists upstream tools whose output records do not
// satisfy a downstream tool's input contract when chained sequentially.
// The isolation forest emits binary labels without per-point scores, which
// the forecaster and the report generator both consume.
var incompatibleOutputs = map[string][]string{
	"anomaly_isolation_forest": {"timeseries_forecast", "anomaly_report_generator"},
	"clustering_dbscan":        {"summary_generator"},
}

func outputsIncompatible(upstream, downstream string) bool {
	for _, id := range incompatibleOutputs[upstream] {
		if id == downstream {
			return true
		}
	}
	return false
}

// toolEstimatedSeconds feeds the plan's duration estimate. Unlisted tools
// use estimateDefault.
var toolEstimatedSeconds = map[string]float64{
	"anomaly_zscore":           2,
	"anomaly_isolation_forest": 8,
	"clustering_kmeans":        5,
	"clustering_dbscan":        6,
	"feature_engineering":      4,
	"timeseries_forecast":      10,
	"classifier_train":         15,
	"regression_train":         12,
}

const estimateDefault = 5.0

func estimateFor(toolID string) float64 {
	if s, ok := toolEstimatedSeconds[toolID]; ok {
		return s
	}
	return estimateDefault
}
