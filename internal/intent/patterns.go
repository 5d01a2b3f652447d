package intent

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Analysis goals the agent understands. Anything else resolves to
// GoalUnknown and short-circuits to a clarification response.
const (
	GoalAnomalyDetection   = "anomaly_detection"
	GoalClustering         = "clustering"
	GoalFeatureEngineering = "feature_engineering"
	GoalForecasting        = "timeseries_forecasting"
	GoalClassification     = "classification"
	GoalRegression         = "regression"
	GoalStatsComparison    = "stats_comparison"
	GoalGeospatial         = "geospatial_analysis"
	GoalIncidentDetection  = "incident_detection"
	GoalReportGeneration   = "report_generation"
	GoalVisualization      = "visualization"
	GoalSummaryReport      = "summary_report"
	GoalUnknown            = "unknown"
)

// goalPhrases maps each goal to the multi-word phrases that indicate it.
// Matching is case-insensitive substring matching over the request text.
var goalPhrases = map[string][]string{
	GoalAnomalyDetection: {
		"detect anomalies", "find outliers", "anomaly detection",
		"identify unusual", "spot anomalies", "find anomalies",
		"unusual patterns", "detect outliers",
	},
	GoalClustering: {
		"cluster", "group data", "segment", "clustering",
		"find clusters", "group similar", "segmentation",
	},
	GoalFeatureEngineering: {
		"engineer features", "create features", "feature engineering",
		"extract features", "generate features", "feature extraction",
	},
	GoalForecasting: {
		"forecast", "predict future", "time series forecast",
		"trend analysis", "future values", "predict next",
	},
	GoalClassification: {
		"classify", "classification", "categorize", "predict class", "label data",
	},
	GoalRegression: {
		"regression", "predict value", "linear regression", "predict number",
	},
	GoalStatsComparison: {
		"compare statistics", "statistical comparison", "compare groups",
		"a/b test", "compare metrics", "statistical test",
	},
	GoalGeospatial: {
		"geospatial", "location analysis", "spatial analysis",
		"geographic", "geo analysis", "mapping",
	},
	GoalIncidentDetection: {
		"detect incident", "incident detection", "threshold breach",
		"anomaly alert", "incident alert",
	},
	GoalReportGeneration: {
		"generate a report", "generate report", "detailed report",
		"comprehensive report", "create a report", "written report",
	},
	GoalVisualization: {
		"visualize", "visualization", "chart", "plot", "graph the",
	},
	GoalSummaryReport: {
		"summarize", "summary report", "executive summary",
	},
}

// orderedGoals is the deterministic iteration order over goalPhrases.
var orderedGoals = func() []string {
	goals := make([]string, 0, len(goalPhrases))
	for g := range goalPhrases {
		goals = append(goals, g)
	}
	sort.Strings(goals)
	return goals
}()

// Parameter grammar. Named capture values feed tool parameters; the
// constraint grammar below feeds the textual constraint list.
var paramPatterns = []struct {
	name    string
	re      *regexp.Regexp
	numeric bool // parse capture as float64
	integer bool // parse capture as int
}{
	{name: "threshold", re: regexp.MustCompile(`(?i)threshold\s+(?:of\s+)?(\d+\.?\d*)`), numeric: true},
	{name: "zscore", re: regexp.MustCompile(`(?i)z-?score\s+(?:of\s+)?(\d+\.?\d*)`), numeric: true},
	{name: "contamination", re: regexp.MustCompile(`(?i)contamination\s+(?:of\s+)?(\d+\.?\d*)`), numeric: true},
	{name: "confidence", re: regexp.MustCompile(`(?i)confidence\s+(?:of\s+)?(\d+\.?\d*)`), numeric: true},
	{name: "metric", re: regexp.MustCompile(`(?i)metric[s]?\s+['"]?(\w+)['"]?`)},
	{name: "column", re: regexp.MustCompile(`(?i)column[s]?\s+['"]?(\w+)['"]?`)},
	{name: "window", re: regexp.MustCompile(`(?i)window\s+(?:of\s+)?(\d+\s*(?:min|minute|hour|day|week|month)s?)`)},
	{name: "n_clusters", re: regexp.MustCompile(`(?i)(\d+)\s+(?:clusters?|groups?)`), integer: true},
	{name: "algorithm", re: regexp.MustCompile(`(?i)(?:using|with|algorithm)\s+(kmeans|dbscan|hierarchical|arima|prophet|isolation_forest)`)},
	{name: "forecast_horizon", re: regexp.MustCompile(`(?i)horizon\s+(?:of\s+)?(\d+)`), integer: true},
}

var dateRangePattern = regexp.MustCompile(`(?i)from\s+(\d{4}-\d{2}-\d{2})\s+to\s+(\d{4}-\d{2}-\d{2})`)

// Constraint grammar: restrictions on how the analysis may run, kept as
// ordered "key=value" strings.
var constraintPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{name: "max_time", re: regexp.MustCompile(`(?i)(?:within|in)\s+(\d+\s*(?:second|minute|hour|day)s?)`)},
	{name: "min_accuracy", re: regexp.MustCompile(`(?i)(?:at least|minimum)\s+(\d+\.?\d*)%?\s*accuracy`)},
	{name: "max_results", re: regexp.MustCompile(`(?i)max(?:imum)?\s+(?:of\s+)?(\d+)\s+(?:anomalies|results|rows|points)`)},
}

// dataTypeIndicators maps data types to text cues, checked only when the
// data sample itself is not decisive.
var dataTypeIndicators = map[string][]string{
	"timeseries": {"timestamp", "time series", "datetime", "forecast", "trend", "over time"},
	"tabular":    {"table", "row", "column", "csv", "dataframe"},
	"geospatial": {"location", "latitude", "longitude", "map", "geo"},
	"text":       {"text", "document", "corpus", "sentiment"},
	"graph":      {"graph", "network", "node", "edge"},
}

var orderedDataTypes = []string{"timeseries", "geospatial", "graph", "text", "tabular"}

// scoreGoalPhrases counts goal phrase matches in the lowered text. The
// returned map only contains goals with at least one match.
func scoreGoalPhrases(lower string) map[string]int {
	scores := make(map[string]int)
	for _, goal := range orderedGoals {
		n := 0
		for _, phrase := range goalPhrases[goal] {
			if strings.Contains(lower, phrase) {
				n++
			}
		}
		if n > 0 {
			scores[goal] = n
		}
	}
	return scores
}

// bestGoal picks the highest-scoring goal; ties break lexicographically so
// repeated extraction over the same text is stable.
func bestGoal(scores map[string]int) (string, int) {
	best, bestScore := GoalUnknown, 0
	for _, goal := range orderedGoals {
		if s, ok := scores[goal]; ok && (s > bestScore || (s == bestScore && best == GoalUnknown)) {
			best, bestScore = goal, s
		}
	}
	return best, bestScore
}

// extractParameters applies the parameter grammar to the request text.
func extractParameters(text string) map[string]interface{} {
	params := make(map[string]interface{})
	for _, p := range paramPatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		switch {
		case p.numeric:
			if f, err := strconv.ParseFloat(m[1], 64); err == nil {
				params[p.name] = f
			}
		case p.integer:
			if n, err := strconv.Atoi(m[1]); err == nil {
				params[p.name] = n
			}
		default:
			params[p.name] = m[1]
		}
	}
	if m := dateRangePattern.FindStringSubmatch(text); m != nil {
		params["start_date"] = m[1]
		params["end_date"] = m[2]
	}
	return params
}

// extractConstraints applies the constraint grammar, preserving pattern order.
func extractConstraints(text string) []string {
	var out []string
	for _, c := range constraintPatterns {
		if m := c.re.FindStringSubmatch(text); m != nil {
			out = append(out, fmt.Sprintf("%s=%s", c.name, strings.TrimSpace(m[1])))
		}
	}
	return out
}

// detectDataType infers the data type, preferring evidence from the data
// sample's column names over textual cues. Defaults to tabular.
func detectDataType(lower string, sample []map[string]interface{}) string {
	if len(sample) > 0 {
		for col := range sample[0] {
			lc := strings.ToLower(col)
			if strings.Contains(lc, "time") || strings.Contains(lc, "date") {
				return "timeseries"
			}
		}
		for col := range sample[0] {
			lc := strings.ToLower(col)
			if strings.Contains(lc, "lat") || strings.Contains(lc, "lon") {
				return "geospatial"
			}
		}
	}

	best, bestScore := "tabular", 0
	for _, dt := range orderedDataTypes {
		n := 0
		for _, cue := range dataTypeIndicators[dt] {
			if strings.Contains(lower, cue) {
				n++
			}
		}
		if n > bestScore {
			best, bestScore = dt, n
		}
	}
	return best
}

// secondaryGoals scans the text for goals beyond the winner, ordered by
// first occurrence so "detect anomalies then forecast" yields forecasting
// after anomaly detection.
func secondaryGoals(lower, winner string) []string {
	type hit struct {
		goal  string
		index int
	}
	var hits []hit
	for _, goal := range orderedGoals {
		if goal == winner {
			continue
		}
		first := -1
		for _, phrase := range goalPhrases[goal] {
			if i := strings.Index(lower, phrase); i >= 0 && (first < 0 || i < first) {
				first = i
			}
		}
		if first >= 0 {
			hits = append(hits, hit{goal: goal, index: first})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].index != hits[j].index {
			return hits[i].index < hits[j].index
		}
		return hits[i].goal < hits[j].goal
	})
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.goal)
	}
	return out
}

// sampleColumns returns the sorted column names of the sample's first row.
func sampleColumns(sample []map[string]interface{}) []string {
	if len(sample) == 0 {
		return nil
	}
	cols := make([]string, 0, len(sample[0]))
	for c := range sample[0] {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// KnownGoal reports whether the goal string is one the planner can act on.
func KnownGoal(goal string) bool {
	_, ok := goalPhrases[goal]
	return ok
}
