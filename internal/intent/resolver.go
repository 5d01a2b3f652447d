package intent

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/swetaais/analysis-agent/internal/audit"
	"github.com/swetaais/analysis-agent/internal/metrics"
	"github.com/swetaais/analysis-agent/internal/models"
)

// methodPriority breaks ties between votes of equal confidence. Higher wins.
var methodPriority = map[models.ExtractionMethod]int{
	models.MethodExternalLLM: 3,
	models.MethodModel:       2,
	models.MethodPattern:     1,
}

// consensusMultiplier scales the base confidence by agreement strength.
var consensusMultiplier = map[models.ConsensusLevel]float64{
	models.ConsensusUnanimous: 1.2,
	models.ConsensusStrong:    1.1,
	models.ConsensusMajority:  1.0,
	models.ConsensusWeak:      0.9,
}

// Resolver fans the request out to every extraction method and aggregates
// the votes into one IntentRecord. Method failures are logged and counted
// but never fail a resolution; a run with zero votes resolves to the
// GoalUnknown sentinel.
type Resolver struct {
	methods []Method
	log     audit.Logger
}

// NewResolver creates a resolver over the given methods. Method order is
// significant: when merging parameters and constraints from agreeing votes,
// the earliest method to supply a key wins.
func NewResolver(log audit.Logger, methods ...Method) *Resolver {
	return &Resolver{methods: methods, log: log}
}

// Resolve runs all methods concurrently and aggregates their votes.
func (r *Resolver) Resolve(ctx context.Context, req Request) models.IntentRecord {
	r.log.App().Debug("resolving intent",
		zap.Int("sample_rows", len(req.Data)),
		zap.Strings("sample_columns", sampleColumns(req.Data)))

	votes := make([]*models.ExtractionVote, len(r.methods))

	var wg sync.WaitGroup
	for i, m := range r.methods {
		wg.Add(1)
		go func(i int, m Method) {
			defer wg.Done()
			vote, err := m.Attempt(ctx, req)
			switch {
			case err != nil:
				metrics.ExtractionVotes.WithLabelValues(string(m.Name()), "failed").Inc()
				r.log.App().Warn("extraction method failed",
					zap.String("method", string(m.Name())), zap.Error(err))
			case vote == nil:
				metrics.ExtractionVotes.WithLabelValues(string(m.Name()), "declined").Inc()
			default:
				metrics.ExtractionVotes.WithLabelValues(string(m.Name()), "voted").Inc()
				votes[i] = vote
			}
		}(i, m)
	}
	wg.Wait()

	record := aggregate(votes)
	if record.Goal != GoalUnknown {
		record.SecondaryGoals = secondaryGoals(strings.ToLower(req.Text), record.Goal)
	}
	metrics.ConsensusTotal.WithLabelValues(string(record.ConsensusLevel)).Inc()
	return record
}

// aggregate runs the weighted consensus vote. Votes keep their slice
// positions from method registration order; nil entries are declines.
func aggregate(votes []*models.ExtractionVote) models.IntentRecord {
	var cast []*models.ExtractionVote
	for _, v := range votes {
		if v != nil {
			cast = append(cast, v)
		}
	}
	if len(cast) == 0 {
		return models.IntentRecord{
			Goal:           GoalUnknown,
			DataType:       "tabular",
			Confidence:     0,
			ConsensusLevel: models.ConsensusNone,
		}
	}

	tally := make(map[string]int)
	totalWeight := 0
	for _, v := range cast {
		tally[v.Goal] += v.Weight
		totalWeight += v.Weight
	}

	winner := pickWinner(cast, tally)

	var agreeing []*models.ExtractionVote
	agreeWeight := 0
	dissent := make(map[string]bool)
	for _, v := range cast {
		if v.Goal == winner {
			agreeing = append(agreeing, v)
			agreeWeight += v.Weight
		} else {
			dissent[v.Goal] = true
		}
	}

	level := consensusLevel(agreeWeight, totalWeight)

	base := 0.0
	var representative *models.ExtractionVote
	for _, v := range agreeing {
		if v.Confidence > base {
			base = v.Confidence
			representative = v
		}
	}
	if representative == nil {
		representative = agreeing[0]
	}
	confidence := base * consensusMultiplier[level]
	if confidence > 1.0 {
		confidence = 1.0
	}

	return models.IntentRecord{
		Goal:            winner,
		DataType:        representative.DataType,
		Constraints:     mergeConstraints(agreeing),
		Parameters:      mergeParameters(agreeing),
		Confidence:      confidence,
		ConsensusLevel:  level,
		VoteBreakdown:   tally,
		DissentingGoals: sortedKeys(dissent),
	}
}

// pickWinner selects the goal with the highest weighted tally. Ties break
// by the highest single-vote confidence for the goal, then by the priority
// of the method behind that vote.
func pickWinner(cast []*models.ExtractionVote, tally map[string]int) string {
	bestFor := make(map[string]*models.ExtractionVote)
	for _, v := range cast {
		cur, ok := bestFor[v.Goal]
		if !ok || v.Confidence > cur.Confidence ||
			(v.Confidence == cur.Confidence && methodPriority[v.Method] > methodPriority[cur.Method]) {
			bestFor[v.Goal] = v
		}
	}

	winner := ""
	for goal, weight := range tally {
		if winner == "" {
			winner = goal
			continue
		}
		switch {
		case weight > tally[winner]:
			winner = goal
		case weight == tally[winner]:
			a, b := bestFor[goal], bestFor[winner]
			if a.Confidence > b.Confidence ||
				(a.Confidence == b.Confidence && methodPriority[a.Method] > methodPriority[b.Method]) ||
				(a.Confidence == b.Confidence && methodPriority[a.Method] == methodPriority[b.Method] && goal < winner) {
				winner = goal
			}
		}
	}
	return winner
}

func consensusLevel(agreeWeight, totalWeight int) models.ConsensusLevel {
	frac := float64(agreeWeight) / float64(totalWeight)
	switch {
	case agreeWeight == totalWeight:
		return models.ConsensusUnanimous
	case frac >= 0.75:
		return models.ConsensusStrong
	case frac > 0.5:
		return models.ConsensusMajority
	default:
		return models.ConsensusWeak
	}
}

// mergeParameters folds agreeing votes' parameters together. Votes are in
// method registration order and the first writer of a key wins.
func mergeParameters(agreeing []*models.ExtractionVote) map[string]interface{} {
	merged := make(map[string]interface{})
	for _, v := range agreeing {
		for k, val := range v.Parameters {
			if _, exists := merged[k]; !exists {
				merged[k] = val
			}
		}
	}
	return merged
}

// mergeConstraints unions agreeing votes' constraints, preserving first
// occurrence order.
func mergeConstraints(agreeing []*models.ExtractionVote) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range agreeing {
		for _, c := range v.Constraints {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
