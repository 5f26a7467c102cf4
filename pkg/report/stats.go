package report

import (
	"math"
	"sort"

	"github.com/teslashibe/go-proctor/pkg/store"
)

// CommonViolationLimit is how many event types Stats lists
const CommonViolationLimit = 5

// ScoreBucket counts completed sessions whose score falls in [Min, Max]
type ScoreBucket struct {
	Min   int `json:"min"`
	Max   int `json:"max"`
	Count int `json:"count"`
}

// Overview aggregates completed sessions across every candidate
type Overview struct {
	TotalSessions     int               `json:"totalSessions"`
	AvgIntegrityScore float64           `json:"avgIntegrityScore"`
	CommonViolations  []store.TypeCount `json:"commonViolations"`
	ScoreDistribution []ScoreBucket     `json:"scoreDistribution"`
}

// scoreBands follow the recommendation thresholds
var scoreBands = [][2]int{{0, 49}, {50, 69}, {70, 84}, {85, 100}}

// Stats summarizes sessions and per-type event counts. Only completed
// sessions count; sessions without a score are left out of the average and
// the distribution.
func Stats(sessions []store.Session, byType []store.TypeCount) Overview {
	o := Overview{
		CommonViolations:  []store.TypeCount{},
		ScoreDistribution: make([]ScoreBucket, len(scoreBands)),
	}
	for i, b := range scoreBands {
		o.ScoreDistribution[i] = ScoreBucket{Min: b[0], Max: b[1]}
	}

	var sum, scored int
	for _, s := range sessions {
		if s.Status != store.StatusCompleted {
			continue
		}
		o.TotalSessions++
		if s.IntegrityScore == nil {
			continue
		}
		score := *s.IntegrityScore
		sum += score
		scored++
		for i := range o.ScoreDistribution {
			if b := &o.ScoreDistribution[i]; score >= b.Min && score <= b.Max {
				b.Count++
				break
			}
		}
	}
	if scored > 0 {
		o.AvgIntegrityScore = math.Round(float64(sum)/float64(scored)*100) / 100
	}

	common := make([]store.TypeCount, 0, len(byType))
	for _, tc := range byType {
		common = append(common, store.TypeCount{Type: tc.Type, Count: tc.Count})
	}
	sort.SliceStable(common, func(i, j int) bool {
		return common[i].Count > common[j].Count
	})
	if len(common) > CommonViolationLimit {
		common = common[:CommonViolationLimit]
	}
	o.CommonViolations = append(o.CommonViolations, common...)
	return o
}
