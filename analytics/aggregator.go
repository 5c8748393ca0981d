// Package analytics computes read-only rollups over the content item
// set: phase distribution, completion rate, bottleneck detection,
// test-quality metrics, recent transitions, and average phase residence
// time. The aggregator never mutates items; it scans a store snapshot
// on demand.
package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/detectops/contentgov/content"
	"github.com/detectops/contentgov/storage"
)

// Default thresholds for bottleneck detection.
const (
	// DefaultBottleneckShare is the share of all items sitting in one
	// non-terminal phase above which the phase is flagged.
	DefaultBottleneckShare = 0.30

	// HighBottleneckShare is the share above which a flagged phase is
	// reported with high severity.
	HighBottleneckShare = 0.50

	// DefaultRecentLimit caps the recent-transitions list.
	DefaultRecentLimit = 20
)

// Severity levels for bottleneck findings.
const (
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// CompletionRate summarizes how much of the item set has reached
// deployment.
type CompletionRate struct {
	DeployedPackages     int `json:"deployed_packages"`
	TotalPackages        int `json:"total_packages"`
	CompletionPercentage int `json:"completion_percentage"`
}

// Bottleneck flags a phase holding a disproportionate share of items.
type Bottleneck struct {
	Phase    content.Phase `json:"phase"`
	Count    int           `json:"count"`
	Share    float64       `json:"share"`
	Severity string        `json:"severity"`
}

// QualityMetrics aggregates test outcomes across items that carry them.
type QualityMetrics struct {
	TotalTests        int     `json:"total_tests"`
	PassedTests       int     `json:"passed_tests"`
	FailedTests       int     `json:"failed_tests"`
	SuccessRate       float64 `json:"success_rate"`
	PackagesWithTests int     `json:"packages_with_tests"`
}

// Transition is one recent phase or merge transition.
type Transition struct {
	PackageName string    `json:"package_name"`
	Kind        string    `json:"kind"`
	FromPhase   string    `json:"from_phase"`
	ToPhase     string    `json:"to_phase"`
	Timestamp   time.Time `json:"timestamp"`
	Notes       string    `json:"notes,omitempty"`
}

// Report is the full analytics rollup consumed by the dashboard.
type Report struct {
	PhaseDistribution map[content.Phase]int           `json:"phase_distribution"`
	CompletionRate    CompletionRate                  `json:"completion_rate"`
	PhaseBottlenecks  []Bottleneck                    `json:"phase_bottlenecks"`
	QualityMetrics    QualityMetrics                  `json:"quality_metrics"`
	RecentTransitions []Transition                    `json:"recent_transitions"`
	AveragePhaseTime  map[content.Phase]time.Duration `json:"average_phase_time"`
	GeneratedAt       time.Time                       `json:"generated_at"`
}

// Aggregator computes reports over a content item store.
type Aggregator struct {
	store storage.Store

	bottleneckShare float64
	recentLimit     int
	now             func() time.Time
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithBottleneckShare overrides the flagging threshold.
func WithBottleneckShare(share float64) AggregatorOption {
	return func(a *Aggregator) { a.bottleneckShare = share }
}

// WithRecentLimit overrides the recent-transitions cap.
func WithRecentLimit(n int) AggregatorOption {
	return func(a *Aggregator) { a.recentLimit = n }
}

// WithClock overrides the aggregator's time source.
func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator creates an Aggregator over the given store.
func NewAggregator(store storage.Store, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		store:           store,
		bottleneckShare: DefaultBottleneckShare,
		recentLimit:     DefaultRecentLimit,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Report scans the store and computes the full rollup.
func (a *Aggregator) Report(ctx context.Context) (*Report, error) {
	items, err := a.store.List(ctx, storage.Filter{})
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	report := &Report{
		PhaseDistribution: phaseDistribution(items),
		CompletionRate:    completionRate(items),
		QualityMetrics:    qualityMetrics(items),
		RecentTransitions: recentTransitions(items, a.recentLimit),
		AveragePhaseTime:  averagePhaseTime(items),
		GeneratedAt:       a.now(),
	}
	report.PhaseBottlenecks = bottlenecks(report.PhaseDistribution, len(items), a.bottleneckShare)

	return report, nil
}

// phaseDistribution counts items per phase, including zero-count phases.
func phaseDistribution(items []*content.ContentItem) map[content.Phase]int {
	dist := make(map[content.Phase]int, len(content.Phases))
	for _, p := range content.Phases {
		dist[p] = 0
	}
	for _, item := range items {
		dist[item.DDLCPhase]++
	}
	return dist
}

// completionRate treats an item as deployed when it is published or has
// reached the deployed phase.
func completionRate(items []*content.ContentItem) CompletionRate {
	deployed := 0
	for _, item := range items {
		if item.Status == content.StatusPublished || item.DDLCPhase == content.PhaseDeployed {
			deployed++
		}
	}
	rate := CompletionRate{
		DeployedPackages: deployed,
		TotalPackages:    len(items),
	}
	if len(items) > 0 {
		rate.CompletionPercentage = int(math.Round(float64(deployed) / float64(len(items)) * 100))
	}
	return rate
}

// bottlenecks flags non-terminal phases whose share of all items exceeds
// the threshold.
func bottlenecks(dist map[content.Phase]int, total int, threshold float64) []Bottleneck {
	if total == 0 {
		return nil
	}

	var found []Bottleneck
	for _, p := range content.Phases {
		if p.IsTerminal() {
			continue
		}
		count := dist[p]
		share := float64(count) / float64(total)
		if share <= threshold {
			continue
		}
		severity := SeverityMedium
		if share > HighBottleneckShare {
			severity = SeverityHigh
		}
		found = append(found, Bottleneck{
			Phase:    p,
			Count:    count,
			Share:    share,
			Severity: severity,
		})
	}
	return found
}

// qualityMetrics rolls up test outcomes; items without recorded results
// are excluded from the denominators.
func qualityMetrics(items []*content.ContentItem) QualityMetrics {
	var m QualityMetrics
	for _, item := range items {
		if item.TestResults == nil {
			continue
		}
		m.PackagesWithTests++
		m.TotalTests += item.TestResults.Total
		m.PassedTests += item.TestResults.Passed
		m.FailedTests += item.TestResults.Failed
	}
	if m.TotalTests > 0 {
		m.SuccessRate = float64(m.PassedTests) / float64(m.TotalTests) * 100
	}
	return m
}

// recentTransitions collects change-log entries carrying explicit
// transition records, newest first, capped at limit.
func recentTransitions(items []*content.ContentItem, limit int) []Transition {
	var all []Transition
	for _, item := range items {
		for _, entry := range item.Collaboration.ChangeLog {
			if entry.Transition == nil {
				continue
			}
			all = append(all, Transition{
				PackageName: item.Name,
				Kind:        entry.Transition.Kind,
				FromPhase:   entry.Transition.FromPhase,
				ToPhase:     entry.Transition.ToPhase,
				Timestamp:   entry.Timestamp,
				Notes:       entry.Message,
			})
		}
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// averagePhaseTime computes the mean residence time per phase, counting
// only items that have transitioned out of the phase. Entry time for the
// initial requirement phase is the item's creation; for later phases it
// is the change-log entry that set the phase.
func averagePhaseTime(items []*content.ContentItem) map[content.Phase]time.Duration {
	totals := make(map[content.Phase]time.Duration)
	counts := make(map[content.Phase]int)

	for _, item := range items {
		entered := map[content.Phase]time.Time{
			content.PhaseRequirement: item.CreatedAt,
		}
		for _, entry := range item.Collaboration.ChangeLog {
			tr := entry.Transition
			if tr == nil || tr.Kind != content.TransitionPhase {
				continue
			}
			from := content.Phase(tr.FromPhase)
			to := content.Phase(tr.ToPhase)
			if enteredAt, ok := entered[from]; ok {
				totals[from] += entry.Timestamp.Sub(enteredAt)
				counts[from]++
				delete(entered, from)
			}
			entered[to] = entry.Timestamp
		}
	}

	avg := make(map[content.Phase]time.Duration, len(counts))
	for phase, total := range totals {
		avg[phase] = total / time.Duration(counts[phase])
	}
	return avg
}
