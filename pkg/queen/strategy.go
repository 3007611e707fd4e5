package queen

import (
	"context"
	"strings"

	"hive/pkg/config"
	"hive/pkg/hive"
)

// categoryKeywords maps task-text keywords to a work category, checked in
// order: analysis wins over qa wins over development when a task mentions
// several.
var categoryKeywords = []struct {
	category string
	words    []string
}{
	{"analysis", []string{"analysis", "analyze", "metrics", "performance", "report", "assessment", "evaluate", "measure", "profile", "benchmark"}},
	{"qa", []string{"test", "qa", "quality", "bug", "verify", "check", "validation", "review"}},
	{"development", []string{"code", "implement", "develop", "build", "create", "fix", "refactor", "optimize"}},
}

// categoryRole maps a category to the conventional agent name fragment.
var categoryRole = map[string]string{
	"analysis":    "analyst",
	"qa":          "qa",
	"development": "developer",
}

// selectBee picks the agent for a task per the configured strategy.
// Unknown strategies warn once and behave as balanced.
func (q *Queen) selectBee(ctx context.Context, task hive.Task) (string, error) {
	candidates, err := q.eligibleBees(ctx)
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		return "", &hive.WorkflowError{Op: "auto_assign", Reason: "no eligible bees"}
	}

	switch q.cfg.AssignmentStrategy {
	case config.StrategyBalanced:
		return pickBalanced(candidates), nil
	case config.StrategySpecialized:
		return pickSpecialized(candidates, task), nil
	case config.StrategyPriority:
		return pickByPriority(candidates, task), nil
	default:
		q.warnUnknownStrategy(ctx, q.cfg.AssignmentStrategy)
		return pickBalanced(candidates), nil
	}
}

// eligibleBees returns the configured agents able to take work, in
// configured order. Offline and maintenance agents are excluded.
func (q *Queen) eligibleBees(ctx context.Context) ([]hive.BeeState, error) {
	bees, err := q.bees.Bees(ctx, q.cfg.AgentNames...)
	if err != nil {
		return nil, err
	}
	out := make([]hive.BeeState, 0, len(bees))
	for _, b := range bees {
		if b.Status == hive.BeeOffline || b.Status == hive.BeeMaintenance {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// pickBalanced returns the lowest-workload candidate. Ties go to the first
// in configured order: candidates arrive in that order and only a strictly
// lower score displaces the incumbent.
func pickBalanced(candidates []hive.BeeState) string {
	best := candidates[0]
	for _, b := range candidates[1:] {
		if b.WorkloadScore < best.WorkloadScore {
			best = b
		}
	}
	return best.Name
}

// pickSpecialized routes by task category. A candidate matches through its
// capability set or its name; with no category or no specialist the choice
// falls back to balanced.
func pickSpecialized(candidates []hive.BeeState, task hive.Task) string {
	category := categorize(taskText(task))
	if category == "" {
		return pickBalanced(candidates)
	}
	var specialists []hive.BeeState
	for _, b := range candidates {
		if beeMatchesCategory(b, category) {
			specialists = append(specialists, b)
		}
	}
	if len(specialists) == 0 {
		return pickBalanced(candidates)
	}
	return pickBalanced(specialists)
}

// pickByPriority gives critical and high tasks to the best performer;
// everything else balances.
func pickByPriority(candidates []hive.BeeState, task hive.Task) string {
	if task.Priority != hive.PriorityCritical && task.Priority != hive.PriorityHigh {
		return pickBalanced(candidates)
	}
	best := candidates[0]
	for _, b := range candidates[1:] {
		if b.PerformanceScore > best.PerformanceScore {
			best = b
		}
	}
	return best.Name
}

// categorize returns the first category whose keyword list matches text,
// or the empty string.
func categorize(text string) string {
	for _, bucket := range categoryKeywords {
		for _, word := range bucket.words {
			if strings.Contains(text, word) {
				return bucket.category
			}
		}
	}
	return ""
}

// beeMatchesCategory checks capabilities first, then the naming
// convention.
func beeMatchesCategory(b hive.BeeState, category string) bool {
	role := categoryRole[category]
	for _, c := range b.Capabilities {
		if strings.EqualFold(c, category) || strings.EqualFold(c, role) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(b.Name), role)
}
