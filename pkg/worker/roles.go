package worker

import "strings"

// Role describes a worker specialty: the work category the scheduler
// routes on plus the capabilities advertised in the registry.
type Role struct {
	Name         string
	Specialty    string
	Capabilities []string
}

// The closed set of worker roles. Behavior differences between roles live
// in this table, not in per-role types.
var (
	Developer = Role{
		Name:      "developer",
		Specialty: "development",
		Capabilities: []string{
			"development", "code_implementation", "refactoring", "debugging",
		},
	}
	QA = Role{
		Name:      "qa",
		Specialty: "qa",
		Capabilities: []string{
			"qa", "testing", "quality_assessment", "bug_verification",
		},
	}
	Analyst = Role{
		Name:      "analyst",
		Specialty: "analysis",
		Capabilities: []string{
			"analysis", "code_metrics", "performance_analysis", "report_generation",
		},
	}
)

// RoleFor returns the role conventionally attached to an agent name.
// Names containing "qa" run QA work, names containing "analyst" run
// analysis, and everything else develops.
func RoleFor(name string) Role {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "qa"):
		return QA
	case strings.Contains(lower, "analyst"):
		return Analyst
	default:
		return Developer
	}
}

// RoleNamed looks a role up by its name, for explicit overrides of the
// name convention.
func RoleNamed(name string) (Role, bool) {
	switch strings.ToLower(name) {
	case Developer.Name:
		return Developer, true
	case QA.Name:
		return QA, true
	case Analyst.Name:
		return Analyst, true
	default:
		return Role{}, false
	}
}
