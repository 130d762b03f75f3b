// Package workflow implements the contract workflow engine: template
// validation, stage transition resolution, stage authorization and the
// instance state machine.
package workflow

import (
	"fmt"
	"strings"

	"github.com/ccrs/workflow-engine/pkg/models"
)

// ValidateTemplate checks a proposed ordered stage list against the
// structural rules a template must satisfy before it may be published. All
// rules are evaluated so every violation is reported in one pass; an empty
// result means the template is publishable.
func ValidateTemplate(stages []models.Stage) []string {
	if len(stages) == 0 {
		return []string{"Workflow must include at least one stage."}
	}

	errs := make([]string, 0)

	names := make([]string, len(stages))
	seen := make(map[string]bool, len(stages))
	duplicate := false

	for i, stage := range stages {
		names[i] = stage.Name
		if seen[stage.Name] {
			duplicate = true
		}

		seen[stage.Name] = true
	}

	if duplicate {
		errs = append(errs, "Stage names must be unique.")
	}

	if stages[0].Type == models.StageTypeSigning {
		errs = append(errs, "First stage cannot be a signing stage.")
	}

	if !hasStageType(stages, models.StageTypeApproval) {
		errs = append(errs, "Workflow must include at least one approval stage.")
	}

	if !hasStageType(stages, models.StageTypeSigning) {
		errs = append(errs, "Workflow must include at least one signing stage.")
	}

	for _, stage := range stages {
		for _, next := range stage.AllowedTransitions {
			if !seen[next] {
				errs = append(errs, fmt.Sprintf("Stage '%s' has invalid transition to '%s'.", stage.Name, next))
			}
		}
	}

	if orphans := unreachableStages(stages); len(orphans) > 0 {
		errs = append(errs, "Orphan stages: "+strings.Join(orphans, ", "))
	}

	return errs
}

func hasStageType(stages []models.Stage, stageType models.StageType) bool {
	for _, stage := range stages {
		if stage.Type == stageType {
			return true
		}
	}

	return false
}

// unreachableStages walks the transition graph breadth-first from the first
// declared stage and returns every stage not visited, in declaration order.
func unreachableStages(stages []models.Stage) []string {
	transitions := make(map[string][]string, len(stages))
	for _, stage := range stages {
		transitions[stage.Name] = stage.AllowedTransitions
	}

	visited := make(map[string]bool, len(stages))
	queue := []string{stages[0].Name}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		if visited[node] {
			continue
		}

		visited[node] = true

		for _, next := range transitions[node] {
			if !visited[next] {
				queue = append(queue, next)
			}
		}
	}

	orphans := make([]string, 0)

	for _, stage := range stages {
		if !visited[stage.Name] {
			orphans = append(orphans, stage.Name)
		}
	}

	return orphans
}
