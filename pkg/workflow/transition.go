package workflow

import "github.com/ccrs/workflow-engine/pkg/models"

// NextStage computes the stage an instance moves to when an actor takes the
// given action at currentStage. It returns ("", false) when the action
// completes the workflow (approve at a stage with no allowed transitions) or
// when currentStage does not exist in the stage list.
//
// Reject and rework deliberately walk back one position in template
// declaration order rather than along reversed transition edges; at the first
// stage they are a no-op that stays put. This mirrors how the product defines
// rework, so it is declared behavior, not a traversal shortcut.
func NextStage(stages []models.Stage, currentStage string, action models.StageActionType) (string, bool) {
	currentIdx := -1

	for i := range stages {
		if stages[i].Name == currentStage {
			currentIdx = i

			break
		}
	}

	if currentIdx < 0 {
		return "", false
	}

	switch action {
	case models.ActionApprove:
		target := stages[currentIdx].ApproveTarget()
		if target == "" {
			return "", false
		}

		return target, true
	case models.ActionReject, models.ActionRework:
		if currentIdx > 0 {
			return stages[currentIdx-1].Name, true
		}

		return currentStage, true
	default:
		return "", false
	}
}
