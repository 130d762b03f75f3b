package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ccrs/workflow-engine/pkg/models"
)

func TestNextStage_ApproveFollowsFirstTransition(t *testing.T) {
	stages := validStages()
	// Extra transitions beyond the first are informational; approve always
	// takes the first declared edge.
	stages[0].AllowedTransitions = []string{"Legal Review", "Approval"}

	next, ok := NextStage(stages, "Draft", models.ActionApprove)

	assert.True(t, ok)
	assert.Equal(t, "Legal Review", next)
}

func TestNextStage_ApproveAtTerminalStageCompletes(t *testing.T) {
	next, ok := NextStage(validStages(), "Signing", models.ActionApprove)

	assert.False(t, ok)
	assert.Empty(t, next)
}

func TestNextStage_RejectWalksBackInDeclarationOrder(t *testing.T) {
	next, ok := NextStage(validStages(), "Approval", models.ActionReject)

	assert.True(t, ok)
	assert.Equal(t, "Legal Review", next)
}

func TestNextStage_ReworkWalksBackInDeclarationOrder(t *testing.T) {
	next, ok := NextStage(validStages(), "Signing", models.ActionRework)

	assert.True(t, ok)
	assert.Equal(t, "Approval", next)
}

func TestNextStage_RejectAtFirstStageStaysPut(t *testing.T) {
	next, ok := NextStage(validStages(), "Draft", models.ActionReject)

	assert.True(t, ok)
	assert.Equal(t, "Draft", next)
}

func TestNextStage_UnknownCurrentStage(t *testing.T) {
	next, ok := NextStage(validStages(), "Ghost", models.ActionApprove)

	assert.False(t, ok)
	assert.Empty(t, next)
}

func TestNextStage_UnknownAction(t *testing.T) {
	next, ok := NextStage(validStages(), "Draft", models.StageActionType("escalate"))

	assert.False(t, ok)
	assert.Empty(t, next)
}

func TestNextStage_Deterministic(t *testing.T) {
	stages := validStages()

	first, ok := NextStage(stages, "Legal Review", models.ActionApprove)
	assert.True(t, ok)

	for range 10 {
		next, ok := NextStage(stages, "Legal Review", models.ActionApprove)
		assert.True(t, ok)
		assert.Equal(t, first, next)
	}
}
