package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ccrs/workflow-engine/pkg/models"
)

func validStages() []models.Stage {
	return []models.Stage{
		{
			Name:               "Draft",
			Type:               models.StageTypeDraft,
			Owners:             []models.PrincipalRef{models.RoleRef("Contract Manager")},
			AllowedTransitions: []string{"Legal Review"},
		},
		{
			Name:               "Legal Review",
			Type:               models.StageTypeReview,
			Approvers:          []models.PrincipalRef{models.RoleRef("Legal")},
			AllowedTransitions: []string{"Approval"},
		},
		{
			Name:               "Approval",
			Type:               models.StageTypeApproval,
			Approvers:          []models.PrincipalRef{models.RoleRef("Finance Director")},
			AllowedTransitions: []string{"Signing"},
		},
		{
			Name:               "Signing",
			Type:               models.StageTypeSigning,
			AllowedTransitions: []string{},
		},
	}
}

func TestValidateTemplate_ValidGraph(t *testing.T) {
	assert.Empty(t, ValidateTemplate(validStages()))
}

func TestValidateTemplate_EmptyStageList(t *testing.T) {
	errs := ValidateTemplate(nil)

	assert.Equal(t, []string{"Workflow must include at least one stage."}, errs)
}

func TestValidateTemplate_DuplicateStageNames(t *testing.T) {
	stages := validStages()
	stages[2].Name = "Draft"

	errs := ValidateTemplate(stages)

	assert.Contains(t, errs, "Stage names must be unique.")
}

func TestValidateTemplate_FirstStageSigning(t *testing.T) {
	stages := []models.Stage{
		{Name: "Signing", Type: models.StageTypeSigning, AllowedTransitions: []string{"Approval"}},
		{Name: "Approval", Type: models.StageTypeApproval, AllowedTransitions: []string{}},
	}

	errs := ValidateTemplate(stages)

	assert.Contains(t, errs, "First stage cannot be a signing stage.")
}

func TestValidateTemplate_MissingRequiredStageTypes(t *testing.T) {
	stages := []models.Stage{
		{Name: "Draft", Type: models.StageTypeDraft, AllowedTransitions: []string{"Review"}},
		{Name: "Review", Type: models.StageTypeReview, AllowedTransitions: []string{}},
	}

	errs := ValidateTemplate(stages)

	assert.Contains(t, errs, "Workflow must include at least one approval stage.")
	assert.Contains(t, errs, "Workflow must include at least one signing stage.")
}

func TestValidateTemplate_TransitionToUnknownStage(t *testing.T) {
	stages := validStages()
	stages[0].AllowedTransitions = []string{"Nonexistent"}

	errs := ValidateTemplate(stages)

	assert.Contains(t, errs, "Stage 'Draft' has invalid transition to 'Nonexistent'.")
}

func TestValidateTemplate_OrphanStages(t *testing.T) {
	stages := validStages()
	// Cut the edge into Approval: both Approval and Signing become unreachable.
	stages[1].AllowedTransitions = []string{}

	errs := ValidateTemplate(stages)

	assert.Contains(t, errs, "Orphan stages: Approval, Signing")
}

func TestValidateTemplate_CycleIsReachable(t *testing.T) {
	stages := validStages()
	// A back-edge must not confuse the reachability walk.
	stages[2].AllowedTransitions = []string{"Signing", "Legal Review"}

	assert.Empty(t, ValidateTemplate(stages))
}

func TestValidateTemplate_AllViolationsReportedTogether(t *testing.T) {
	stages := []models.Stage{
		{Name: "Signing", Type: models.StageTypeSigning, AllowedTransitions: []string{"Ghost"}},
		{Name: "Island", Type: models.StageTypeReview, AllowedTransitions: []string{}},
	}

	errs := ValidateTemplate(stages)

	assert.Contains(t, errs, "First stage cannot be a signing stage.")
	assert.Contains(t, errs, "Workflow must include at least one approval stage.")
	assert.Contains(t, errs, "Stage 'Signing' has invalid transition to 'Ghost'.")
	assert.Contains(t, errs, "Orphan stages: Island")
}
