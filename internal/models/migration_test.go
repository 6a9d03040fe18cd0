package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrationResult_MergeConcatenates(t *testing.T) {
	a := NewMigrationResult()
	a.Succeeded = append(a.Succeeded, "Sales")
	a.ShareSuccessCount = 2
	a.AddError(errors.New("batch 1 failed"))

	b := NewMigrationResult()
	b.Succeeded = append(b.Succeeded, "Sales")
	b.Failed = append(b.Failed, "Ops")
	b.ShareFailCount = 1
	b.AddError(errors.New("batch 2 failed"))

	a.Merge(b)
	assert.Equal(t, []string{"Sales", "Sales"}, a.Succeeded, "no de-duplication")
	assert.Equal(t, []string{"Ops"}, a.Failed)
	assert.Equal(t, 2, a.ShareSuccessCount)
	assert.Equal(t, 1, a.ShareFailCount)
	assert.ErrorContains(t, a.Errors(), "batch 1 failed")
	assert.ErrorContains(t, a.Errors(), "batch 2 failed")
}

func TestMigrationResult_NoErrors(t *testing.T) {
	r := NewMigrationResult()
	r.AddError(nil)
	assert.NoError(t, r.Errors())
	r.Merge(nil)
	assert.Empty(t, r.Succeeded)
}

func TestMigrationPreview_Counts(t *testing.T) {
	p := &MigrationPreview{Resources: map[string][]MigrationResource{
		"groups": {{Name: "a", Action: ActionCreate}, {Name: "Everyone", Action: ActionSkipReserved}},
		"users":  {{Name: "u", Action: ActionSkipExists}},
	}}
	create, skip := p.Counts()
	assert.Equal(t, 1, create)
	assert.Equal(t, 2, skip)
}
