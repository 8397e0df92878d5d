package evalerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Format(t *testing.T) {
	err := New(ErrDanglingDependency, "tasks[4]", "label %q was skipped", "lint")
	assert.Equal(t, `dangling dependency at tasks[4]: label "lint" was skipped`, err.Error())

	noPath := New(ErrUngatedDeployment, "", "no dependencies")
	assert.Equal(t, "ungated deployment: no dependencies", noPath.Error())
}

func TestError_Is(t *testing.T) {
	err := fmt.Errorf("assembling: %w", New(ErrUndeclaredVariable, "tasks[0]", "x"))
	assert.True(t, errors.Is(err, ErrUndeclaredVariable))
	assert.False(t, errors.Is(err, ErrDanglingDependency))
	assert.Equal(t, "undeclared_variable", KindName(err))
	assert.Equal(t, "internal", KindName(errors.New("boom")))
}

func TestIsSoft(t *testing.T) {
	assert.True(t, IsSoft(New(ErrUnknownClassification, "", "github-issue")))
	assert.False(t, IsSoft(New(ErrInvalidTemplate, "", "bad")))
	assert.False(t, IsSoft(nil))
}
