package csrf_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokoadmin/internal/csrf"
)

func TestManager_IssueAndValidate(t *testing.T) {
	m := csrf.NewManager("secret", time.Hour)

	token, err := m.Issue("user-1", "delete42")
	require.NoError(t, err)
	assert.NoError(t, m.Validate(token, "user-1", "delete42"))
}

func TestManager_Rejects(t *testing.T) {
	m := csrf.NewManager("secret", time.Hour)
	token, err := m.Issue("user-1", "delete42")
	require.NoError(t, err)

	assert.ErrorIs(t, m.Validate(token, "user-1", "delete43"), csrf.ErrInvalidToken)
	assert.ErrorIs(t, m.Validate(token, "user-2", "delete42"), csrf.ErrInvalidToken)
	assert.ErrorIs(t, m.Validate("", "user-1", "delete42"), csrf.ErrInvalidToken)
	assert.ErrorIs(t, m.Validate("not.a.token", "user-1", "delete42"), csrf.ErrInvalidToken)

	other := csrf.NewManager("other-secret", time.Hour)
	assert.ErrorIs(t, other.Validate(token, "user-1", "delete42"), csrf.ErrInvalidToken)
}

func TestManager_Expired(t *testing.T) {
	m := csrf.NewManager("secret", -time.Minute)
	token, err := m.Issue("user-1", "delete42")
	require.NoError(t, err)
	assert.ErrorIs(t, m.Validate(token, "user-1", "delete42"), csrf.ErrInvalidToken)
}
