package lobby

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "invalid_join_code", InvalidJoinCode.String())
	assert.Equal(t, "name_taken", NameTaken.String())
	assert.Equal(t, "resource_exhausted", ResourceExhausted.String())
	assert.Equal(t, "not_authorized", NotAuthorized.String())
	assert.Equal(t, "not_found", NotFound.String())
	assert.Equal(t, "invalid_name", InvalidName.String())
	assert.Equal(t, "kind(99)", Kind(99).String())
}

func TestKindOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("joining: %w", errNameTaken())
	k, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, NameTaken, k)
	assert.True(t, IsKind(err, NameTaken))
	assert.False(t, IsKind(err, NotFound))

	_, ok = KindOf(errors.New("disk full"))
	assert.False(t, ok)
}
