package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGettersMatchInfo(t *testing.T) {
	v, c, d := Info()
	assert.NotEmpty(t, v)
	assert.Equal(t, v, GetVersion())
	assert.Equal(t, c, GetCommit())
	assert.Equal(t, d, GetDate())
}

func TestString(t *testing.T) {
	s := String()
	assert.Contains(t, s, "version="+GetVersion())
	assert.Contains(t, s, "commit=")
	assert.Contains(t, s, "date=")
}

func TestFields(t *testing.T) {
	fields := Fields()
	assert.Equal(t, GetVersion(), fields["version"])
	assert.Equal(t, GetCommit(), fields["commit"])
	assert.Equal(t, GetDate(), fields["build_date"])
}
