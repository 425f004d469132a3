package turn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTryLock(t *testing.T) {
	var l tryLock

	assert.NoError(t, l.Lock())
	assert.ErrorIs(t, l.Lock(), errAlreadyLocked)

	l.Unlock()
	assert.NoError(t, l.Lock())
}
