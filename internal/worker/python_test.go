package worker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBrainPreambleEmbedsDBPath(t *testing.T) {
	out := brainPreamble("/data/brain.db")
	assert.True(t, strings.Contains(out, `_Brain("/data/brain.db")`))
	assert.True(t, strings.Contains(out, "mode=ro"), "the brain shim must open the store read-only")
	assert.True(t, strings.Contains(out, "import sqlite3"))
}
