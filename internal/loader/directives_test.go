package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDirectives_Depends(t *testing.T) {
	d := ParseDirectives("-- depends: 0001 0002\nCREATE TABLE t(id INT);")
	assert.Equal(t, map[string]struct{}{"0001": {}, "0002": {}}, d.DependsOn)
	assert.True(t, d.Transactional)
	assert.False(t, d.TransactionalSeen)
}

func TestParseDirectives_TransactionalFalse(t *testing.T) {
	d := ParseDirectives("-- transactional: false\nCREATE DATABASE d;")
	assert.False(t, d.Transactional)
	assert.True(t, d.TransactionalSeen)
}

func TestParseDirectives_CaseInsensitive(t *testing.T) {
	d := ParseDirectives("-- TRANSACTIONAL: FALSE\nCREATE DATABASE d;")
	assert.False(t, d.Transactional)
}

func TestParseDirectives_AnywhereInFile(t *testing.T) {
	d := ParseDirectives("CREATE TABLE t(id INT);\n-- depends: 0001\n")
	assert.Contains(t, d.DependsOn, "0001")
}

func TestStripDirectiveComments_RemovesDependsAndTransactional(t *testing.T) {
	stmt := "-- depends: 0001\n-- transactional: false\nCREATE TABLE t(id INT)"
	assert.Equal(t, "CREATE TABLE t(id INT)", stripDirectiveComments(stmt))
}

func TestStripDirectiveComments_LeavesOrdinaryComments(t *testing.T) {
	stmt := "-- note: keep me\nCREATE TABLE t(id INT)"
	assert.Equal(t, stmt, stripDirectiveComments(stmt))
}
