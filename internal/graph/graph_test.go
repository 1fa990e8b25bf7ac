package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dep(m *Migration, ids ...string) *Migration {
	for _, id := range ids {
		m.DependsOn[id] = struct{}{}
	}
	return m
}

func TestBuild_DuplicateID(t *testing.T) {
	a := NewMigration("0001", "a.sql", KindSQLPair)
	b := NewMigration("0001", "b.sql", KindSQLPair)

	_, err := Build([]*Migration{a, b}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate migration id")
}

func TestBuild_UnknownDependency(t *testing.T) {
	a := dep(NewMigration("0002", "a.sql", KindSQLPair), "0001")

	_, err := Build([]*Migration{a}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown id")
}

func TestBuild_Cycle(t *testing.T) {
	a := dep(NewMigration("a", "a.sql", KindSQLPair), "b")
	b := dep(NewMigration("b", "b.sql", KindSQLPair), "a")

	_, err := Build([]*Migration{a, b}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular dependency")
}

func TestBuild_GhostVertex(t *testing.T) {
	a := NewMigration("0001", "a.sql", KindSQLPair)
	g, err := Build([]*Migration{a}, map[string]struct{}{"0000": {}})
	require.NoError(t, err)

	ghost := g.Get("0000")
	require.NotNil(t, ghost)
	assert.True(t, ghost.Ghost)
}

func TestTopologicalOrder_DependencyThenFilename(t *testing.T) {
	a := NewMigration("0001", "a.sql", KindSQLPair)
	b := dep(NewMigration("0002", "b.sql", KindSQLPair), "0001")
	c := NewMigration("0000_independent", "c.sql", KindSQLPair)

	g, err := Build([]*Migration{a, b, c}, nil)
	require.NoError(t, err)

	order, err := g.TopologicalOrder(g.IDs())
	require.NoError(t, err)

	// "0000_independent" sorts before "0001" lexicographically and has no
	// dependencies, so it is ready from the start and wins the tie-break.
	assert.Equal(t, []string{"0000_independent", "0001", "0002"}, order)
}

func TestAncestorsDescendants(t *testing.T) {
	a := NewMigration("a", "a.sql", KindSQLPair)
	b := dep(NewMigration("b", "b.sql", KindSQLPair), "a")
	c := dep(NewMigration("c", "c.sql", KindSQLPair), "b")

	g, err := Build([]*Migration{a, b, c}, nil)
	require.NoError(t, err)

	assert.Equal(t, map[string]struct{}{"a": {}}, g.Ancestors("b"))
	assert.Equal(t, map[string]struct{}{"a": {}, "b": {}}, g.Ancestors("c"))

	assert.Equal(t, map[string]struct{}{"b": {}, "c": {}}, g.Descendants("a"))
	assert.Equal(t, map[string]struct{}{"c": {}}, g.Descendants("b"))
}
