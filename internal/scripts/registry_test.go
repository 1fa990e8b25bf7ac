package scripts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoyo-db/yoyo/internal/graph"
)

func TestRegistry_ForSourceHint_SortedByID(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Registration{ID: "b", SourceHint: "pkg:app:migrations", Build: func(c *Collector) {}})
	reg.Register(Registration{ID: "a", SourceHint: "pkg:app:migrations", Build: func(c *Collector) {}})
	reg.Register(Registration{ID: "c", SourceHint: "pkg:other:migrations", Build: func(c *Collector) {}})

	got := reg.ForSourceHint("pkg:app:migrations")
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestRegistration_Build_NoBuildFunc(t *testing.T) {
	r := Registration{ID: "missing"}
	_, err := r.Build()
	assert.Error(t, err)
}

func TestRegistration_Build_StepsAndDependsOn(t *testing.T) {
	r := Registration{
		ID:            "0001_backfill",
		SourceHint:    "pkg:app:migrations",
		DependsOn:     []string{"0000_create_table"},
		Transactional: true,
		Build: func(c *Collector) {
			c.Step(graph.SQLPayload("UPDATE t SET v = 1"), graph.SQLPayload("UPDATE t SET v = 0"), graph.IgnoreNone)
			c.Group(graph.IgnoreNone, func(inner *Collector) {
				inner.Step(graph.SQLPayload("UPDATE t SET w = 1"), graph.SQLPayload("UPDATE t SET w = 0"), graph.IgnoreNone)
			})
		},
	}

	m, err := r.Build()
	require.NoError(t, err)
	assert.Equal(t, "0001_backfill", m.ID)
	assert.Equal(t, graph.KindInlineCodeScript, m.Kind)
	assert.True(t, m.Transactional)
	_, ok := m.DependsOn["0000_create_table"]
	assert.True(t, ok)

	require.Len(t, m.Steps, 2)
	assert.False(t, m.Steps[0].IsGroup())
	assert.True(t, m.Steps[1].IsGroup())
	require.Len(t, m.Steps[1].Nested, 1)
}

func TestGlobalRegistry_RegisterAndRetrieve(t *testing.T) {
	Register(Registration{ID: "global-test", SourceHint: "pkg:app:x", Build: func(c *Collector) {}})

	found := Global().ForSourceHint("pkg:app:x")
	var ids []string
	for _, r := range found {
		ids = append(ids, r.ID)
	}
	assert.Contains(t, ids, "global-test")
}
