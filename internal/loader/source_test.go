package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoyo-db/yoyo/internal/graph"
	"github.com/yoyo-db/yoyo/internal/scripts"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoad_SQLPairWithRollback(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "0001_init.sql", "CREATE TABLE t(id INT);")
	writeFile(t, dir, "0001_init.rollback.sql", "DROP TABLE t;")
	writeFile(t, dir, "0002_alter.sql", "-- depends: 0001_init\nALTER TABLE t ADD c INT;")

	res, err := New(nil).Load(context.Background(), []string{dir})
	require.NoError(t, err)
	require.Len(t, res.Migrations, 2)

	byID := map[string]*graph.Migration{}
	for _, m := range res.Migrations {
		byID[m.ID] = m
	}

	m1 := byID["0001_init"]
	require.NotNil(t, m1)
	require.Len(t, m1.Steps, 1)
	rb, isSQL := m1.Steps[0].Rollback.SQL()
	require.True(t, isSQL)
	assert.Equal(t, "DROP TABLE t", rb)

	m2 := byID["0002_alter"]
	require.NotNil(t, m2)
	assert.Contains(t, m2.DependsOn, "0001_init")
	applySQL, isSQL := m2.Steps[0].Apply.SQL()
	require.True(t, isSQL)
	assert.NotContains(t, applySQL, "depends:")
	assert.Equal(t, "ALTER TABLE t ADD c INT", applySQL)
}

func TestLoad_PostApplyNotInGraph(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "0001_init.sql", "CREATE TABLE t(id INT);")
	writeFile(t, dir, "post-apply.sql", "ANALYZE t;")

	res, err := New(nil).Load(context.Background(), []string{dir})
	require.NoError(t, err)
	require.Len(t, res.Migrations, 1)
	require.Len(t, res.PostApply, 1)
	assert.Equal(t, "post-apply", res.PostApply[0].ID)
}

func TestLoad_DuplicateIDAcrossDirs(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()
	writeFile(t, dir1, "0001.sql", "CREATE TABLE t(id INT);")
	writeFile(t, dir2, "0001.sql", "CREATE TABLE u(id INT);")

	_, err := New(nil).Load(context.Background(), []string{dir1, dir2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already loaded")
}

func TestLoad_CodeScriptRegistration(t *testing.T) {
	dir := t.TempDir()
	reg := scripts.NewRegistry()
	reg.Register(scripts.Registration{
		ID:            "0001_seed",
		SourceHint:    dir,
		Transactional: true,
		Build: func(c *scripts.Collector) {
			c.Step(graph.CallablePayload(func(conn graph.Conn) error {
				return conn.ExecContext("INSERT INTO t VALUES (1)")
			}), graph.Payload{}, graph.IgnoreNone)
		},
	})

	res, err := New(reg).Load(context.Background(), []string{dir})
	require.NoError(t, err)
	require.Len(t, res.Migrations, 1)
	assert.Equal(t, "0001_seed", res.Migrations[0].ID)
	assert.Equal(t, graph.KindInlineCodeScript, res.Migrations[0].Kind)
}

func TestLoad_EmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	res, err := New(nil).Load(context.Background(), []string{dir})
	require.NoError(t, err)
	assert.Empty(t, res.Migrations)
}
