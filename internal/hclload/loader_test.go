package hclload

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/taskgridgo/internal/config"
)

func writeGrid(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return dir
}

func loadOne(t *testing.T, hcl string) *config.GraphDef {
	t.Helper()
	dir := writeGrid(t, map[string]string{"main.hcl": hcl})
	model, err := NewLoader().Load(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, model.Graphs, 1)
	return model.Graphs[0]
}

func TestLoadFullGraph(t *testing.T) {
	def := loadOne(t, `
		graph "session" {
			failure_policy       = "best-effort"
			requires_all_default = false

			node "question" "root" {
				priority = 1
				content  = "what changed?"
			}

			node "task" "fetch" {
				priority     = 5
				depends_on   = ["question.root"]
				requires_all = true
				content      = { url = "https://example.com", retries = 3 }
			}

			node "task" "bare" {}
		}
	`)

	assert.Equal(t, "session", def.Name)
	assert.Equal(t, "best-effort", def.FailurePolicy)
	assert.False(t, def.RequiresAllDefault)
	require.Len(t, def.Nodes, 3)

	root := def.Nodes[0]
	assert.Equal(t, "question.root", root.ID())
	assert.Equal(t, 1, root.Priority)
	assert.Equal(t, "what changed?", root.Content)
	assert.Nil(t, root.RequiresAll)

	fetch := def.Nodes[1]
	assert.Equal(t, []string{"question.root"}, fetch.DependsOn)
	require.NotNil(t, fetch.RequiresAll)
	assert.True(t, *fetch.RequiresAll)
	assert.Equal(t, map[string]any{"url": "https://example.com", "retries": float64(3)}, fetch.Content)

	bare := def.Nodes[2]
	assert.Zero(t, bare.Priority)
	assert.Nil(t, bare.Content, "omitted content stays nil")
}

func TestLoadDefaults(t *testing.T) {
	def := loadOne(t, `
		graph "plain" {
			node "task" "a" {}
		}
	`)
	assert.Empty(t, def.FailurePolicy)
	assert.True(t, def.RequiresAllDefault)
}

func TestLoadMergesDirectories(t *testing.T) {
	dir := writeGrid(t, map[string]string{
		"a.hcl": `graph "a" {
			node "task" "n" {}
		}`,
		"nested/b.hcl": `graph "b" {
			node "task" "n" {}
		}`,
		"ignored.txt":  `not hcl`,
	})
	model, err := NewLoader().Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, model.Graphs, 2)
}

func TestLoadMissingPathIsEmpty(t *testing.T) {
	model, err := NewLoader().Load(context.Background(), "/does/not/exist")
	require.NoError(t, err)
	assert.Empty(t, model.Graphs)
}

func TestLoadRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate graph name", func(t *testing.T) {
		dir := writeGrid(t, map[string]string{
			"a.hcl": `graph "dup" {
				node "task" "a" {}
			}`,
			"b.hcl": `graph "dup" {
				node "task" "b" {}
			}`,
		})
		_, err := NewLoader().Load(ctx, dir)
		assert.ErrorContains(t, err, "already defined")
	})

	t.Run("duplicate node id", func(t *testing.T) {
		dir := writeGrid(t, map[string]string{"a.hcl": `
			graph "g" {
				node "task" "a" {}
				node "task" "a" {}
			}
		`})
		_, err := NewLoader().Load(ctx, dir)
		assert.ErrorContains(t, err, "node 'task.a' defined twice")
	})

	t.Run("invalid kind", func(t *testing.T) {
		dir := writeGrid(t, map[string]string{"a.hcl": `graph "g" {
			node "widget" "a" {}
		}`})
		_, err := NewLoader().Load(ctx, dir)
		assert.ErrorContains(t, err, "unknown node kind")
	})

	t.Run("invalid failure policy", func(t *testing.T) {
		dir := writeGrid(t, map[string]string{"a.hcl": `
			graph "g" {
				failure_policy = "shrug"
				node "task" "a" {}
			}
		`})
		_, err := NewLoader().Load(ctx, dir)
		assert.ErrorContains(t, err, "unknown failure policy")
	})
}
