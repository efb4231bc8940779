package runtime

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/driftdb/chunkindex/schema"
)

func localConfig(t *testing.T) Config {
	dir := t.TempDir()
	return Config{
		MetadataPath:           filepath.Join(dir, "meta.db"),
		Backend:                "localfs",
		DataPath:               filepath.Join(dir, "data"),
		InqueryPartitionsLimit: 100,
	}
}

func TestNewLocalNode(t *testing.T) {
	node, err := New(localConfig(t), nil, prometheus.NewRegistry())
	require.NoError(t, err)
	defer node.Close()

	require.NotEmpty(t, node.ID)
	require.NotNil(t, node.Executor)
	require.NotNil(t, node.Writer)
	require.Equal(t, 100, node.PlanConfig().InqueryPartitionsLimit)

	// The stores are live, not stubs.
	_, err = node.MetadataStore().GetDataset(context.Background(), schema.DatasetRef{Name: "none"})
	require.ErrorIs(t, err, schema.ErrNotFound)
}

func TestTwoNodesAreIndependent(t *testing.T) {
	t.Log("the DI seam must allow independent instances; writes to one node's metadata are invisible to the other")

	a, err := New(localConfig(t), nil, prometheus.NewRegistry())
	require.NoError(t, err)
	defer a.Close()
	b, err := New(localConfig(t), nil, prometheus.NewRegistry())
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, a.Meta.PutDataset(ctx, schema.Dataset{
		Ref:     schema.DatasetRef{Name: "only-in-a"},
		Columns: []schema.ColumnDef{{Name: "id", KeyType: "long"}},
	}))

	_, err = a.MetadataStore().GetDataset(ctx, schema.DatasetRef{Name: "only-in-a"})
	require.NoError(t, err)
	_, err = b.MetadataStore().GetDataset(ctx, schema.DatasetRef{Name: "only-in-a"})
	require.ErrorIs(t, err, schema.ErrNotFound)
}

func TestConfigValidation(t *testing.T) {
	_, err := New(Config{}, nil, prometheus.NewRegistry())
	require.Error(t, err)

	cfg := localConfig(t)
	cfg.Backend = "tape"
	_, err = New(cfg, nil, prometheus.NewRegistry())
	require.Error(t, err)

	cfg = localConfig(t)
	cfg.InqueryPartitionsLimit = 0
	_, err = New(cfg, nil, prometheus.NewRegistry())
	require.Error(t, err)
}
