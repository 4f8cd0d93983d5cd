package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dreamforge/internal/apperr"
	"github.com/ternarybob/dreamforge/internal/common"
	"github.com/ternarybob/dreamforge/internal/models"
	"github.com/ternarybob/dreamforge/internal/storage/sqlite"
	"github.com/ternarybob/dreamforge/internal/store"
)

func setupRegistryTestRepo(t *testing.T) store.Repository {
	t.Helper()
	config := &common.SQLiteConfig{Path: t.TempDir() + "/registry.db", Environment: "test"}
	db, err := sqlite.NewSQLiteDB(arbor.NewLogger(), config)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlite.NewRepository(db)
}

func TestResolve_ExplicitModelIDWhenEligible(t *testing.T) {
	repo := setupRegistryTestRepo(t)
	ctx := context.Background()

	m := &models.Model{Name: "sdxl-base", Kind: defaultKind, Version: "1.0", LocalPath: "/models/sdxl-base"}
	require.NoError(t, repo.UpsertModel(ctx, m))
	require.NoError(t, repo.MarkModelInstalled(ctx, m.ID, "/models/sdxl-base", nil))
	require.NoError(t, repo.SetModelEnabled(ctx, m.ID, true))

	reg := New(repo, t.TempDir(), "")
	res, err := reg.Resolve(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, res.ModelID)
	assert.Equal(t, "registry", res.Source)
}

func TestResolve_IneligibleExplicitFallsBackToDefault(t *testing.T) {
	repo := setupRegistryTestRepo(t)
	ctx := context.Background()

	disabled := &models.Model{Name: "experimental", Kind: defaultKind, Version: "0.1", LocalPath: "/models/experimental"}
	require.NoError(t, repo.UpsertModel(ctx, disabled))
	require.NoError(t, repo.MarkModelInstalled(ctx, disabled.ID, "/models/experimental", nil))
	// left disabled

	def := &models.Model{Name: "sdxl-base", Kind: defaultKind, Version: "1.0", LocalPath: "/models/sdxl-base"}
	require.NoError(t, repo.UpsertModel(ctx, def))
	require.NoError(t, repo.MarkModelInstalled(ctx, def.ID, "/models/sdxl-base", nil))
	require.NoError(t, repo.SetModelEnabled(ctx, def.ID, true))

	reg := New(repo, t.TempDir(), "")
	res, err := reg.Resolve(ctx, disabled.ID)
	require.NoError(t, err)
	assert.Equal(t, def.ID, res.ModelID)
}

func TestResolve_NoEligibleModelFallsBackToEnvPath(t *testing.T) {
	repo := setupRegistryTestRepo(t)
	reg := New(repo, t.TempDir(), "/opt/fallback-model")

	res, err := reg.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, res.ModelID)
	assert.Equal(t, "/opt/fallback-model", res.LocalPath)
	assert.Equal(t, "env_fallback", res.Source)
}

func TestResolve_NoEligibleModelNoFallbackIsInfraUnavailable(t *testing.T) {
	repo := setupRegistryTestRepo(t)
	reg := New(repo, t.TempDir(), "")

	_, err := reg.Resolve(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInfraUnavailable, apperr.As(err).Code)
}

func TestInstallAndLoadDescriptor(t *testing.T) {
	repo := setupRegistryTestRepo(t)
	ctx := context.Background()
	reg := New(repo, t.TempDir(), "")

	d := Descriptor{
		Name: "sdxl-base", Kind: defaultKind, Version: "1.0",
		SourceURI: "s3://models/sdxl-base", Capabilities: []string{"txt2img"},
	}
	m, err := reg.Install(ctx, d)
	require.NoError(t, err)
	assert.True(t, m.Installed)
	assert.True(t, m.Enabled)
	assert.NotEmpty(t, m.LocalPath)

	loaded, err := LoadDescriptor(m.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "sdxl-base", loaded.Name)
	assert.Equal(t, []string{"txt2img"}, loaded.Capabilities)
}
