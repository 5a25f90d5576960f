package profiles

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/tenantrag/internal/tenant"
)

func setupDirectory(t *testing.T) *Directory {
	t.Helper()
	d, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, d.Close()) })
	return d
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(dir)
	require.NoError(t, err)
	defer d.Close()
	assert.Equal(t, filepath.Join(dir, DefaultFileName), d.Path())

	_, err = Open("")
	assert.Error(t, err)
}

func TestUpsertAndGet(t *testing.T) {
	d := setupDirectory(t)
	ctx := context.Background()
	key := tenant.NewKey("Acme Corp", "u1", "sales")

	e, err := d.Upsert(ctx, key, tenant.Profile{Name: "Asha", Email: "asha@acme.test"})
	require.NoError(t, err)
	assert.Equal(t, "acme_corp", e.Organization)
	assert.False(t, e.CreatedAt.IsZero())

	got, err := d.Get(ctx, tenant.NewKey("acme_corp", "u1", ""))
	require.NoError(t, err)
	assert.Equal(t, tenant.Profile{Name: "Asha", Email: "asha@acme.test"}, got.Profile)

	// Empty attributes keep the stored value.
	_, err = d.Upsert(ctx, key, tenant.Profile{Contact: "+91 555 0100", Name: "Asha R"})
	require.NoError(t, err)
	got, err = d.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, tenant.Profile{Name: "Asha R", Contact: "+91 555 0100", Email: "asha@acme.test"}, got.Profile)
}

func TestGet_NotFound(t *testing.T) {
	d := setupDirectory(t)
	_, err := d.Get(context.Background(), tenant.NewKey("acme", "nobody", ""))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInvalidKey(t *testing.T) {
	d := setupDirectory(t)
	_, err := d.Upsert(context.Background(), tenant.NewKey("", "u1", ""), tenant.Profile{Name: "x"})
	assert.ErrorIs(t, err, tenant.ErrInvalidKey)
	_, err = d.Get(context.Background(), tenant.NewKey("acme", "", ""))
	assert.ErrorIs(t, err, tenant.ErrInvalidKey)
}

func TestList(t *testing.T) {
	d := setupDirectory(t)
	ctx := context.Background()
	for _, k := range []tenant.Key{
		tenant.NewKey("acme", "u2", ""),
		tenant.NewKey("acme", "u1", ""),
		tenant.NewKey("globex", "u9", ""),
	} {
		_, err := d.Upsert(ctx, k, tenant.Profile{Name: k.UserID})
		require.NoError(t, err)
	}

	acme, err := d.List(ctx, "Acme")
	require.NoError(t, err)
	require.Len(t, acme, 2)
	assert.Equal(t, "u1", acme[0].UserID)
	assert.Equal(t, "u2", acme[1].UserID)

	all, err := d.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := d.List(ctx, "initech")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestReopenKeepsProfiles(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(dir)
	require.NoError(t, err)
	_, err = d.Upsert(context.Background(), tenant.NewKey("acme", "u1", ""), tenant.Profile{Name: "Asha"})
	require.NoError(t, err)
	require.NoError(t, d.Close())

	d, err = Open(filepath.Join(dir, DefaultFileName))
	require.NoError(t, err)
	defer d.Close()
	got, err := d.Get(context.Background(), tenant.NewKey("acme", "u1", ""))
	require.NoError(t, err)
	assert.Equal(t, "Asha", got.Profile.Name)
}
