package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-dispatch/internal/errs"
	"notification-dispatch/internal/logging"
	"notification-dispatch/internal/memstore"
	"notification-dispatch/internal/models"
)

// countingStore records how often the backing store is read.
type countingStore struct {
	*memstore.Store
	gets int
}

func (c *countingStore) GetTemplate(ctx context.Context, name string) (models.Template, error) {
	c.gets++
	return c.Store.GetTemplate(ctx, name)
}

func setup(t *testing.T) (*TemplateStore, *countingStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	next := &countingStore{Store: memstore.New()}
	return NewTemplateStore(client, next, time.Minute, logging.NewNop()), next, mr
}

func welcome() models.Template {
	return models.Template{Name: "welcome", Channel: models.ChannelEmail, Category: models.CategoryUser, Content: "Hi {{name}}", IsActive: true}
}

func TestGetTemplate_ReadThrough(t *testing.T) {
	c, next, mr := setup(t)
	ctx := context.Background()
	require.NoError(t, c.CreateTemplate(ctx, welcome()))

	first, err := c.GetTemplate(ctx, "welcome")
	require.NoError(t, err)
	second, err := c.GetTemplate(ctx, "welcome")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, next.gets)
	assert.True(t, mr.Exists(keyPrefix+"welcome"))
	assert.Equal(t, time.Minute, mr.TTL(keyPrefix+"welcome"))
}

func TestUpdateTemplate_Evicts(t *testing.T) {
	c, next, mr := setup(t)
	ctx := context.Background()
	require.NoError(t, c.CreateTemplate(ctx, welcome()))
	_, err := c.GetTemplate(ctx, "welcome")
	require.NoError(t, err)

	changed := welcome()
	changed.Content = "Hello {{name}}"
	require.NoError(t, c.UpdateTemplate(ctx, changed))
	assert.False(t, mr.Exists(keyPrefix+"welcome"))

	got, err := c.GetTemplate(ctx, "welcome")
	require.NoError(t, err)
	assert.Equal(t, "Hello {{name}}", got.Content)
	assert.Equal(t, 2, next.gets)
}

func TestDeleteTemplate_Evicts(t *testing.T) {
	c, _, mr := setup(t)
	ctx := context.Background()
	require.NoError(t, c.CreateTemplate(ctx, welcome()))
	_, err := c.GetTemplate(ctx, "welcome")
	require.NoError(t, err)

	require.NoError(t, c.DeleteTemplate(ctx, "welcome"))
	assert.False(t, mr.Exists(keyPrefix+"welcome"))

	_, err = c.GetTemplate(ctx, "welcome")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestGetTemplate_CorruptEntryFallsBack(t *testing.T) {
	c, next, mr := setup(t)
	ctx := context.Background()
	require.NoError(t, c.CreateTemplate(ctx, welcome()))
	require.NoError(t, mr.Set(keyPrefix+"welcome", "{not json"))

	got, err := c.GetTemplate(ctx, "welcome")
	require.NoError(t, err)
	assert.Equal(t, "welcome", got.Name)
	assert.Equal(t, 1, next.gets)
}

func TestGetTemplate_RedisDownFallsBack(t *testing.T) {
	c, next, mr := setup(t)
	ctx := context.Background()
	require.NoError(t, c.CreateTemplate(ctx, welcome()))
	mr.Close()

	got, err := c.GetTemplate(ctx, "welcome")
	require.NoError(t, err)
	assert.Equal(t, "welcome", got.Name)
	assert.Equal(t, 1, next.gets)
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := Connect(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	client.Close()

	mr.Close()
	_, err = Connect(context.Background(), mr.Addr(), "", 0)
	assert.Error(t, err)
}
