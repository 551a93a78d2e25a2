package mongodb_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
	"github.com/gocrud/ioc/mongodb"
)

type orderRepository struct {
	DB *mongo.Database
}

func TestBuilderValidation(t *testing.T) {
	_, err := mongodb.NewBuilder().
		Add("default", "mongodb://localhost:27017", nil).
		Add("default", "mongodb://localhost:27017", nil).
		Add("broken", "http://localhost", nil).
		Add("pool", "mongodb://localhost:27017", func(o *mongodb.MongoOptions) {
			o.MaxPoolSize = 5
			o.MinPoolSize = 10
		}).
		Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already configured")
	assert.Contains(t, err.Error(), "URI")
	assert.Contains(t, err.Error(), "MinPoolSize")
}

func TestClientsRegistered(t *testing.T) {
	rt := core.NewRuntime()
	require.NoError(t, rt.Apply(
		core.WithLogging(logging.Options{Level: logging.LogLevelError}),
		mongodb.New(
			// 不 Ping 时 Connect 不会真正建立连接
			mongodb.WithClient(mongodb.DefaultName, "mongodb://127.0.0.1:27999", func(o *mongodb.MongoOptions) {
				o.Database = "orders"
			}),
			mongodb.WithClient("audit", "mongodb://127.0.0.1:27998", func(o *mongodb.MongoOptions) {
				o.Lazy = true
			}),
		),
		core.Provide(&orderRepository{}, di.WithAutowire(di.AutowireByType)),
	))
	require.NoError(t, rt.Refresh(context.Background()))

	assert.True(t, rt.Container.ContainsSingleton(mongodb.ComponentName(mongodb.DefaultName)))
	assert.False(t, rt.Container.ContainsSingleton(mongodb.ComponentName("audit")))
	assert.False(t, rt.Container.ContainsComponent(mongodb.DatabaseComponentName("audit")))

	repo, err := di.Resolve[*orderRepository](rt.Container)
	require.NoError(t, err)
	require.NotNil(t, repo.DB)
	assert.Equal(t, "orders", repo.DB.Name())

	client, err := di.Resolve[*mongo.Client](rt.Container)
	require.NoError(t, err)
	assert.Same(t, client, repo.DB.Client())

	audit, err := di.ResolveNamed[*mongo.Client](rt.Container, mongodb.ComponentName("audit"))
	require.NoError(t, err)
	assert.NotSame(t, client, audit)

	require.NoError(t, rt.Close(context.Background()))
	assert.Error(t, client.Ping(context.Background(), nil))
}
