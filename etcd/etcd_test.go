package etcd_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/etcd"
	"github.com/gocrud/ioc/logging"
)

func TestBuilderValidation(t *testing.T) {
	_, err := etcd.NewBuilder().
		AddClient("default", nil).
		AddClient("default", nil).
		AddClient("broken", func(o *etcd.ClientOptions) { o.Endpoints = nil }).
		Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already configured")
	assert.Contains(t, err.Error(), "Endpoints")
}

func TestClientRegisteredAsFactoryComponent(t *testing.T) {
	rt := core.NewRuntime()
	require.NoError(t, rt.Apply(
		core.WithLogging(logging.Options{Level: logging.LogLevelError}),
		etcd.New(
			etcd.WithClient(etcd.DefaultName, func(o *etcd.ClientOptions) {
				o.Endpoints = []string{"127.0.0.1:23790"}
				o.DialTimeout = time.Second
			}),
			etcd.WithClient("registry"),
		),
	))

	// 只看类型不会创建客户端
	typ, err := rt.Container.TypeOf(etcd.ComponentName(etcd.DefaultName))
	require.NoError(t, err)
	assert.Equal(t, di.TypeOf[*clientv3.Client](), typ)

	require.NoError(t, rt.Refresh(context.Background()))

	factory, err := di.ResolveNamed[*etcd.ClientFactory](rt.Container, di.FactoryPrefix+etcd.ComponentName(etcd.DefaultName))
	require.NoError(t, err)
	assert.False(t, factory.Created())
	assert.Equal(t, []string{"127.0.0.1:23790"}, factory.Options().Endpoints)

	client, err := di.Resolve[*clientv3.Client](rt.Container)
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.True(t, factory.Created())

	again, err := rt.Container.GetComponent(etcd.ComponentName(etcd.DefaultName))
	require.NoError(t, err)
	assert.Same(t, client, again)

	require.NoError(t, rt.Close(context.Background()))
	assert.False(t, factory.Created())
}
