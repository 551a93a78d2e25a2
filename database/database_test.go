package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/database"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/logging"
)

type user struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

type userRepository struct {
	DB *gorm.DB
}

func memoryDSN(name string) string {
	return "file:" + name + "?mode=memory&cache=shared"
}

func TestBuilderValidation(t *testing.T) {
	_, err := database.NewBuilder().
		Add("default", sqlite.Open(memoryDSN(t.Name())), nil).
		Add("default", sqlite.Open(memoryDSN(t.Name())), nil).
		Add("broken", nil, nil).
		Add("negative", sqlite.Open(memoryDSN(t.Name())), func(o *database.DatabaseOptions) { o.MaxOpenConns = -1 }).
		Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already configured")
	assert.Contains(t, err.Error(), "Dialector")
	assert.Contains(t, err.Error(), "MaxOpenConns")
}

func TestDatabaseRegisteredAsFactoryComponent(t *testing.T) {
	rt := core.NewRuntime()
	require.NoError(t, rt.Apply(
		core.WithLogging(logging.Options{Level: logging.LogLevelError}),
		database.New(
			database.WithDatabase(database.DefaultName, sqlite.Open(memoryDSN(t.Name())), func(o *database.DatabaseOptions) {
				o.Models = []any{&user{}}
				o.MaxOpenConns = 1
			}),
			database.WithDatabase("reporting", sqlite.Open(memoryDSN(t.Name()+"_reporting")), func(o *database.DatabaseOptions) {
				o.Lazy = true
			}),
		),
		core.Provide(&userRepository{}, di.WithAutowire(di.AutowireByType)),
	))

	typ, err := rt.Container.TypeOf(database.ComponentName(database.DefaultName))
	require.NoError(t, err)
	assert.Equal(t, di.TypeOf[*gorm.DB](), typ)

	require.NoError(t, rt.Refresh(context.Background()))

	factory, err := di.ResolveNamed[*database.DBFactory](rt.Container, di.FactoryPrefix+database.ComponentName(database.DefaultName))
	require.NoError(t, err)
	assert.True(t, factory.Created())

	lazy, err := di.ResolveNamed[*database.DBFactory](rt.Container, di.FactoryPrefix+database.ComponentName("reporting"))
	require.NoError(t, err)
	assert.False(t, lazy.Created())

	// 默认数据库按类型注入，模型已迁移
	repo, err := di.Resolve[*userRepository](rt.Container)
	require.NoError(t, err)
	require.NotNil(t, repo.DB)
	require.NoError(t, repo.DB.Create(&user{Name: "alice"}).Error)

	var found user
	require.NoError(t, repo.DB.First(&found, "name = ?", "alice").Error)
	assert.Equal(t, "alice", found.Name)

	reporting, err := di.ResolveNamed[*gorm.DB](rt.Container, database.ComponentName("reporting"))
	require.NoError(t, err)
	assert.NotSame(t, repo.DB, reporting)
	assert.True(t, lazy.Created())

	sqlDB, err := repo.DB.DB()
	require.NoError(t, err)
	require.NoError(t, rt.Close(context.Background()))
	assert.False(t, factory.Created())
	assert.Error(t, sqlDB.Ping())
}
