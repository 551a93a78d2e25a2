package app_test

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	app "github.com/gocrud/ioc"
	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/cron"
	"github.com/gocrud/ioc/database"
	"github.com/gocrud/ioc/di"
	"github.com/gocrud/ioc/metrics"
	"github.com/gocrud/ioc/web"
)

type visit struct {
	ID   uint `gorm:"primaryKey"`
	Path string
}

// visitService 业务服务：DB 按类型装配，Greeting 来自配置占位符
type visitService struct {
	DB       *gorm.DB
	Greeting string
}

func (s *visitService) Record(path string) (int64, error) {
	if err := s.DB.Create(&visit{Path: path}).Error; err != nil {
		return 0, err
	}
	var count int64
	err := s.DB.Model(&visit{}).Count(&count).Error
	return count, err
}

type pingController struct {
	svc *visitService
}

func newPingController(svc *visitService) *pingController {
	return &pingController{svc: svc}
}

func (c *pingController) MountRoutes(r gin.IRouter) {
	r.GET("/ping", func(ctx *gin.Context) {
		if _, err := c.svc.Record(ctx.Request.URL.Path); err != nil {
			_ = ctx.Error(err)
			ctx.Status(http.StatusInternalServerError)
			return
		}
		ctx.String(http.StatusOK, c.svc.Greeting)
	})
}

// purgeJob 定时任务组件
type purgeJob struct {
	DB *gorm.DB
}

func (j *purgeJob) Spec() string { return "@daily" }
func (j *purgeJob) Run(context.Context) error {
	return j.DB.Where("1 = 1").Delete(&visit{}).Error
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  name: integration
http:
  greeting: "pong: ${app.name}"
logging:
  level: error
`), 0o600))
	return path
}

func TestIntegration(t *testing.T) {
	rt, err := app.New(
		config.Load(writeConfig(t)),
		metrics.Enable(),
		database.New(database.WithDatabase(database.DefaultName,
			sqlite.Open("file:integration?mode=memory&cache=shared"),
			func(o *database.DatabaseOptions) {
				o.Models = []any{&visit{}}
				o.MaxOpenConns = 1
			})),
		core.ProvideNamed("visitService", &visitService{},
			di.WithAutowire(di.AutowireByType),
			di.WithProperty("Greeting", "${http.greeting}")),
		cron.New(),
		core.ProvideNamed("purgeJob", &purgeJob{}, di.WithAutowire(di.AutowireByType)),
		web.New(
			web.WithHost("127.0.0.1"),
			web.WithPort(0),
			web.WithControllers(newPingController),
			web.WithMetrics("/metrics"),
		),
	)
	require.NoError(t, err)
	require.NoError(t, rt.Refresh(context.Background()))
	defer rt.Close(context.Background())

	host, err := di.ResolveNamed[*web.Host](rt.Container, web.HostComponentName)
	require.NoError(t, err)
	select {
	case <-host.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("web host not ready")
	}

	resp, err := http.Get("http://" + host.Address() + "/ping")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong: integration", string(body))

	svc, err := di.Resolve[*visitService](rt.Container)
	require.NoError(t, err)
	count, err := svc.Record("/direct")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	scheduler, err := di.ResolveNamed[*cron.Scheduler](rt.Container, cron.SchedulerComponentName)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return !scheduler.Next("purgeJob").IsZero() }, time.Second, 5*time.Millisecond)
	require.NoError(t, scheduler.Trigger("purgeJob"))

	var remaining int64
	require.NoError(t, svc.DB.Model(&visit{}).Count(&remaining).Error)
	assert.Zero(t, remaining)

	resp, err = http.Get("http://" + host.Address() + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `ioc_container_components_created_total`)
}

// hostedWorker 阻塞直到 Stop
type hostedWorker struct {
	started chan struct{}
	stopped chan struct{}
	stopCh  chan struct{}
}

func (w *hostedWorker) Start(context.Context) error {
	close(w.started)
	<-w.stopCh
	return nil
}

func (w *hostedWorker) Stop(context.Context) error {
	close(w.stopCh)
	close(w.stopped)
	return nil
}

func TestHostedService(t *testing.T) {
	worker := &hostedWorker{
		started: make(chan struct{}),
		stopped: make(chan struct{}),
		stopCh:  make(chan struct{}),
	}
	rt, err := app.New(core.WithHostedService(worker))
	require.NoError(t, err)
	require.NoError(t, rt.Refresh(context.Background()))

	select {
	case <-worker.started:
	case <-time.After(time.Second):
		t.Fatal("worker should be started")
	}

	require.NoError(t, rt.Close(context.Background()))
	select {
	case <-worker.stopped:
	default:
		t.Fatal("worker should be stopped")
	}
}
