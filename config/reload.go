package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gocrud/ioc/logging"
)

// ReloadableConfiguration 可重载的配置。读取走当前快照，Reload 整体替换快照后通知回调
type ReloadableConfiguration struct {
	*configuration

	sources  []ConfigurationSource
	debounce time.Duration

	mu        sync.Mutex // 串行化 Reload
	cbMu      sync.RWMutex
	callbacks []func()
	logger    logging.Logger
}

// SetLogger 设置日志
func (c *ReloadableConfiguration) SetLogger(logger logging.Logger) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.logger = logger
}

func (c *ReloadableConfiguration) log() logging.Logger {
	c.cbMu.RLock()
	defer c.cbMu.RUnlock()
	if c.logger == nil {
		return logging.NewNopLogger()
	}
	return c.logger
}

// OnReload 注册重载回调
func (c *ReloadableConfiguration) OnReload(fn func()) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.callbacks = append(c.callbacks, fn)
}

// Reload 重新加载所有配置源；任一源失败时保留旧快照
func (c *ReloadableConfiguration) Reload() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := loadSources(c.sources)
	if err != nil {
		return err
	}
	c.store.Store(data)

	c.cbMu.RLock()
	callbacks := append([]func(){}, c.callbacks...)
	c.cbMu.RUnlock()
	for _, fn := range callbacks {
		fn()
	}
	return nil
}

// WatchedFiles 可被监听的文件源路径
func (c *ReloadableConfiguration) WatchedFiles() []string {
	var paths []string
	for _, source := range c.sources {
		if fs, ok := source.(FileSource); ok {
			paths = append(paths, fs.FilePath())
		}
	}
	return paths
}

// Watch 监听文件源变化并重载，阻塞直到 ctx 结束
func (c *ReloadableConfiguration) Watch(ctx context.Context) error {
	paths := c.WatchedFiles()
	if len(paths) == 0 {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	defer watcher.Close()

	// 监听目录而不是文件，编辑器的"写临时文件再改名"也能被捕获
	files := make(map[string]struct{}, len(paths))
	dirs := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("config: resolve %s: %w", p, err)
		}
		files[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("config: watch %s: %w", dir, err)
		}
	}

	logger := c.log()
	logger.Debug("watching configuration files", logging.Field{Key: "files", Value: paths})

	timer := time.NewTimer(c.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if _, hit := files[filepath.Clean(event.Name)]; !hit {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				timer.Reset(c.debounce)
			}
		case <-timer.C:
			if err := c.Reload(); err != nil {
				logger.Error("failed to reload configuration", logging.Field{Key: "error", Value: err})
				continue
			}
			logger.Info("configuration reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("configuration watcher error", logging.Field{Key: "error", Value: err})
		}
	}
}

// Watcher 将配置监听作为托管服务运行
type Watcher struct {
	Config *ReloadableConfiguration `di:"-"`
}

func (w *Watcher) Start(ctx context.Context) error {
	return w.Config.Watch(ctx)
}

func (w *Watcher) Stop(context.Context) error {
	return nil
}
