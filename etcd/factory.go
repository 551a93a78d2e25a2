package etcd

import (
	"fmt"
	"reflect"
	"sync"

	clientv3 "go.etcd.io/etcd/client/v3"
)

var clientType = reflect.TypeOf((*clientv3.Client)(nil))

// ClientFactory 工厂组件：按名称获取得到 *clientv3.Client，"&" 前缀得到工厂本身。
// 客户端在第一次获取时创建，容器销毁工厂时关闭
type ClientFactory struct {
	opts ClientOptions

	mu     sync.Mutex
	client *clientv3.Client
}

// NewClientFactory 创建客户端工厂
func NewClientFactory(opts ClientOptions) *ClientFactory {
	return &ClientFactory{opts: opts}
}

func (f *ClientFactory) ObjectType() reflect.Type { return clientType }
func (f *ClientFactory) IsSingleton() bool        { return true }
func (f *ClientFactory) Options() ClientOptions   { return f.opts }

// Object 创建或返回已创建的客户端
func (f *ClientFactory) Object() (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client != nil {
		return f.client, nil
	}
	client, err := clientv3.New(f.opts.toConfig())
	if err != nil {
		return nil, fmt.Errorf("etcd: failed to create client '%s': %w", f.opts.Name, err)
	}
	f.client = client
	return client, nil
}

// Created 客户端是否已经创建
func (f *ClientFactory) Created() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.client != nil
}

// Destroy 关闭客户端
func (f *ClientFactory) Destroy() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client == nil {
		return nil
	}
	err := f.client.Close()
	f.client = nil
	if err != nil {
		return fmt.Errorf("etcd: failed to close client '%s': %w", f.opts.Name, err)
	}
	return nil
}
