package etcd

import (
	"time"

	"github.com/go-playground/validator/v10"
	clientv3 "go.etcd.io/etcd/client/v3"
)

var validate = validator.New()

// ClientOptions etcd 客户端配置选项，用户名与 AutoSyncInterval、消息大小限制均为可选
type ClientOptions struct {
	Name               string        `validate:"required"`
	Endpoints          []string      `validate:"required,min=1,dive,required"`
	DialTimeout        time.Duration `validate:"gt=0"`
	Username           string
	Password           string
	AutoSyncInterval   time.Duration
	MaxCallSendMsgSize int `validate:"gte=0"`
	MaxCallRecvMsgSize int `validate:"gte=0"`
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions(name string) *ClientOptions {
	return &ClientOptions{
		Name:        name,
		Endpoints:   []string{"localhost:2379"},
		DialTimeout: 5 * time.Second,
	}
}

// Validate 验证配置
func (o *ClientOptions) Validate() error {
	return validate.Struct(o)
}

func (o *ClientOptions) toConfig() clientv3.Config {
	config := clientv3.Config{
		Endpoints:          o.Endpoints,
		DialTimeout:        o.DialTimeout,
		AutoSyncInterval:   o.AutoSyncInterval,
		MaxCallSendMsgSize: o.MaxCallSendMsgSize,
		MaxCallRecvMsgSize: o.MaxCallRecvMsgSize,
	}
	if o.Username != "" {
		config.Username = o.Username
		config.Password = o.Password
	}
	return config
}
