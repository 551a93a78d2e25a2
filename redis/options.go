package redis

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
)

var validate = validator.New()

// ClientOptions Redis 客户端配置
type ClientOptions struct {
	Name         string        `json:"name" yaml:"name" validate:"required"`
	Addr         string        `json:"addr" yaml:"addr" validate:"required,hostname_port"`
	Username     string        `json:"username" yaml:"username"`
	Password     string        `json:"password" yaml:"password"`
	DB           int           `json:"db" yaml:"db" validate:"gte=0,lte=15"`
	PoolSize     int           `json:"poolSize" yaml:"poolSize" validate:"gte=0"`
	MinIdleConns int           `json:"minIdleConns" yaml:"minIdleConns" validate:"gte=0"`
	DialTimeout  time.Duration `json:"dialTimeout" yaml:"dialTimeout"`
	ReadTimeout  time.Duration `json:"readTimeout" yaml:"readTimeout"`
	WriteTimeout time.Duration `json:"writeTimeout" yaml:"writeTimeout"`

	// PingOnCreate 创建后立即 PING，失败则组件创建失败
	PingOnCreate bool `json:"pingOnCreate" yaml:"pingOnCreate"`
	// Lazy 首次获取时才创建
	Lazy bool `json:"lazy" yaml:"lazy"`
}

// NewDefaultOptions 默认连接本机 6379
func NewDefaultOptions(name string) *ClientOptions {
	return &ClientOptions{
		Name:        name,
		Addr:        "localhost:6379",
		DialTimeout: 5 * time.Second,
	}
}

// Validate 校验配置
func (o *ClientOptions) Validate() error {
	return validate.Struct(o)
}

func (o *ClientOptions) toRedis() *redis.Options {
	return &redis.Options{
		Addr:         o.Addr,
		Username:     o.Username,
		Password:     o.Password,
		DB:           o.DB,
		PoolSize:     o.PoolSize,
		MinIdleConns: o.MinIdleConns,
		DialTimeout:  o.DialTimeout,
		ReadTimeout:  o.ReadTimeout,
		WriteTimeout: o.WriteTimeout,
	}
}
