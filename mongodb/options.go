package mongodb

import (
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

var validate = validator.New()

// MongoOptions MongoDB 客户端配置选项
type MongoOptions struct {
	Name                   string        `validate:"required"`
	URI                    string        `validate:"required,startswith=mongodb"`
	MaxPoolSize            uint64        `validate:"gte=0"`
	MinPoolSize            uint64        `validate:"ltefield=MaxPoolSize"`
	ConnectTimeout         time.Duration `validate:"gt=0"`
	ServerSelectionTimeout time.Duration `validate:"gt=0"`
	AppName                string
	// Database 非空时额外注册 *mongo.Database 组件
	Database string
	// PingOnCreate 创建时检查连接
	PingOnCreate bool
	// Lazy 第一次获取时才创建
	Lazy bool
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions(name, uri string) *MongoOptions {
	return &MongoOptions{
		Name:                   name,
		URI:                    uri,
		MaxPoolSize:            100,
		ConnectTimeout:         10 * time.Second,
		ServerSelectionTimeout: 5 * time.Second,
	}
}

// Validate 验证配置
func (o *MongoOptions) Validate() error {
	return validate.Struct(o)
}

func (o *MongoOptions) toClientOptions() *options.ClientOptions {
	opts := options.Client().
		ApplyURI(o.URI).
		SetMaxPoolSize(o.MaxPoolSize).
		SetMinPoolSize(o.MinPoolSize).
		SetConnectTimeout(o.ConnectTimeout).
		SetServerSelectionTimeout(o.ServerSelectionTimeout)
	if o.AppName != "" {
		opts.SetAppName(o.AppName)
	}
	return opts
}
