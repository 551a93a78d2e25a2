package core

import "os"

// EnvironmentVariable 未显式设置环境时读取的环境变量
const EnvironmentVariable = "APP_ENVIRONMENT"

// Environment 环境接口
type Environment interface {
	Name() string
	IsDevelopment() bool
	IsProduction() bool
	IsStaging() bool
}

type environment struct {
	name string
}

// NewEnvironment 创建环境
func NewEnvironment(name string) Environment {
	if name == "" {
		name = "development"
	}
	return &environment{name: name}
}

// EnvironmentFromEnv 读取 APP_ENVIRONMENT，默认 development
func EnvironmentFromEnv() Environment {
	return NewEnvironment(os.Getenv(EnvironmentVariable))
}

func (e *environment) Name() string        { return e.name }
func (e *environment) IsDevelopment() bool { return e.name == "development" }
func (e *environment) IsProduction() bool  { return e.name == "production" }
func (e *environment) IsStaging() bool     { return e.name == "staging" }
