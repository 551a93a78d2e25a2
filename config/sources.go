package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	clientv3 "go.etcd.io/etcd/client/v3"
	"gopkg.in/yaml.v3"
)

// FileSource 基于文件的配置源，可以被监听
type FileSource interface {
	ConfigurationSource
	FilePath() string
}

// JsonFileSource JSON 文件配置源
type JsonFileSource struct {
	Path     string
	Optional bool
}

func (s *JsonFileSource) Name() string     { return fmt.Sprintf("JsonFile(%s)", s.Path) }
func (s *JsonFileSource) FilePath() string { return s.Path }

func (s *JsonFileSource) Load() (map[string]any, error) {
	data, err := readOptional(s.Path, s.Optional)
	if err != nil || data == nil {
		return map[string]any{}, err
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return result, nil
}

// YamlFileSource YAML 文件配置源
type YamlFileSource struct {
	Path     string
	Optional bool
}

func (s *YamlFileSource) Name() string     { return fmt.Sprintf("YamlFile(%s)", s.Path) }
func (s *YamlFileSource) FilePath() string { return s.Path }

func (s *YamlFileSource) Load() (map[string]any, error) {
	data, err := readOptional(s.Path, s.Optional)
	if err != nil || data == nil {
		return map[string]any{}, err
	}

	var result map[string]any
	if err := yaml.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if result == nil {
		result = map[string]any{}
	}
	return result, nil
}

// DotEnvSource .env 文件配置源，键的处理方式与环境变量一致，不修改进程环境
type DotEnvSource struct {
	Path     string
	Prefix   string
	Optional bool
}

func (s *DotEnvSource) Name() string     { return fmt.Sprintf("DotEnv(%s)", s.Path) }
func (s *DotEnvSource) FilePath() string { return s.Path }

func (s *DotEnvSource) Load() (map[string]any, error) {
	values, err := godotenv.Read(s.Path)
	if err != nil {
		if s.Optional && errors.Is(err, fs.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("failed to parse dotenv: %w", err)
	}

	result := make(map[string]any)
	for key, value := range values {
		if path, ok := envKey(key, s.Prefix); ok {
			setNestedValue(result, path, value)
		}
	}
	return result, nil
}

// LoadDotEnv 将 .env 文件导出到进程环境，已存在的变量不会被覆盖
func LoadDotEnv(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil {
		return fmt.Errorf("config: load dotenv: %w", err)
	}
	return nil
}

// EnvironmentVariableSource 环境变量配置源：APP_SERVER_PORT -> server:port
type EnvironmentVariableSource struct {
	Prefix string
}

func (s *EnvironmentVariableSource) Name() string {
	return fmt.Sprintf("EnvironmentVariables(%s)", s.Prefix)
}

func (s *EnvironmentVariableSource) Load() (map[string]any, error) {
	result := make(map[string]any)
	for _, env := range os.Environ() {
		key, value, found := strings.Cut(env, "=")
		if !found {
			continue
		}
		if path, ok := envKey(key, s.Prefix); ok {
			setNestedValue(result, path, value)
		}
	}
	return result, nil
}

// envKey 去掉前缀，转小写，"_" 转为层级分隔符
func envKey(key, prefix string) (string, bool) {
	if prefix != "" {
		if !strings.HasPrefix(key, prefix) {
			return "", false
		}
		key = strings.TrimPrefix(key, prefix)
	}
	key = strings.Trim(strings.ToLower(key), "_")
	if key == "" {
		return "", false
	}
	return strings.ReplaceAll(key, "_", ":"), true
}

// InMemorySource 内存配置源
type InMemorySource struct {
	Data map[string]any
}

func (s *InMemorySource) Name() string {
	return "InMemory"
}

func (s *InMemorySource) Load() (map[string]any, error) {
	result := make(map[string]any)
	mergeMaps(result, s.Data)
	return result, nil
}

// EtcdOptions etcd 配置选项
type EtcdOptions struct {
	Endpoints   []string      // etcd 服务器地址列表
	Username    string        // 用户名（可选）
	Password    string        // 密码（可选）
	Prefix      string        // 键前缀（可选）
	Timeout     time.Duration // 读取超时时间（默认 5 秒）
	DialTimeout time.Duration // 拨号超时时间（默认 5 秒）
}

// EtcdSource etcd 配置源：/prefix/server/port -> server:port，值可以是 JSON 或 YAML
type EtcdSource struct {
	Options EtcdOptions
}

func (s *EtcdSource) Name() string {
	return fmt.Sprintf("Etcd(%v)", s.Options.Endpoints)
}

func (s *EtcdSource) Load() (map[string]any, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   s.Options.Endpoints,
		Username:    s.Options.Username,
		Password:    s.Options.Password,
		DialTimeout: s.Options.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}
	defer cli.Close()

	ctx, cancel := context.WithTimeout(context.Background(), s.Options.Timeout)
	defer cancel()

	prefix := s.Options.Prefix
	if prefix == "" {
		prefix = "/"
	}
	resp, err := cli.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to get config from etcd: %w", err)
	}

	result := make(map[string]any)
	for _, kv := range resp.Kvs {
		key := strings.TrimPrefix(strings.TrimPrefix(string(kv.Key), s.Options.Prefix), "/")
		if key == "" {
			continue
		}
		setNestedValue(result, strings.ReplaceAll(key, "/", ":"), decodeEtcdValue(kv.Value))
	}
	return result, nil
}

// decodeEtcdValue JSON 优先，其次 YAML，否则按字符串处理
func decodeEtcdValue(raw []byte) any {
	var value any
	if err := json.Unmarshal(raw, &value); err == nil {
		return value
	}
	if err := yaml.Unmarshal(raw, &value); err == nil && value != nil {
		return value
	}
	return string(raw)
}

func readOptional(path string, optional bool) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// setNestedValue 按 ":" 路径设置嵌套值，字符串会尝试转换为数字或布尔
func setNestedValue(data map[string]any, path string, value any) {
	parts := strings.Split(path, ":")
	current := data

	for _, part := range parts[:len(parts)-1] {
		if _, exists := current[part]; !exists {
			current[part] = make(map[string]any)
		}
		m, ok := current[part].(map[string]any)
		if !ok {
			return
		}
		current = m
	}

	if s, ok := value.(string); ok {
		value = parseScalar(s)
	}
	current[parts[len(parts)-1]] = value
}

func parseScalar(s string) any {
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
