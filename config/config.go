package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const (
	defaultPath = "."
	// EnvPrefix 环境变量前缀，例如 FRUITMART_RELAY_MAXMEMBERS -> relay.maxMembers
	EnvPrefix = "FRUITMART_"
)

type Config struct {
	Env struct {
		Env         string `json:"env" yaml:"env"`
		ServiceName string `json:"serviceName" yaml:"serviceName"`
		Log         Log    `json:"log" yaml:"log"`
	} `json:"env" yaml:"env"`

	HTTP struct {
		Port     int `json:"port" yaml:"port" validate:"min=1,max=65535"`
		Timeouts struct {
			ReadTimeout  time.Duration `json:"readTimeout" yaml:"readTimeout"`
			WriteTimeout time.Duration `json:"writeTimeout" yaml:"writeTimeout"`
			IdleTimeout  time.Duration `json:"idleTimeout" yaml:"idleTimeout"`
		} `json:"timeouts" yaml:"timeouts"`
	} `json:"http" yaml:"http"`

	Relay RelayConfig `json:"relay" yaml:"relay"`

	Player PlayerConfig `json:"player" yaml:"player"`
}

type Log struct {
	Level string `json:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	File  string `json:"file" yaml:"file"`
	JSON  bool   `json:"json" yaml:"json"`
}

// RelayConfig 中继服务（房间频道 + 在线状态）配置
type RelayConfig struct {
	// 每个连接的发送队列长度，满时丢弃
	SendQueue int `json:"sendQueue" yaml:"sendQueue" validate:"min=1"`

	// 在线列表合并推送的间隔
	PresenceFlush time.Duration `json:"presenceFlush" yaml:"presenceFlush" validate:"min=1ms"`

	// 每个房间的连接上限
	MaxMembers int `json:"maxMembers" yaml:"maxMembers" validate:"min=1,max=64"`

	// 模拟丢包概率（0 表示不丢）
	SimulateDropProb float64 `json:"simulateDropProb" yaml:"simulateDropProb" validate:"min=0,max=1"`

	// 单帧读取上限（字节）
	ReadLimit int64 `json:"readLimit" yaml:"readLimit" validate:"min=1024"`
}

// PlayerConfig 无界面参与者（cmd/player）配置
type PlayerConfig struct {
	RelayURL       string        `json:"relayUrl" yaml:"relayUrl" validate:"omitempty,url"`
	TickHz         int           `json:"tickHz" yaml:"tickHz" validate:"min=1,max=240"`
	BroadcastEvery int           `json:"broadcastEvery" yaml:"broadcastEvery" validate:"min=1"`
	IdentityRetry  time.Duration `json:"identityRetry" yaml:"identityRetry" validate:"min=10ms"`
	TuningPath     string        `json:"tuningPath" yaml:"tuningPath"`
	RecordDir      string        `json:"recordDir" yaml:"recordDir"`
	Seed           uint64        `json:"seed" yaml:"seed"`
}

// Default 内置默认值；配置文件与环境变量在其之上覆盖
func Default() *Config {
	cfg := &Config{}
	cfg.Env.Env = "dev"
	cfg.Env.ServiceName = "fruitmart-relay"
	cfg.Env.Log.Level = "info"
	cfg.HTTP.Port = 8080
	cfg.HTTP.Timeouts.ReadTimeout = 10 * time.Second
	cfg.HTTP.Timeouts.WriteTimeout = 10 * time.Second
	cfg.HTTP.Timeouts.IdleTimeout = 60 * time.Second
	cfg.Relay = RelayConfig{
		SendQueue:     64,
		PresenceFlush: 100 * time.Millisecond,
		MaxMembers:    8,
		ReadLimit:     1 << 20,
	}
	cfg.Player = PlayerConfig{
		RelayURL:       "ws://localhost:8080/ws",
		TickHz:         60,
		BroadcastEvery: 2,
		IdentityRetry:  time.Second,
		Seed:           1,
	}
	return cfg
}

// Load 在搜索路径中查找 <name>.yaml（可缺省），叠加环境变量后校验
func Load(name string, configPath ...string) (*Config, error) {
	cfg := Default()
	k := koanf.New(".")

	// 显式给出的路径优先于当前目录
	searchPaths := make([]string, 0, len(configPath)+1)
	if len(configPath) != 0 {
		pwd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, "os.Getwd")
		}
		for _, p := range configPath {
			if filepath.IsAbs(p) {
				searchPaths = append(searchPaths, p)
				continue
			}
			searchPaths = append(searchPaths, filepath.Join(pwd, p))
		}
	}
	searchPaths = append(searchPaths, defaultPath)

	for _, p := range searchPaths {
		candidate := filepath.Join(p, name+".yaml")
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		if err := k.Load(file.Provider(candidate), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "read %s config failed", candidate)
		}
		break
	}

	existing := k.Raw()
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, v string) (string, any) {
			key = strings.TrimPrefix(key, EnvPrefix)
			return canonicalizeEnvKey(key, existing), v
		},
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load env variables failed")
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           cfg,
			TagName:          "yaml",
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
			MatchName: func(mapKey, fieldName string) bool {
				return strings.EqualFold(mapKey, fieldName)
			},
		},
	}); err != nil {
		return nil, errors.Wrapf(err, "unmarshal %s config failed", name)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

// New 读取默认位置的 config.yaml
func New() (*Config, error) {
	return Load("config", "config", "../config", "../../config")
}

func canonicalizeEnvKey(rawKey string, existing map[string]any) string {
	segments := strings.Split(strings.ToLower(rawKey), "_")
	canonical := make([]string, 0, len(segments))
	current := existing

	for _, segment := range segments {
		if segment == "" {
			continue
		}
		if matched, next, ok := findExistingSegment(current, segment); ok {
			canonical = append(canonical, matched)
			current = next
		} else {
			canonical = append(canonical, segment)
			current = nil
		}
	}
	return strings.Join(canonical, ".")
}

func findExistingSegment(current map[string]any, segment string) (matched string, next map[string]any, ok bool) {
	if len(current) == 0 {
		return "", nil, false
	}
	needle := normalizeToken(segment)
	for key, value := range current {
		if normalizeToken(key) != needle {
			continue
		}
		child, _ := value.(map[string]any)
		return key, child, true
	}
	return "", nil, false
}

func normalizeToken(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
