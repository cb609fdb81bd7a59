package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"spotguard/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取配置（含 include 链），叠加环境变量后补默认值并校验。
// include 中的文件先合并，引用方的同名键覆盖被引用方。
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	root, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	r := &includeResolver{visiting: map[string]bool{}, done: map[string]bool{}}
	if err := r.walk(root); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	for _, file := range r.order {
		if err := v.MergeConfigMap(r.settings[file]); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	keys := make(keySet)
	for _, k := range v.AllKeys() {
		keys.mark(k)
	}
	_ = godotenv.Load()
	applyEnvOverrides(&cfg, keys)
	cfg.applyDefaults(keys)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// includeResolver 深度优先展开 include，每个文件只读一次。
type includeResolver struct {
	visiting map[string]bool
	done     map[string]bool
	order    []string
	settings map[string]map[string]any
}

func (r *includeResolver) walk(path string) error {
	path = filepath.Clean(path)
	switch {
	case r.visiting[path]:
		return fmt.Errorf("include cycle detected: %s", path)
	case r.done[path]:
		return nil
	}
	r.visiting[path] = true

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	includes, err := includeList(v.Get("include"))
	if err != nil {
		return fmt.Errorf("parsing include failed (%s): %w", path, err)
	}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		if err := r.walk(inc); err != nil {
			return err
		}
	}

	delete(r.visiting, path)
	r.done[path] = true
	if r.settings == nil {
		r.settings = make(map[string]map[string]any)
	}
	r.settings[path] = v.AllSettings()
	r.order = append(r.order, path)
	return nil
}

func includeList(raw any) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	var items []any
	switch val := raw.(type) {
	case []any:
		items = val
	case []string:
		for _, s := range val {
			items = append(items, s)
		}
	default:
		return nil, fmt.Errorf("include must be a string array")
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("include only supports strings")
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// Watch 监听根配置文件变化，重新加载成功后回调 onChange。
// 只有根文件被监听，include 的文件变化需要重启生效。
func Watch(path string, onChange func(*Config)) error {
	if onChange == nil {
		return nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w := viper.New()
	w.SetConfigFile(abs)
	if err := w.ReadInConfig(); err != nil {
		return fmt.Errorf("watch config failed: %w", err)
	}
	w.OnConfigChange(func(evt fsnotify.Event) {
		cfg, err := Load(abs)
		if err != nil {
			logger.Errorf("config reload failed (%s): %v", evt.Name, err)
			return
		}
		logger.Infof("config reloaded: %s", evt.Name)
		onChange(cfg)
	})
	w.WatchConfig()
	return nil
}
