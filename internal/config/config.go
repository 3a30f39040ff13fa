package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	// ErrCodeNotFound 表示 --config 指定的配置文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	// FileName 是工作目录下可选配置文件的名字。
	FileName = "lumiscrape.yaml"
	// EnvPrefix 是环境变量前缀：LUMISCRAPE_LEDGER_PATH 对应 ledger.path。
	EnvPrefix = "LUMISCRAPE"
)

// 配置键。CLI 覆盖（CLIArgs.Overrides）也使用这些键。
const (
	KeyBaseURL         = "base_url"
	KeyStart           = "start"
	KeyStop            = "stop"
	KeyDelay           = "delay"
	KeySave            = "save"
	KeyLedgerPath      = "ledger.path"
	KeyLedgerFormat    = "ledger.format"
	KeyLedgerDedup     = "ledger.dedup"
	KeyLabels          = "labels"
	KeyContinueOnError = "continue_on_error"
	KeyFailedIDs       = "failed_ids"
	KeyReport          = "report"
	KeyFFprobe         = "ffprobe"
	KeyTimeout         = "timeout"
	KeyProxyURL        = "proxy.url"
	KeyLogLevel        = "log.level"
	KeyLogFormat       = "log.format"
)

// Defaults 是内置默认值：与最初的硬编码调用一致（48028..48029，不等待，写 CSV）。
var Defaults = map[string]any{
	KeyBaseURL:         "https://lumiere.berkeley.edu",
	KeyStart:           48028,
	KeyStop:            48029,
	KeyDelay:           time.Duration(0),
	KeySave:            true,
	KeyLedgerPath:      "films.csv",
	KeyLedgerFormat:    "",
	KeyLedgerDedup:     "history",
	KeyLabels:          "positional",
	KeyContinueOnError: false,
	KeyFailedIDs:       "failed_ids.txt",
	KeyReport:          "",
	KeyFFprobe:         "ffprobe",
	KeyTimeout:         30 * time.Second,
	KeyProxyURL:        "",
	KeyLogLevel:        "info",
	KeyLogFormat:       "auto",
}

// CLIArgs 是 CLI 传入的信息。
//
// Overrides 只包含“显式指定”的 flag（键为配置键）。
// 这能保证覆盖优先级可实现：例如 --save=false 必须能覆盖配置文件中的 save: true。
type CLIArgs struct {
	ConfigFile string
	Overrides  map[string]any
}

// FileConfig 是 viper 合并（默认值 < 配置文件 < 环境变量 < CLI）后的结构。
type FileConfig struct {
	BaseURL         string        `mapstructure:"base_url" validate:"required,url"`
	Start           int           `mapstructure:"start" validate:"gte=0,lte=99999"`
	Stop            int           `mapstructure:"stop" validate:"gtefield=Start,lte=100000"`
	Delay           time.Duration `mapstructure:"delay" validate:"gte=0"`
	Save            bool          `mapstructure:"save"`
	Ledger          LedgerConfig  `mapstructure:"ledger"`
	Labels          string        `mapstructure:"labels" validate:"oneof=positional keyed"`
	ContinueOnError bool          `mapstructure:"continue_on_error"`
	FailedIDs       string        `mapstructure:"failed_ids" validate:"required"`
	Report          string        `mapstructure:"report"`
	FFprobe         string        `mapstructure:"ffprobe" validate:"required"`
	Timeout         time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Proxy           ProxyConfig   `mapstructure:"proxy"`
	Log             LogConfig     `mapstructure:"log"`
}

type LedgerConfig struct {
	Path   string `mapstructure:"path" validate:"required"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=csv sqlite"`
	Dedup  string `mapstructure:"dedup" validate:"oneof=history batch"`
}

type ProxyConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=auto console json"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
// 路径字段都已是绝对路径（相对路径以 cwd 为基准）。
type EffectiveConfig struct {
	ConfigFile string // 实际读取的配置文件；未读取为空

	BaseURL string
	Start   int
	Stop    int
	Delay   time.Duration

	Save         bool
	LedgerPath   string
	LedgerFormat string
	Dedup        string

	Labels          string
	ContinueOnError bool

	FailedIDsPath string
	ReportPath    string

	FFprobePath string
	Timeout     time.Duration
	ProxyURL    string

	LogLevel  string
	LogFormat string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Path == "" {
			return fmt.Sprintf("%s：配置无效：%v", e.Code, e.Err)
		}
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

var validate = validator.New()

// LoadEffective 发现并读取配置文件，然后与环境变量、CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 --config：必须存在
// 2) 否则尝试读取 <cwd>/lumiscrape.yaml（可选）
//
// 覆盖优先级（固定）：CLI > 环境变量 > 配置文件 > 内置默认。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	v := viper.New()
	for k, val := range Defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfgPath := ""
	if strings.TrimSpace(cli.ConfigFile) != "" {
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigFile)
		if _, err := os.Stat(cfgPath); err != nil {
			if os.IsNotExist(err) {
				return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
			}
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
	} else {
		p := filepath.Join(cwdAbs, FileName)
		if _, err := os.Stat(p); err == nil {
			cfgPath = p
		}
	}
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
	}

	for k, val := range cli.Overrides {
		v.Set(k, val)
	}

	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	normalize(&fc)
	if err := validate.Struct(fc); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: describe(err)}
	}

	return EffectiveConfig{
		ConfigFile:      cfgPath,
		BaseURL:         strings.TrimRight(fc.BaseURL, "/"),
		Start:           fc.Start,
		Stop:            fc.Stop,
		Delay:           fc.Delay,
		Save:            fc.Save,
		LedgerPath:      absCleanFrom(cwdAbs, fc.Ledger.Path),
		LedgerFormat:    fc.Ledger.Format,
		Dedup:           fc.Ledger.Dedup,
		Labels:          fc.Labels,
		ContinueOnError: fc.ContinueOnError,
		FailedIDsPath:   absCleanFrom(cwdAbs, fc.FailedIDs),
		ReportPath:      absCleanFrom(cwdAbs, fc.Report),
		FFprobePath:     fc.FFprobe,
		Timeout:         fc.Timeout,
		ProxyURL:        fc.Proxy.URL,
		LogLevel:        fc.Log.Level,
		LogFormat:       fc.Log.Format,
	}, nil
}

func normalize(fc *FileConfig) {
	fc.BaseURL = strings.TrimSpace(fc.BaseURL)
	fc.Ledger.Path = strings.TrimSpace(fc.Ledger.Path)
	fc.Ledger.Format = strings.ToLower(strings.TrimSpace(fc.Ledger.Format))
	fc.Ledger.Dedup = strings.ToLower(strings.TrimSpace(fc.Ledger.Dedup))
	fc.Labels = strings.ToLower(strings.TrimSpace(fc.Labels))
	fc.FailedIDs = strings.TrimSpace(fc.FailedIDs)
	fc.Report = strings.TrimSpace(fc.Report)
	fc.FFprobe = strings.TrimSpace(fc.FFprobe)
	fc.Proxy.URL = strings.TrimSpace(fc.Proxy.URL)
	fc.Log.Level = strings.ToLower(strings.TrimSpace(fc.Log.Level))
	fc.Log.Format = strings.ToLower(strings.TrimSpace(fc.Log.Format))
}

// describe 把 validator 的错误转成面向用户的一句话（只报第一个字段）。
func describe(err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) || len(ves) == 0 {
		return err
	}
	fe := ves[0]
	if fe.Param() != "" {
		return fmt.Errorf("%s 不满足 %s=%s（实际：%v）", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Errorf("%s 不满足 %s（实际：%v）", fe.Namespace(), fe.Tag(), fe.Value())
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute；空串保持为空。
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}
