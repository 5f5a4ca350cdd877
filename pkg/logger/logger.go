package logger

import (
	"fmt"
	"os"
	"strings"

	"frubric_backend/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const defaultLogFile = "logs/frubric.log"

// Log 在 InitLogger 之前为 Nop，测试中无需初始化
var Log = zap.NewNop()

var encoderConfig = zapcore.EncoderConfig{
	TimeKey:        "time",
	LevelKey:       "level",
	NameKey:        "logger",
	CallerKey:      "caller",
	MessageKey:     "msg",
	StacktraceKey:  "stacktrace",
	LineEnding:     zapcore.DefaultLineEnding,
	EncodeLevel:    zapcore.CapitalLevelEncoder,
	EncodeTime:     zapcore.ISO8601TimeEncoder,
	EncodeDuration: zapcore.SecondsDurationEncoder,
	EncodeCaller:   zapcore.ShortCallerEncoder,
}

// level 解析 log.level；未配置时按 server.mode 决定
func level(cfg config.LogConfig, mode string) (zapcore.Level, error) {
	if strings.TrimSpace(cfg.Level) == "" {
		if mode == "debug" {
			return zap.DebugLevel, nil
		}
		return zap.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
		return lvl, fmt.Errorf("log.level %q: %w", cfg.Level, err)
	}
	return lvl, nil
}

func rotation(cfg config.LogConfig) *lumberjack.Logger {
	lj := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	if lj.Filename == "" {
		lj.Filename = defaultLogFile
	}
	if lj.MaxSize <= 0 {
		lj.MaxSize = 100
	}
	return lj
}

// New 文件输出 JSON，控制台输出可读格式
func New(cfg config.LogConfig, mode string) (*zap.Logger, error) {
	lvl, err := level(cfg, mode)
	if err != nil {
		return nil, err
	}
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotation(cfg)), lvl),
	}
	if !cfg.NoConsole {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(os.Stdout), lvl))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel)), nil
}

func InitLogger(cfg *config.Config) {
	l, err := New(cfg.Log, cfg.Server.Mode)
	if err != nil {
		// 级别写错时退回默认级别，不阻止启动
		cfg.Log.Level = ""
		l, _ = New(cfg.Log, cfg.Server.Mode)
		l.Warn("Invalid log level, using default", zap.Error(err))
	}
	Log = l
}

// Component 返回带 component 字段的子 logger，调用时读取当前的 Log
func Component(name string) *zap.Logger {
	return Log.With(zap.String("component", name))
}
