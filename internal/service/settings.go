package service

import (
	"sync"

	"frubric_backend/internal/config"
)

// GradingSettings 可热更新的评分默认值
type GradingSettings struct {
	mu  sync.RWMutex
	cfg config.GradingConfig
}

func NewGradingSettings(cfg config.GradingConfig) *GradingSettings {
	return &GradingSettings{cfg: cfg}
}

func (s *GradingSettings) Get() config.GradingConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *GradingSettings) Update(cfg config.GradingConfig) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}
