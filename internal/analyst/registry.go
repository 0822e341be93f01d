package analyst

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"quorum/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Persona 描述一个分析师人设：固定身份 + 方法论，提示词正文不在此处。
type Persona struct {
	ID            string `mapstructure:"id" yaml:"id"`
	Name          string `mapstructure:"name" yaml:"name"`
	Methodology   string `mapstructure:"methodology" yaml:"methodology"`
	Style         string `mapstructure:"style" yaml:"style"`
	RiskTolerance string `mapstructure:"risk_tolerance" yaml:"risk_tolerance"`
}

type personaFile struct {
	Analysts map[string]Persona `mapstructure:"analysts" yaml:"analysts"`
}

// RegistrySnapshot 公开的人设快照。
type RegistrySnapshot struct {
	Version  int64
	LoadedAt time.Time
	Personas map[string]Persona
}

// RegistryChangeListener 在 registry 重载时触发。
type RegistryChangeListener func(RegistrySnapshot)

// Registry 管理分析师人设，支持配置文件热重载。
type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  RegistrySnapshot
	listeners []RegistryChangeListener
	watcher   *fsnotify.Watcher
}

func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("persona registry requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read persona config failed: %w", err)
	}
	r := &Registry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	if err := r.watch(); err != nil {
		logger.Warnf("persona registry: watch disabled: %v", err)
	}
	return r, nil
}

func (r *Registry) reload() error {
	var pf personaFile
	if err := r.v.Unmarshal(&pf); err != nil {
		return fmt.Errorf("parse persona config failed: %w", err)
	}
	if len(pf.Analysts) == 0 {
		return fmt.Errorf("persona config has no analysts")
	}
	personas := make(map[string]Persona, len(pf.Analysts))
	for key, p := range pf.Analysts {
		if strings.TrimSpace(p.ID) == "" {
			p.ID = key
		}
		if strings.TrimSpace(p.Methodology) == "" {
			return fmt.Errorf("analyst %s: methodology is required", p.ID)
		}
		personas[p.ID] = p
	}
	r.mu.Lock()
	r.snapshot = RegistrySnapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Personas: personas,
	}
	snap := r.snapshot
	listeners := append([]RegistryChangeListener(nil), r.listeners...)
	r.mu.Unlock()
	for _, l := range listeners {
		l(snap)
	}
	return nil
}

func (r *Registry) watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(r.path); err != nil {
		w.Close()
		return err
	}
	r.watcher = w
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := r.v.ReadInConfig(); err != nil {
					logger.Warnf("persona registry: re-read failed: %v", err)
					continue
				}
				if err := r.reload(); err != nil {
					logger.Warnf("persona registry: reload failed: %v", err)
					continue
				}
				logger.Infof("persona registry reloaded (%s)", r.path)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warnf("persona registry: watcher error: %v", err)
			}
		}
	}()
	return nil
}

func (r *Registry) OnChange(l RegistryChangeListener) {
	r.mu.Lock()
	r.listeners = append(r.listeners, l)
	r.mu.Unlock()
}

func (r *Registry) Snapshot() RegistrySnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

func (r *Registry) Lookup(id string) (Persona, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.snapshot.Personas[id]
	return p, ok
}

// AgentIDs 返回排序后的全部分析师 id（排序保证批次划分稳定）。
func (r *Registry) AgentIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.snapshot.Personas))
	for id := range r.snapshot.Personas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Close() error {
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}
