package file

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"trade_core/internal/models"

	"github.com/google/uuid"
	"gopkg.in/yaml.v2"
)

// Rules — файловый стор для офлайн/демо-режима. Интерфейс тот же,
// что у pg-версии.
type Rules struct {
	path string

	mu     sync.Mutex
	cache  map[string]models.RuleDefinition
	loaded bool
}

const defaultPath = "data/rules.yaml"

func New(path string) *Rules {
	if path == "" {
		path = os.Getenv("RULES_STORE_PATH")
	}
	if path == "" {
		path = defaultPath
	}
	return &Rules{
		path:  path,
		cache: make(map[string]models.RuleDefinition),
	}
}

func (r *Rules) ListActive(ctx context.Context) ([]models.RuleDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(); err != nil {
		return nil, err
	}
	out := make([]models.RuleDefinition, 0, len(r.cache))
	for _, d := range r.cache {
		out = append(out, cloneDef(d))
	}
	return out, nil
}

func (r *Rules) Upsert(ctx context.Context, def models.RuleDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(); err != nil {
		return err
	}
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	r.cache[def.ID] = cloneDef(def)
	return r.saveLocked()
}

func (r *Rules) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(); err != nil {
		return err
	}
	delete(r.cache, id)
	return r.saveLocked()
}

func (r *Rules) loadLocked() error {
	if r.loaded {
		return nil
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			r.loaded = true
			return nil
		}
		return err
	}
	var defs []models.RuleDefinition
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return err
	}
	for _, d := range defs {
		r.cache[d.ID] = d
	}
	r.loaded = true
	return nil
}

func (r *Rules) saveLocked() error {
	defs := make([]models.RuleDefinition, 0, len(r.cache))
	for _, d := range r.cache {
		defs = append(defs, d)
	}
	// порядок обхода map случайный, файл должен быть стабильным
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	data, err := yaml.Marshal(defs)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(r.path, data, 0o644)
}

func cloneDef(d models.RuleDefinition) models.RuleDefinition {
	out := d
	if d.Parameters != nil {
		out.Parameters = make(map[string]float64, len(d.Parameters))
		for k, v := range d.Parameters {
			out.Parameters[k] = v
		}
	}
	return out
}
