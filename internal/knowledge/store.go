// Package knowledge persists the skill and item catalog in SQLite and the
// remembered UI element positions as JSON.
// Uses the pure-Go modernc.org/sqlite driver so the binary stays cgo-free.
package knowledge

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"gamepilot/internal/game"
	"gamepilot/internal/policy"
)

// NearestRadius is the largest distance, in pixels, at which a stored
// position still matches a lookup.
const NearestRadius = 50.0

// ErrNotFound is returned when no record matches a lookup.
var ErrNotFound = errors.New("knowledge: not found")

// Store manages the SQLite catalog. The skill rows are cached after the
// first lookup and dropped again by UpsertSkill and DeleteSkill, so the
// per-tick lookups do not hit the database.
type Store struct {
	db *sql.DB

	mu     sync.Mutex
	skills []Skill
	cached bool
}

// Skill is one learned skill record.
type Skill struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	IconFeature string      `json:"icon_feature,omitempty"`
	Description string      `json:"description,omitempty"`
	CooldownMs  int64       `json:"cooldown_ms"`
	EffectType  string      `json:"effect_type"`
	EffectValue float64     `json:"effect_value"`
	Position    *game.Point `json:"position,omitempty"`
	LearnedAt   time.Time   `json:"learned_at"`
}

// Item is one learned item record.
type Item struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	IconFeature string            `json:"icon_feature,omitempty"`
	Description string            `json:"description,omitempty"`
	ItemType    string            `json:"item_type"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Position    *game.Point       `json:"position,omitempty"`
	LearnedAt   time.Time         `json:"learned_at"`
}

// Open creates or opens a SQLite database at the given path.
// It creates the parent directories if needed and runs migrations.
func Open(dbPath string) (*Store, error) {
	if dbPath != "" && dbPath[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("knowledge: cannot expand home directory: %w", err)
		}
		dbPath = filepath.Join(home, dbPath[1:])
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("knowledge: cannot create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("knowledge: cannot open database: %w", err)
	}
	// The control loop and the API share the handle; one writer at a time.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("knowledge: cannot connect to database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("knowledge: migration failed: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS skills (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			icon_feature TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			cooldown_ms INTEGER NOT NULL DEFAULT 0,
			effect_type TEXT NOT NULL DEFAULT '',
			effect_value REAL NOT NULL DEFAULT 0,
			position_x INTEGER,
			position_y INTEGER,
			learned_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			icon_feature TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			item_type TEXT NOT NULL DEFAULT '',
			attributes_json TEXT NOT NULL DEFAULT '{}',
			position_x INTEGER,
			position_y INTEGER,
			learned_at INTEGER NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// UpsertSkill inserts sk or replaces the record with the same id.
// A zero LearnedAt is set to now.
func (s *Store) UpsertSkill(sk Skill) error {
	if sk.ID == "" {
		return fmt.Errorf("knowledge: skill id is empty")
	}
	if sk.LearnedAt.IsZero() {
		sk.LearnedAt = time.Now()
	}
	x, y := nullPosition(sk.Position)
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO skills
			(id, name, icon_feature, description, cooldown_ms, effect_type, effect_value, position_x, position_y, learned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sk.ID, sk.Name, sk.IconFeature, sk.Description, sk.CooldownMs,
		sk.EffectType, sk.EffectValue, x, y, sk.LearnedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("knowledge: cannot save skill %s: %w", sk.ID, err)
	}
	s.invalidate()
	return nil
}

// UpsertItem inserts it or replaces the record with the same id.
func (s *Store) UpsertItem(it Item) error {
	if it.ID == "" {
		return fmt.Errorf("knowledge: item id is empty")
	}
	if it.LearnedAt.IsZero() {
		it.LearnedAt = time.Now()
	}
	attrs := it.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("knowledge: encode attributes: %w", err)
	}
	x, y := nullPosition(it.Position)
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO items
			(id, name, icon_feature, description, item_type, attributes_json, position_x, position_y, learned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ID, it.Name, it.IconFeature, it.Description, it.ItemType,
		string(raw), x, y, it.LearnedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("knowledge: cannot save item %s: %w", it.ID, err)
	}
	return nil
}

// Skills returns every skill ordered by id.
func (s *Store) Skills() ([]Skill, error) {
	rows, err := s.db.Query(`
		SELECT id, name, icon_feature, description, cooldown_ms, effect_type, effect_value, position_x, position_y, learned_at
		FROM skills ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("knowledge: cannot query skills: %w", err)
	}
	defer rows.Close()

	var skills []Skill
	for rows.Next() {
		var (
			sk      Skill
			x, y    sql.NullInt64
			learned int64
		)
		if err := rows.Scan(&sk.ID, &sk.Name, &sk.IconFeature, &sk.Description, &sk.CooldownMs,
			&sk.EffectType, &sk.EffectValue, &x, &y, &learned); err != nil {
			return nil, fmt.Errorf("knowledge: cannot scan skill: %w", err)
		}
		sk.Position = position(x, y)
		sk.LearnedAt = time.UnixMilli(learned)
		skills = append(skills, sk)
	}
	return skills, rows.Err()
}

// Items returns every item ordered by id.
func (s *Store) Items() ([]Item, error) {
	rows, err := s.db.Query(`
		SELECT id, name, icon_feature, description, item_type, attributes_json, position_x, position_y, learned_at
		FROM items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("knowledge: cannot query items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			it      Item
			raw     string
			x, y    sql.NullInt64
			learned int64
		)
		if err := rows.Scan(&it.ID, &it.Name, &it.IconFeature, &it.Description, &it.ItemType,
			&raw, &x, &y, &learned); err != nil {
			return nil, fmt.Errorf("knowledge: cannot scan item: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &it.Attributes); err != nil {
			return nil, fmt.Errorf("knowledge: item %s attributes: %w", it.ID, err)
		}
		it.Position = position(x, y)
		it.LearnedAt = time.UnixMilli(learned)
		items = append(items, it)
	}
	return items, rows.Err()
}

// DeleteSkill removes a skill. Returns ErrNotFound if no such id exists.
func (s *Store) DeleteSkill(id string) error {
	res, err := s.db.Exec("DELETE FROM skills WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("knowledge: cannot delete skill %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("knowledge: cannot delete skill %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	s.invalidate()
	return nil
}

// cachedSkills returns the skill catalog, loading it on first use.
// The result is shared and must not be modified.
func (s *Store) cachedSkills() ([]Skill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached {
		return s.skills, nil
	}
	skills, err := s.Skills()
	if err != nil {
		return nil, err
	}
	s.skills, s.cached = skills, true
	return skills, nil
}

func (s *Store) invalidate() {
	s.mu.Lock()
	s.skills, s.cached = nil, false
	s.mu.Unlock()
}

// NearestSkill returns the skill whose position is closest to (x, y)
// within NearestRadius.
func (s *Store) NearestSkill(x, y int) (Skill, error) {
	skills, err := s.cachedSkills()
	if err != nil {
		return Skill{}, err
	}
	i := nearest(len(skills), func(i int) *game.Point { return skills[i].Position }, game.NewPoint(x, y))
	if i < 0 {
		return Skill{}, ErrNotFound
	}
	sk := skills[i]
	sk.Position = position(nullPosition(sk.Position))
	return sk, nil
}

// NearestItem returns the item whose position is closest to (x, y)
// within NearestRadius.
func (s *Store) NearestItem(x, y int) (Item, error) {
	items, err := s.Items()
	if err != nil {
		return Item{}, err
	}
	i := nearest(len(items), func(i int) *game.Point { return items[i].Position }, game.NewPoint(x, y))
	if i < 0 {
		return Item{}, ErrNotFound
	}
	return items[i], nil
}

// Effects returns the ranking input for policy.RankByEffect.
func (s *Store) Effects() ([]policy.SkillEffect, error) {
	skills, err := s.cachedSkills()
	if err != nil {
		return nil, err
	}
	out := make([]policy.SkillEffect, 0, len(skills))
	for _, sk := range skills {
		out = append(out, policy.SkillEffect{ID: sk.ID, Effect: sk.EffectType})
	}
	return out, nil
}

// Enrich returns a copy of state whose skills carry the name and position
// of the nearest learned skill. anchor gives the screen position of each
// skill slot; slots without an anchor or without a match are left as is.
func (s *Store) Enrich(state game.GameState, anchor func(index int) (game.Point, bool)) (game.GameState, error) {
	if len(state.Skills) == 0 {
		return state, nil
	}
	skills, err := s.cachedSkills()
	if err != nil {
		return state, err
	}
	if len(skills) == 0 {
		return state, nil
	}

	enriched := make([]game.SkillInfo, len(state.Skills))
	copy(enriched, state.Skills)
	for i := range enriched {
		at, ok := anchor(enriched[i].Index)
		if !ok {
			continue
		}
		j := nearest(len(skills), func(k int) *game.Point { return skills[k].Position }, at)
		if j < 0 {
			continue
		}
		p := *skills[j].Position
		enriched[i].Name = skills[j].Name
		enriched[i].Position = &p
	}
	state.Skills = enriched
	return state, nil
}

// nearest returns the index of the closest position within NearestRadius,
// or -1. Ties keep the first.
func nearest(n int, pos func(int) *game.Point, target game.Point) int {
	best, bestDist := -1, math.Inf(1)
	for i := 0; i < n; i++ {
		p := pos(i)
		if p == nil {
			continue
		}
		d := p.Distance(target)
		if d <= NearestRadius && d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func nullPosition(p *game.Point) (sql.NullInt64, sql.NullInt64) {
	if p == nil {
		return sql.NullInt64{}, sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(p.X), Valid: true}, sql.NullInt64{Int64: int64(p.Y), Valid: true}
}

func position(x, y sql.NullInt64) *game.Point {
	if !x.Valid || !y.Valid {
		return nil
	}
	p := game.NewPoint(int(x.Int64), int(y.Int64))
	return &p
}
