package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gamepilot/internal/game"
)

// Element is a remembered UI element.
type Element struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	X     int    `json:"cx"`
	Y     int    `json:"cy"`
	Count int    `json:"count"`
}

// Point returns the element's center.
func (e Element) Point() game.Point {
	return game.NewPoint(e.X, e.Y)
}

type memoryFile struct {
	Elements []Element `json:"elements"`
}

// Memory remembers where UI elements were seen. The first sighting fixes
// the position; later sightings only bump Count.
type Memory struct {
	path     string
	mu       sync.RWMutex
	elements map[string]Element
}

// NewMemory creates an empty memory backed by path.
func NewMemory(path string) *Memory {
	return &Memory{path: path, elements: make(map[string]Element)}
}

// Load reads the memory file. A missing file leaves the memory empty.
func (m *Memory) Load() error {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("knowledge: read memory: %w", err)
	}

	var f memoryFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("knowledge: parse memory: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range f.Elements {
		m.elements[e.ID] = e
	}
	return nil
}

// Save writes every element, sorted by id.
func (m *Memory) Save() error {
	f := memoryFile{Elements: m.All()}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("knowledge: encode memory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("knowledge: create memory dir: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("knowledge: write memory: %w", err)
	}
	return nil
}

// Remember records a sighting of id at (x, y).
func (m *Memory) Remember(id, text string, x, y int) Element {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.elements[id]
	if ok {
		e.Count++
	} else {
		e = Element{ID: id, Text: text, X: x, Y: y, Count: 1}
	}
	m.elements[id] = e
	return e
}

// Find looks up an element by id.
func (m *Memory) Find(id string) (Element, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.elements[id]
	return e, ok
}

// FindByText returns the first element, by id order, whose text contains
// text case-insensitively.
func (m *Memory) FindByText(text string) (Element, bool) {
	needle := strings.ToLower(text)
	for _, e := range m.All() {
		if e.Text != "" && strings.Contains(strings.ToLower(e.Text), needle) {
			return e, true
		}
	}
	return Element{}, false
}

// All returns a snapshot sorted by id.
func (m *Memory) All() []Element {
	m.mu.RLock()
	out := make([]Element, 0, len(m.elements))
	for _, e := range m.elements {
		out = append(out, e)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SkillSlotID is the memory id under which a skill button position is kept.
func SkillSlotID(index int) string {
	return fmt.Sprintf("skill_slot_%d", index)
}
