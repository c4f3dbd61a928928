package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lectern/internal/interfaces"
	"github.com/ternarybob/lectern/internal/models"
)

type registry struct {
	mu    sync.RWMutex
	tools map[string]interfaces.Tool
	order []string
}

// sourceAccumulator collects source references, deduplicated by (course, lesson)
type sourceAccumulator struct {
	mu      sync.Mutex
	sources []models.SourceReference
	seen    map[string]bool
}

func newSourceAccumulator() *sourceAccumulator {
	return &sourceAccumulator{seen: make(map[string]bool)}
}

func sourceKey(s models.SourceReference) string {
	if s.LessonNumber == nil {
		return s.CourseTitle
	}
	return fmt.Sprintf("%s\x00%d", s.CourseTitle, *s.LessonNumber)
}

func (a *sourceAccumulator) Record(sources ...models.SourceReference) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range sources {
		key := sourceKey(s)
		if a.seen[key] {
			continue
		}
		a.seen[key] = true
		a.sources = append(a.sources, s)
	}
}

func (a *sourceAccumulator) list() []models.SourceReference {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.SourceReference(nil), a.sources...)
}

func (a *sourceAccumulator) reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sources = nil
	a.seen = make(map[string]bool)
}

// Manager registers tools and dispatches tool calls by name.
// Source references recorded by tools are kept per manager; use Scoped
// to get an isolated accumulator for each query.
type Manager struct {
	registry *registry
	sources  *sourceAccumulator
	logger   arbor.ILogger
}

// NewManager creates an empty tool manager
func NewManager(logger arbor.ILogger) *Manager {
	return &Manager{
		registry: &registry{tools: make(map[string]interfaces.Tool)},
		sources:  newSourceAccumulator(),
		logger:   logger,
	}
}

// Register adds a tool. Names must be unique.
func (m *Manager) Register(tool interfaces.Tool) error {
	def := tool.Definition()
	if def.Name == "" {
		return fmt.Errorf("tool name is required")
	}

	m.registry.mu.Lock()
	defer m.registry.mu.Unlock()

	if _, exists := m.registry.tools[def.Name]; exists {
		return fmt.Errorf("tool already registered: %s", def.Name)
	}
	m.registry.tools[def.Name] = tool
	m.registry.order = append(m.registry.order, def.Name)

	m.logger.Debug().Str("tool", def.Name).Msg("Tool registered")
	return nil
}

// Definitions returns the tool definitions in registration order
func (m *Manager) Definitions() []interfaces.ToolDefinition {
	m.registry.mu.RLock()
	defer m.registry.mu.RUnlock()

	defs := make([]interfaces.ToolDefinition, 0, len(m.registry.order))
	for _, name := range m.registry.order {
		defs = append(defs, m.registry.tools[name].Definition())
	}
	return defs
}

// Execute runs the named tool. Unregistered names return *interfaces.UnknownToolError.
func (m *Manager) Execute(ctx context.Context, name string, input json.RawMessage) (string, error) {
	m.registry.mu.RLock()
	tool, ok := m.registry.tools[name]
	m.registry.mu.RUnlock()

	if !ok {
		return "", &interfaces.UnknownToolError{Name: name}
	}

	start := time.Now()
	result, err := tool.Execute(ctx, input, m.sources)
	duration := time.Since(start)

	if err != nil {
		m.logger.Warn().
			Err(err).
			Str("tool", name).
			Dur("duration", duration).
			Msg("Tool execution failed")
		return "", err
	}

	m.logger.Debug().
		Str("tool", name).
		Int("result_length", len(result)).
		Dur("duration", duration).
		Msg("Tool execution complete")

	return result, nil
}

// Sources returns the references recorded since the last reset
func (m *Manager) Sources() []models.SourceReference {
	return m.sources.list()
}

// ResetSources clears recorded references
func (m *Manager) ResetSources() {
	m.sources.reset()
}

// Scoped returns a manager sharing the registered tools with its own source accumulator
func (m *Manager) Scoped() *Manager {
	return &Manager{
		registry: m.registry,
		sources:  newSourceAccumulator(),
		logger:   m.logger,
	}
}
