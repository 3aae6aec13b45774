package vertex

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/dshills/flowmesh/graph"
	"github.com/dshills/flowmesh/graph/codec"
)

// GraphLoader resolves a subflow's external graph definition path to a
// parsed *graph.Graph, caching by path and deduplicating concurrent loads
// of the same path with singleflight so N parallel subflow instances
// referencing one child definition parse it exactly once.
type GraphLoader struct {
	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]*graph.Graph
}

func NewGraphLoader() *GraphLoader {
	return &GraphLoader{cache: make(map[string]*graph.Graph)}
}

func (l *GraphLoader) Load(path string) (*graph.Graph, error) {
	l.mu.RLock()
	if g, ok := l.cache[path]; ok {
		l.mu.RUnlock()
		return g, nil
	}
	l.mu.RUnlock()

	v, err, _ := l.group.Do(path, func() (any, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read subflow definition %q: %w", path, err)
		}
		c := codec.ForExtension(filepath.Ext(path))
		if c == nil {
			return nil, fmt.Errorf("no codec registered for subflow definition %q", path)
		}
		g, err := c.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("decode subflow definition %q: %w", path, err)
		}
		if err := g.Validate(); err != nil {
			return nil, fmt.Errorf("validate subflow definition %q: %w", path, err)
		}
		return g, nil
	})
	if err != nil {
		return nil, err
	}

	g := v.(*graph.Graph)
	l.mu.Lock()
	l.cache[path] = g
	l.mu.Unlock()
	return g, nil
}
