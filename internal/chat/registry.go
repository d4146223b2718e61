package chat

import (
	"path/filepath"
	"sort"
	"sync"

	"github.com/BaSui01/chatflow/internal/template"
	"github.com/BaSui01/chatflow/types"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultRoom is the registry entry used for rooms without their own bot.
const DefaultRoom = "default"

// Registry maps rooms to bots and caches each bot's template. A bot's
// template is read from "<dir>/<bot>.json" on first use.
type Registry struct {
	dir    string
	rooms  map[string]string
	logger *zap.Logger

	mu     sync.RWMutex
	graphs map[string]*template.Graph
	loads  singleflight.Group
}

// NewRegistry creates a registry. rooms is copied.
func NewRegistry(dir string, rooms map[string]string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		dir:    dir,
		rooms:  make(map[string]string, len(rooms)),
		logger: logger.With(zap.String("component", "registry")),
		graphs: make(map[string]*template.Graph),
	}
	for room, bot := range rooms {
		r.rooms[room] = bot
	}
	return r
}

// BotFor returns the bot serving room, falling back to the default entry.
func (r *Registry) BotFor(room string) (string, error) {
	if bot, ok := r.rooms[room]; ok {
		return bot, nil
	}
	if bot, ok := r.rooms[DefaultRoom]; ok {
		return bot, nil
	}
	return "", types.Errorf(types.ErrUnknownRoom, "no bot serves room %q", room)
}

// Graph returns the bot's template, loading it once.
func (r *Registry) Graph(bot string) (*template.Graph, error) {
	r.mu.RLock()
	g, ok := r.graphs[bot]
	r.mu.RUnlock()
	if ok {
		return g, nil
	}

	v, err, _ := r.loads.Do(bot, func() (any, error) {
		r.mu.RLock()
		g, ok := r.graphs[bot]
		r.mu.RUnlock()
		if ok {
			return g, nil
		}

		g, err := template.LoadFile(filepath.Join(r.dir, bot+".json"))
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.graphs[bot] = g
		r.mu.Unlock()

		r.logger.Info("template loaded", zap.String("bot", bot), zap.Int("nodes", g.Len()))
		return g, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*template.Graph), nil
}

// Resolve returns the bot and template for room.
func (r *Registry) Resolve(room string) (string, *template.Graph, error) {
	bot, err := r.BotFor(room)
	if err != nil {
		return "", nil, err
	}
	g, err := r.Graph(bot)
	if err != nil {
		return "", nil, err
	}
	return bot, g, nil
}

// Bots returns the distinct configured bots, sorted.
func (r *Registry) Bots() []string {
	seen := make(map[string]bool, len(r.rooms))
	bots := make([]string, 0, len(r.rooms))
	for _, bot := range r.rooms {
		if !seen[bot] {
			seen[bot] = true
			bots = append(bots, bot)
		}
	}
	sort.Strings(bots)
	return bots
}

// Preload loads every configured bot's template so broken templates fail
// at startup.
func (r *Registry) Preload() error {
	for _, bot := range r.Bots() {
		if _, err := r.Graph(bot); err != nil {
			return err
		}
	}
	return nil
}
