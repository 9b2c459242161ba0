package symbolcfg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tradehook/internal/logger"
	"tradehook/internal/tradegroup"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// entrySchema constrains a single symbol entry. Entries that fail
// validation are dropped at load time rather than poisoning lookups.
const entrySchema = `{
	"type": "object",
	"required": ["symbol"],
	"properties": {
		"user_id": {"type": "integer", "minimum": 0},
		"broker": {"type": "string"},
		"symbol": {"type": "string", "minLength": 1},
		"tp_count": {"type": "integer", "minimum": 1, "maximum": 5},
		"sl_count": {"type": "integer", "minimum": 1, "maximum": 5}
	}
}`

// Entry is one symbol's scale-out configuration. UserID 0 and an empty
// broker act as wildcards.
type Entry struct {
	UserID  int64  `mapstructure:"user_id" yaml:"user_id"`
	Broker  string `mapstructure:"broker" yaml:"broker"`
	Symbol  string `mapstructure:"symbol" yaml:"symbol"`
	TPCount int    `mapstructure:"tp_count" yaml:"tp_count"`
	SLCount int    `mapstructure:"sl_count" yaml:"sl_count"`
}

// FileConfig maps the symbols file.
type FileConfig struct {
	Symbols []Entry `mapstructure:"symbols" yaml:"symbols"`
}

// Snapshot is the published view of the loaded entries.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Entries  []Entry
}

// ChangeListener fires after a successful reload.
type ChangeListener func(Snapshot)

// Registry serves per-symbol TP/SL level counts from a watched YAML file.
type Registry struct {
	path   string
	v      *viper.Viper
	schema *jsonschema.Schema

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewRegistry reads the symbols file and watches it for updates.
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("symbol registry requires path")
	}
	schema, err := compileEntrySchema()
	if err != nil {
		return nil, fmt.Errorf("compile symbol entry schema failed: %w", err)
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read symbol config failed: %w", err)
	}
	r := &Registry{path: path, v: v, schema: schema}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("symbol config reload failed: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Subscribe registers a listener for reloads.
func (r *Registry) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Snapshot returns the current entry set.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Get resolves the level counts for (user, symbol, broker). Matching is
// most-specific first: exact user and broker, then user with any broker,
// then a global entry for the symbol. Missing entries fall back to the
// single-TP single-SL default.
func (r *Registry) Get(ctx context.Context, userID int64, symbol, broker string) (tradegroup.SymbolConfig, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	broker = strings.ToLower(strings.TrimSpace(broker))

	r.mu.RLock()
	entries := r.snapshot.Entries
	r.mu.RUnlock()

	best := -1
	var found Entry
	for _, e := range entries {
		if !strings.EqualFold(e.Symbol, symbol) {
			continue
		}
		if e.UserID != 0 && e.UserID != userID {
			continue
		}
		if e.Broker != "" && !strings.EqualFold(e.Broker, broker) {
			continue
		}
		score := 0
		if e.UserID != 0 {
			score += 2
		}
		if e.Broker != "" {
			score++
		}
		if score > best {
			best = score
			found = e
		}
	}
	if best < 0 {
		return tradegroup.DefaultSymbolConfig, nil
	}
	cfg := tradegroup.SymbolConfig{TPCount: found.TPCount, SLCount: found.SLCount}
	if cfg.TPCount < 1 {
		cfg.TPCount = tradegroup.DefaultSymbolConfig.TPCount
	}
	if cfg.SLCount < 1 {
		cfg.SLCount = tradegroup.DefaultSymbolConfig.SLCount
	}
	return cfg, nil
}

func (r *Registry) reload() error {
	cfg, err := readSymbolFile(r.path)
	if err != nil {
		return err
	}
	entries := make([]Entry, 0, len(cfg.Symbols))
	for i, e := range cfg.Symbols {
		e.Symbol = strings.ToUpper(strings.TrimSpace(e.Symbol))
		e.Broker = strings.ToLower(strings.TrimSpace(e.Broker))
		if err := r.validateEntry(e); err != nil {
			logger.Errorf("symbol config entry %d rejected: %v", i, err)
			continue
		}
		entries = append(entries, e)
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Entries:  entries,
	}
	r.mu.Unlock()
	logger.Infof("Symbol registry loaded %d entries from %s", len(entries), filepath.Base(r.path))
	return nil
}

func (r *Registry) validateEntry(e Entry) error {
	doc := map[string]any{
		"user_id": float64(e.UserID),
		"broker":  e.Broker,
		"symbol":  e.Symbol,
	}
	if e.TPCount != 0 {
		doc["tp_count"] = float64(e.TPCount)
	}
	if e.SLCount != 0 {
		doc["sl_count"] = float64(e.SLCount)
	}
	return r.schema.Validate(doc)
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer safeRecover("symbol config listener")
			cb(snap)
		}(fn)
	}
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:  src.Version,
		LoadedAt: src.LoadedAt,
		Entries:  make([]Entry, len(src.Entries)),
	}
	copy(dst.Entries, src.Entries)
	return dst
}

func safeRecover(tag string) {
	if r := recover(); r != nil {
		logger.Errorf("%s panic: %v", tag, r)
	}
}

func compileEntrySchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("entry.json", strings.NewReader(entrySchema)); err != nil {
		return nil, err
	}
	return compiler.Compile("entry.json")
}

func readSymbolFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read symbol config failed: %w", err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse symbol config failed: %w", err)
	}
	return cfg, nil
}

// Static is a fixed in-memory lookup, handy when no symbols file is
// configured.
type Static map[string]tradegroup.SymbolConfig

func (s Static) Get(ctx context.Context, userID int64, symbol, broker string) (tradegroup.SymbolConfig, error) {
	if cfg, ok := s[strings.ToUpper(symbol)]; ok {
		return cfg, nil
	}
	return tradegroup.DefaultSymbolConfig, nil
}
