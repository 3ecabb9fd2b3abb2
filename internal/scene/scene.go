// Package scene provides the rotating ambient "scene" sentence shared by all users.
package scene

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/NoaBot/internal/models"
	"github.com/BTreeMap/NoaBot/internal/store"
	"github.com/BTreeMap/NoaBot/internal/util"
)

// DefaultTTL is how long a picked scene is reused regardless of period changes.
const DefaultTTL = 2 * time.Hour

// Period is a named time-of-day bucket.
type Period string

const (
	Morning   Period = "morning"
	Afternoon Period = "afternoon"
	Evening   Period = "evening"
	Night     Period = "night"
)

// BoundaryHours are the local hours at which a new period starts.
var BoundaryHours = []int{6, 11, 16, 21}

// DefaultScenes holds four sentences per period.
var DefaultScenes = map[Period][]string{
	Morning: {
		"I'm curled up by the window with a coffee, still in my oversized shirt.",
		"Just got back from a run and I'm stretching on the living room floor.",
		"Making pancakes badly and singing along to the radio.",
		"Lazy morning in bed, scrolling my phone under the blankets.",
	},
	Afternoon: {
		"Sitting in a little café downtown, people-watching between sips of iced latte.",
		"Wandering through the park with my headphones in and the sun on my face.",
		"At my desk pretending to work while daydreaming.",
		"Browsing a bookstore and picking books purely by their covers.",
	},
	Evening: {
		"Cooking dinner with a glass of wine and way too much garlic.",
		"Walking home as the streetlights flicker on, hoodie zipped up.",
		"Lighting candles and putting on a playlist after a long day.",
		"On the balcony watching the sunset paint everything pink.",
	},
	Night: {
		"Tucked in bed with the lamp on low, not quite ready to sleep.",
		"Wrapped in a blanket on the couch with a movie I'm not really watching.",
		"Soaking in a warm bath with my phone balanced on the edge.",
		"Staring at the ceiling, wide awake and thinking about you.",
	},
}

// PeriodFor maps a local hour to a period using half-open intervals.
func PeriodFor(hour int) Period {
	switch {
	case hour >= 6 && hour < 11:
		return Morning
	case hour >= 11 && hour < 16:
		return Afternoon
	case hour >= 16 && hour < 21:
		return Evening
	default:
		return Night
	}
}

// Provider yields the current scene sentence.
type Provider interface {
	Current(ctx context.Context) string
}

// SceneStore is the slice of store.Store the picker persists to.
type SceneStore interface {
	GetScene(ctx context.Context) (*models.SceneState, error)
	PutScene(ctx context.Context, s models.SceneState) error
}

// Opts holds configuration for the Picker.
type Opts struct {
	TTL    time.Duration
	Clock  util.Clock
	IntN   util.IntN
	Scenes map[Period][]string
}

// Option defines a configuration option for the Picker.
type Option func(*Opts)

// WithTTL overrides the reuse window.
func WithTTL(d time.Duration) Option {
	return func(o *Opts) { o.TTL = d }
}

// WithClock sets the local clock.
func WithClock(c util.Clock) Option {
	return func(o *Opts) { o.Clock = c }
}

// WithRandom sets the random source used for picks.
func WithRandom(intn util.IntN) Option {
	return func(o *Opts) { o.IntN = intn }
}

// WithScenes replaces the sentence table.
func WithScenes(s map[Period][]string) Option {
	return func(o *Opts) { o.Scenes = s }
}

// Picker is the store-backed scene Provider.
type Picker struct {
	store  SceneStore
	ttl    time.Duration
	clock  util.Clock
	intn   util.IntN
	scenes map[Period][]string

	mu     sync.Mutex
	cached *models.SceneState
	loaded bool
}

// NewPicker builds a Picker persisting through st.
func NewPicker(st SceneStore, opts ...Option) *Picker {
	cfg := Opts{TTL: DefaultTTL, Clock: util.NewClock(0), Scenes: DefaultScenes}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Picker{
		store:  st,
		ttl:    cfg.TTL,
		clock:  cfg.Clock,
		intn:   cfg.IntN,
		scenes: cfg.Scenes,
	}
}

// Current returns the cached scene while it is younger than the TTL, even if the
// period has since changed. Otherwise it picks a fresh one for the current period
// and persists it immediately.
func (p *Picker) Current(ctx context.Context) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.loadLocked(ctx)
	now := p.clock.Unix()
	if p.cached != nil && now-p.cached.TS <= int64(p.ttl/time.Second) {
		return p.cached.Scene
	}
	return p.pickLocked(ctx, now)
}

// Refresh forces a new pick for the current period.
func (p *Picker) Refresh(ctx context.Context) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loaded = true
	return p.pickLocked(ctx, p.clock.Unix())
}

// State returns a copy of the cached state, if any.
func (p *Picker) State() (models.SceneState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached == nil {
		return models.SceneState{}, false
	}
	return *p.cached, true
}

// RecoverState reloads the persisted scene so the first reply after a restart
// reuses it. A missing scene is not an error.
func (p *Picker) RecoverState(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loaded = true
	if p.store == nil {
		return nil
	}
	st, err := p.store.GetScene(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load scene: %w", err)
	}
	p.cached = st
	slog.Info("Picker.RecoverState: scene restored", "age_seconds", p.clock.Unix()-st.TS)
	return nil
}

func (p *Picker) loadLocked(ctx context.Context) {
	if p.loaded {
		return
	}
	p.loaded = true
	if p.store == nil {
		return
	}
	st, err := p.store.GetScene(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("Picker.Current: failed to load scene, treating as absent", "error", err)
		}
		return
	}
	p.cached = st
}

func (p *Picker) pickLocked(ctx context.Context, now int64) string {
	period := PeriodFor(p.clock.Local().Hour())
	sentence, ok := util.Pick(p.scenes[period], p.intn)
	if !ok {
		sentence, _ = util.Pick(DefaultScenes[period], p.intn)
	}
	next := models.SceneState{Period: string(period), Scene: sentence, TS: now}
	p.cached = &next

	if p.store != nil {
		if err := p.store.PutScene(ctx, next); err != nil {
			slog.Error("Picker.pick: failed to persist scene", "period", period, "error", err)
		}
	}
	slog.Debug("Picker.pick: new scene selected", "period", period)
	return sentence
}
