// internal/rooms/directory.go
package rooms

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jason-s-yu/memorymatch/internal/deck"
	"github.com/jason-s-yu/memorymatch/internal/game"
	"github.com/jason-s-yu/memorymatch/internal/keylock"
	"github.com/jason-s-yu/memorymatch/internal/models"
	"github.com/jason-s-yu/memorymatch/internal/store"
	"github.com/sirupsen/logrus"
)

// ErrContention is returned when a room could not be updated because other
// writers kept winning the compare-and-swap.
var ErrContention = errors.New("room update contention")

// DefaultMaxAttempts bounds the read-modify-write retries of one action.
const DefaultMaxAttempts = 8

// taskTimeout bounds the store work of one timer callback.
const taskTimeout = 10 * time.Second

// Broadcaster delivers room events to the room's live connections. Publish
// must not block on slow connections.
type Broadcaster interface {
	Publish(roomKey string, events []game.GameEvent)
}

// Options tunes a Directory.
type Options struct {
	// Grace is how long a disconnected player keeps their seat. Zero
	// removes players as soon as their last connection closes.
	Grace       time.Duration
	MaxAttempts int
	Logger      *logrus.Logger
}

// Directory coordinates room actions. It holds no authoritative room state:
// every action loads the room from the store, applies it through the engine,
// saves it with compare-and-swap and publishes the resulting events.
type Directory struct {
	store       store.Store
	engine      *game.Engine
	deck        deck.Provider
	broadcaster Broadcaster
	grace       time.Duration
	maxAttempts int
	logger      *logrus.Logger

	locks *keylock.Map[string]
	tasks *scheduler
}

// NewDirectory wires a directory from its collaborators.
func NewDirectory(st store.Store, engine *game.Engine, provider deck.Provider, b Broadcaster, opts Options) *Directory {
	d := &Directory{
		store:       st,
		engine:      engine,
		deck:        provider,
		broadcaster: b,
		grace:       opts.Grace,
		maxAttempts: opts.MaxAttempts,
		logger:      opts.Logger,
		locks:       keylock.New[string](),
		tasks:       newScheduler(),
	}
	if d.maxAttempts <= 0 {
		d.maxAttempts = DefaultMaxAttempts
	}
	if d.grace < 0 {
		d.grace = 0
	}
	if d.logger == nil {
		d.logger = logrus.StandardLogger()
	}
	return d
}

// Close stops all pending timers and waits for running ones.
func (d *Directory) Close() {
	d.tasks.close()
}

// GetOrCreate returns the room under key, creating an empty one if needed.
func (d *Directory) GetOrCreate(ctx context.Context, key string) (*models.Room, error) {
	for attempt := 0; attempt < d.maxAttempts; attempt++ {
		r, err := d.store.Load(ctx, key)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		r = models.NewRoom(key)
		err = d.store.Save(ctx, r)
		if err == nil {
			d.logger.WithField("room", key).Info("room created")
			return r, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: room %q", ErrContention, key)
}

// Get returns the room under key or store.ErrNotFound.
func (d *Directory) Get(ctx context.Context, key string) (*models.Room, error) {
	return d.store.Load(ctx, key)
}

// Delete removes a room unconditionally and cancels its timers.
func (d *Directory) Delete(ctx context.Context, key string) error {
	unlock := d.locks.Lock(key)
	defer unlock()
	d.tasks.cancelRoom(key)
	if err := d.store.Delete(ctx, key, -1); err != nil {
		return err
	}
	d.logger.WithField("room", key).Info("room deleted")
	return nil
}

// List returns a summary of every room, sorted by name.
func (d *Directory) List(ctx context.Context) ([]models.RoomSummary, error) {
	rs, err := d.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.RoomSummary, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Join adds or reactivates a player, creating the room on first join.
func (d *Directory) Join(ctx context.Context, key string, playerID uuid.UUID) error {
	d.tasks.cancel(taskKey{kind: taskPrune, room: key, player: playerID})
	return d.mutate(ctx, key, true, func(r *models.Room) ([]game.GameEvent, error) {
		return d.engine.Join(r, playerID), nil
	})
}

// Leave removes a player immediately. The room is deleted when it empties.
func (d *Directory) Leave(ctx context.Context, key string, playerID uuid.UUID) error {
	d.tasks.cancel(taskKey{kind: taskPrune, room: key, player: playerID})
	return d.mutate(ctx, key, false, func(r *models.Room) ([]game.GameEvent, error) {
		return d.engine.Leave(r, playerID), nil
	})
}

// Disconnect records that a player's last connection closed. With a zero
// grace period this is Leave; otherwise the player is pruned once the grace
// window passes without a rejoin.
func (d *Directory) Disconnect(ctx context.Context, key string, playerID uuid.UUID) error {
	if d.grace == 0 {
		return d.Leave(ctx, key, playerID)
	}
	err := d.mutate(ctx, key, false, func(r *models.Room) ([]game.GameEvent, error) {
		return d.engine.Disconnect(r, playerID), nil
	})
	if err != nil {
		return err
	}
	d.tasks.schedule(taskKey{kind: taskPrune, room: key, player: playerID}, d.grace, func() {
		d.prune(key, playerID)
	})
	return nil
}

// Start deals a new board with the given theme. The deck is fetched before
// the room is locked.
func (d *Directory) Start(ctx context.Context, key string, playerID uuid.UUID, theme string) error {
	theme = deck.NormalizeTheme(theme)
	values := d.deck.Values(ctx, theme)
	return d.mutate(ctx, key, false, func(r *models.Room) ([]game.GameEvent, error) {
		if r.Player(playerID) == nil {
			return nil, nil
		}
		return d.engine.Start(r, theme, values)
	})
}

// Flip reveals a card. A rejected flip returns a *game.RejectError and
// leaves the room untouched.
func (d *Directory) Flip(ctx context.Context, key string, playerID uuid.UUID, index int) error {
	return d.mutate(ctx, key, false, func(r *models.Room) ([]game.GameEvent, error) {
		return d.engine.Flip(r, playerID, index)
	})
}

func (d *Directory) resolve(key string, resolutionID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()
	err := d.mutate(ctx, key, false, func(r *models.Room) ([]game.GameEvent, error) {
		return d.engine.Resolve(r, resolutionID), nil
	})
	if err != nil {
		d.logger.WithFields(logrus.Fields{"room": key, "resolution": resolutionID}).
			WithError(err).Error("failed to resolve mismatch")
	}
}

func (d *Directory) prune(key string, playerID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()
	err := d.mutate(ctx, key, false, func(r *models.Room) ([]game.GameEvent, error) {
		events, removed := d.engine.Prune(r, playerID, d.grace)
		if removed {
			d.logger.WithFields(logrus.Fields{"room": key, "player": playerID}).Info("pruned disconnected player")
		}
		return events, nil
	})
	if err != nil {
		d.logger.WithFields(logrus.Fields{"room": key, "player": playerID}).
			WithError(err).Error("failed to prune player")
	}
}

// mutate runs one atomic read-modify-write cycle on a room. apply mutates
// the loaded room and returns the events to publish; an empty event list
// with an unchanged player set means nothing changed. The local room lock
// is held through publishing so events leave in commit order.
func (d *Directory) mutate(ctx context.Context, key string, create bool, apply func(*models.Room) ([]game.GameEvent, error)) error {
	unlock := d.locks.Lock(key)
	defer unlock()

	retry := newRetryBackOff()
	for attempt := 0; attempt < d.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := wait(ctx, retry); err != nil {
				return err
			}
		}

		r, err := d.store.Load(ctx, key)
		switch {
		case errors.Is(err, store.ErrNotFound):
			if !create {
				return nil
			}
			r = models.NewRoom(key)
		case err != nil:
			return err
		}

		d.adoptResolution(r)
		hadPlayers := len(r.Players) > 0
		events, err := apply(r)
		if err != nil {
			return err
		}

		if hadPlayers && len(r.Players) == 0 {
			err = d.store.Delete(ctx, key, r.Version)
			if errors.Is(err, store.ErrVersionConflict) {
				continue
			}
			if err != nil {
				return err
			}
			d.tasks.cancelRoom(key)
			d.logger.WithField("room", key).Info("room emptied and deleted")
			return nil
		}
		if len(events) == 0 {
			return nil
		}

		err = d.store.Save(ctx, r)
		if errors.Is(err, store.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return err
		}

		d.afterSave(r)
		d.broadcaster.Publish(key, events)
		return nil
	}
	return fmt.Errorf("%w: room %q", ErrContention, key)
}

// afterSave keeps the resolution timer in step with the committed room.
func (d *Directory) afterSave(r *models.Room) {
	k := taskKey{kind: taskResolve, room: r.Key}
	if r.Resolving == nil {
		d.tasks.cancel(k)
		return
	}
	id := r.Resolving.ID
	delay := time.UnixMilli(r.Resolving.DueAt).Sub(d.engine.Now())
	if delay < 0 {
		delay = 0
	}
	d.tasks.schedule(k, delay, func() {
		d.resolve(r.Key, id)
	})
}

// adoptResolution schedules the resolve timer for a room loaded mid-mismatch
// when this process has none, such as after the saving process went away.
func (d *Directory) adoptResolution(r *models.Room) {
	if r.Resolving == nil || d.tasks.pending(taskKey{kind: taskResolve, room: r.Key}) {
		return
	}
	d.afterSave(r)
}

func newRetryBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Millisecond
	b.MaxInterval = 50 * time.Millisecond
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func wait(ctx context.Context, b backoff.BackOff) error {
	t := time.NewTimer(b.NextBackOff())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
