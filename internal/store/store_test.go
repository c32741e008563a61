package store

import (
	"context"
	"os"
	"sort"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/memorymatch/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFactory func(t *testing.T) Store

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"redis": func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { rdb.Close() })
			return NewRedisStore(rdb, "test")
		},
		"postgres": func(t *testing.T) Store {
			url := os.Getenv("MEMORYMATCH_TEST_PG_URL")
			if url == "" {
				t.Skip("MEMORYMATCH_TEST_PG_URL not set")
			}
			ctx := context.Background()
			pool, err := pgxpool.New(ctx, url)
			require.NoError(t, err)
			t.Cleanup(pool.Close)
			s := NewPostgresStore(pool)
			require.NoError(t, s.EnsureSchema(ctx))
			_, err = pool.Exec(ctx, `DELETE FROM rooms`)
			require.NoError(t, err)
			return s
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, factory := range backends() {
		factory := factory
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func sampleRoom(key string) *models.Room {
	r := models.NewRoom(key)
	r.Players = append(r.Players, &models.Player{ID: uuid.New(), Name: "Player 1", Connected: true})
	r.Turn = r.Players[0].ID
	return r
}

func TestLoadMissing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		_, err := s.Load(context.Background(), "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestCreateAndLoad(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		r := sampleRoom("r1")
		require.NoError(t, s.Save(ctx, r))
		assert.Equal(t, int64(1), r.Version)

		got, err := s.Load(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Version)
		assert.Equal(t, r.Turn, got.Turn)
		require.Len(t, got.Players, 1)
		assert.Equal(t, "Player 1", got.Players[0].Name)

		// the loaded copy is private
		got.Players[0].Score = 5
		again, err := s.Load(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, 0, again.Players[0].Score)
	})
}

func TestCreateTwiceConflicts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Save(ctx, sampleRoom("r1")))
		err := s.Save(ctx, sampleRoom("r1"))
		assert.ErrorIs(t, err, ErrVersionConflict)
	})
}

func TestStaleSaveConflicts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Save(ctx, sampleRoom("r1")))

		a, err := s.Load(ctx, "r1")
		require.NoError(t, err)
		b, err := s.Load(ctx, "r1")
		require.NoError(t, err)

		a.Started = true
		require.NoError(t, s.Save(ctx, a))
		assert.Equal(t, int64(2), a.Version)

		b.Theme = "pokemon"
		err = s.Save(ctx, b)
		assert.ErrorIs(t, err, ErrVersionConflict)
		assert.Equal(t, int64(1), b.Version, "failed save must not bump the version")

		got, err := s.Load(ctx, "r1")
		require.NoError(t, err)
		assert.True(t, got.Started)
		assert.Equal(t, models.DefaultTheme, got.Theme)
	})
}

func TestSaveAfterDeleteConflicts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		r := sampleRoom("r1")
		require.NoError(t, s.Save(ctx, r))
		require.NoError(t, s.Delete(ctx, "r1", -1))
		assert.ErrorIs(t, s.Save(ctx, r), ErrVersionConflict)
	})
}

func TestConditionalDelete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		r := sampleRoom("r1")
		require.NoError(t, s.Save(ctx, r))
		require.NoError(t, s.Save(ctx, r))

		assert.ErrorIs(t, s.Delete(ctx, "r1", 1), ErrVersionConflict)
		_, err := s.Load(ctx, "r1")
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, "r1", 2))
		_, err = s.Load(ctx, "r1")
		assert.ErrorIs(t, err, ErrNotFound)

		assert.NoError(t, s.Delete(ctx, "r1", 2), "deleting a missing room is not an error")
		assert.NoError(t, s.Delete(ctx, "r1", -1))
	})
}

func TestList(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		rooms, err := s.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, rooms)

		for _, k := range []string{"b", "a", "c"} {
			require.NoError(t, s.Save(ctx, sampleRoom(k)))
		}
		require.NoError(t, s.Delete(ctx, "c", -1))

		rooms, err = s.List(ctx)
		require.NoError(t, err)
		keys := make([]string, 0, len(rooms))
		for _, r := range rooms {
			keys = append(keys, r.Key)
		}
		sort.Strings(keys)
		assert.Equal(t, []string{"a", "b"}, keys)
	})
}

func TestConcurrentSavesExactlyOneWins(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Save(ctx, sampleRoom("r1")))

		const writers = 8
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			wins    int
			loseErr []error
		)
		copies := make([]*models.Room, writers)
		for i := range copies {
			r, err := s.Load(ctx, "r1")
			require.NoError(t, err)
			copies[i] = r
		}
		for _, r := range copies {
			wg.Add(1)
			go func(r *models.Room) {
				defer wg.Done()
				err := s.Save(ctx, r)
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					wins++
				} else {
					loseErr = append(loseErr, err)
				}
			}(r)
		}
		wg.Wait()

		assert.Equal(t, 1, wins)
		for _, err := range loseErr {
			assert.ErrorIs(t, err, ErrVersionConflict)
		}
	})
}

func TestRedisKeyLayout(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	s := NewRedisStore(rdb, "")

	require.NoError(t, s.Save(context.Background(), sampleRoom("lobby")))
	assert.True(t, mr.Exists("memorymatch:room:lobby"))
	members, err := mr.Members("memorymatch:rooms")
	require.NoError(t, err)
	assert.Equal(t, []string{"lobby"}, members)

	// stale index entries are skipped
	mr.Del("memorymatch:room:lobby")
	rooms, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rooms)
}
