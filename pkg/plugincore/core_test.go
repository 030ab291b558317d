package plugincore_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/plugincore/pkg/plugincore"
	"github.com/randalmurphal/plugincore/pkg/plugincore/config"
	"github.com/randalmurphal/plugincore/pkg/plugincore/event"
	"github.com/randalmurphal/plugincore/pkg/plugincore/eventstore"
	"github.com/randalmurphal/plugincore/pkg/plugincore/plugin"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCore(t *testing.T, opts ...plugincore.Option) *plugincore.Core {
	t.Helper()
	core, err := plugincore.New(config.Default(), append([]plugincore.Option{plugincore.WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = core.Close() })
	return core
}

func manifest(name, ver string, perms ...string) *plugin.Manifest {
	m := &plugin.Manifest{Name: name, Version: ver, Main: name + ".so"}
	for _, p := range perms {
		m.Permissions = append(m.Permissions, plugin.Permission{Type: p})
	}
	return m
}

func registerManifest(t *testing.T, core *plugincore.Core, m *plugin.Manifest) {
	t.Helper()
	require.NoError(t, core.Register(context.Background(), plugin.Describe(m), m))
}

// typeLog records the types of every framework event.
type typeLog struct {
	mu    sync.Mutex
	types []string
	data  []any
}

func watch(t *testing.T, core *plugincore.Core) *typeLog {
	t.Helper()
	l := &typeLog{}
	for _, typ := range event.FrameworkEvents {
		_, err := core.Events().On(typ, event.HandlerFunc(func(_ context.Context, evt *event.Event) error {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.types = append(l.types, evt.Type)
			l.data = append(l.data, evt.Data)
			return nil
		}))
		require.NoError(t, err)
	}
	return l
}

func (l *typeLog) got() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.types...)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Backend = "tape"
	_, err := plugincore.New(cfg)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestNew_StoreBackends(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		core := newCore(t)
		assert.IsType(t, &eventstore.MemoryStore{}, core.Store())
	})

	t.Run("none", func(t *testing.T) {
		cfg := config.Default()
		cfg.Store.Backend = config.BackendNone
		core, err := plugincore.New(cfg, plugincore.WithLogger(quietLogger()))
		require.NoError(t, err)
		defer core.Close()
		assert.Nil(t, core.Store())

		_, err = core.Events().History(context.Background(), event.Criteria{})
		assert.ErrorIs(t, err, event.ErrNoStore)
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := config.Default()
		cfg.Store.Backend = config.BackendSQLite
		cfg.Store.Path = filepath.Join(t.TempDir(), "events.db")
		core, err := plugincore.New(cfg, plugincore.WithLogger(quietLogger()))
		require.NoError(t, err)
		defer core.Close()
		assert.IsType(t, &eventstore.SQLiteStore{}, core.Store())
	})

	t.Run("override", func(t *testing.T) {
		store := eventstore.NewMemoryStore(5)
		core := newCore(t, plugincore.WithStore(store))
		assert.Same(t, store, core.Store())
	})
}

func TestCore_RegisterAnnounces(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)
	log := watch(t, core)

	registerManifest(t, core, manifest("auth", "1.0.0"))
	require.NoError(t, core.Unregister(ctx, "auth"))

	assert.Equal(t, []string{event.PluginRegistered, event.PluginUnregistered}, log.got())
	assert.Equal(t, plugincore.PluginInfo{Name: "auth", Version: "1.0.0"}, log.data[0])
	assert.Equal(t, plugincore.PluginInfo{Name: "auth", Version: "1.0.0"}, log.data[1])
}

func TestCore_RegisterFailureIsSilent(t *testing.T) {
	core := newCore(t)
	log := watch(t, core)

	m := manifest("auth", "1.0.0")
	m.Dependencies = []plugin.Dependency{{Name: "db", Version: "^1.0.0"}}
	err := core.Register(context.Background(), plugin.Describe(m), m)
	assert.Equal(t, plugin.KindMissingDependency, plugin.KindOf(err))
	assert.Empty(t, log.got())
}

func TestCore_SetStatus(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)
	registerManifest(t, core, manifest("auth", "1.0.0"))
	log := watch(t, core)

	require.NoError(t, core.SetStatus(ctx, "auth", plugin.StatusInitialized))
	require.NoError(t, core.SetStatus(ctx, "auth", plugin.StatusRunning))

	assert.Equal(t, []string{event.PluginStatus, event.PluginStatus, event.PluginLoaded}, log.got())
	assert.Equal(t, plugincore.StatusChange{
		Plugin: "auth", From: plugin.StatusInitialized, To: plugin.StatusRunning,
	}, log.data[1])

	err := core.SetStatus(ctx, "auth", plugin.StatusRegistered)
	assert.Equal(t, plugin.KindInvalidTransition, plugin.KindOf(err))

	err = core.SetStatus(ctx, "ghost", plugin.StatusRunning)
	assert.Equal(t, plugin.KindNotFound, plugin.KindOf(err))
}

func TestCore_StartStop(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)

	db := manifest("db", "2.1.0")
	api := manifest("api", "1.0.0")
	api.Dependencies = []plugin.Dependency{{Name: "db", Version: "^2.0.0"}}
	registerManifest(t, core, db)
	registerManifest(t, core, api)

	log := watch(t, core)

	order, err := core.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"db", "api"}, order)

	_, err = core.Start(ctx)
	assert.ErrorIs(t, err, plugincore.ErrAlreadyStarted)

	require.NoError(t, core.Stop(ctx))
	assert.ErrorIs(t, core.Stop(ctx), plugincore.ErrNotStarted)

	assert.Equal(t, []string{event.AppStarting, event.AppStarted, event.AppStopping, event.AppStopped}, log.got())
	assert.Equal(t, plugincore.Started{LoadOrder: []string{"db", "api"}}, log.data[1])
}

func TestCore_ManifestPermissions(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)

	registerManifest(t, core, manifest("listener", "1.0.0", event.PermissionSubscribe))
	registerManifest(t, core, manifest("emitter", "1.0.0", event.PermissionEmit))

	assert.True(t, core.HasPermission("listener", event.PermissionSubscribe))
	assert.False(t, core.HasPermission("listener", event.PermissionEmit))
	assert.False(t, core.HasPermission("ghost", event.PermissionEmit))

	_, err := core.Events().On("chat:message", event.HandlerFunc(func(context.Context, *event.Event) error {
		return nil
	}), event.WithPlugin("listener"))
	require.NoError(t, err)

	_, err = core.Events().On("chat:message", event.HandlerFunc(func(context.Context, *event.Event) error {
		return nil
	}), event.WithPlugin("emitter"))
	assert.ErrorIs(t, err, event.ErrPermissionDenied)

	opts := event.DefaultEmitOptions()
	opts.Source = "emitter"
	res, err := core.Events().EmitWithOptions(ctx, "chat:message", "hi", opts)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)

	opts.Source = "listener"
	_, err = core.Events().EmitWithOptions(ctx, "chat:message", "hi", opts)
	assert.ErrorIs(t, err, event.ErrPermissionDenied)
}

func TestCore_CustomPermissionChecker(t *testing.T) {
	core := newCore(t, plugincore.WithPermissionChecker(event.PermissionFunc(func(string, string) bool {
		return true
	})))

	_, err := core.Events().On("x", event.HandlerFunc(func(context.Context, *event.Event) error {
		return nil
	}), event.WithPlugin("anyone"))
	assert.NoError(t, err)
}

func TestCore_HistoryRecordsFrameworkEvents(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)
	registerManifest(t, core, manifest("auth", "1.0.0"))

	require.NoError(t, core.Events().Close())
	history, err := core.Events().History(ctx, event.Criteria{Types: []string{event.PluginRegistered}})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, event.SourceSystem, history[0].Source)
}

func TestCore_CloseClosesStore(t *testing.T) {
	store := eventstore.NewMemoryStore(5)
	core, err := plugincore.New(config.Default(), plugincore.WithLogger(quietLogger()), plugincore.WithStore(store))
	require.NoError(t, err)
	require.NoError(t, core.Close())

	err = store.Store(context.Background(), event.New("x", nil, event.DefaultEmitOptions(), time.Now()))
	assert.ErrorIs(t, err, eventstore.ErrStoreClosed)
}
