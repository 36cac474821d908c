package quest

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dukerupert/kidquest/internal/database"
	"github.com/dukerupert/kidquest/internal/identity"
	"github.com/dukerupert/kidquest/internal/ledger"
	"github.com/dukerupert/kidquest/internal/model"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.InstanceEvent
}

func (p *recordingPublisher) Publish(e model.InstanceEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) states() []model.InstanceState {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.InstanceState, len(p.events))
	for i, e := range p.events {
		out[i] = e.NewState
	}
	return out
}

type fixture struct {
	db       *sql.DB
	resolver *identity.Resolver
	registry *Registry
	machine  *Machine
	ledger   *ledger.Ledger
	events   *recordingPublisher
	parent   *model.Principal
	child    *model.ChildProfile
	clock    time.Time
}

func setup(t *testing.T, dbPath string) *fixture {
	t.Helper()
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := identity.New(db, nil, logger)
	ctx := context.Background()
	parent, err := resolver.Resolve(ctx, "parent", "parent@example.com")
	require.NoError(t, err)
	child, err := resolver.CreateChild(ctx, parent.ID, "Sam")
	require.NoError(t, err)

	f := &fixture{
		db:       db,
		resolver: resolver,
		registry: NewRegistry(db, resolver, logger),
		ledger:   ledger.New(db, resolver, logger),
		events:   &recordingPublisher{},
		parent:   parent,
		child:    child,
		clock:    time.Date(2026, 3, 4, 16, 0, 0, 0, time.UTC),
	}
	f.machine = NewMachine(db, resolver, logger,
		WithClock(func() time.Time { return f.clock }),
		WithPublisher(f.events),
	)
	return f
}

func (f *fixture) openInstance(t *testing.T, points int, rec model.Recurrence) (*model.Quest, *model.QuestInstance) {
	t.Helper()
	ctx := context.Background()
	q, err := f.registry.Create(ctx, f.parent.ID, f.child.ID, Input{Title: "Feed the cat", RewardPoints: points, Recurrence: rec})
	require.NoError(t, err)
	in, err := f.machine.Materialize(ctx, q.ID, f.clock)
	require.NoError(t, err)
	require.Equal(t, model.StateOpen, in.State)
	return q, in
}
