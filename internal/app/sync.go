package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/carekeeper/internal/cloudsync"
	"github.com/dmitrijs2005/carekeeper/internal/models"
	"github.com/dmitrijs2005/carekeeper/internal/paths"
)

// SyncReport counts the owner×type pairs a Pull or Push visited.
type SyncReport struct {
	Owners  int `json:"owners"`
	Checked int `json:"checked"`
	Applied int `json:"applied"`
}

// knownOwners is the union of profile ids and owners that have local
// envelopes of any type.
func (a *App) knownOwners(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})

	users, err := a.owners.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if id := paths.OwnerID(u.ID); id != "" {
			seen[id] = struct{}{}
		}
	}
	for _, s := range a.stores {
		ids, err := s.Owners(ctx)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (a *App) targets(ctx context.Context, owner string) ([]string, error) {
	if owner == "" {
		return a.knownOwners(ctx)
	}
	if err := paths.Validate(owner); err != nil {
		return nil, err
	}
	return []string{paths.OwnerID(owner)}, nil
}

// fanOut runs fn for every owner×engine pair, at most PullConcurrency at a
// time. Pairs are independent: a failure does not stop the others, and all
// failures are returned joined.
func (a *App) fanOut(ctx context.Context, owners []string, fn func(ctx context.Context, e *cloudsync.Engine, owner string) error) error {
	limit := a.cfg.PullConcurrency
	if limit < 1 {
		limit = 1
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(limit)

	for _, owner := range owners {
		for _, t := range models.RecordTypes() {
			e := a.engines[t]
			g.Go(func() error {
				if err := fn(ctx, e, owner); err != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("%s/%s: %w", owner, t, err))
					mu.Unlock()
				}
				return nil
			})
		}
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Pull refreshes local envelopes from the primary store. With an empty
// owner it first pulls the profile list and then every known owner.
func (a *App) Pull(ctx context.Context, owner string) (SyncReport, error) {
	var perr error
	if owner == "" {
		if _, err := a.owners.Pull(ctx); err != nil {
			perr = err
			a.logger.Warn(ctx, "profile pull failed", "error", err)
		}
	}

	owners, err := a.targets(ctx, owner)
	if err != nil {
		return SyncReport{}, err
	}

	var checked, applied atomic.Int64
	err = a.fanOut(ctx, owners, func(ctx context.Context, e *cloudsync.Engine, owner string) error {
		ok, err := e.PullFromCloud(ctx, owner)
		checked.Add(1)
		if ok {
			applied.Add(1)
		}
		return err
	})

	rep := SyncReport{Owners: len(owners), Checked: int(checked.Load()), Applied: int(applied.Load())}
	a.logger.Info(ctx, "pull finished", "owners", rep.Owners, "checked", rep.Checked, "applied", rep.Applied)
	return rep, errors.Join(perr, err)
}

// Push uploads local envelopes, and the profile list when owner is empty.
// Pairs without a local envelope are skipped so a device that never held a
// type cannot overwrite the cloud copy with an empty one.
func (a *App) Push(ctx context.Context, owner string) (SyncReport, error) {
	var perr error
	if owner == "" {
		perr = a.owners.Push(ctx)
	}

	owners, err := a.targets(ctx, owner)
	if err != nil {
		return SyncReport{}, err
	}

	var checked, pushed atomic.Int64
	err = a.fanOut(ctx, owners, func(ctx context.Context, e *cloudsync.Engine, owner string) error {
		checked.Add(1)
		s, err := a.Store(e.Type())
		if err != nil {
			return err
		}
		if _, exists, err := s.Local(ctx, owner); err != nil || !exists {
			return err
		}
		if err := e.PushToCloud(ctx, owner); err != nil {
			return err
		}
		pushed.Add(1)
		return nil
	})

	rep := SyncReport{Owners: len(owners), Checked: int(checked.Load()), Applied: int(pushed.Load())}
	a.logger.Info(ctx, "push finished", "owners", rep.Owners, "pushed", rep.Applied)
	return rep, errors.Join(perr, err)
}

// ForceRefresh discards the owner's local envelopes of every type and
// re-derives them from the cloud copies. It returns the record count per
// type after the refresh.
func (a *App) ForceRefresh(ctx context.Context, owner string) (map[models.RecordType]int, error) {
	if err := paths.Validate(owner); err != nil {
		return nil, err
	}
	counts := make(map[models.RecordType]int, len(a.stores))
	var errs []error
	for _, s := range a.stores {
		env, err := s.ForceRefresh(ctx, owner)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Type(), err))
			continue
		}
		counts[s.Type()] = len(env.Records)
	}
	return counts, errors.Join(errs...)
}
