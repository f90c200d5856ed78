// Package backuptest provides an in-memory backup.Provider for tests.
package backuptest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/carekeeper/internal/backup"
	"github.com/dmitrijs2005/carekeeper/internal/common"
)

type entry struct {
	item backup.Item
	data []byte
}

// Provider mimics a drive that tolerates duplicate names under one parent.
// Every created item is one second younger than the previous one.
type Provider struct {
	mu      sync.Mutex
	items   map[string]*entry
	seq     int
	clock   time.Time
	faults  map[string]error
	unauthn bool

	Creates int
	Updates int
	Deletes int
}

func NewProvider() *Provider {
	return &Provider{
		items:  make(map[string]*entry),
		clock:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		faults: make(map[string]error),
	}
}

// SetAuthenticated toggles the session; while false every call fails with
// common.ErrNotAuthenticated.
func (p *Provider) SetAuthenticated(ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unauthn = !ok
}

// Fail makes operations touching an item or parent named name return err.
// A nil err clears the fault.
func (p *Provider) Fail(name string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.faults, name)
		return
	}
	p.faults[name] = err
}

func (p *Provider) check(names ...string) error {
	if p.unauthn {
		return fmt.Errorf("provider: %w", common.ErrNotAuthenticated)
	}
	for _, n := range names {
		if err, ok := p.faults[n]; ok {
			return err
		}
	}
	return nil
}

func (p *Provider) nameOf(id string) string {
	if e, ok := p.items[id]; ok {
		return e.item.Name
	}
	return id
}

func (p *Provider) create(parentID, name, mime string, folder bool, data []byte) backup.Item {
	p.seq++
	p.clock = p.clock.Add(time.Second)
	it := backup.Item{
		ID:          fmt.Sprintf("id-%03d", p.seq),
		Name:        name,
		ParentID:    parentID,
		MimeType:    mime,
		Folder:      folder,
		CreatedTime: p.clock,
	}
	p.items[it.ID] = &entry{item: it, data: append([]byte(nil), data...)}
	p.Creates++
	return it
}

func (p *Provider) List(ctx context.Context, parentID, name string, kind backup.Kind) ([]backup.Item, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(p.nameOf(parentID)); err != nil {
		return nil, err
	}

	var out []backup.Item
	for _, e := range p.items {
		it := e.item
		if it.ParentID != parentID || (name != "" && it.Name != name) {
			continue
		}
		if (kind == backup.KindFolder && !it.Folder) || (kind == backup.KindFile && it.Folder) {
			continue
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (p *Provider) CreateFolder(ctx context.Context, parentID, name string) (backup.Item, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(name); err != nil {
		return backup.Item{}, err
	}
	return p.create(parentID, name, backup.FolderMimeType, true, nil), nil
}

func (p *Provider) CreateFile(ctx context.Context, parentID, name, mimeType string, data []byte) (backup.Item, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(name, p.nameOf(parentID)); err != nil {
		return backup.Item{}, err
	}
	return p.create(parentID, name, mimeType, false, data), nil
}

func (p *Provider) UpdateFile(ctx context.Context, fileID string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.items[fileID]
	if !ok {
		return fmt.Errorf("%s: %w", fileID, common.ErrorNotFound)
	}
	if err := p.check(e.item.Name, p.nameOf(e.item.ParentID)); err != nil {
		return err
	}
	e.data = append([]byte(nil), data...)
	p.Updates++
	return nil
}

func (p *Provider) Download(ctx context.Context, fileID string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(); err != nil {
		return nil, err
	}
	e, ok := p.items[fileID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", fileID, common.ErrorNotFound)
	}
	return append([]byte(nil), e.data...), nil
}

// Delete removes an item and, for folders, everything beneath it.
func (p *Provider) Delete(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(); err != nil {
		return err
	}
	if _, ok := p.items[id]; !ok {
		return fmt.Errorf("%s: %w", id, common.ErrorNotFound)
	}
	p.deleteTree(id)
	p.Deletes++
	return nil
}

func (p *Provider) deleteTree(id string) {
	for cid, e := range p.items {
		if e.item.ParentID == id {
			p.deleteTree(cid)
		}
	}
	delete(p.items, id)
}

// Put overwrites the raw content of a file, bypassing the manager.
func (p *Provider) Put(id string, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.items[id]; ok {
		e.data = append([]byte(nil), data...)
	}
}

// Find returns every item named name under parentID, oldest first.
func (p *Provider) Find(parentID, name string) []backup.Item {
	items, _ := p.List(context.Background(), parentID, name, backup.KindAny)
	return items
}

// Content returns the bytes of a file.
func (p *Provider) Content(id string) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.items[id]; ok {
		return append([]byte(nil), e.data...)
	}
	return nil
}

// Len is the number of stored items.
func (p *Provider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}
