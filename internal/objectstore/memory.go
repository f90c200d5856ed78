package objectstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/carekeeper/internal/common"
)

// Operation names accepted by Memory.Fail.
const (
	OpPut      = "put"
	OpGet      = "get"
	OpGetFresh = "getfresh"
	OpDelete   = "delete"
	OpList     = "list"
)

type memObject struct {
	data     []byte
	mime     string
	modified time.Time
}

// Memory is an in-process Store. It supports injecting per-operation
// failures.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memObject
	faults  map[string]error
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		objects: make(map[string]memObject),
		faults:  make(map[string]error),
		now:     time.Now,
	}
}

// Fail makes op on key return err until cleared with a nil err.
func (m *Memory) Fail(op, key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.faults, op+"|"+key)
		return
	}
	m.faults[op+"|"+key] = err
}

func (m *Memory) fault(op, key string) error {
	return m.faults[op+"|"+key]
}

func (m *Memory) Put(ctx context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(OpPut, key); err != nil {
		return err
	}
	m.objects[key] = memObject{data: append([]byte(nil), data...), mime: contentType, modified: m.now()}
	return nil
}

func (m *Memory) get(op, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fault(op, key); err != nil {
		return nil, err
	}
	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, common.ErrorNotFound)
	}
	return append([]byte(nil), obj.data...), nil
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	return m.get(OpGet, key)
}

func (m *Memory) GetFresh(ctx context.Context, key string) ([]byte, error) {
	return m.get(OpGetFresh, key)
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(OpDelete, key); err != nil {
		return err
	}
	delete(m.objects, key)
	return nil
}

func (m *Memory) List(ctx context.Context, prefix string) (Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fault(OpList, prefix); err != nil {
		return Listing{}, err
	}

	var out Listing
	seen := make(map[string]struct{})
	for key, obj := range m.objects {
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}
		if i := strings.Index(rest, "/"); i >= 0 {
			p := prefix + rest[:i+1]
			if _, dup := seen[p]; !dup {
				seen[p] = struct{}{}
				out.Prefixes = append(out.Prefixes, p)
			}
			continue
		}
		out.Objects = append(out.Objects, Object{Key: key, Size: int64(len(obj.data)), LastModified: obj.modified})
	}

	sort.Slice(out.Objects, func(i, j int) bool { return out.Objects[i].Key < out.Objects[j].Key })
	sort.Strings(out.Prefixes)
	return out, nil
}

func (m *Memory) URL(ctx context.Context, key string) (string, error) {
	return "mem://" + key, nil
}

// Keys returns every stored key in order.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
