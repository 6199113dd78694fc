package content

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("avp/content")

// Index is an in-memory view of the library kept current by a Watcher.
type Index struct {
	mu   sync.RWMutex
	pkgs map[string]PackageInfo
}

func NewIndex() *Index {
	return &Index{pkgs: make(map[string]PackageInfo)}
}

func (ix *Index) Put(info PackageInfo) {
	ix.mu.Lock()
	ix.pkgs[info.Name] = info
	ix.mu.Unlock()
}

func (ix *Index) Remove(name string) {
	ix.mu.Lock()
	delete(ix.pkgs, name)
	ix.mu.Unlock()
}

func (ix *Index) Get(name string) (PackageInfo, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	info, ok := ix.pkgs[name]
	return info, ok
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.pkgs)
}

// Snapshot returns all entries sorted by name.
func (ix *Index) Snapshot() []PackageInfo {
	ix.mu.RLock()
	out := make([]PackageInfo, 0, len(ix.pkgs))
	for _, p := range ix.pkgs {
		out = append(out, p)
	}
	ix.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (ix *Index) replace(pkgs []PackageInfo) {
	m := make(map[string]PackageInfo, len(pkgs))
	for _, p := range pkgs {
		m[p.Name] = p
	}
	ix.mu.Lock()
	ix.pkgs = m
	ix.mu.Unlock()
}

// Watcher rescans library entries as they change on disk.
type Watcher struct {
	store    *Store
	index    *Index
	watcher  *fsnotify.Watcher
	onChange func(name string)

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

// Watch scans the library into a fresh Index and keeps it current until
// Close. onChange, if set, is called after each entry update.
func Watch(ctx context.Context, store *Store, onChange func(name string)) (*Watcher, error) {
	if err := store.EnsureRoot(); err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fw.Add(store.RootAbs()); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", store.RootAbs(), err)
	}

	w := &Watcher{
		store:    store,
		index:    NewIndex(),
		watcher:  fw,
		onChange: onChange,
		closed:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	pkgs, err := store.List(ctx)
	if err != nil {
		fw.Close()
		return nil, err
	}
	w.index.replace(pkgs)
	log.Infof("library %s: %d packages", store.RootAbs(), len(pkgs))

	go w.loop()
	return w, nil
}

func (w *Watcher) Index() *Index { return w.index }

func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.closed)
		err = w.watcher.Close()
		<-w.done
	})
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.closed:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			name := filepath.Base(event.Name)
			if ValidName(name) != nil {
				continue
			}

			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.refresh(name)
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				w.index.Remove(name)
				log.Debugf("library: removed %s", name)
				w.notify(name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warnf("library watcher error: %v", err)
		}
	}
}

func (w *Watcher) refresh(name string) {
	info, err := w.store.Stat(context.Background(), name)
	if err != nil {
		// gone again before we could read it
		w.index.Remove(name)
	} else {
		w.index.Put(info)
		log.Debugf("library: updated %s (%d bytes)", name, info.Size)
	}
	w.notify(name)
}

func (w *Watcher) notify(name string) {
	if w.onChange != nil {
		w.onChange(name)
	}
}
