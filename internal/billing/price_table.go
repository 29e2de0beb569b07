package billing

import (
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

const reloadDebounce = 100 * time.Millisecond

// ModelPrice is a single price table row.
type ModelPrice struct {
	Model string `json:"model"`
	Rates
	Free bool `json:"free"`
}

// PriceTable maps model ids to per-token rates. Lookups never fail: an
// unknown model gets the fallback rates, which must be non-zero so unknown
// models are never treated as free by omission.
type PriceTable struct {
	mu       sync.RWMutex
	prices   map[string]Rates
	fallback Rates

	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	stopOnce sync.Once
	debounce *time.Timer
}

// DefaultRates applies to unknown models when no fallback is configured.
var DefaultRates = NewRates(1.0/1_000_000, 2.0/1_000_000)

func NewPriceTable(prices map[string]Rates, fallback Rates) *PriceTable {
	t := &PriceTable{stopChan: make(chan struct{}), fallback: DefaultRates}
	t.Replace(prices, fallback)
	return t
}

// RateFor returns the rates for modelID.
func (t *PriceTable) RateFor(modelID string) Rates {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if r, ok := t.prices[modelID]; ok {
		return r
	}
	return t.fallback
}

// Replace swaps the whole rate map. A zero fallback is ignored and the
// previous fallback kept.
func (t *PriceTable) Replace(prices map[string]Rates, fallback Rates) {
	next := make(map[string]Rates, len(prices))
	for id, r := range prices {
		next[id] = r
	}

	t.mu.Lock()
	t.prices = next
	if !fallback.IsFree() {
		t.fallback = fallback
	}
	t.mu.Unlock()
}

// List returns all explicit entries sorted by model id.
func (t *PriceTable) List() []ModelPrice {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]ModelPrice, 0, len(t.prices))
	for id, r := range t.prices {
		result = append(result, ModelPrice{Model: id, Rates: r, Free: r.IsFree()})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Model < result[j].Model })
	return result
}

// Fallback returns the rates used for unknown models.
func (t *PriceTable) Fallback() Rates {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fallback
}

// Watch reloads the table through load whenever path is written or
// recreated. The directory is watched so editors that replace the file are
// handled.
func (t *PriceTable) Watch(path string, load func() (map[string]Rates, Rates, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return err
	}
	t.watcher = watcher

	go t.watchLoop(filepath.Base(path), load)
	return nil
}

func (t *PriceTable) watchLoop(name string, load func() (map[string]Rates, Rates, error)) {
	for {
		select {
		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if t.debounce != nil {
				t.debounce.Stop()
			}
			t.debounce = time.AfterFunc(reloadDebounce, func() {
				prices, fallback, err := load()
				if err != nil {
					log.Warnf("billing: price table reload failed: %v", err)
					return
				}
				t.Replace(prices, fallback)
				log.Infof("billing: price table reloaded with %d models", len(prices))
			})

		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			log.Warnf("billing: price table watcher error: %v", err)

		case <-t.stopChan:
			return
		}
	}
}

// Stop ends file watching.
func (t *PriceTable) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopChan)
		if t.watcher != nil {
			t.watcher.Close()
		}
	})
}
