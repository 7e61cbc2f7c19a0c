// Package store keeps the loaded datasets in memory: the named user
// datasets plus one realtime slot for the sensor network, which wins
// on name collision.
package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tau-omega/stadsmonitor/internal/models"
)

// DefaultName is assigned to datasets stored without a name.
const DefaultName = "Dataset zonder naam"

// RealtimeName is the reserved slot for the sensor dataset.
const RealtimeName = "meet je stad"

type Store struct {
	mu       sync.RWMutex
	datasets map[string]*models.Dataset
	realtime *models.Dataset
}

func New() *Store {
	return &Store{datasets: make(map[string]*models.Dataset)}
}

// Put stores a dataset under its name and returns the name it ended
// up with. Unnamed datasets get "Dataset zonder naam", then
// "Dataset zonder naam 2" and so on until a free slot is found.
func (s *Store) Put(ds *models.Dataset) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ds.Name == "" {
		ds.Name = s.freeDefaultName()
	}
	s.datasets[ds.Name] = ds
	return ds.Name
}

func (s *Store) freeDefaultName() string {
	if _, taken := s.datasets[DefaultName]; !taken {
		return DefaultName
	}
	for i := 2; ; i++ {
		name := fmt.Sprintf("%s %d", DefaultName, i)
		if _, taken := s.datasets[name]; !taken {
			return name
		}
	}
}

// Get looks a dataset up by name. The realtime slot shadows a user
// dataset of the same name.
func (s *Store) Get(name string) (*models.Dataset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.realtime != nil && name == s.realtime.Name {
		return s.realtime, true
	}
	ds, ok := s.datasets[name]
	return ds, ok
}

// Delete removes a dataset. Deleting the realtime name clears the
// realtime slot.
func (s *Store) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.realtime != nil && name == s.realtime.Name {
		s.realtime = nil
		return true
	}
	if _, ok := s.datasets[name]; !ok {
		return false
	}
	delete(s.datasets, name)
	return true
}

// List returns every dataset, realtime slot merged in last so it wins
// on a name collision. Order is name-sorted with realtime appended.
func (s *Store) List() []*models.Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.datasets))
	for name := range s.datasets {
		if s.realtime != nil && name == s.realtime.Name {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*models.Dataset, 0, len(names)+1)
	for _, name := range names {
		out = append(out, s.datasets[name])
	}
	if s.realtime != nil {
		out = append(out, s.realtime)
	}
	return out
}

// SetRealtime replaces the realtime slot.
func (s *Store) SetRealtime(ds *models.Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.realtime = ds
}

// Realtime returns the current realtime dataset, if loaded.
func (s *Store) Realtime() (*models.Dataset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.realtime, s.realtime != nil
}
