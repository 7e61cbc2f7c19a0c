package store

import (
	"testing"

	"github.com/tau-omega/stadsmonitor/internal/models"
)

func TestPutDefaultNames(t *testing.T) {
	s := New()

	first := s.Put(models.NewDataset(""))
	second := s.Put(models.NewDataset(""))
	third := s.Put(models.NewDataset(""))

	if first != DefaultName {
		t.Errorf("first = %q, want %q", first, DefaultName)
	}
	if second != DefaultName+" 2" || third != DefaultName+" 3" {
		t.Errorf("followups = %q, %q", second, third)
	}
}

func TestPutOverwritesSameName(t *testing.T) {
	s := New()
	a := models.NewDataset("fietsen")
	b := models.NewDataset("fietsen")

	s.Put(a)
	s.Put(b)

	got, ok := s.Get("fietsen")
	if !ok || got.ID != b.ID {
		t.Error("second put did not replace the first")
	}
	if len(s.List()) != 1 {
		t.Errorf("List has %d datasets, want 1", len(s.List()))
	}
}

func TestRealtimeWinsOnCollision(t *testing.T) {
	s := New()
	user := models.NewDataset(RealtimeName)
	s.Put(user)

	rt := models.NewDataset(RealtimeName)
	s.SetRealtime(rt)

	got, ok := s.Get(RealtimeName)
	if !ok || got.ID != rt.ID {
		t.Error("Get did not prefer the realtime slot")
	}

	list := s.List()
	if len(list) != 1 {
		t.Fatalf("List has %d datasets, want 1", len(list))
	}
	if list[0].ID != rt.ID {
		t.Error("List did not prefer the realtime slot")
	}
}

func TestDelete(t *testing.T) {
	s := New()
	s.Put(models.NewDataset("weg"))

	if !s.Delete("weg") {
		t.Error("Delete returned false for existing dataset")
	}
	if s.Delete("weg") {
		t.Error("Delete returned true for missing dataset")
	}

	s.SetRealtime(models.NewDataset(RealtimeName))
	if !s.Delete(RealtimeName) {
		t.Error("Delete did not clear the realtime slot")
	}
	if _, ok := s.Realtime(); ok {
		t.Error("realtime slot still set after delete")
	}
}
