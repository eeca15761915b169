package device

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/barolog/barolog/internal/reading"
)

type fakeLister struct {
	devices []reading.Device
}

func (f *fakeLister) DistinctDevices(ctx context.Context) []reading.Device {
	out := make([]reading.Device, len(f.devices))
	copy(out, f.devices)
	return out
}

func TestFileIdentity_Stable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.toml")

	first, err := NewFileIdentity(path, "").Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if first.ID == "" || first.Name == "" {
		t.Fatalf("expected generated identity, got %+v", first)
	}
	if !strings.HasPrefix(first.OSVersion, runtime.GOOS+"/") {
		t.Errorf("expected OS version to start with %s/, got %q", runtime.GOOS, first.OSVersion)
	}

	second, err := NewFileIdentity(path, "").Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if first != second {
		t.Errorf("identity changed across providers: %+v vs %+v", first, second)
	}
}

func TestFileIdentity_NameOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.toml")

	orig, err := NewFileIdentity(path, "").Get()
	if err != nil {
		t.Fatal(err)
	}

	renamed, err := NewFileIdentity(path, "kitchen").Get()
	if err != nil {
		t.Fatal(err)
	}
	if renamed.ID != orig.ID {
		t.Errorf("rename must keep the id: %s vs %s", orig.ID, renamed.ID)
	}
	if renamed.Name != "kitchen" {
		t.Errorf("expected name kitchen, got %q", renamed.Name)
	}

	again, _ := NewFileIdentity(path, "").Get()
	if again.Name != "kitchen" {
		t.Errorf("expected rename to persist, got %q", again.Name)
	}
}

func TestFileIdentity_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.toml")
	if err := os.WriteFile(path, []byte("device_name = \"x\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileIdentity(path, "").Get(); err == nil {
		t.Error("expected error for identity without device_id")
	}
}

func TestColor_PositionIndependent(t *testing.T) {
	c := Color("device-a")
	if c != Color("device-a") {
		t.Fatal("color must be deterministic")
	}

	found := false
	for _, p := range Palette {
		if p == c {
			found = true
		}
	}
	if !found {
		t.Errorf("color %s not in palette", c)
	}
}

func TestRegistry_DefaultSelection(t *testing.T) {
	ctx := context.Background()
	lister := &fakeLister{}
	r := NewRegistry(lister)

	r.Refresh(ctx)
	if len(r.List()) != 0 || len(r.Selection()) != 0 {
		t.Fatal("expected empty registry")
	}

	lister.devices = []reading.Device{
		{ID: "b", Name: "Beta"},
		{ID: "a2", Name: "Alpha"},
		{ID: "a1", Name: "Alpha"},
	}
	r.Refresh(ctx)

	var ids []string
	for _, d := range r.List() {
		ids = append(ids, d.ID)
	}
	if want := []string{"a1", "a2", "b"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("expected order %v, got %v", want, ids)
	}
	if want := []string{"a1", "a2", "b"}; !reflect.DeepEqual(r.Selection(), want) {
		t.Errorf("expected all devices selected, got %v", r.Selection())
	}
}

// Devices that arrive later, e.g. through a sync, stay visible until the
// user makes a selection.
func TestRegistry_LateDeviceSelectedUntilToggle(t *testing.T) {
	ctx := context.Background()
	lister := &fakeLister{devices: []reading.Device{{ID: "a", Name: "A"}}}
	r := NewRegistry(lister)
	r.Refresh(ctx)

	lister.devices = append(lister.devices, reading.Device{ID: "b", Name: "B"})
	r.Refresh(ctx)
	if want := []string{"a", "b"}; !reflect.DeepEqual(r.Selection(), want) {
		t.Errorf("expected %v selected, got %v", want, r.Selection())
	}

	r.Toggle("a")
	lister.devices = append(lister.devices, reading.Device{ID: "c", Name: "C"})
	r.Refresh(ctx)
	if want := []string{"b"}; !reflect.DeepEqual(r.Selection(), want) {
		t.Errorf("expected %v after explicit selection, got %v", want, r.Selection())
	}

	r.Reset()
	r.Refresh(ctx)
	if len(r.Selection()) != 3 {
		t.Errorf("expected all devices selected after reset, got %v", r.Selection())
	}
}

func TestRegistry_ToggleAndVanish(t *testing.T) {
	ctx := context.Background()
	lister := &fakeLister{devices: []reading.Device{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}}}
	r := NewRegistry(lister)
	r.Refresh(ctx)

	if r.Toggle("a") {
		t.Error("toggling a selected device should deselect it")
	}
	if want := []string{"b"}; !reflect.DeepEqual(r.Selection(), want) {
		t.Errorf("expected %v, got %v", want, r.Selection())
	}
	if r.Toggle("missing") {
		t.Error("unknown device must not become selected")
	}

	// A new device appears after an explicit toggle: not auto-selected.
	lister.devices = append(lister.devices, reading.Device{ID: "c", Name: "C"})
	r.Refresh(ctx)
	if r.IsSelected("c") {
		t.Error("late device should start unselected")
	}

	// b vanishes: dropped from the selection.
	lister.devices = []reading.Device{{ID: "a", Name: "A"}, {ID: "c", Name: "C"}}
	r.Refresh(ctx)
	if len(r.Selection()) != 0 {
		t.Errorf("expected empty selection, got %v", r.Selection())
	}
	if !r.NothingSelected() {
		t.Error("expected NothingSelected with devices known and none selected")
	}

	r.Reset()
	r.Refresh(ctx)
	if want := []string{"a", "c"}; !reflect.DeepEqual(r.Selection(), want) {
		t.Errorf("expected reset to reselect all, got %v", r.Selection())
	}
}
