package rom_test

import (
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/durability-labs/ultra-data-burning-rom/internal/model"
	"github.com/durability-labs/ultra-data-burning-rom/internal/rom"
	"github.com/durability-labs/ultra-data-burning-rom/internal/testutil"
)

func TestPopular_Ranking(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestStore(t)

	for i := 1; i <= 10; i++ {
		r := model.Rom{
			CID:          fmt.Sprintf("rom-%02d", i),
			MountCounter: i,
			Info:         model.RomInfo{Tags: "common"},
		}
		if i%2 == 0 {
			r.Info.Tags = "common, even"
		}
		if i == 3 {
			r.Info.Tags = "common. Rare"
		}
		if err := rom.Save(db, r); err != nil {
			t.Fatal(err)
		}
	}

	p := rom.NewPopular(db, rom.NewNopLogger())
	if info := p.Info(); len(info.RomCIDs) != 0 {
		t.Errorf("Info() before any pass = %+v, want empty", info)
	}

	s := rom.NewScanner(db, time.Hour, rom.NopMetrics{}, rom.NewNopLogger())
	rom.Attach(s, p.NewHandler)
	s.RunOnce()

	info := p.Info()
	wantRoms := []string{"rom-10", "rom-09", "rom-08", "rom-07", "rom-06", "rom-05", "rom-04"}
	if !slices.Equal(info.RomCIDs, wantRoms) {
		t.Errorf("RomCIDs = %q, want %q", info.RomCIDs, wantRoms)
	}
	wantTags := []string{"common", "even", "rare"}
	if !slices.Equal(info.Tags, wantTags) {
		t.Errorf("Tags = %q, want %q", info.Tags, wantTags)
	}

	// The ranking is persisted and reloaded.
	reloaded := rom.NewPopular(db, rom.NewNopLogger()).Info()
	if !slices.Equal(reloaded.RomCIDs, wantRoms) || reloaded.ID != rom.PopularContentID {
		t.Errorf("reloaded ranking = %+v", reloaded)
	}
}

func TestPopular_TagLimit(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestStore(t)
	if err := rom.Save(db, model.Rom{CID: "r", Info: model.RomInfo{Tags: "j i h g f e d c b a"}}); err != nil {
		t.Fatal(err)
	}
	p := rom.NewPopular(db, rom.NewNopLogger())
	h := p.NewHandler()
	h.Initialize()
	rom.Iterate(db, h.OnEntity)
	h.Finish()

	want := []string{"a", "b", "c", "d", "e", "f", "g"}
	if got := p.Info().Tags; !slices.Equal(got, want) {
		t.Errorf("Tags = %q, want %q (ties broken by name)", got, want)
	}
}

func TestPopular_InfoIsACopy(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestStore(t)
	if err := rom.Save(db, model.PopularContent{ID: rom.PopularContentID, RomCIDs: []string{"x"}}); err != nil {
		t.Fatal(err)
	}
	p := rom.NewPopular(db, rom.NewNopLogger())
	info := p.Info()
	info.RomCIDs[0] = "mutated"
	if p.Info().RomCIDs[0] != "x" {
		t.Error("Info() exposes internal state")
	}
}
