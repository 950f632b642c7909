package rom

import "github.com/durability-labs/ultra-data-burning-rom/internal/model"

// RomView is a ROM as shown to clients. Timestamps are unix milliseconds.
type RomView struct {
	CID           string            `json:"romCid"`
	Info          model.RomInfo     `json:"info"`
	Entries       []model.FileEntry `json:"entries"`
	MountState    model.MountState  `json:"mountState"`
	MountExpiry   int64             `json:"mountExpiryUtc"`
	StorageExpiry int64             `json:"storageExpiryUtc"`
}

// Mapper builds RomViews from stored ROMs and their mounts.
type Mapper struct {
	db EntityStore
}

func NewMapper(db EntityStore) *Mapper {
	return &Mapper{db: db}
}

// Map returns the view of a ROM, or false if it does not exist.
func (m *Mapper) Map(cid string) (RomView, bool) {
	rom, ok := Get[model.Rom](m.db, cid)
	if !ok {
		return RomView{}, false
	}
	return m.view(rom), true
}

// MapAll returns the views of the given ROMs, skipping unknown ids.
func (m *Mapper) MapAll(cids []string) []RomView {
	views := make([]RomView, 0, len(cids))
	for _, cid := range cids {
		if v, ok := m.Map(cid); ok {
			views = append(views, v)
		}
	}
	return views
}

func (m *Mapper) view(rom model.Rom) RomView {
	v := RomView{
		CID:           rom.CID,
		Info:          rom.Info,
		Entries:       rom.Files,
		MountState:    model.MountClosedNotUsed,
		StorageExpiry: UnixMillis(rom.StorageExpiresAt),
	}
	if v.Entries == nil {
		v.Entries = []model.FileEntry{}
	}
	if mount, ok := Get[model.Mount](m.db, rom.CurrentMountID); ok {
		v.MountState = mount.State
		v.MountExpiry = UnixMillis(mount.ExpiresAt)
	}
	return v
}
