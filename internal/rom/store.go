package rom

import "github.com/durability-labs/ultra-data-burning-rom/internal/model"

// EntityStore is the keyed persistence layer all services read and write.
// Records are namespaced by kind and keyed by id.
type EntityStore interface {
	// Get decodes the record into dst. It returns false if the record is
	// absent, unreadable or corrupt; corrupt records are removed.
	Get(kind, id string, dst any) bool

	// Save upserts the record and updates the cache.
	Save(kind, id string, src any) error

	// Delete removes the record. Deleting an absent record is not an error.
	Delete(kind, id string) error

	// Iterate calls fn once per record known when the call started. fn runs
	// without the store guard held, so records may be stale: entries added
	// meanwhile may be missed and removed entries may still appear once.
	Iterate(kind string, fn func(decode func(dst any) error)) error
}

// Get loads an entity of type T by id.
func Get[T model.Entity](s EntityStore, id string) (T, bool) {
	var e T
	if id == "" || !s.Get(e.EntityKind(), id, &e) {
		var zero T
		return zero, false
	}
	return e, true
}

// Save persists an entity under its own kind and id.
func Save[T model.Entity](s EntityStore, e T) error {
	return s.Save(e.EntityKind(), e.EntityID(), e)
}

// Delete removes an entity of type T by id.
func Delete[T model.Entity](s EntityStore, id string) error {
	var zero T
	return s.Delete(zero.EntityKind(), id)
}

// Iterate calls fn for each decodable entity of type T.
func Iterate[T model.Entity](s EntityStore, fn func(T)) error {
	var zero T
	return s.Iterate(zero.EntityKind(), func(decode func(dst any) error) {
		var e T
		if err := decode(&e); err != nil {
			return
		}
		fn(e)
	})
}
