package catalog

// EventType classifies a catalog change.
type EventType string

const (
	UnitCreated  EventType = "unit_created"
	UnitUpdated  EventType = "unit_updated"
	UnitDeleted  EventType = "unit_deleted"
	EntryCreated EventType = "entry_created"
	EntryUpdated EventType = "entry_updated"
	EntryRemoved EventType = "entry_removed"
)

// Event describes one catalog change. Unit events carry the unit's
// directories so watchers can re-register without a store round trip.
type Event struct {
	Type        EventType          `json:"type"`
	UnitID      int64              `json:"unit_id"`
	EntryID     int64              `json:"entry_id,omitempty"`
	Path        string             `json:"path,omitempty"`
	Directories []DirectoryMapping `json:"directories,omitempty"`
}

// Publisher accepts catalog events. *events.Bus[Event] satisfies it.
type Publisher interface {
	Publish(Event)
}

func unitEvent(kind EventType, unit *Unit) Event {
	return Event{Type: kind, UnitID: unit.ID, Directories: unit.Directories}
}

func entryEvent(kind EventType, entry *Entry) Event {
	return Event{Type: kind, UnitID: entry.UnitID, EntryID: entry.ID, Path: entry.Metadata.Path}
}
