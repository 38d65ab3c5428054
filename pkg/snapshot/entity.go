package snapshot

// Entity is an opaque handle to a live game entity. Handles are issued by
// the world; the zero value means "no entity".
type Entity uint64

// NoEntity is the empty entity handle.
const NoEntity Entity = 0

// PlayerID identifies a player across the session.
type PlayerID int16

// RoomID identifies a placed room in the level.
type RoomID int16

// EmoteKind is an icon shown above an entity's head.
type EmoteKind uint8

const (
	EmoteConfused EmoteKind = iota
	EmotePaid
)

func (k EmoteKind) String() string {
	switch k {
	case EmoteConfused:
		return "confused"
	case EmotePaid:
		return "paid"
	default:
		return "unknown"
	}
}

// EmoteEntry is one queued emote icon and its display slot.
type EmoteEntry struct {
	Slot uint8
	Kind EmoteKind
}

// Tint is an RGBA color applied to part of an entity's model.
type Tint struct {
	R, G, B, A uint8
}

// IdleChoice records which idle behaviour an uncontrolled entity picked.
type IdleChoice struct {
	Idx uint16
}

// DayTick is the shared game clock: the tick within the current day, the
// day number, and a globally increasing timer.
type DayTick struct {
	Tick int32
	Day  uint32
	Time uint32
}

// EntityInfo identifies what an entity is: the resource key of its type,
// the model variant, and its display name. The whole struct is encoded
// atomically because its fields only ever change together.
type EntityInfo struct {
	Key       string
	Variant   uint8
	FirstName string
	LastName  string
}

// Target is where an entity is headed: the end of its current path (or
// its position when idle), the remaining travel time, and an optional
// facing to settle into. Clients run their own pathfinding toward it.
type Target struct {
	Time   float32
	X, Z   float32
	Facing *float32 // radians
}

// EntityState is everything synchronized about one entity for one frame.
type EntityState struct {
	Info     EntityInfo
	Owner    *PlayerID
	Target   Target
	Selected *PlayerID
	Room     *RoomID
	Data     []byte // script state blob, nil when absent
	Idle     *IdleChoice
	Emotes   []EmoteEntry
	Tints    []Tint
}

// PlayerConfig holds per-player settings synchronized to clients. It is
// currently empty and occupies no wire space; fields added here must be
// given an encoding in the player-state codec.
type PlayerConfig struct{}

// PlayerState is the per-player economic and clock state carried in the
// first packet of a delta burst.
type PlayerState struct {
	DayTick DayTick
	Money   int64
	Rating  int16
	Config  PlayerConfig
}

// Source is the world view the capture side reads. Entities returns the
// live synchronizable entities; State extracts one entity's wire state.
// The returned state is retained across ticks, so it must not share
// mutable storage with the world.
type Source interface {
	Entities() []Entity
	Live(e Entity) bool
	State(e Entity) EntityState
}

// Container is the world surface deltas are applied into. It is shaped
// by what an update can change rather than by raw component access, so
// worlds with any storage layout can implement it.
type Container interface {
	Live(e Entity) bool
	// Remove destroys the entity. Dead handles are a no-op.
	Remove(e Entity)

	// Key reports the type key of a live entity, used to detect whether a
	// reused network slot still holds the same kind of entity.
	Key(e Entity) (string, bool)

	Position(e Entity) (x, z float32)
	SetPosition(e Entity, x, z float32)
	// Lift raises the entity slightly off the ground while a player holds
	// it selected.
	Lift(e Entity, lifted bool)
	// MoveTo starts pathfinding toward (x, z) with the given travel time.
	MoveTo(e Entity, x, z, time float32)
	// Stop clears any pathfinding in progress.
	Stop(e Entity)

	Facing(e Entity) float32
	// Face turns the entity toward the angle over a short animation.
	Face(e Entity, radians float32)
	// SetFacing snaps the entity to the angle immediately.
	SetFacing(e Entity, radians float32)

	SetOwner(e Entity, p *PlayerID)
	SetSelected(e Entity, p *PlayerID)
	SetScriptData(e Entity, data []byte)

	Room(e Entity) *RoomID
	IdleChoice(e Entity) *IdleChoice
	// SetIdle assigns or clears the idle behaviour; owner is the player
	// whose idle bookkeeping tracks the entity.
	SetIdle(e Entity, owner *PlayerID, idle *IdleChoice)

	ControlByRoom(e Entity, r RoomID)
	ControlByIdle(e Entity, idx uint16)
	ReleaseControl(e Entity)

	// AddEmotes appends to the entity's emote queue; SetEmotes replaces it.
	AddEmotes(e Entity, emotes []EmoteEntry)
	SetEmotes(e Entity, emotes []EmoteEntry)
	SetTints(e Entity, tints []Tint)
}

// RoomView exposes room membership to delta application.
type RoomView interface {
	Exists(r RoomID) bool
	Attach(e Entity, r RoomID)
	Detach(e Entity, r RoomID)
}

// Factory materializes entities from their synchronized identity.
type Factory interface {
	Create(info EntityInfo) (Entity, error)
}

// Player exposes the economic state deltas read and write.
type Player interface {
	UID() PlayerID
	Money() int64
	AddMoney(delta int64)
	Rating() int16
	SetRating(r int16)
	Config() PlayerConfig
	SetConfig(c PlayerConfig)
}

// ClientWorld bundles the collaborators delta application touches.
type ClientWorld struct {
	Container Container
	Rooms     RoomView
	Factory   Factory
	Player    Player
}
