package protocol

// Event payloads, server → client.

// Welcome acknowledges a Hello and issues (or echoes) the player id the
// client should present when resuming after a dropped connection.
type Welcome struct {
	PlayerID string `json:"player_id"`
	Version  int    `json:"version"`
}

// PlayerInfo is the public view of one session in a room.
type PlayerInfo struct {
	PlayerID  string `json:"player_id"`
	Name      string `json:"name"`
	Host      bool   `json:"host,omitempty"`
	Ready     bool   `json:"ready,omitempty"`
	Alive     bool   `json:"alive,omitempty"`
	Score     int    `json:"score"`
	Connected bool   `json:"connected"`
}

// RoomInfo is the public view of a room, also used for listings and
// ROOM_FULL alternatives.
type RoomInfo struct {
	RoomID     string    `json:"room_id"`
	Code       string    `json:"code"`
	GameType   GameType  `json:"game_type"`
	State      RoomState `json:"state"`
	Private    bool      `json:"private,omitempty"`
	MinPlayers int       `json:"min_players"`
	MaxPlayers int       `json:"max_players"`
	Players    int       `json:"players"`
}

type RoomJoined struct {
	Room     RoomInfo     `json:"room"`
	You      string       `json:"you"` // player id of the recipient
	Players  []PlayerInfo `json:"players"`
	Resumed  bool         `json:"resumed,omitempty"`
	Settings RoomSettings `json:"settings,omitempty"`
}

type PlayerJoined struct {
	Player PlayerInfo `json:"player"`
}

// PlayerLeft reasons.
const (
	LeaveReasonLeft         = "left"
	LeaveReasonDisconnected = "disconnected"
	LeaveReasonGraceExpired = "grace_expired"
	LeaveReasonAFK          = "afk"
)

type PlayerLeft struct {
	PlayerID string `json:"player_id"`
	Reason   string `json:"reason"`
	NewHost  string `json:"new_host,omitempty"` // set when host migrated
}

type PlayersUpdate struct {
	Players []PlayerInfo `json:"players"`
}

// RoomStateChanged announces a lifecycle transition. Reason is set on the
// abort and failure paths ("insufficient players", "simulation error").
type RoomStateChanged struct {
	State       RoomState `json:"state"`
	Reason      string    `json:"reason,omitempty"`
	CountdownMs int64     `json:"countdown_ms,omitempty"`
}

type CountdownTick struct {
	Remaining int `json:"remaining"` // whole seconds until PLAYING
}

// GameUpdate is the per-tick payload. Exactly one of the per-game views is
// set, matching the room's game type.
type GameUpdate struct {
	Tick  uint64      `json:"tick"`
	Snake *SnakeState `json:"snake,omitempty"`
	Tanks *TanksState `json:"tanks,omitempty"`
	Tower *TowerState `json:"tower,omitempty"`
}

// Cell is a grid coordinate.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Power-up kinds shared by the power-up events and the snake state view.
const (
	PowerUpFood   = "food"
	PowerUpHazard = "hazard"
	PowerUpWeapon = "weapon"
	PowerUpArmor  = "armor"
)

type SnakeView struct {
	PlayerID string    `json:"player_id"`
	Body     []Cell    `json:"body"` // head first
	Dir      Direction `json:"dir"`
	Alive    bool      `json:"alive"`
	Shots    int       `json:"shots,omitempty"`
	Armor    bool      `json:"armor,omitempty"`
}

type PowerUpView struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Cell Cell   `json:"cell"`
	TTL  int    `json:"ttl,omitempty"` // ticks until despawn, hazards only
}

type SnakeState struct {
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	Snakes   []SnakeView   `json:"snakes"`
	PowerUps []PowerUpView `json:"power_ups,omitempty"`
}

// TankClass is one corner of the cyclic dominance triangle.
type TankClass string

const (
	ClassFlame TankClass = "flame"
	ClassFrost TankClass = "frost"
	ClassVolt  TankClass = "volt"
)

type TankView struct {
	PlayerID  string    `json:"player_id"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Facing    Direction `json:"facing"`
	Class     TankClass `json:"class"`
	Health    int       `json:"health"`
	Alive     bool      `json:"alive"`
	Kills     int       `json:"kills"`
	RespawnMs int64     `json:"respawn_ms,omitempty"`
}

type ProjectileView struct {
	ID      string    `json:"id"`
	OwnerID string    `json:"owner_id"`
	X       float64   `json:"x"`
	Y       float64   `json:"y"`
	Class   TankClass `json:"class"`
}

type TanksState struct {
	Width       float64          `json:"width"`
	Height      float64          `json:"height"`
	Tanks       []TankView       `json:"tanks"`
	Projectiles []ProjectileView `json:"projectiles,omitempty"`
}

type TowerProgress struct {
	PlayerID string `json:"player_id"`
	Level    int    `json:"level"` // highest level passed + 1 (unlocked watermark)
	Deaths   int    `json:"deaths"`
	InQueue  bool   `json:"in_queue"`
}

type TowerState struct {
	Level     int             `json:"level"` // level currently being attempted
	Levels    int             `json:"levels"`
	ActiveID  string          `json:"active_id,omitempty"`
	Queue     []string        `json:"queue"`
	Attempted []string        `json:"attempted,omitempty"`
	Progress  []TowerProgress `json:"progress"`
}

type PlayerDied struct {
	PlayerID string `json:"player_id"`
	Cause    string `json:"cause,omitempty"` // "wall", "self", "head_on", "snake", "hazard", "shot"
	KillerID string `json:"killer_id,omitempty"`
}

type PlayerRespawned struct {
	PlayerID string    `json:"player_id"`
	Class    TankClass `json:"class,omitempty"`
}

// PlayerShot reports a shot resolution. Damage zero with NoDamage set means
// the dominance table voided the hit; TargetID empty means the shot spent
// itself on a wall or its travel limit.
type PlayerShot struct {
	PlayerID string `json:"player_id"`
	TargetID string `json:"target_id,omitempty"`
	Damage   int    `json:"damage"`
	NoDamage bool   `json:"no_damage,omitempty"`
}

type PlayerKilled struct {
	VictimID string `json:"victim_id"`
	KillerID string `json:"killer_id,omitempty"`
}

type ArmorActivated struct {
	PlayerID string `json:"player_id"`
}

// ArmorUsed is the "blocked" notice sent instead of a death.
type ArmorUsed struct {
	PlayerID  string `json:"player_id"`
	BlockedID string `json:"blocked_id,omitempty"` // shooter whose hit was absorbed
}

type ArmorExpired struct {
	PlayerID string `json:"player_id"`
}

type PowerUpSpawned struct {
	PowerUp PowerUpView `json:"power_up"`
}

type PowerUpRemoved struct {
	ID     string `json:"id"`
	Reason string `json:"reason,omitempty"` // "expired" or "collected"
}

type PowerUpCollected struct {
	ID       string `json:"id"`
	PlayerID string `json:"player_id"`
	Kind     string `json:"kind"`
}

// TypeChanged announces a global transformation event in tanks.
type TypeChanged struct {
	Classes map[string]TankClass `json:"classes"` // player id → new class
}

type RoundTime struct {
	RemainingSec int `json:"remaining_sec"`
}

// ResultEntry is one row of the final ranking.
type ResultEntry struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Kills    int    `json:"kills,omitempty"`
	Level    int    `json:"level,omitempty"`
	Deaths   int    `json:"deaths,omitempty"`
}

// Round end reasons.
const (
	RoundReasonLastAlive  = "last_alive"
	RoundReasonTimeUp     = "time_up"
	RoundReasonLevelsDone = "levels_done"
	RoundReasonSimError   = "simulation error"
)

type RoundEnded struct {
	Reason   string        `json:"reason"`
	Rankings []ResultEntry `json:"rankings"`
	Duration int64         `json:"duration_ms"`
}

// GameReset announces the RESET transition back to LOBBY.
type GameReset struct {
	Reason string `json:"reason,omitempty"` // "rematch", "idle", "insufficient players"
}

type ChatMessage struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Text     string `json:"text"`
}

type Pong struct {
	ClientTimeMs int64 `json:"client_time_ms"`
	ServerTimeMs int64 `json:"server_time_ms"`
}
