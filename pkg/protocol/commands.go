package protocol

// Command payloads, client → server. Wire field names are snake_case.

// Hello must be the first frame on a fresh connection. PlayerID may carry an
// id issued by a previous Welcome to resume a session within its reconnect
// grace window.
type Hello struct {
	Name     string `json:"name"`
	PlayerID string `json:"player_id,omitempty"`
}

// RoomSettings carries per-game knobs chosen at creation. Zero values mean
// "use the game default".
type RoomSettings struct {
	RoundSeconds int `json:"round_seconds,omitempty"` // tanks: round clock
	Levels       int `json:"levels,omitempty"`        // tower: level count
}

type CreateRoom struct {
	GameType   GameType     `json:"game_type"`
	Private    bool         `json:"private,omitempty"`
	MaxPlayers int          `json:"max_players,omitempty"`
	Settings   RoomSettings `json:"settings,omitempty"`
}

type JoinRoom struct {
	RoomID string `json:"room_id"`
}

type JoinByCode struct {
	Code string `json:"code"`
}

type QuickMatch struct {
	GameType GameType `json:"game_type"`
}

type Ready struct {
	Ready bool `json:"ready"`
}

type Move struct {
	Direction Direction `json:"direction"`
}

// LevelResult reports a tower attempt outcome for the active player.
type LevelResult struct {
	Success bool `json:"success"`
	Deaths  int  `json:"deaths,omitempty"`
}

type RematchVote struct {
	Rematch bool `json:"rematch"`
}

type Chat struct {
	Text string `json:"text"`
}

type Ping struct {
	ClientTimeMs int64 `json:"client_time_ms"`
}
