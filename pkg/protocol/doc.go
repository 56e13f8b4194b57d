// Package protocol defines the wire format spoken between the arcade server
// and its clients: a small versioned envelope wrapping tagged JSON payloads.
// Command payloads travel client→server, event payloads server→client.
//
// Envelope:
//
//	v: protocol version (currently 1)
//	t: message type tag
//	p: payload, shaped by t; omitted when a message carries none
//
// Client -> Server
//
//	Hello:         name, player_id (present to resume an identity)
//	CreateRoom:    game_type, private, max_players, settings
//	JoinRoom:      room_id
//	JoinByCode:    code (6 chars, case-insensitive)
//	QuickMatch:    game_type
//	Ready:         ready
//	Start:         {} (host only)
//	Move:          dir ("up" | "down" | "left" | "right")
//	Shoot:         {} (snake with a weapon, tanks)
//	ActivateArmor: {} (snake)
//	LevelResult:   success, deaths (tower, active player only)
//	RematchVote:   rematch
//	Chat:          text
//	Ping:          client_time_ms
//	Leave:         {}
//
// Server -> Client
//
//	Welcome:          player_id, version
//	RoomJoined:       room, you, players, resumed, settings
//	PlayerJoined:     player
//	PlayerLeft:       player_id, reason, new_host
//	PlayersUpdate:    players (full roster snapshot)
//	RoomState:        state, reason, countdown_ms
//	CountdownTick:    remaining (whole seconds)
//	GameUpdate:       tick plus exactly one of snake | tanks | tower
//	PlayerDied:       player_id, cause, killer_id
//	PlayerRespawned:  player_id, class
//	PlayerShot:       player_id, target_id, damage, no_damage
//	PlayerKilled:     victim_id, killer_id
//	ArmorActivated:   player_id
//	ArmorUsed:        player_id, blocked_id
//	ArmorExpired:     player_id
//	PowerUpSpawned:   power_up
//	PowerUpRemoved:   id, reason
//	PowerUpCollected: id, player_id, kind
//	TypeChanged:      classes (player id -> new tank class)
//	RoundTime:        remaining_sec
//	RoundEnded:       reason, rankings, duration_ms
//	GameReset:        reason
//	ChatMessage:      player_id, name, text
//	Pong:             client_time_ms, server_time_ms
//	Error:            code, message, alternatives (ROOM_FULL only)
package protocol
