package protocol

import "encoding/json"

// Version is bumped whenever an envelope or payload changes shape in a way
// old clients cannot parse.
const Version = 1

// Envelope wraps every message on the wire. P holds the raw payload bytes so
// receivers can pick a concrete type after reading T.
type Envelope struct {
	V int             `json:"v"`
	T MsgType         `json:"t"`
	P json.RawMessage `json:"p,omitempty"`
}

type MsgType string

// Client → server commands.
const (
	MsgHello         MsgType = "Hello"
	MsgCreateRoom    MsgType = "CreateRoom"
	MsgJoinRoom      MsgType = "JoinRoom"
	MsgJoinByCode    MsgType = "JoinByCode"
	MsgQuickMatch    MsgType = "QuickMatch"
	MsgReady         MsgType = "Ready"
	MsgStart         MsgType = "Start"
	MsgMove          MsgType = "Move"
	MsgShoot         MsgType = "Shoot"
	MsgActivateArmor MsgType = "ActivateArmor"
	MsgLevelResult   MsgType = "LevelResult"
	MsgRematchVote   MsgType = "RematchVote"
	MsgChat          MsgType = "Chat"
	MsgPing          MsgType = "Ping"
	MsgLeave         MsgType = "Leave"
)

// Server → client events.
const (
	MsgWelcome          MsgType = "Welcome"
	MsgRoomJoined       MsgType = "RoomJoined"
	MsgPlayerJoined     MsgType = "PlayerJoined"
	MsgPlayerLeft       MsgType = "PlayerLeft"
	MsgPlayersUpdate    MsgType = "PlayersUpdate"
	MsgRoomState        MsgType = "RoomState"
	MsgCountdownTick    MsgType = "CountdownTick"
	MsgGameUpdate       MsgType = "GameUpdate"
	MsgPlayerDied       MsgType = "PlayerDied"
	MsgPlayerRespawned  MsgType = "PlayerRespawned"
	MsgPlayerShot       MsgType = "PlayerShot"
	MsgPlayerKilled     MsgType = "PlayerKilled"
	MsgArmorActivated   MsgType = "ArmorActivated"
	MsgArmorUsed        MsgType = "ArmorUsed"
	MsgArmorExpired     MsgType = "ArmorExpired"
	MsgPowerUpSpawned   MsgType = "PowerUpSpawned"
	MsgPowerUpRemoved   MsgType = "PowerUpRemoved"
	MsgPowerUpCollected MsgType = "PowerUpCollected"
	MsgTypeChanged      MsgType = "TypeChanged"
	MsgRoundTime        MsgType = "RoundTime"
	MsgRoundEnded       MsgType = "RoundEnded"
	MsgGameReset        MsgType = "GameReset"
	MsgChatMessage      MsgType = "ChatMessage"
	MsgPong             MsgType = "Pong"
	MsgError            MsgType = "Error"
)

// GameType tags the rule set a room runs.
type GameType string

const (
	GameSnake GameType = "snake"
	GameTanks GameType = "tanks"
	GameTower GameType = "tower"
)

func (g GameType) Valid() bool {
	switch g {
	case GameSnake, GameTanks, GameTower:
		return true
	}
	return false
}

// RoomState names a phase of the room lifecycle.
type RoomState string

const (
	StateLobby     RoomState = "lobby"
	StateCountdown RoomState = "countdown"
	StatePlaying   RoomState = "playing"
	StateResults   RoomState = "results"
	StateReset     RoomState = "reset"
)

// Direction is a movement intent interpreted by the active game.
type Direction string

const (
	DirUp    Direction = "up"
	DirDown  Direction = "down"
	DirLeft  Direction = "left"
	DirRight Direction = "right"
)

func (d Direction) Valid() bool {
	switch d {
	case DirUp, DirDown, DirLeft, DirRight:
		return true
	}
	return false
}
