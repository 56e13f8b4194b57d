package room

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dustfall/arcade-backend/pkg/protocol"
)

// RoundSummary is the final-score record handed to the leaderboard side
// when a round ends. Persistence lives in an external service; the room
// only emits and consumes nothing back.
type RoundSummary struct {
	RoomID   string
	Code     string
	GameType protocol.GameType
	Reason   string
	Duration time.Duration
	Rankings []protocol.ResultEntry
}

type ScoreReporter interface {
	Report(ctx context.Context, sum RoundSummary)
}

// LogScores is the default reporter: standings go to the log and nowhere
// else.
type LogScores struct {
	Log *zap.Logger
}

func (r LogScores) Report(_ context.Context, sum RoundSummary) {
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	fields := []zap.Field{
		zap.String("room_id", sum.RoomID),
		zap.String("code", sum.Code),
		zap.String("game", string(sum.GameType)),
		zap.String("reason", sum.Reason),
		zap.Duration("duration", sum.Duration),
		zap.Int("players", len(sum.Rankings)),
	}
	if len(sum.Rankings) > 0 {
		top := sum.Rankings[0]
		fields = append(fields,
			zap.String("winner", top.PlayerID),
			zap.Int("winner_score", top.Score),
			zap.Int("winner_level", top.Level),
			zap.Int("winner_deaths", top.Deaths),
		)
	}
	log.Info("round finished", fields...)
}
