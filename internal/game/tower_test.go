package game

import (
	"errors"
	"testing"
	"time"

	"github.com/dustfall/arcade-backend/pkg/protocol"
)

func towerFixture(t *testing.T, n, levels int, now time.Time) (*towerGame, []*PlayerState) {
	t.Helper()
	ps := testPlayers(n)
	g := newTowerGame(protocol.RoomSettings{Levels: levels})
	g.Init(ps, now)
	return g, ps
}

// report submits the active player's attempt outcome and ticks once so the
// next turn (or the round boundary) is seated.
func report(t *testing.T, g *towerGame, id string, success bool, deaths int, now time.Time) {
	t.Helper()
	if g.active != id {
		t.Fatalf("active turn is %q, want %q", g.active, id)
	}
	if _, err := g.Command(id, Command{Type: CmdLevelResult, Success: success, Deaths: deaths}, now); err != nil {
		t.Fatalf("level result from %s: %v", id, err)
	}
	g.Step(now)
}

func TestTowerLevelAdvancesWhenAnyonePasses(t *testing.T) {
	now := time.Unix(1000, 0)
	g, ps := towerFixture(t, 5, 0, now)

	report(t, g, "p1", true, 0, now)
	report(t, g, "p2", false, 0, now)
	report(t, g, "p3", false, 2, now)
	report(t, g, "p4", true, 1, now)
	report(t, g, "p5", false, 0, now)

	if g.level != 1 {
		t.Fatalf("level %d after two passes, want 1", g.level)
	}
	if g.active != "p1" {
		t.Fatalf("next round should restart at the front of the queue, active=%q", g.active)
	}
	if len(g.attempted) != 0 {
		t.Fatalf("attempt set must clear at the boundary")
	}
	if g.watermark["p1"] != 1 || g.watermark["p4"] != 1 || g.watermark["p2"] != 0 {
		t.Fatalf("watermarks wrong: %v", g.watermark)
	}
	// failures cost at least one death even when none were reported
	if g.deaths["p2"] != 1 || g.deaths["p3"] != 2 || g.deaths["p4"] != 1 {
		t.Fatalf("death counters wrong: %v", g.deaths)
	}
	if ps[0].Score != 1 {
		t.Fatalf("score should track the watermark, got %d", ps[0].Score)
	}
}

func TestTowerLevelRepeatsWhenNobodyPasses(t *testing.T) {
	now := time.Unix(1000, 0)
	g, _ := towerFixture(t, 3, 0, now)

	for _, id := range []string{"p1", "p2", "p3"} {
		report(t, g, id, false, 1, now)
	}

	if g.level != 0 {
		t.Fatalf("level advanced to %d with zero passes", g.level)
	}
	if g.active != "p1" || len(g.queue) != 2 {
		t.Fatalf("queue should reset for a repeat: active=%q queue=%v", g.active, g.queue)
	}
}

func TestTowerNeverSelectsTwicePerLevel(t *testing.T) {
	now := time.Unix(1000, 0)
	g, _ := towerFixture(t, 4, 0, now)

	seen := map[string]int{}
	for i := 0; i < 4; i++ {
		seen[g.active]++
		report(t, g, g.active, false, 1, now)
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("%s selected %d times in one level", id, n)
		}
	}
}

func TestTowerRejectsOutOfTurnResult(t *testing.T) {
	now := time.Unix(1000, 0)
	g, _ := towerFixture(t, 3, 0, now)

	if _, err := g.Command("p2", Command{Type: CmdLevelResult, Success: true}, now); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("want ErrNotYourTurn, got %v", err)
	}
	if _, err := g.Command("nobody", Command{Type: CmdLevelResult}, now); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("want ErrUnknownPlayer, got %v", err)
	}
	if _, err := g.Command("p1", Command{Type: CmdMove, Dir: protocol.DirUp}, now); !errors.Is(err, ErrUnsupportedCommand) {
		t.Fatalf("want ErrUnsupportedCommand, got %v", err)
	}
}

func TestTowerDisconnectedPlayerSkipsTurnsKeepsProgress(t *testing.T) {
	now := time.Unix(1000, 0)
	g, ps := towerFixture(t, 3, 0, now)

	ps[1].Connected = false // p2 drops before their turn
	report(t, g, "p1", true, 0, now)
	if g.active != "p3" {
		t.Fatalf("disconnected p2 should be skipped, active=%q", g.active)
	}

	ps[1].Connected = true // back before the next level
	report(t, g, "p3", false, 0, now)

	if g.level != 1 {
		t.Fatalf("level %d, want 1", g.level)
	}
	if g.active != "p1" || len(g.queue) != 2 {
		t.Fatalf("rebuilt queue should include p2 again: active=%q queue=%v", g.active, g.queue)
	}

	// mid-attempt disconnect forfeits the turn
	ps[0].Connected = false
	g.Step(now)
	if g.active != "p2" {
		t.Fatalf("forfeited turn should pass to p2, active=%q", g.active)
	}
}

func TestTowerTerminalAfterFinalLevel(t *testing.T) {
	now := time.Unix(1000, 0)
	g, _ := towerFixture(t, 2, 2, now)

	report(t, g, "p1", true, 0, now)
	report(t, g, "p2", false, 1, now)
	if reason, done := g.Terminal(now); done {
		t.Fatalf("terminal too early: %q", reason)
	}

	report(t, g, "p1", true, 0, now)
	report(t, g, "p2", true, 3, now)

	reason, done := g.Terminal(now)
	if !done || reason != protocol.RoundReasonLevelsDone {
		t.Fatalf("got (%q, %v), want levels_done terminal", reason, done)
	}
}

func TestTowerResultsRankWatermarkThenDeaths(t *testing.T) {
	now := time.Unix(1000, 0)
	g, _ := towerFixture(t, 3, 0, now)

	g.watermark["p1"], g.deaths["p1"] = 2, 3
	g.watermark["p2"], g.deaths["p2"] = 2, 1
	g.watermark["p3"], g.deaths["p3"] = 1, 0

	res := g.Results()
	want := []string{"p2", "p1", "p3"}
	for i, id := range want {
		if res[i].PlayerID != id || res[i].Rank != i+1 {
			t.Fatalf("rank %d: got %+v, want %s", i+1, res[i], id)
		}
	}
	if res[0].Level != 2 || res[0].Deaths != 1 {
		t.Fatalf("result entry should carry level and deaths: %+v", res[0])
	}
}

func TestTowerSnapshot(t *testing.T) {
	now := time.Unix(1000, 0)
	g, _ := towerFixture(t, 3, 0, now)

	snap := g.Snapshot(1).Tower
	if snap.Level != 0 || snap.Levels != towerDefaultLevels || snap.ActiveID != "p1" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if len(snap.Queue) != 2 || snap.Queue[0] != "p2" {
		t.Fatalf("queue view: %v", snap.Queue)
	}
	for _, pr := range snap.Progress {
		if !pr.InQueue {
			t.Fatalf("everyone is queued or active at round start: %+v", pr)
		}
	}

	report(t, g, "p1", true, 0, now)
	snap = g.Snapshot(2).Tower
	if len(snap.Attempted) != 1 || snap.Attempted[0] != "p1" {
		t.Fatalf("attempted view: %v", snap.Attempted)
	}
	for _, pr := range snap.Progress {
		if pr.PlayerID == "p1" && pr.InQueue {
			t.Fatalf("p1 already attempted, must not be queued")
		}
	}
}
