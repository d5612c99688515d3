package event

import (
	"context"
	"time"

	"number-duel-server/gameerrors"
)

// ReasonScore marks a game decided by both players picking the same number,
// with the higher cumulative score winning.
const ReasonScore = "score"

// turnCompleteHandler resolves a completed turn: equal selections end the
// game, different selections open the next turn.
type turnCompleteHandler struct {
	expiry time.Duration
	now    func() time.Time
}

func (turnCompleteHandler) Validate(ctx context.Context, log Log, gameID int64, ev Payload) (string, error) {
	tc, ok := ev.(*TurnComplete)
	if !ok {
		return "", wrongPayload(TypeTurnComplete, ev)
	}
	events, err := log.EventsByType(ctx, gameID, TypePlayerJoined, TypePlayerTurn)
	if err != nil {
		return "", err
	}
	if len(playerTurnsFor(events, tc.TurnID)) != countOfType(events, TypePlayerJoined) {
		return "", &gameerrors.OutOfOrderError{
			EventType: string(TypeTurnComplete),
			Expected:  []string{string(TypePlayerTurn)},
		}
	}
	return dedupKey(gameID, TypeTurnComplete, int64(tc.TurnID)), nil
}

func (h turnCompleteHandler) Process(_ context.Context, _ Log, _ int64, ev Payload) (Payload, error) {
	tc := ev.(*TurnComplete)

	allEqual := true
	var first *TurnResult
	for _, res := range tc.Results {
		if first == nil {
			r := res
			first = &r
			continue
		}
		if res.Selection != first.Selection {
			allEqual = false
			break
		}
	}

	if allEqual {
		return &Finished{Summary: summarize(tc.Results)}, nil
	}

	sels := make(map[int64][]int, len(tc.Results))
	for id, res := range tc.Results {
		sels[id] = UnavailableAfter(res.Selection)
	}
	return &TurnStarted{
		TurnID:                tc.TurnID + 1,
		ExpiresAt:             h.now().Add(h.expiry),
		UnavailableSelections: sels,
	}, nil
}

func (turnCompleteHandler) Notify() NotifyPolicy { return NotifyBroadcast }

// summarize builds the final summary from the turn's cumulative scores: the
// strictly higher score wins, equal scores draw.
func summarize(results map[int64]TurnResult) Summary {
	scores := make(map[int64]int, len(results))
	var winner int64
	best, tied := -1, false
	for id, res := range results {
		scores[id] = res.Score
		switch {
		case res.Score > best:
			best, winner, tied = res.Score, id, false
		case res.Score == best:
			tied = true
		}
	}
	if tied {
		return Summary{Status: SummaryDraw, Scores: scores}
	}
	return Summary{Status: SummaryResult, Scores: scores, Winner: winner, Reason: ReasonScore}
}

// UnavailableAfter derives the numbers a player may not pick next turn from
// their own last selection: the selection and its immediate neighbors, clipped
// to the 1..9 range. Deterministic and never more than 3 values.
func UnavailableAfter(lastMove int) []int {
	out := make([]int, 0, MaxUnavailableSelections)
	for _, n := range []int{lastMove - 1, lastMove, lastMove + 1} {
		if n >= SelectionMin && n <= SelectionMax {
			out = append(out, n)
		}
	}
	return out
}
