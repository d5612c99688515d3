package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"number-duel-server/event"
	"number-duel-server/storage"
)

// simulateOptions holds flags for the simulate command.
type simulateOptions struct {
	*rootOptions
	ServerURL string
	MaxTurns  int
}

func newSimulateCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &simulateOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Play one full game between two simulated players",
		Long: `Drive two players through a complete game over the HTTP API:
acquire tokens, match into the same game, then submit random legal
selections each turn until the game finishes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.ServerURL, "server", "http://localhost:3000", "base URL of the running server")
	cmd.Flags().IntVar(&opts.MaxTurns, "max-turns", 50, "abort after this many turns")

	return cmd
}

// simPlayer is one scripted participant.
type simPlayer struct {
	name  string
	token string
	id    int64
}

func runSimulate(cmd *cobra.Command, opts *simulateOptions) error {
	client := &http.Client{Timeout: 10 * time.Second}
	out := cmd.OutOrStdout()

	suffix := rand.Intn(100000)
	players := []*simPlayer{
		{name: fmt.Sprintf("sim-a-%d", suffix)},
		{name: fmt.Sprintf("sim-b-%d", suffix)},
	}

	for _, p := range players {
		if err := acquireToken(client, opts.ServerURL, p); err != nil {
			return fmt.Errorf("token for %s: %w", p.name, err)
		}
	}

	var gameID int64
	for _, p := range players {
		id, err := searchGame(client, opts.ServerURL, p)
		if err != nil {
			return fmt.Errorf("search for %s: %w", p.name, err)
		}
		gameID = id
		fmt.Fprintf(out, "%s assigned to game %d\n", p.name, id)
	}

	for turn := 0; turn < opts.MaxTurns; turn++ {
		details, err := fetchGame(client, opts.ServerURL, players[0], gameID)
		if err != nil {
			return err
		}
		if details.Status == storage.StatusFinished || details.Status == storage.StatusAbandoned {
			fmt.Fprintf(out, "game %d ended with status %s after %d turns\n", gameID, details.Status, details.CurrentTurnID)
			return nil
		}

		for _, p := range players {
			selection := legalSelection(details, p.id)
			if err := postMove(client, opts.ServerURL, p, selection); err != nil {
				return fmt.Errorf("move by %s: %w", p.name, err)
			}
			if opts.Verbose {
				fmt.Fprintf(out, "turn %d: %s selected %d\n", details.CurrentTurnID, p.name, selection)
			}
		}

		// Give the server a moment to resolve the turn.
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("game %d did not finish within %d turns", gameID, opts.MaxTurns)
}

// legalSelection picks a random selection outside the player's blocked set.
func legalSelection(details *storage.GameDetails, userID int64) int {
	blocked := map[int]bool{}
	for _, mv := range details.Users[userID] {
		if mv.TurnID == details.CurrentTurnID-1 {
			for _, b := range event.UnavailableAfter(mv.Selection) {
				blocked[b] = true
			}
		}
	}
	for {
		sel := event.SelectionMin + rand.Intn(event.SelectionMax-event.SelectionMin+1)
		if !blocked[sel] {
			return sel
		}
	}
}

func acquireToken(client *http.Client, serverURL string, p *simPlayer) error {
	var resp struct {
		UserID int64  `json:"userID"`
		Token  string `json:"token"`
	}
	endpoint := serverURL + "/token?username=" + url.QueryEscape(p.name)
	if err := getJSON(client, endpoint, "", &resp); err != nil {
		return err
	}
	p.id, p.token = resp.UserID, resp.Token
	return nil
}

func searchGame(client *http.Client, serverURL string, p *simPlayer) (int64, error) {
	var resp struct {
		GameID int64 `json:"gameID"`
	}
	err := getJSON(client, serverURL+"/game/search", p.token, &resp)
	return resp.GameID, err
}

func fetchGame(client *http.Client, serverURL string, p *simPlayer, gameID int64) (*storage.GameDetails, error) {
	var details storage.GameDetails
	endpoint := serverURL + "/game/" + strconv.FormatInt(gameID, 10)
	if err := getJSON(client, endpoint, p.token, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

func postMove(client *http.Client, serverURL string, p *simPlayer, selection int) error {
	body, _ := json.Marshal(map[string]int{"selection": selection})
	req, err := http.NewRequest(http.MethodPost, serverURL+"/moves", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// A duplicate or late move is part of normal simulation traffic.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusConflict {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}

func getJSON(client *http.Client, endpoint, token string, v any) error {
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
