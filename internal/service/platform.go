package service

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// PlatformClient talks to the game platform's public lookup APIs (users,
// games, game passes, avatars). The upstream is treated as unreliable:
// every failure surfaces as ErrUpstreamUnavailable so handlers can answer
// with a distinguishable upstream-error kind instead of crashing.
type PlatformClient struct {
	usersBase  string
	gamesBase  string
	thumbsBase string
	httpClient *http.Client
}

// NewPlatformClient creates a client for the given API base URLs. Empty
// bases fall back to the production endpoints.
func NewPlatformClient(usersBase, gamesBase, thumbsBase string) *PlatformClient {
	if usersBase == "" {
		usersBase = "https://users.roblox.com"
	}
	if gamesBase == "" {
		gamesBase = "https://games.roblox.com"
	}
	if thumbsBase == "" {
		thumbsBase = "https://thumbnails.roblox.com"
	}
	return &PlatformClient{
		usersBase:  usersBase,
		gamesBase:  gamesBase,
		thumbsBase: thumbsBase,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type PlatformUser struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name,omitempty"`
	Avatar      *string `json:"avatar,omitempty"`
}

type PlatformGame struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type GamePass struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price *int   `json:"price,omitempty"`
}

func (p *PlatformClient) getJSON(rawURL string, out interface{}) error {
	resp, err := p.httpClient.Get(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: bad response body", ErrUpstreamUnavailable)
	}
	return nil
}

// FindUserByUsername searches for an exact (case-insensitive) username
// match. Returns (nil, nil) when no such user exists.
func (p *PlatformClient) FindUserByUsername(username string) (*PlatformUser, error) {
	var data struct {
		Data []struct {
			ID          int64  `json:"id"`
			Name        string `json:"name"`
			DisplayName string `json:"displayName"`
		} `json:"data"`
	}
	u := p.usersBase + "/v1/users/search?keyword=" + url.QueryEscape(username)
	if err := p.getJSON(u, &data); err != nil {
		return nil, err
	}
	for _, candidate := range data.Data {
		if strings.EqualFold(candidate.Name, username) {
			return &PlatformUser{ID: candidate.ID, Name: candidate.Name, DisplayName: candidate.DisplayName}, nil
		}
	}
	return nil, nil
}

// UserGames lists a user's public games.
func (p *PlatformClient) UserGames(userID string) ([]PlatformGame, error) {
	var data struct {
		Data []PlatformGame `json:"data"`
	}
	u := p.gamesBase + "/v2/users/" + url.PathEscape(userID) + "/games?accessFilter=Public"
	if err := p.getJSON(u, &data); err != nil {
		return nil, err
	}
	return data.Data, nil
}

// GamePasses lists the passes sold by a game.
func (p *PlatformClient) GamePasses(gameID string) ([]GamePass, error) {
	var data struct {
		Data []GamePass `json:"data"`
	}
	u := p.gamesBase + "/v1/games/" + url.PathEscape(gameID) + "/game-passes"
	if err := p.getJSON(u, &data); err != nil {
		return nil, err
	}
	return data.Data, nil
}

// UserAvatar fetches a headshot thumbnail URL. Best effort: returns empty
// on any failure.
func (p *PlatformClient) UserAvatar(userID int64) string {
	var data struct {
		Data []struct {
			ImageURL string `json:"imageUrl"`
		} `json:"data"`
	}
	u := fmt.Sprintf("%s/v1/users/avatar-headshot?userIds=%d&size=150x150&format=Png&isCircular=false", p.thumbsBase, userID)
	if err := p.getJSON(u, &data); err != nil {
		return ""
	}
	if len(data.Data) == 0 {
		return ""
	}
	return data.Data[0].ImageURL
}

// BuildGamePassURL renders the public store URL for a game pass.
func BuildGamePassURL(gamePassID string) string {
	return "https://www.roblox.com/game-pass/" + gamePassID
}

var gamePassURLRe = regexp.MustCompile(`/game-pass/(\d+)`)

// ExtractGamePassID pulls the pass identifier out of a store URL.
func ExtractGamePassID(rawURL string) (string, bool) {
	m := gamePassURLRe.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}
