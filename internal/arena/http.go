package arena

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ArenaPilot/internal/model"
)

// HTTPManager implements Manager against a remote arena service REST API.
// Lifecycle events are derived by polling the arena status endpoint.
type HTTPManager struct {
	BaseURL      string
	APIKey       string
	Client       *http.Client
	PollInterval time.Duration
}

// NewHTTPManager creates a client with optional proxy support.
func NewHTTPManager(baseURL, apiKey, proxyURL string, pollInterval time.Duration) *HTTPManager {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &HTTPManager{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		PollInterval: pollInterval,
	}
}

// arenaStatus is the JSON shape of GET /api/v1/arenas/{id}/status.
type arenaStatus struct {
	State  model.ArenaState   `json:"state"`
	Result *model.MatchResult `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
}

func (h *HTTPManager) ListArenas(ctx context.Context, states ...model.ArenaState) ([]model.Arena, error) {
	q := url.Values{}
	for _, s := range states {
		q.Add("state", string(s))
	}
	endpoint := h.BaseURL + "/api/v1/arenas"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var arenas []model.Arena
	if err := h.do(ctx, http.MethodGet, endpoint, nil, &arenas); err != nil {
		return nil, fmt.Errorf("list arenas: %w", err)
	}
	return arenas, nil
}

func (h *HTTPManager) GetLobby(ctx context.Context, arenaID string) (model.Lobby, error) {
	endpoint := fmt.Sprintf("%s/api/v1/arenas/%s/lobby", h.BaseURL, url.PathEscape(arenaID))
	var lobby model.Lobby
	if err := h.do(ctx, http.MethodGet, endpoint, nil, &lobby); err != nil {
		return model.Lobby{}, fmt.Errorf("get lobby %s: %w", arenaID, err)
	}
	return lobby, nil
}

func (h *HTTPManager) JoinArena(ctx context.Context, arenaID string, member model.LobbyMember) (int, error) {
	endpoint := fmt.Sprintf("%s/api/v1/arenas/%s/join", h.BaseURL, url.PathEscape(arenaID))
	var resp struct {
		LobbySize int `json:"lobby_size"`
	}
	if err := h.do(ctx, http.MethodPost, endpoint, member, &resp); err != nil {
		return 0, fmt.Errorf("join arena %s: %w", arenaID, err)
	}
	return resp.LobbySize, nil
}

func (h *HTTPManager) Watch(arenaID string) (<-chan model.MatchEvent, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan model.MatchEvent, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(h.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			evt, ok := h.poll(ctx, arenaID)
			if !ok {
				continue
			}
			select {
			case ch <- evt:
			case <-ctx.Done():
			}
			return
		}
	}()

	return ch, func() {
		cancel()
		<-done
	}
}

func (h *HTTPManager) poll(ctx context.Context, arenaID string) (model.MatchEvent, bool) {
	endpoint := fmt.Sprintf("%s/api/v1/arenas/%s/status", h.BaseURL, url.PathEscape(arenaID))
	var st arenaStatus
	if err := h.do(ctx, http.MethodGet, endpoint, nil, &st); err != nil {
		if ctx.Err() == nil {
			log.Printf("[WARN] poll arena %s: %v", arenaID, err)
		}
		return model.MatchEvent{}, false
	}
	// A reopened arena may still carry the previous match's result or error.
	switch {
	case st.Error != "" && (st.State == model.ArenaInProgress || st.State == model.ArenaCompleted):
		return model.MatchEvent{Kind: model.MatchError, ArenaID: arenaID, Reason: st.Error}, true
	case st.Result != nil && st.State == model.ArenaCompleted:
		return model.MatchEvent{Kind: model.MatchCompleted, ArenaID: arenaID, Result: st.Result}, true
	}
	return model.MatchEvent{}, false
}

func (h *HTTPManager) do(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.APIKey)
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		msg := strings.TrimSpace(string(respBody))
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrUnknownArena, msg)
		case http.StatusConflict:
			return fmt.Errorf("%w: %s", ErrAlreadyJoined, msg)
		case http.StatusLocked:
			return fmt.Errorf("%w: %s", ErrArenaFull, msg)
		}
		return fmt.Errorf("status %d, body: %s", resp.StatusCode, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
