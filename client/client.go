// Package client is the conversational frontend to the chat API: it keeps a
// local transcript, streams assistant replies into it, and falls back to the
// synchronous endpoint when the stream dies before producing anything.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Recipe mirrors the server's recipe result shape.
type Recipe struct {
	Title        string   `json:"title"`
	Summary      string   `json:"summary"`
	Ingredients  []string `json:"ingredients"`
	Instructions string   `json:"instructions"`
	Nutrition    string   `json:"nutrition,omitempty"`
	SourceURL    string   `json:"sourceUrl"`
	Source       string   `json:"source"`
}

// TurnContext is the optional per-turn context bag sent with a message.
type TurnContext struct {
	Diet           string  `json:"diet,omitempty"`
	Allergens      string  `json:"allergens,omitempty"`
	Goals          string  `json:"goals,omitempty"`
	SelectedRecipe *Recipe `json:"selectedRecipe,omitempty"`
}

func (t TurnContext) isZero() bool {
	return t.Diet == "" && t.Allergens == "" && t.Goals == "" && t.SelectedRecipe == nil
}

// Entry is one transcript line. A pending assistant entry is still growing;
// its content is mutated in place as chunks arrive.
type Entry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Pending bool   `json:"pending,omitempty"`
}

type State string

const (
	StateIdle      State = "idle"
	StateSending   State = "sending"
	StateStreaming State = "streaming"
)

var (
	ErrTurnInProgress = errors.New("a turn is already in progress")
	ErrDuplicateSend  = errors.New("duplicate send suppressed")
)

// Client drives one chat session against the backend. Send blocks for the
// whole turn; Cancel from another goroutine aborts it.
type Client struct {
	baseURL string
	store   SessionStore

	httpClient   *http.Client
	streamClient *http.Client

	mu        sync.Mutex
	sessionID string
	state     State
	entries   []Entry
	cancel    context.CancelFunc
}

// New seeds the session id from the store, creating a fresh session on the
// server when the store is empty.
func New(ctx context.Context, baseURL string, store SessionStore) (*Client, error) {
	if store == nil {
		store = NewMemorySessionStore()
	}
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		store:        store,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		streamClient: &http.Client{},
		state:        StateIdle,
	}

	id, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if id == "" {
		id, err = c.createSession(ctx)
		if err != nil {
			return nil, err
		}
		if err := store.Save(id); err != nil {
			return nil, fmt.Errorf("save session: %w", err)
		}
	}
	c.sessionID = id
	return c, nil
}

func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Entries returns a snapshot of the transcript.
func (c *Client) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Cancel aborts the in-flight turn, if any. The partial assistant text stays
// in the transcript.
func (c *Client) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// History replaces the local transcript with the server's stored one. While
// a turn is in flight the transcript belongs to that turn, so the refresh is
// rejected rather than yanking entries out from under the stream.
func (c *Client) History(ctx context.Context) ([]Entry, error) {
	q := url.Values{"session_id": {c.SessionID()}}
	var rows []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := c.getJSON(ctx, "/api/chat/history?"+q.Encode(), &rows); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, Entry{Role: r.Role, Content: r.Content})
	}

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil, ErrTurnInProgress
	}
	c.entries = entries
	c.mu.Unlock()
	return entries, nil
}

// Send runs one chat turn: the user message is appended to the transcript
// immediately, then the assistant reply streams into a placeholder entry.
// When the stream fails before the first chunk arrives, the turn is retried
// once over the synchronous endpoint. Send returns nil on cancellation.
func (c *Client) Send(ctx context.Context, message string, tctx TurnContext) error {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return fmt.Errorf("message is required")
	}

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrTurnInProgress
	}
	if n := len(c.entries); n > 0 && c.entries[n-1].Role == "user" && c.entries[n-1].Content == trimmed {
		c.mu.Unlock()
		return ErrDuplicateSend
	}
	c.entries = append(c.entries, Entry{Role: "user", Content: trimmed})
	c.state = StateSending
	sctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		c.state = StateIdle
		c.cancel = nil
		c.mu.Unlock()
	}()

	return c.runTurn(sctx, trimmed, tctx)
}

func (c *Client) runTurn(ctx context.Context, message string, tctx TurnContext) error {
	c.mu.Lock()
	c.entries = append(c.entries, Entry{Role: "assistant", Pending: true})
	idx := len(c.entries) - 1
	c.mu.Unlock()

	gotFirstChunk, err := c.streamTurn(ctx, message, tctx, idx)
	if err == nil {
		c.settlePlaceholder(idx)
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		c.settlePlaceholder(idx)
		return nil
	}

	if !gotFirstChunk {
		// Nothing reached us on the stream; retry the whole turn once over
		// the synchronous endpoint. The server records the user message
		// again on this second attempt, so a refused stream open leaves a
		// duplicate user row in the stored history.
		reply, fbErr := c.sendSync(ctx, message, tctx)
		if fbErr != nil {
			c.settlePlaceholder(idx)
			return fbErr
		}
		c.mu.Lock()
		if idx < len(c.entries) {
			c.entries[idx].Content = reply
			c.entries[idx].Pending = false
		}
		c.mu.Unlock()
		return nil
	}

	// Partial text stays in the transcript as a visible artifact of the
	// failed turn.
	c.settlePlaceholder(idx)
	return err
}

// settlePlaceholder marks the assistant entry final, dropping it entirely
// when nothing ever arrived.
func (c *Client) settlePlaceholder(idx int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx >= len(c.entries) {
		return
	}
	if c.entries[idx].Content == "" && idx == len(c.entries)-1 {
		c.entries = c.entries[:idx]
		return
	}
	c.entries[idx].Pending = false
}

// streamTurn consumes the SSE endpoint. It reports whether any chunk made it
// through, so the caller can decide if a synchronous retry is safe.
func (c *Client) streamTurn(ctx context.Context, message string, tctx TurnContext, idx int) (bool, error) {
	q := url.Values{
		"session_id": {c.SessionID()},
		"message":    {message},
	}
	if !tctx.isZero() {
		raw, err := json.Marshal(tctx)
		if err != nil {
			return false, err
		}
		q.Set("context", string(raw))
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/chat/stream?"+q.Encode(), nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, decodeAPIError(resp)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		return false, fmt.Errorf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	gotChunk := false
	ended := false
	err = readEvents(resp.Body, func(event, data string) error {
		switch event {
		case "chunk":
			c.mu.Lock()
			if idx < len(c.entries) {
				c.entries[idx].Content += data
			}
			c.state = StateStreaming
			c.mu.Unlock()
			gotChunk = true
		case "error":
			gotChunk = true
			return fmt.Errorf("assistant error: %s", data)
		case "end":
			ended = true
			return errStreamDone
		}
		return nil
	})
	if errors.Is(err, errStreamDone) {
		err = nil
	}
	if err != nil {
		return gotChunk, err
	}
	if !ended {
		return gotChunk, fmt.Errorf("stream closed before end event")
	}
	return gotChunk, nil
}

var errStreamDone = errors.New("stream done")

func (c *Client) sendSync(ctx context.Context, message string, tctx TurnContext) (string, error) {
	body := map[string]any{
		"session_id": c.SessionID(),
		"message":    message,
	}
	if !tctx.isZero() {
		body["context"] = tctx
	}

	var out struct {
		Reply string `json:"reply"`
	}
	if err := c.postJSON(ctx, "/api/chat", body, &out); err != nil {
		return "", err
	}
	return out.Reply, nil
}

func (c *Client) createSession(ctx context.Context) (string, error) {
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := c.postJSON(ctx, "/api/sessions", nil, &out); err != nil {
		return "", err
	}
	if out.SessionID == "" {
		return "", fmt.Errorf("server returned empty session id")
	}
	return out.SessionID, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		return fmt.Errorf("http %d (%s): %s", resp.StatusCode, envelope.Error.Code, envelope.Error.Message)
	}
	return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}

// readEvents parses an SSE stream, joining multi-line data back with "\n".
// Comment lines keep the connection warm and are skipped.
func readEvents(r io.Reader, onEvent func(event, data string) error) error {
	br := bufio.NewReader(r)
	var (
		eventName string
		dataLines []string
	)

	flush := func() error {
		if len(dataLines) == 0 {
			eventName = ""
			return nil
		}
		data := strings.Join(dataLines, "\n")
		ev := eventName
		dataLines = nil
		eventName = ""
		return onEvent(ev, data)
	}

	for {
		line, err := br.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return flush()
			}
			return err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "event:") {
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}
		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			continue
		}
	}
}
