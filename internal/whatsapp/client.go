// Package whatsapp talks to a WhatsApp HTTP bridge (a sidecar wrapping the
// web client). The connection is an explicitly owned object with its own
// state machine instead of ambient globals: callers create a Client, poll
// Status until the QR code has been scanned, then Send messages.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/skip2/go-qrcode"
)

// State is the bridge session state.
type State int

const (
	StateDisconnected State = iota
	StateWaitingQR
	StateReady
)

func (s State) String() string {
	switch s {
	case StateWaitingQR:
		return "waiting_qr"
	case StateReady:
		return "ready"
	default:
		return "disconnected"
	}
}

var (
	ErrNotReady      = errors.New("whatsapp client is not ready")
	ErrNotRegistered = errors.New("number is not registered on WhatsApp")
)

// Status is a snapshot of the session, surfaced to the UI. QRCode is a PNG
// data URL of the pairing code while the session waits for a scan.
type Status struct {
	Ready  bool   `json:"ready"`
	State  string `json:"state"`
	QRCode string `json:"qrCode,omitempty"`
}

// Client is a connection to the WhatsApp bridge.
type Client struct {
	baseURL string
	http    *http.Client

	mu     sync.Mutex
	state  State
	qrPNG  string
	lastQR string
}

// NewClient creates a client for the bridge at baseURL. The session starts
// disconnected; the first Refresh drives it forward.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		state:   StateDisconnected,
	}
}

type bridgeStatus struct {
	Status string `json:"status"` // "disconnected", "qr", "ready"
	QR     string `json:"qr,omitempty"`
}

// Refresh polls the bridge session state and updates the local state
// machine. While the bridge reports a pairing code the client renders it to
// a PNG data URL for the UI.
func (c *Client) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/session/status", nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.setState(StateDisconnected, "")
		return fmt.Errorf("bridge unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.setState(StateDisconnected, "")
		return fmt.Errorf("bridge status returned %d", resp.StatusCode)
	}

	var status bridgeStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode bridge status: %w", err)
	}

	switch status.Status {
	case "ready":
		c.setState(StateReady, "")
	case "qr":
		c.mu.Lock()
		if status.QR != c.lastQR {
			png, err := renderQR(status.QR)
			if err != nil {
				c.mu.Unlock()
				return fmt.Errorf("failed to render QR code: %w", err)
			}
			c.qrPNG = png
			c.lastQR = status.QR
		}
		c.state = StateWaitingQR
		c.mu.Unlock()
	default:
		c.setState(StateDisconnected, "")
	}
	return nil
}

func (c *Client) setState(state State, qr string) {
	c.mu.Lock()
	c.state = state
	c.qrPNG = qr
	if qr == "" {
		c.lastQR = ""
	}
	c.mu.Unlock()
}

// Status returns the current session snapshot.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Ready:  c.state == StateReady,
		State:  c.state.String(),
		QRCode: c.qrPNG,
	}
}

// Ready reports whether the session can send messages.
func (c *Client) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateReady
}

type sendRequest struct {
	ChatID string `json:"chatId"`
	Text   string `json:"text"`
}

// Send delivers a message to a Brazilian phone number. The number is
// normalized to the wire chat id first; sending to an unregistered number
// returns ErrNotRegistered.
func (c *Client) Send(ctx context.Context, phone, message string) error {
	if !c.Ready() {
		return ErrNotReady
	}

	chatID, err := ChatID(phone)
	if err != nil {
		return err
	}

	body, err := json.Marshal(sendRequest{ChatID: chatID, Text: message})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/message", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusNotFound:
		return ErrNotRegistered
	default:
		return fmt.Errorf("bridge send returned %d", resp.StatusCode)
	}
}

// Disconnect logs the bridge session out and drops to disconnected.
func (c *Client) Disconnect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/session/logout", nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge logout returned %d", resp.StatusCode)
	}

	c.setState(StateDisconnected, "")
	return nil
}

var nonDigits = regexp.MustCompile(`\D`)

// ChatID normalizes a Brazilian phone number to the bridge chat id:
// digits only, country code 55 prepended, and the extra mobile ninth digit
// dropped from 11-digit local numbers (the web client addresses chats by
// the legacy 10-digit form).
func ChatID(phone string) (string, error) {
	digits := nonDigits.ReplaceAllString(phone, "")
	if digits == "" {
		return "", fmt.Errorf("invalid phone number %q", phone)
	}

	local := digits
	if strings.HasPrefix(local, "55") {
		local = local[2:]
	}
	if len(local) == 11 && local[2] == '9' {
		local = local[:2] + local[3:]
	}

	return "55" + local + "@c.us", nil
}

// ManualLink builds the wa.me deep link used as a fallback when the
// automated send fails: the operator opens it and sends the prefilled text
// by hand.
func ManualLink(phone, message string) string {
	digits := nonDigits.ReplaceAllString(phone, "")
	return "https://wa.me/55" + digits + "?text=" + url.QueryEscape(message)
}

func renderQR(data string) (string, error) {
	png, err := qrcode.Encode(data, qrcode.Medium, 256)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
