package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChatID(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		want  string
	}{
		{"formatted landline", "(31) 3333-4444", "553133334444@c.us"},
		{"mobile drops the ninth digit", "(31) 99876-5432", "553198765432@c.us"},
		{"already has country code", "5531998765432", "553198765432@c.us"},
		{"plain ten digits", "3133334444", "553133334444@c.us"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ChatID(tt.phone)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("no digits", func(t *testing.T) {
		_, err := ChatID("abc")
		assert.Error(t, err)
	})
}

func TestManualLink(t *testing.T) {
	link := ManualLink("(31) 99876-5432", "Olá, tudo bem?")
	assert.Equal(t, "https://wa.me/5531998765432?text=Ol%C3%A1%2C+tudo+bem%3F", link)
}

func TestClient_Refresh(t *testing.T) {
	t.Run("ready session", func(t *testing.T) {
		bridge := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/session/status", r.URL.Path)
			json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
		}))
		defer bridge.Close()

		client := NewClient(bridge.URL)
		assert.NoError(t, client.Refresh(context.Background()))
		assert.True(t, client.Ready())
		assert.Equal(t, "ready", client.Status().State)
	})

	t.Run("pairing code rendered to data URL", func(t *testing.T) {
		bridge := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"status": "qr", "qr": "pairing-payload"})
		}))
		defer bridge.Close()

		client := NewClient(bridge.URL)
		assert.NoError(t, client.Refresh(context.Background()))

		status := client.Status()
		assert.False(t, status.Ready)
		assert.Equal(t, "waiting_qr", status.State)
		assert.Contains(t, status.QRCode, "data:image/png;base64,")
	})

	t.Run("unreachable bridge drops to disconnected", func(t *testing.T) {
		client := NewClient("http://127.0.0.1:1")
		assert.Error(t, client.Refresh(context.Background()))
		assert.False(t, client.Ready())
		assert.Equal(t, "disconnected", client.Status().State)
	})
}

func TestClient_Send(t *testing.T) {
	t.Run("not ready", func(t *testing.T) {
		client := NewClient("http://127.0.0.1:1")
		err := client.Send(context.Background(), "31998765432", "oi")
		assert.ErrorIs(t, err, ErrNotReady)
	})

	t.Run("delivers normalized chat id", func(t *testing.T) {
		var got sendRequest
		bridge := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/session/status" {
				json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
				return
			}
			assert.Equal(t, "/message", r.URL.Path)
			json.NewDecoder(r.Body).Decode(&got)
			w.WriteHeader(http.StatusOK)
		}))
		defer bridge.Close()

		client := NewClient(bridge.URL)
		assert.NoError(t, client.Refresh(context.Background()))

		err := client.Send(context.Background(), "(31) 99876-5432", "Olá!")
		assert.NoError(t, err)
		assert.Equal(t, "553198765432@c.us", got.ChatID)
		assert.Equal(t, "Olá!", got.Text)
	})

	t.Run("unregistered number", func(t *testing.T) {
		bridge := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/session/status" {
				json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
				return
			}
			w.WriteHeader(http.StatusNotFound)
		}))
		defer bridge.Close()

		client := NewClient(bridge.URL)
		assert.NoError(t, client.Refresh(context.Background()))

		err := client.Send(context.Background(), "31998765432", "oi")
		assert.ErrorIs(t, err, ErrNotRegistered)
	})
}

func TestClient_Disconnect(t *testing.T) {
	bridge := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/session/status" {
			json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
			return
		}
		assert.Equal(t, "/session/logout", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer bridge.Close()

	client := NewClient(bridge.URL)
	assert.NoError(t, client.Refresh(context.Background()))
	assert.True(t, client.Ready())

	assert.NoError(t, client.Disconnect(context.Background()))
	assert.False(t, client.Ready())
}
