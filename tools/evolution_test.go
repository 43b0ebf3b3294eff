package tools

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *EvolutionClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewEvolutionClient(srv.URL+"/", "secret", "", 5*time.Second)
}

func TestFetchInstance_MatchesByName(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("apikey"))
		assert.Equal(t, "/instance/fetchInstances", r.URL.Path)
		assert.Equal(t, "bot-b1", r.URL.Query().Get("instanceName"))
		io.WriteString(w, `[
			{"instance":{"instanceName":"bot-other","state":"close"}},
			{"instance":{"instanceName":"bot-b1","state":"open","owner":"5511999990000@s.whatsapp.net"}}
		]`)
	})

	st, err := c.FetchInstance(context.Background(), "bot-b1")
	require.NoError(t, err)
	assert.Equal(t, "bot-b1", st.Name)
	assert.True(t, st.IsOpen())
	assert.Equal(t, "5511999990000", st.Owner)
}

func TestFetchInstance_V2ShapeAndFallbackToFirst(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"name":"renamed","connectionStatus":"connecting","ownerJid":null}]`)
	})

	st, err := c.FetchInstance(context.Background(), "bot-b1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", st.Name)
	assert.Equal(t, "connecting", st.State)
	assert.False(t, st.IsOpen())
}

func TestFetchInstance_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"Not Found"}`)
	})
	_, err := c.FetchInstance(context.Background(), "bot-b1")
	assert.ErrorIs(t, err, ErrInstanceNotFound)

	empty := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[]`)
	})
	_, err = empty.FetchInstance(context.Background(), "bot-b1")
	assert.ErrorIs(t, err, ErrInstanceNotFound)
}

func TestCreateInstance_SendsWebhookSubscription(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/instance/create", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{}`)
	})

	err := c.CreateInstance(context.Background(), "bot-b1", "https://hooks.example.com/api/whatsapp/webhook", nil)
	require.NoError(t, err)
	assert.Equal(t, "bot-b1", got["instanceName"])
	assert.Equal(t, false, got["qrcode"])
	assert.Equal(t, "WHATSAPP-BAILEYS", got["integration"])
	webhook := got["webhook"].(map[string]any)
	assert.Equal(t, "https://hooks.example.com/api/whatsapp/webhook", webhook["url"])
	assert.ElementsMatch(t, []any{"connection.update", "qrcode.updated", "messages.upsert"}, webhook["events"])
}

func TestCreateInstance_Errors(t *testing.T) {
	exists := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"response":{"message":["This name \"bot-b1\" is already in use."]}}`)
	})
	assert.ErrorIs(t, exists.CreateInstance(context.Background(), "bot-b1", "u", nil), ErrInstanceExists)

	broken := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `boom`)
	})
	err := broken.CreateInstance(context.Background(), "bot-b1", "u", nil)
	var gerr *GatewayError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "create", gerr.Op)
	assert.Equal(t, http.StatusInternalServerError, gerr.StatusCode)
	assert.Equal(t, "boom", gerr.Body)
}

func TestConnect_QRFieldPriority(t *testing.T) {
	bodies := map[string]string{
		`{"base64":"data:image/png;base64,AAA","code":"2@xyz"}`: "data:image/png;base64,AAA",
		`{"code":"2@xyz"}`:                       "2@xyz",
		`{"qrcode":{"base64":"data:image/png;base64,BBB"}}`: "data:image/png;base64,BBB",
		`{"instance":{"state":"connecting"}}`:     "",
	}
	for body, want := range bodies {
		body := body
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/instance/connect/bot-b1", r.URL.Path)
			io.WriteString(w, body)
		})
		qr, err := c.Connect(context.Background(), "bot-b1")
		require.NoError(t, err)
		assert.Equal(t, want, qr, body)
	}
}

func TestDeleteInstance_NeverFails(t *testing.T) {
	ok := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/instance/delete/bot-b1", r.URL.Path)
		io.WriteString(w, `{"status":"SUCCESS"}`)
	})
	assert.True(t, ok.DeleteInstance(context.Background(), "bot-b1"))

	gone := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	assert.False(t, gone.DeleteInstance(context.Background(), "bot-b1"))
}

func TestListInstances(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery)
		io.WriteString(w, `[{"instance":{"instanceName":"bot-a","state":"open"}},{"name":"bot-b","connectionStatus":"close"}]`)
	})
	list, err := c.ListInstances(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "bot-a", list[0].Name)
	assert.Equal(t, "close", list[1].State)
}
