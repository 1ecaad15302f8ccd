package api

import (
	"errors"
	"net"
	"testing"
	"time"

	fasthttpws "github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftdetect/backend/internal/detector/detectortest"
)

type wsMessage struct {
	Type       string         `json:"type"`
	RunID      string         `json:"run_id"`
	Record     map[string]any `json:"record"`
	Detector   string         `json:"detector"`
	DriftCount int            `json:"drift_count"`
	Error      string         `json:"error"`
}

// serve starts app on a loopback port and returns its websocket base URL.
func serve(t *testing.T, app *fiber.App) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return "ws://" + ln.Addr().String()
}

// readRun reads messages until a complete or error message arrives.
func readRun(t *testing.T, url string) []wsMessage {
	t.Helper()

	conn, _, err := fasthttpws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var msgs []wsMessage
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var msg wsMessage
		require.NoError(t, conn.ReadJSON(&msg))
		msgs = append(msgs, msg)
		if msg.Type == "complete" || msg.Type == "error" {
			return msgs
		}
	}
}

func TestWebSocketStreamsDrift(t *testing.T) {
	app := newTestApp(t, detectortest.Session{Rows: []detectortest.Row{
		detectortest.NewRow("person", "alice", "related", []any{"bob"}),
		detectortest.NewRow("person", "alice", "related", []any{"bob", "carol"}),
		detectortest.NewRow("person", "dave", "related", []any{}),
	}}, nil)
	base := serve(t, app)

	msgs := readRun(t, base+"/api/v1/ws/detectors/people")
	require.Len(t, msgs, 3)

	assert.Equal(t, "drift", msgs[0].Type)
	assert.Equal(t, map[string]any{"person": "alice", "related": []any{"bob"}}, msgs[0].Record)
	assert.Equal(t, "drift", msgs[1].Type)
	assert.Equal(t, map[string]any{"person": "dave", "related": []any{}}, msgs[1].Record)
	assert.NotEmpty(t, msgs[0].RunID)
	assert.Equal(t, msgs[0].RunID, msgs[1].RunID)

	done := msgs[2]
	assert.Equal(t, "complete", done.Type)
	assert.Equal(t, "people", done.Detector)
	assert.Equal(t, 2, done.DriftCount)
	assert.Equal(t, msgs[0].RunID, done.RunID)
}

func TestWebSocketQueryFailure(t *testing.T) {
	app := newTestApp(t, detectortest.Session{QueryErr: errors.New("Neo.ClientError.Statement.SyntaxError")}, nil)
	base := serve(t, app)

	msgs := readRun(t, base+"/api/v1/ws/detectors/people")
	require.Len(t, msgs, 1)
	assert.Equal(t, "error", msgs[0].Type)
	assert.Equal(t, "Neo.ClientError.Statement.SyntaxError", msgs[0].Error)
}

func TestWebSocketFailsMidStream(t *testing.T) {
	app := newTestApp(t, detectortest.Session{
		Rows: []detectortest.Row{
			detectortest.NewRow("person", "erin", "related", []any{"frank"}),
			detectortest.NewRow("person", "gina", "related", []any{"hal"}),
		},
		CursorErr: errors.New("connection reset"),
		FailAfter: 1,
	}, nil)
	base := serve(t, app)

	msgs := readRun(t, base+"/api/v1/ws/detectors/people")
	require.Len(t, msgs, 2)
	assert.Equal(t, "drift", msgs[0].Type)
	assert.Equal(t, "erin", msgs[0].Record["person"])
	assert.Equal(t, "error", msgs[1].Type)
	assert.Equal(t, "connection reset", msgs[1].Error)
}

func TestWebSocketUnknownDetector(t *testing.T) {
	app := newTestApp(t, detectortest.Session{}, nil)
	base := serve(t, app)

	msgs := readRun(t, base+"/api/v1/ws/detectors/nobody")
	require.Len(t, msgs, 1)
	assert.Equal(t, "error", msgs[0].Type)
	assert.Equal(t, "Detector not found", msgs[0].Error)
}
