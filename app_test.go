package main

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeweave/internal/config"
	"codeweave/internal/database"
	"codeweave/internal/eventhub"
	"codeweave/internal/generation"
	"codeweave/internal/llm"
	"codeweave/internal/websocket"
)

type stubModel struct {
	reply string
}

func (m *stubModel) Generate(context.Context, string) (string, error) {
	return m.reply, nil
}

func newTestApp(t *testing.T, model *stubModel) *App {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		HomeDir:      dir,
		DataDir:      dir,
		DatabasePath: filepath.Join(dir, "codeweave.db"),
		SettingsPath: filepath.Join(dir, "settings.yaml"),
		LogDir:       filepath.Join(dir, "logs"),
		ExportDir:    filepath.Join(dir, "exports"),
	}
	settings := config.DefaultSettings()
	settings.SettleDelay = time.Millisecond

	app := NewApp()
	var client llm.ModelClient
	if model != nil {
		client = model
	}
	require.NoError(t, app.startup(context.Background(), cfg, settings, slog.Default(), client))
	t.Cleanup(app.Shutdown)
	return app
}

func newMessage(t *testing.T, app *App, projectID string) string {
	t.Helper()
	msg, err := app.db.CreateMessage(context.Background(), &database.Message{ProjectID: projectID, Sender: "tester", Body: "hi"})
	require.NoError(t, err)
	return msg.ID
}

const twoFiles = `{"text":"made it","fileTree":{"index.js":{"file":{"contents":"console.log(1)"}},"README.md":{"file":{"contents":"# hi"}}}}`

func TestRPCRoutesResolve(t *testing.T) {
	app := newTestApp(t, nil)
	router, err := websocket.NewRouter(app, rpcRoutes)
	require.NoError(t, err)
	assert.Len(t, router.Methods(), len(rpcRoutes))
}

func TestApp_ProcessAndQuery(t *testing.T) {
	app := newTestApp(t, nil)
	ctx := context.Background()
	projectID := uuid.NewString()

	payload, err := app.ProcessResponse(ctx, twoFiles, projectID, newMessage(t, app, projectID))
	require.NoError(t, err)
	assert.Contains(t, payload, "made it")

	second := `{"text":"edit","fileTree":{"index.js":{"file":{"contents":"console.log(2)"}},"README.md":{"file":{"deleted":true}}}}`
	msgID := newMessage(t, app, projectID)
	_, err = app.ProcessResponse(ctx, second, projectID, msgID)
	require.NoError(t, err)

	versions, err := app.ListVersions(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].Version)
	assert.Nil(t, versions[0].FileTree)

	got, err := app.GetVersion(ctx, projectID, versions[1].ID)
	require.NoError(t, err)
	assert.Len(t, got.FileTree, 2)

	diff, err := app.DiffVersions(ctx, projectID, 1, 2)
	require.NoError(t, err)
	assert.Empty(t, diff.Added)
	require.Len(t, diff.Modified, 1)
	assert.Equal(t, "index.js", diff.Modified[0].Path)
	require.Len(t, diff.Deleted, 1)
	assert.Equal(t, "README.md", diff.Deleted[0].Path)

	history, err := app.FileHistory(ctx, projectID, "index.js")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "console.log(2)", history[0].Content)

	latest, err := app.LatestFiles(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "index.js", latest[0].FilePath)

	byMessage, err := app.FilesByMessage(ctx, msgID)
	require.NoError(t, err)
	assert.Len(t, byMessage, 2)

	messages, err := app.ListMessages(ctx, projectID)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func TestApp_ExportVersion(t *testing.T) {
	app := newTestApp(t, nil)
	ctx := context.Background()
	projectID := uuid.NewString()

	_, err := app.ProcessResponse(ctx, twoFiles, projectID, newMessage(t, app, projectID))
	require.NoError(t, err)

	result, err := app.ExportVersion(ctx, projectID, 1, "")
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesWritten)
	assert.Equal(t, app.config.GetExportPath(projectID, 1), result.Dir)

	data, err := os.ReadFile(filepath.Join(result.Dir, "index.js"))
	require.NoError(t, err)
	assert.Equal(t, "console.log(1)", string(data))
}

func TestApp_RejectsBadIDs(t *testing.T) {
	app := newTestApp(t, nil)
	ctx := context.Background()

	_, err := app.ListVersions(ctx, "../other")
	assert.ErrorIs(t, err, generation.ErrInvalidRequest)

	_, err = app.LatestFile(ctx, "has space", "a.js")
	assert.ErrorIs(t, err, generation.ErrInvalidRequest)

	_, err = app.FilesByMessage(ctx, "")
	assert.ErrorIs(t, err, generation.ErrInvalidRequest)

	_, err = app.ProcessResponse(ctx, twoFiles, "no/pe", "")
	assert.ErrorIs(t, err, generation.ErrInvalidRequest)
}

func TestApp_ObjectIDProjects(t *testing.T) {
	app := newTestApp(t, nil)
	ctx := context.Background()
	projectID := "65a1f0c2e4b0a1b2c3d4e5f6"

	_, err := app.ProcessResponse(ctx, twoFiles, projectID, newMessage(t, app, projectID))
	require.NoError(t, err)

	versions, err := app.ListVersions(ctx, projectID)
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestApp_FileLookups(t *testing.T) {
	app := newTestApp(t, nil)
	ctx := context.Background()
	projectID := uuid.NewString()

	_, err := app.ProcessResponse(ctx, twoFiles, projectID, newMessage(t, app, projectID))
	require.NoError(t, err)
	second := `{"fileTree":{"index.js":{"file":{"contents":"console.log(2)"}},"README.md":{"file":{"deleted":true}}}}`
	_, err = app.ProcessResponse(ctx, second, projectID, newMessage(t, app, projectID))
	require.NoError(t, err)

	latest, err := app.LatestFile(ctx, projectID, "index.js")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	assert.Equal(t, "console.log(2)", latest.Content)

	_, err = app.LatestFile(ctx, projectID, "README.md")
	assert.ErrorIs(t, err, database.ErrNotFound, "a deleted path has no current revision")

	got, err := app.GetFile(ctx, projectID, latest.ID)
	require.NoError(t, err)
	assert.Equal(t, latest.ID, got.ID)
	assert.Equal(t, "index.js", got.FilePath)

	_, err = app.GetFile(ctx, uuid.NewString(), latest.ID)
	assert.ErrorIs(t, err, database.ErrNotFound, "revisions are scoped to their project")

	_, err = app.GetFile(ctx, projectID, uuid.NewString())
	assert.ErrorIs(t, err, database.ErrNotFound)

	all, err := app.ProjectFiles(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "README.md", all[0].FilePath)
	assert.Equal(t, 2, all[0].Version)
	assert.True(t, all[0].IsDeleted)
	assert.Equal(t, "index.js", all[2].FilePath)
	assert.Equal(t, 2, all[2].Version)
}

func TestRPCFileRoutes(t *testing.T) {
	app := newTestApp(t, nil)
	ctx := context.Background()
	projectID := uuid.NewString()

	_, err := app.ProcessResponse(ctx, twoFiles, projectID, newMessage(t, app, projectID))
	require.NoError(t, err)

	router, err := websocket.NewRouter(app, rpcRoutes)
	require.NoError(t, err)

	result, err := router.Call(ctx, "files.latestOne", []interface{}{projectID, "index.js"})
	require.NoError(t, err)
	fv := result.(*database.FileVersion)
	assert.Equal(t, 1, fv.Version)

	result, err = router.Call(ctx, "files.get", []interface{}{projectID, fv.ID})
	require.NoError(t, err)
	assert.Equal(t, fv.ID, result.(*database.FileVersion).ID)

	result, err = router.Call(ctx, "files.all", []interface{}{projectID})
	require.NoError(t, err)
	assert.Len(t, result.([]*database.FileVersion), 2)
}

func TestSetupLogging_UnknownLevelFallsBack(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logs, err := setupLogging(t.TempDir(), "loud")
	require.NoError(t, err)
	defer logs.Close()

	assert.Equal(t, slog.LevelInfo, logs.Level.Level())

	data, err := os.ReadFile(logs.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "invalid log level, using fallback")
	assert.Contains(t, string(data), `"log_level":"loud"`)
}

func TestApp_ApplySettings(t *testing.T) {
	app := newTestApp(t, nil)

	s := app.Settings()
	s.SettleDelay = 3 * time.Second
	app.applySettings(s)

	assert.Equal(t, 3*time.Second, app.service.SettleDelay())
	assert.Equal(t, 3*time.Second, app.Settings().SettleDelay)
}

func TestServer_ChatOverSocket(t *testing.T) {
	app := newTestApp(t, &stubModel{reply: twoFiles})
	projectID := uuid.NewString()

	wsServer, err := newServer(app, "")
	require.NoError(t, err)
	hs := httptest.NewServer(wsServer.Handler())
	t.Cleanup(func() {
		hs.Close()
		wsServer.Stop(context.Background())
	})

	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws?projectId=" + projectID
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(websocket.WSMessage{
		Kind: websocket.KindRequest,
		Request: &websocket.RPCRequest{
			ID:     "1",
			Method: "chat.send",
			Params: []interface{}{projectID, "alice", "@ai build a page"},
		},
	}))

	events := map[string]int{}
	var response *websocket.RPCResponse
	deadline := time.Now().Add(10 * time.Second)
	for response == nil {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var msg websocket.WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		switch msg.Kind {
		case websocket.KindEvent:
			events[msg.Event.Type]++
		case websocket.KindResponse:
			response = msg.Response
		}
	}

	require.Empty(t, response.Error)
	assert.Equal(t, "1", response.ID)
	assert.Equal(t, 2, events[eventhub.EventProjectMessage])
	assert.Equal(t, 2, events[eventhub.EventFileVersionCreated])
	assert.Equal(t, 1, events[eventhub.EventProjectVersionCreated])

	versions, err := app.ListVersions(context.Background(), projectID)
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}
