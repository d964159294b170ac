package e2e_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/triviasync/internal/api"
	"github.com/mcoot/triviasync/internal/api/request"
	"github.com/mcoot/triviasync/internal/client"
	"github.com/mcoot/triviasync/internal/factory"
	"github.com/mcoot/triviasync/internal/model"
	"github.com/mcoot/triviasync/internal/services/generator"
	"github.com/mcoot/triviasync/internal/testutil"
)

// cliRunner manages CLI binary execution
type cliRunner struct {
	binaryPath string
	serverURL  string
}

func newCLIRunner(t *testing.T, serverURL string) *cliRunner {
	t.Helper()

	// Find project root (where go.mod is)
	projectRoot := findProjectRoot(t)

	// Build the CLI binary
	binaryPath := filepath.Join(projectRoot, "bin", "trivia-test")
	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/trivia")
	cmd.Dir = projectRoot
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "failed to build CLI: %s", string(output))

	return &cliRunner{
		binaryPath: binaryPath,
		serverURL:  serverURL,
	}
}

func (r *cliRunner) run(args ...string) (string, error) {
	fullArgs := append([]string{
		"--server", r.serverURL,
		"--output", "json",
	}, args...)

	cmd := exec.Command(r.binaryPath, fullArgs...)
	// Output keeps stderr log lines out of the JSON
	output, err := cmd.Output()
	return string(output), err
}

func findProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err)

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}

// testServer manages a real HTTP server for e2e tests
type testServer struct {
	app      *factory.App
	addr     string
	shutdown func()
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	// Fast generation keeps games short
	genCfg := generator.DefaultConfig()
	genCfg.BatchDelay = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	app, err := factory.New(ctx, factory.Config{
		GeneratorConfig: genCfg,
		Logger:          testutil.NopLogger(),
	})
	require.NoError(t, err)

	server := api.NewServer(app.Handler(), api.DefaultServerConfig(), testutil.NopLogger())

	// Start server
	go func() {
		if err := server.Serve(listener); err != nil {
			t.Logf("server error: %v", err)
		}
	}()
	go func() { _ = app.Hub.Run(ctx) }()

	// Wait for server to be ready
	serverURL := "http://" + listener.Addr().String()
	waitForServer(t, serverURL+"/api/v1/health")

	return &testServer{
		app:  app,
		addr: serverURL,
		shutdown: func() {
			cancel()
			_ = server.Shutdown(context.Background())
			app.Close()
		},
	}
}

func waitForServer(t *testing.T, url string) {
	t.Helper()

	client := &http.Client{Timeout: 100 * time.Millisecond}
	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}

	t.Fatal("server did not become ready in time")
}

func apiClient(ts *testServer) *client.Client {
	cfg := client.DefaultConfig(ts.addr)
	cfg.RateLimit = 0
	return client.New(cfg, testutil.NopLogger())
}

// Response types for JSON parsing
type healthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
}

type roomsResponse struct {
	Rooms []model.Room `json:"rooms"`
}

type roomDetailResponse struct {
	Room         model.Room          `json:"room"`
	Participants []model.Participant `json:"participants"`
}

type simulationResponse struct {
	Games []struct {
		Game    int    `json:"game"`
		Error   string `json:"error"`
		Players []struct {
			Name     string `json:"name"`
			State    string `json:"state"`
			Score    int    `json:"score"`
			Answered int    `json:"answered"`
			Rank     int    `json:"rank"`
		} `json:"players"`
	} `json:"games"`
}

// Tests

func TestCLI_HealthCheck(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)

	output, err := cli.run("health")
	require.NoError(t, err, output)

	var resp healthResponse
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "memory", resp.Storage)
}

func TestCLI_RoomCommands(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)

	// No rooms yet
	output, err := cli.run("rooms")
	require.NoError(t, err, output)
	var list roomsResponse
	require.NoError(t, json.Unmarshal([]byte(output), &list))
	assert.Empty(t, list.Rooms)

	// Create a room through the API
	room, err := apiClient(ts).CreateRoom(context.Background(), request.CreateRoomRequest{
		Name:             "Pub quiz",
		Difficulty:       model.DifficultyMedium,
		MaxPlayers:       4,
		QuestionsPerGame: 3,
		TimePerQuestion:  20,
		CreatorName:      "alice",
	})
	require.NoError(t, err)

	output, err = cli.run("rooms")
	require.NoError(t, err, output)
	require.NoError(t, json.Unmarshal([]byte(output), &list))
	require.Len(t, list.Rooms, 1)
	assert.Equal(t, room.ID, list.Rooms[0].ID)

	output, err = cli.run("rooms", "show", string(room.ID))
	require.NoError(t, err, output)
	var detail roomDetailResponse
	require.NoError(t, json.Unmarshal([]byte(output), &detail))
	assert.Equal(t, "Pub quiz", detail.Room.Name)
	require.Len(t, detail.Participants, 1)
	assert.True(t, detail.Participants[0].IsCreator)
}

func TestCLI_Simulate(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)

	output, err := cli.run("simulate",
		"--players", "3",
		"--questions", "3",
		"--time", "2",
		"--max-think", "50ms",
		"--strategy", "expert",
		"--timeout", "2m",
	)
	require.NoError(t, err, output)

	var resp simulationResponse
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	require.Len(t, resp.Games, 1)
	game := resp.Games[0]
	assert.Empty(t, game.Error)
	require.Len(t, game.Players, 3)
	for _, p := range game.Players {
		assert.Equal(t, "completed", p.State, p.Name)
		assert.Equal(t, 3, p.Answered, p.Name)
		assert.Positive(t, p.Rank, p.Name)
	}
}

func TestCLI_ErrorHandling(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)

	// Unknown room
	_, err := cli.run("rooms", "show", "missing")
	assert.Error(t, err)

	// Invalid push transport
	_, err = cli.run("--push", "carrier-pigeon", "rooms")
	assert.Error(t, err)

	// Invalid simulate flags
	_, err = cli.run("simulate", "--players", "0")
	assert.Error(t, err)
}
