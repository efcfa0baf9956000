package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernie/teamswitch/internal/config"
	"github.com/ernie/teamswitch/internal/domain"
	"github.com/ernie/teamswitch/internal/roster"
	"github.com/ernie/teamswitch/internal/storage"
	"github.com/ernie/teamswitch/internal/switcher"
)

type fakeHandler struct {
	mu           sync.Mutex
	connected    []domain.Player
	disconnected []domain.Player
	roundsEnded  int
	newGames     []time.Time
	lockdowns    [][]domain.AffectedPlayer
	requests     []domain.SwitchRequest
	reply        switcher.Outcome
	replyErr     error
}

func (f *fakeHandler) HandlePlayerConnected(p domain.Player) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = append(f.connected, p)
}

func (f *fakeHandler) HandlePlayerDisconnected(p domain.Player) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = append(f.disconnected, p)
}

func (f *fakeHandler) HandleRoundEnded(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roundsEnded++
	return nil
}

func (f *fakeHandler) HandleNewGame(startedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.newGames = append(f.newGames, startedAt)
}

func (f *fakeHandler) ApplyLockdown(_ context.Context, affected []domain.AffectedPlayer) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lockdowns = append(f.lockdowns, affected)
	return time.Now(), nil
}

func (f *fakeHandler) HandleRequest(_ context.Context, req domain.SwitchRequest) (switcher.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.reply, f.replyErr
}

func (f *fakeHandler) snapshot() fakeHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fakeHandler{
		connected:    append([]domain.Player(nil), f.connected...),
		disconnected: append([]domain.Player(nil), f.disconnected...),
		roundsEnded:  f.roundsEnded,
		newGames:     append([]time.Time(nil), f.newGames...),
		lockdowns:    append([][]domain.AffectedPlayer(nil), f.lockdowns...),
		requests:     append([]domain.SwitchRequest(nil), f.requests...),
	}
}

func runServer(t *testing.T) *server.Server {
	t.Helper()
	ns := test.RunServer(&server.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	t.Cleanup(ns.Shutdown)
	return ns
}

func testNATSConfig() config.NATSConfig {
	return config.NATSConfig{SubjectPrefix: "squad", RequestTimeout: time.Second}
}

func setup(t *testing.T) (*Bridge, *nats.Conn) {
	t.Helper()
	ns := runServer(t)

	b, err := Connect(ns.ClientURL(), testNATSConfig(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(b.Close)

	gateway, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	t.Cleanup(gateway.Close)
	return b, gateway
}

func publishJSON(t *testing.T, nc *nats.Conn, subject string, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, nc.Publish(subject, data))
	require.NoError(t, nc.Flush())
}

func TestEventsReachHandler(t *testing.T) {
	b, gateway := setup(t)
	h := &fakeHandler{}
	require.NoError(t, b.Subscribe(context.Background(), h))

	started := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)
	publishJSON(t, gateway, "squad.events.player_connected", domain.Player{PlayerID: "765", Name: "Alpha", TeamID: 1})
	publishJSON(t, gateway, "squad.events.player_disconnected", domain.Player{PlayerID: "765", TeamID: 1})
	publishJSON(t, gateway, "squad.events.round_ended", struct{}{})
	publishJSON(t, gateway, "squad.events.new_game", map[string]time.Time{"time": started})
	require.NoError(t, gateway.Publish("squad.events.scramble_executed",
		[]byte(`{"affectedPlayers":["1",{"steamID":"2","name":"Bravo"}]}`)))
	require.NoError(t, gateway.Publish("squad.events.something_else", nil))
	require.NoError(t, gateway.Flush())

	require.Eventually(t, func() bool {
		return len(h.snapshot().lockdowns) == 1
	}, 2*time.Second, 10*time.Millisecond)

	got := h.snapshot()
	require.Len(t, got.connected, 1)
	assert.Equal(t, "Alpha", got.connected[0].Name)
	require.Len(t, got.disconnected, 1)
	assert.Equal(t, "765", got.disconnected[0].PlayerID)
	assert.Equal(t, 1, got.roundsEnded)
	require.Len(t, got.newGames, 1)
	assert.True(t, started.Equal(got.newGames[0]))
	assert.Equal(t, []domain.AffectedPlayer{{PlayerID: "1"}, {PlayerID: "2", Name: "Bravo"}}, got.lockdowns[0])
}

func TestMalformedEventIsDropped(t *testing.T) {
	b, gateway := setup(t)
	h := &fakeHandler{}
	require.NoError(t, b.Subscribe(context.Background(), h))

	require.NoError(t, gateway.Publish("squad.events.player_connected", []byte("{not json")))
	publishJSON(t, gateway, "squad.events.player_connected", domain.Player{PlayerID: "42"})

	require.Eventually(t, func() bool {
		return len(h.snapshot().connected) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "42", h.snapshot().connected[0].PlayerID)
}

func TestSwitchRequestReply(t *testing.T) {
	b, gateway := setup(t)
	h := &fakeHandler{
		reply:    switcher.Outcome{Message: "Cooldown: please wait 5m."},
		replyErr: errors.New("boom"),
	}
	require.NoError(t, b.Subscribe(context.Background(), h))

	data, err := json.Marshal(domain.SwitchRequest{RequesterID: "765", Kind: domain.KindSwitch})
	require.NoError(t, err)
	msg, err := gateway.Request("squad.requests.switch", data, time.Second)
	require.NoError(t, err)

	var reply RequestReply
	require.NoError(t, json.Unmarshal(msg.Data, &reply))
	assert.Equal(t, "Cooldown: please wait 5m.", reply.Message)
	assert.Equal(t, "boom", reply.Error)

	got := h.snapshot()
	require.Len(t, got.requests, 1)
	assert.Equal(t, domain.KindSwitch, got.requests[0].Kind)
}

func TestBadSwitchRequestReply(t *testing.T) {
	b, gateway := setup(t)
	h := &fakeHandler{}
	require.NoError(t, b.Subscribe(context.Background(), h))

	msg, err := gateway.Request("squad.requests.switch", []byte("nope"), time.Second)
	require.NoError(t, err)

	var reply RequestReply
	require.NoError(t, json.Unmarshal(msg.Data, &reply))
	assert.Contains(t, reply.Error, "decoding request")
	assert.Empty(t, h.snapshot().requests)
}

func TestExecuteTeamChange(t *testing.T) {
	b, gateway := setup(t)

	received := make(chan playerCommand, 1)
	_, err := gateway.Subscribe("squad.rcon.team_change", func(msg *nats.Msg) {
		var cmd playerCommand
		_ = json.Unmarshal(msg.Data, &cmd)
		received <- cmd
		if cmd.PlayerID == "bad" {
			_ = msg.Respond([]byte(`{"error":"player not found"}`))
			return
		}
		_ = msg.Respond([]byte(`{}`))
	})
	require.NoError(t, err)
	require.NoError(t, gateway.Flush())

	require.NoError(t, b.ExecuteTeamChange(context.Background(), "765"))
	assert.Equal(t, "765", (<-received).PlayerID)

	err = b.ExecuteTeamChange(context.Background(), "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "player not found")
	<-received
}

func TestExecuteTeamChangeTimesOut(t *testing.T) {
	ns := runServer(t)
	cfg := testNATSConfig()
	cfg.RequestTimeout = 50 * time.Millisecond
	b, err := Connect(ns.ClientURL(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(b.Close)

	start := time.Now()
	err = b.ExecuteTeamChange(context.Background(), "765")
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWarnPublishes(t *testing.T) {
	b, gateway := setup(t)

	sub, err := gateway.SubscribeSync("squad.rcon.warn")
	require.NoError(t, err)
	require.NoError(t, gateway.Flush())

	require.NoError(t, b.Warn(context.Background(), "765", "Switched."))
	msg, err := sub.NextMsg(time.Second)
	require.NoError(t, err)

	var cmd playerCommand
	require.NoError(t, json.Unmarshal(msg.Data, &cmd))
	assert.Equal(t, playerCommand{PlayerID: "765", Message: "Switched."}, cmd)
}

func TestFetchRoster(t *testing.T) {
	b, gateway := setup(t)

	_, err := gateway.Subscribe("squad.rcon.roster", func(msg *nats.Msg) {
		_ = msg.Respond([]byte(`{"players":[{"steam_id":"1","name":"Alpha","team_id":1,"squad_id":2,"role":"USA_Rifleman"}]}`))
	})
	require.NoError(t, err)
	require.NoError(t, gateway.Flush())

	players, err := b.FetchRoster(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Player{{PlayerID: "1", Name: "Alpha", TeamID: 1, SquadID: 2, Role: "USA_Rifleman"}}, players)
}

func TestStartEmbedded(t *testing.T) {
	ns, err := StartEmbedded(-1)
	require.NoError(t, err)
	t.Cleanup(ns.Shutdown)

	b, err := Connect(ns.ClientURL(), testNATSConfig(), zerolog.Nop())
	require.NoError(t, err)
	b.Close()
}

func TestSwitchRequestEndToEnd(t *testing.T) {
	b, gateway := setup(t)

	store, err := storage.New(filepath.Join(t.TempDir(), "teamswitch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := switcher.New(config.DefaultSwitchConfig(), store, b, roster.New(b), zerolog.Nop())
	t.Cleanup(svc.Stop)
	require.NoError(t, b.Subscribe(context.Background(), svc))

	_, err = gateway.Subscribe("squad.rcon.roster", func(msg *nats.Msg) {
		_ = msg.Respond([]byte(`{"players":[
			{"steam_id":"1","name":"Alpha","team_id":1},
			{"steam_id":"2","name":"Bravo","team_id":1},
			{"steam_id":"3","name":"Charlie","team_id":2}]}`))
	})
	require.NoError(t, err)
	moved := make(chan string, 1)
	_, err = gateway.Subscribe("squad.rcon.team_change", func(msg *nats.Msg) {
		var cmd playerCommand
		_ = json.Unmarshal(msg.Data, &cmd)
		moved <- cmd.PlayerID
		_ = msg.Respond([]byte(`{}`))
	})
	require.NoError(t, err)
	require.NoError(t, gateway.Flush())

	publishJSON(t, gateway, "squad.events.player_connected", domain.Player{PlayerID: "1", Name: "Alpha", TeamID: 1})

	data, err := json.Marshal(domain.SwitchRequest{RequesterID: "1", RequesterName: "Alpha", Kind: domain.KindSwitch})
	require.NoError(t, err)
	msg, err := gateway.Request("squad.requests.switch", data, 2*time.Second)
	require.NoError(t, err)

	var reply RequestReply
	require.NoError(t, json.Unmarshal(msg.Data, &reply))
	require.Empty(t, reply.Error)
	require.NotNil(t, reply.Decision)
	assert.True(t, reply.Decision.Eligible)
	assert.Equal(t, "1", <-moved)

	rec, err := store.GetCooldown(context.Background(), "1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.NotNil(t, rec.LastSwitchAt)
}
