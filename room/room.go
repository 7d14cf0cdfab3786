// room/room.go
package room

import (
	"sync"
	"time"

	"github.com/wfunc/simonserver/logger"
	"github.com/wfunc/simonserver/models"
	"github.com/wfunc/simonserver/network"
	"github.com/wfunc/simonserver/score"
	"github.com/wfunc/simonserver/sequence"
	"github.com/wfunc/simonserver/state"
	"github.com/wfunc/simonserver/timer"
)

// Options configure a single room.
type Options struct {
	Settings    state.Settings
	Broadcaster Broadcaster
	Timers      timer.Scheduler
	Sequencer   sequence.Generator
	// ReconnectGrace is how long a player without a connection keeps its
	// seat. Zero removes the player as soon as the connection drops.
	ReconnectGrace time.Duration
	// OnEmpty is called from the room loop when the last player leaves.
	OnEmpty func(code string)
	// OnFinished receives every finished game. It runs on its own goroutine.
	OnFinished func(result models.GameResult)
	Clock      func() time.Time
}

// Room 是游戏房间的核心结构
//
// All state is owned by one goroutine. Public methods post a closure to the
// inbox and wait for it to run, so every event is processed to completion
// before the next one starts.
type Room struct {
	ID        string
	CreatedAt time.Time

	settings    state.Settings
	players     []*models.Player
	game        *state.Game
	keeper      *score.Keeper
	seq         sequence.Generator
	machine     *state.BaseStateMachine
	broadcaster Broadcaster
	timers      timer.Scheduler
	clock       func() time.Time
	grace       time.Duration
	onEmpty     func(string)
	onFinished  func(models.GameResult)

	// 断线重连计时器 playerID -> timer id
	disconnectTimers map[string]int64
	// graceTokens stamps the pending grace callback of each player
	graceTokens      map[string]uint64
	graceSeq         uint64
	// closing is set once the room has been claimed for eviction
	closing          bool

	inbox     chan func()
	closeChan chan struct{}
	closeOnce sync.Once
}

// NewRoom 创建一个新房间
func NewRoom(code string, opts Options) *Room {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Sequencer == nil {
		opts.Sequencer = sequence.NewRandomGenerator()
	}
	if opts.Timers == nil {
		opts.Timers = timer.NewTimerManager(10 * time.Millisecond)
	}
	if opts.Settings.MaxPlayers <= 0 {
		opts.Settings.MaxPlayers = state.DefaultSettings().MaxPlayers
	}

	room := &Room{
		ID:               code,
		CreatedAt:        opts.Clock(),
		settings:         opts.Settings,
		game:             state.NewGame(),
		keeper:           score.NewKeeper(),
		seq:              opts.Sequencer,
		broadcaster:      opts.Broadcaster,
		timers:           opts.Timers,
		clock:            opts.Clock,
		grace:            opts.ReconnectGrace,
		onEmpty:          opts.OnEmpty,
		onFinished:       opts.OnFinished,
		disconnectTimers: make(map[string]int64),
		graceTokens:      make(map[string]uint64),
		inbox:            make(chan func(), 64),
		closeChan:        make(chan struct{}),
	}

	// 初始化状态机，将房间自身(room)作为上下文传入
	machine := state.NewBaseStateMachine(state.NewWaitingState(room))
	state.RegisterTransitions(machine)
	machine.OnChange(room.onStateChange)
	room.machine = machine

	go room.loop()
	return room
}

// --- 实现 state.RoomContext 接口 ---

// GetID 返回房间号
func (r *Room) GetID() string {
	return r.ID
}

func (r *Room) GetPlayers() []*models.Player {
	return r.players
}

func (r *Room) GetSettings() state.Settings {
	return r.settings
}

func (r *Room) Game() *state.Game {
	return r.game
}

func (r *Room) Scores() *score.Keeper {
	return r.keeper
}

func (r *Room) Sequencer() sequence.Generator {
	return r.seq
}

// ChangeState 改变房间的状态机状态
func (r *Room) ChangeState(newState state.State) error {
	return r.machine.ChangeState(newState)
}

// Broadcast sends an event to every connection in the room.
func (r *Room) Broadcast(event string, payload any) {
	if r.broadcaster == nil {
		return
	}
	if err := r.broadcaster.BroadcastToRoom(r.ID, event, payload); err != nil {
		logger.Log.Warnf("room %s: broadcast %s: %v", r.ID, event, err)
	}
}

func (r *Room) SendTo(playerID, event string, payload any) {
	if r.broadcaster == nil {
		return
	}
	if err := r.broadcaster.SendToPlayer(r.ID, playerID, event, payload); err != nil {
		logger.Log.Warnf("room %s: send %s to %s: %v", r.ID, event, playerID, err)
	}
}

// Schedule runs fn on the room loop after delay. The callback is dropped if
// the phase that scheduled it has been left.
func (r *Room) Schedule(delay time.Duration, fn func()) int64 {
	gen := uint64(1)
	if r.machine != nil {
		gen = r.machine.Generation()
	}
	return r.after(delay, func() {
		if r.machine.Generation() != gen {
			return
		}
		fn()
	})
}

func (r *Room) CancelTimer(id int64) {
	if id != 0 {
		r.timers.RemoveTimer(id)
	}
}

func (r *Room) Now() time.Time {
	return r.clock()
}

func (r *Room) GameFinished(result models.GameResult) {
	if r.onFinished == nil || len(result.Standings) == 0 {
		return
	}
	go r.onFinished(result)
}

// --- 房间主循环 ---

func (r *Room) loop() {
	for {
		select {
		case fn := <-r.inbox:
			r.run(fn)
		case <-r.closeChan:
			return
		}
	}
}

func (r *Room) run(fn func()) {
	defer func() {
		if err := recover(); err != nil {
			logger.Log.Errorf("room %s: recovered from panic: %v", r.ID, err)
		}
	}()
	fn()
}

// post queues fn without waiting for it.
func (r *Room) post(fn func()) {
	select {
	case r.inbox <- fn:
	case <-r.closeChan:
	}
}

// do runs fn on the room loop and waits for its result.
func (r *Room) do(fn func() error) error {
	done := make(chan error, 1)
	select {
	case r.inbox <- func() { done <- fn() }:
	case <-r.closeChan:
		return models.ErrRoomClosed
	}
	select {
	case err := <-done:
		return err
	case <-r.closeChan:
		return models.ErrRoomClosed
	}
}

// after schedules fn on the room loop without a phase guard.
func (r *Room) after(delay time.Duration, fn func()) int64 {
	return r.timers.AddTimer(delay, 0, func() {
		r.post(fn)
	})
}

// --- 房间核心逻辑 ---

// AddPlayer seats p in the room. The first player becomes host. Adding a
// player that is already seated is a no-op.
func (r *Room) AddPlayer(p *models.Player) error {
	return r.do(func() error {
		if r.closing {
			return models.ErrRoomNotFound
		}
		if r.find(p.ID) != nil {
			return nil
		}
		if r.machine.GetCurrentState().GetID() != models.PhaseWaiting {
			return models.ErrGameInProgress
		}
		if len(r.players) >= r.settings.MaxPlayers {
			return models.ErrRoomFull
		}

		p.IsHost = len(r.players) == 0
		p.Connected = false
		r.players = append(r.players, p)
		r.keeper.Track(p)
		r.startGrace(p.ID)

		logger.Log.Infof("room %s: player %s (%s) joined, %d/%d", r.ID, p.ID, p.DisplayName, len(r.players), r.settings.MaxPlayers)
		r.Broadcast(network.EventPlayerJoined, p.Clone())
		r.Broadcast(network.EventRoomStateUpdate, r.snapshot())
		return nil
	})
}

// Attach marks the player connected and returns the snapshot for the new
// connection.
func (r *Room) Attach(playerID string) (models.RoomSnapshot, error) {
	var snap models.RoomSnapshot
	err := r.do(func() error {
		p := r.find(playerID)
		if p == nil {
			return models.ErrNotJoined
		}
		r.stopGrace(playerID)
		p.Connected = true
		snap = r.snapshot()

		logger.Log.Debugf("room %s: player %s connected", r.ID, playerID)
		r.Broadcast(network.EventRoomStateUpdate, snap)
		r.machine.GetCurrentState().OnPlayersChanged()
		return nil
	})
	return snap, err
}

// Detach marks the player disconnected. The player keeps its seat for the
// reconnect grace period.
func (r *Room) Detach(playerID string) {
	r.post(func() {
		p := r.find(playerID)
		if p == nil || !p.Connected {
			return
		}
		p.Connected = false
		if r.grace <= 0 {
			r.removePlayer(playerID)
			return
		}
		r.startGrace(playerID)

		logger.Log.Infof("room %s: player %s disconnected", r.ID, playerID)
		r.Broadcast(network.EventRoomStateUpdate, r.snapshot())
		r.machine.GetCurrentState().OnPlayersChanged()
	})
}

// Leave removes the player at once.
func (r *Room) Leave(playerID string) error {
	return r.do(func() error {
		if r.find(playerID) == nil {
			return models.ErrPlayerNotFound
		}
		r.removePlayer(playerID)
		return nil
	})
}

// HandleAction dispatches a player command to the current phase.
func (r *Room) HandleAction(playerID string, action state.Action) error {
	return r.do(func() error {
		p := r.find(playerID)
		if p == nil {
			return models.ErrNotJoined
		}
		return r.machine.GetCurrentState().HandleAction(p, action)
	})
}

// Snapshot returns a copy of the public room state.
func (r *Room) Snapshot() (models.RoomSnapshot, error) {
	var snap models.RoomSnapshot
	err := r.do(func() error {
		snap = r.snapshot()
		return nil
	})
	return snap, err
}

// retireIfEmpty marks an empty room as closing so later joins are refused.
// It reports false and leaves the room open when anyone is seated.
func (r *Room) retireIfEmpty() bool {
	retired := false
	err := r.do(func() error {
		if len(r.players) > 0 {
			return nil
		}
		r.closing = true
		retired = true
		return nil
	})
	return err == nil && retired
}

// HasPlayer reports whether playerID is seated.
func (r *Room) HasPlayer(playerID string) bool {
	found := false
	_ = r.do(func() error {
		found = r.find(playerID) != nil
		return nil
	})
	return found
}

// Close 关闭房间，停止主循环并取消所有计时器
func (r *Room) Close() {
	r.closeOnce.Do(func() {
		done := make(chan struct{})
		cleanup := func() {
			defer close(done)
			r.machine.GetCurrentState().OnExit()
			for id, timerID := range r.disconnectTimers {
				r.timers.RemoveTimer(timerID)
				delete(r.disconnectTimers, id)
				delete(r.graceTokens, id)
			}
		}
		select {
		case r.inbox <- cleanup:
			select {
			case <-done:
			case <-time.After(time.Second):
				logger.Log.Warnf("room %s: close timed out waiting for the loop", r.ID)
			}
		case <-time.After(time.Second):
			logger.Log.Warnf("room %s: close timed out waiting for the loop", r.ID)
		}
		close(r.closeChan)
		logger.Log.Infof("room %s: closed", r.ID)
	})
}

func (r *Room) find(playerID string) *models.Player {
	for _, p := range r.players {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

func (r *Room) startGrace(playerID string) {
	r.stopGrace(playerID)
	if r.grace <= 0 {
		return
	}
	r.graceSeq++
	token := r.graceSeq
	r.graceTokens[playerID] = token
	r.disconnectTimers[playerID] = r.after(r.grace, func() {
		// 已被取消或被新的计时器取代
		if r.graceTokens[playerID] != token {
			return
		}
		delete(r.disconnectTimers, playerID)
		delete(r.graceTokens, playerID)
		if p := r.find(playerID); p != nil && !p.Connected {
			logger.Log.Infof("room %s: player %s did not reconnect", r.ID, playerID)
			r.removePlayer(playerID)
		}
	})
}

func (r *Room) stopGrace(playerID string) {
	if id, ok := r.disconnectTimers[playerID]; ok {
		r.timers.RemoveTimer(id)
		delete(r.disconnectTimers, playerID)
	}
	delete(r.graceTokens, playerID)
}

func (r *Room) removePlayer(playerID string) {
	idx := -1
	for i, p := range r.players {
		if p.ID == playerID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	removed := r.players[idx]
	r.players = append(r.players[:idx], r.players[idx+1:]...)
	r.keeper.Untrack(playerID)
	r.stopGrace(playerID)

	// 房主离开时按加入顺序移交给下一位
	if removed.IsHost && len(r.players) > 0 {
		next := r.players[0]
		if idx < len(r.players) {
			next = r.players[idx]
		}
		next.IsHost = true
		logger.Log.Infof("room %s: host passed from %s to %s", r.ID, playerID, next.ID)
	}
	removed.IsHost = false

	logger.Log.Infof("room %s: player %s left, %d remaining", r.ID, playerID, len(r.players))
	r.Broadcast(network.EventPlayerLeft, network.PlayerLeftPayload{PlayerID: playerID})
	r.Broadcast(network.EventRoomStateUpdate, r.snapshot())

	if len(r.players) == 0 {
		if r.onEmpty != nil {
			r.onEmpty(r.ID)
		}
	}
	r.machine.GetCurrentState().OnPlayersChanged()
}

func (r *Room) onStateChange(from, to state.State) {
	logger.Log.Debugf("room %s: %s -> %s", r.ID, from.GetID(), to.GetID())
	if from.GetID().Status() != to.GetID().Status() {
		r.Broadcast(network.EventRoomStateUpdate, r.snapshot())
	}
}

func (r *Room) hostID() string {
	for _, p := range r.players {
		if p.IsHost {
			return p.ID
		}
	}
	return ""
}

func (r *Room) snapshot() models.RoomSnapshot {
	phase := r.machine.GetCurrentState().GetID()
	players := make([]models.Player, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, p.Clone())
	}
	snap := models.RoomSnapshot{
		Code:             r.ID,
		Status:           phase.Status(),
		Phase:            phase,
		HostPlayerID:     r.hostID(),
		Players:          players,
		CurrentRound:     r.game.Round,
		Sequence:         r.game.SequenceCopy(),
		SubmittedPlayers: r.game.SubmittedIDs(r.players),
		MaxPlayers:       r.settings.MaxPlayers,
	}
	if !r.game.Deadline.IsZero() {
		deadline := r.game.Deadline
		snap.RoundDeadline = &deadline
	}
	return snap
}
