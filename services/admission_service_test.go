package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/simonserver/auth"
	"github.com/wfunc/simonserver/models"
	"github.com/wfunc/simonserver/room"
	"github.com/wfunc/simonserver/state"
	"github.com/wfunc/simonserver/timer"
)

func newAdmission(t *testing.T) (*AdmissionService, *room.Manager, *auth.TokenManager) {
	t.Helper()
	timers := timer.NewTimerManager(10 * time.Millisecond)
	t.Cleanup(timers.Stop)

	settings := state.DefaultSettings()
	settings.MaxPlayers = 2
	rooms := room.NewRoomManager(room.ManagerConfig{
		Settings:       settings,
		ReconnectGrace: time.Minute,
		EmptyRoomGrace: time.Minute,
		Timers:         timers,
	})
	t.Cleanup(rooms.Close)

	tokens, err := auth.NewTokenManager("secret", time.Hour)
	require.NoError(t, err)
	return NewAdmissionService(rooms, tokens), rooms, tokens
}

func TestAdmissionService_CreateRoom(t *testing.T) {
	svc, rooms, tokens := newAdmission(t)

	adm, err := svc.CreateRoom("  Ann ", "")
	require.NoError(t, err)
	assert.Len(t, adm.GameCode, 6)
	assert.Equal(t, "Ann", adm.Player.DisplayName)
	assert.Equal(t, models.DefaultAvatarID, adm.Player.AvatarID)
	assert.True(t, adm.Player.IsHost)
	assert.NotEmpty(t, adm.Player.ID)

	claims, err := tokens.Verify(adm.Token)
	require.NoError(t, err)
	assert.Equal(t, adm.Player.ID, claims.PlayerID)
	assert.Equal(t, adm.GameCode, claims.GameCode)
	assert.True(t, claims.IsHost)

	r, err := rooms.GetRoom(adm.GameCode)
	require.NoError(t, err)
	snap, err := r.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, adm.Player.ID, snap.HostPlayerID)
}

func TestAdmissionService_CreateRoomInvalidName(t *testing.T) {
	svc, rooms, _ := newAdmission(t)

	_, err := svc.CreateRoom("a name far too long", "1")
	assert.ErrorIs(t, err, models.ErrInvalidName)
	assert.Zero(t, rooms.Count())
}

func TestAdmissionService_JoinRoom(t *testing.T) {
	svc, _, _ := newAdmission(t)

	host, err := svc.CreateRoom("Ann", "1")
	require.NoError(t, err)

	guest, err := svc.JoinRoom(host.GameCode, "Bob", "2")
	require.NoError(t, err)
	assert.Equal(t, host.GameCode, guest.GameCode)
	assert.False(t, guest.Player.IsHost)
	assert.NotEqual(t, host.Player.ID, guest.Player.ID)

	_, err = svc.JoinRoom(host.GameCode, "Cid", "3")
	assert.ErrorIs(t, err, models.ErrRoomFull)

	_, err = svc.JoinRoom("NOPE00", "Dee", "4")
	assert.ErrorIs(t, err, models.ErrRoomNotFound)
}

func TestAdmissionService_VerifyAndLeave(t *testing.T) {
	svc, _, _ := newAdmission(t)

	host, err := svc.CreateRoom("Ann", "1")
	require.NoError(t, err)
	guest, err := svc.JoinRoom(host.GameCode, "Bob", "2")
	require.NoError(t, err)

	claims, err := svc.VerifySession(guest.Token)
	require.NoError(t, err)
	assert.Equal(t, guest.Player.ID, claims.PlayerID)

	require.NoError(t, svc.LeaveRoom(guest.Token))
	_, err = svc.VerifySession(guest.Token)
	assert.ErrorIs(t, err, models.ErrPlayerNotFound)
	assert.ErrorIs(t, svc.LeaveRoom(guest.Token), models.ErrPlayerNotFound)

	_, err = svc.VerifySession("garbage")
	assert.ErrorIs(t, err, models.ErrInvalidSession)
	assert.ErrorIs(t, err, auth.ErrCorruptedToken)
	assert.Equal(t, models.KindAuthorization, models.KindOf(err))
}
