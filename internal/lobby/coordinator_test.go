// internal/lobby/coordinator_test.go
package lobby

import (
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestCoordinator(grace time.Duration) (*Coordinator, *Registry) {
	reg := NewRegistry()
	return NewCoordinator(reg, testLogger(), grace), reg
}

func TestCreateLobby(t *testing.T) {
	c, reg := newTestCoordinator(time.Minute)

	l, err := c.Create("conn-1", "alice", CreateOptions{})
	require.NoError(t, err)

	snap := l.Snapshot()
	assert.True(t, ValidCode(snap.Code))
	assert.Equal(t, "deathmatch", snap.GameMode)
	assert.Equal(t, "grass", snap.MapType)
	assert.Equal(t, DefaultMaxPlayers, snap.MaxPlayers)
	assert.Equal(t, "waiting", snap.Status)
	assert.Equal(t, "conn-1", snap.HostID)
	require.Len(t, snap.Players, 1)
	assert.True(t, snap.Players[0].IsHost)
	assert.True(t, snap.Players[0].IsReady)
	assert.True(t, snap.Players[0].Connected)

	assert.Equal(t, 1, reg.Len())
}

func TestCreateLobbyValidation(t *testing.T) {
	c, _ := newTestCoordinator(time.Minute)

	_, err := c.Create("conn-1", "ab", CreateOptions{})
	assert.ErrorIs(t, err, ErrInvalidUsername)

	_, err = c.Create("conn-1", "has spaces", CreateOptions{})
	assert.ErrorIs(t, err, ErrInvalidUsername)

	_, err = c.Create("conn-1", "alice", CreateOptions{GameMode: "battle-royale"})
	assert.ErrorIs(t, err, ErrInvalidGameMode)

	_, err = c.Create("conn-1", "alice", CreateOptions{MapType: "moon"})
	assert.ErrorIs(t, err, ErrInvalidMapType)
}

func TestCreateLobbyClampsCapacity(t *testing.T) {
	c, _ := newTestCoordinator(time.Minute)

	l, err := c.Create("conn-1", "alice", CreateOptions{MaxPlayers: 50})
	require.NoError(t, err)
	assert.Equal(t, MaxMaxPlayers, l.Snapshot().MaxPlayers)

	l2, err := c.Create("conn-2", "bob", CreateOptions{MaxPlayers: 1})
	require.NoError(t, err)
	assert.Equal(t, MinMaxPlayers, l2.Snapshot().MaxPlayers)
}

func TestJoinLobby(t *testing.T) {
	c, _ := newTestCoordinator(time.Minute)
	l, err := c.Create("conn-1", "alice", CreateOptions{})
	require.NoError(t, err)
	code := l.Snapshot().Code

	res, err := c.Join(code, "conn-2", "bob")
	require.NoError(t, err)
	assert.Equal(t, "conn-2", res.Player.ConnectionID)
	assert.False(t, res.Player.IsHost)
	assert.False(t, res.Player.IsReady)
	assert.True(t, res.Player.Connected)
	require.Len(t, res.Snapshot.Players, 2)
	assert.Equal(t, "conn-1", res.Snapshot.HostID)
}

func TestJoinLobbyErrors(t *testing.T) {
	c, _ := newTestCoordinator(time.Minute)
	l, err := c.Create("conn-1", "alice", CreateOptions{MaxPlayers: 2})
	require.NoError(t, err)
	code := l.Snapshot().Code

	_, err = c.Join("nope", "conn-2", "bob")
	assert.ErrorIs(t, err, ErrInvalidLobbyCode)

	_, err = c.Join(code, "conn-2", "x")
	assert.ErrorIs(t, err, ErrInvalidUsername)

	_, err = c.Join("ZZZZ99", "conn-2", "bob")
	assert.ErrorIs(t, err, ErrLobbyNotFound)

	// Host is already bound to this lobby.
	_, err = c.Join(code, "conn-1", "alice2")
	assert.ErrorIs(t, err, ErrAlreadyInLobby)

	_, err = c.Join(code, "conn-2", "bob")
	require.NoError(t, err)

	_, err = c.Join(code, "conn-3", "carol")
	assert.ErrorIs(t, err, ErrLobbyFull)

	// A failed join must not leave a stale binding behind.
	_, err = c.Join(code, "conn-3", "carol")
	assert.ErrorIs(t, err, ErrLobbyFull)
}

func TestJoinRejectedOncePastWaiting(t *testing.T) {
	c, _ := newTestCoordinator(time.Minute)
	l, err := c.Create("conn-1", "alice", CreateOptions{})
	require.NoError(t, err)
	code := l.Snapshot().Code

	l.Mu.Lock()
	l.Status = StatusStarting
	l.Mu.Unlock()

	_, err = c.Join(code, "conn-2", "bob")
	assert.ErrorIs(t, err, ErrGameInProgress)

	// The reservation rolled back, so a later join works once waiting again.
	l.Mu.Lock()
	l.Status = StatusWaiting
	l.Mu.Unlock()
	_, err = c.Join(code, "conn-2", "bob")
	assert.NoError(t, err)
}

func TestLeaveTransfersHostToEarliestJoined(t *testing.T) {
	c, _ := newTestCoordinator(time.Minute)
	l, err := c.Create("conn-h", "hostplayer", CreateOptions{})
	require.NoError(t, err)
	code := l.Snapshot().Code

	_, err = c.Join(code, "conn-a", "alice")
	require.NoError(t, err)
	_, err = c.Join(code, "conn-b", "bob")
	require.NoError(t, err)

	res := c.Leave("conn-h")
	require.True(t, res.Happened)
	assert.False(t, res.Deleted)
	require.NotNil(t, res.NewHost)
	assert.Equal(t, "conn-a", res.NewHost.ConnectionID)
	assert.True(t, res.NewHost.IsHost)
	assert.True(t, res.NewHost.IsReady)
	assert.Equal(t, "conn-a", res.Snapshot.HostID)
	require.Len(t, res.Snapshot.Players, 2)
	assert.Equal(t, "conn-a", res.Snapshot.Players[0].ConnectionID)
	assert.Equal(t, "conn-b", res.Snapshot.Players[1].ConnectionID)
}

func TestLeaveNonHostKeepsHost(t *testing.T) {
	c, _ := newTestCoordinator(time.Minute)
	l, err := c.Create("conn-h", "hostplayer", CreateOptions{})
	require.NoError(t, err)
	code := l.Snapshot().Code

	_, err = c.Join(code, "conn-a", "alice")
	require.NoError(t, err)

	res := c.Leave("conn-a")
	require.True(t, res.Happened)
	assert.Nil(t, res.NewHost)
	assert.Equal(t, "conn-h", res.Snapshot.HostID)
}

func TestLeaveLastMemberRemovesLobby(t *testing.T) {
	c, reg := newTestCoordinator(time.Minute)
	l, err := c.Create("conn-1", "alice", CreateOptions{})
	require.NoError(t, err)
	code := l.Snapshot().Code

	res := c.Leave("conn-1")
	require.True(t, res.Happened)
	assert.True(t, res.Deleted)
	assert.Equal(t, code, res.Code)
	assert.Equal(t, 0, reg.Len())

	// Leaving twice is a no-op, not an error.
	res = c.Leave("conn-1")
	assert.False(t, res.Happened)
}

func TestUpdateReady(t *testing.T) {
	c, _ := newTestCoordinator(time.Minute)
	l, err := c.Create("conn-h", "hostplayer", CreateOptions{})
	require.NoError(t, err)
	code := l.Snapshot().Code
	_, err = c.Join(code, "conn-a", "alice")
	require.NoError(t, err)

	snap, err := c.UpdateReady("conn-a", true)
	require.NoError(t, err)
	assert.True(t, snap.Players[1].IsReady)

	snap, err = c.UpdateReady("conn-a", false)
	require.NoError(t, err)
	assert.False(t, snap.Players[1].IsReady)

	// The host's readiness is definitional; a toggle is silently ignored.
	snap, err = c.UpdateReady("conn-h", false)
	require.NoError(t, err)
	assert.True(t, snap.Players[0].IsReady)

	_, err = c.UpdateReady("conn-z", true)
	assert.ErrorIs(t, err, ErrNotInLobby)
}

func TestUpdateTankClass(t *testing.T) {
	c, _ := newTestCoordinator(time.Minute)
	l, err := c.Create("conn-1", "alice", CreateOptions{})
	require.NoError(t, err)

	snap, err := c.UpdateTankClass("conn-1", "sniper")
	require.NoError(t, err)
	assert.Equal(t, "sniper", snap.Players[0].TankClass)

	_, err = c.UpdateTankClass("conn-1", "submarine")
	assert.ErrorIs(t, err, ErrInvalidTankClass)

	l.Mu.Lock()
	l.Status = StatusInProgress
	l.Mu.Unlock()
	_, err = c.UpdateTankClass("conn-1", "heavy")
	assert.ErrorIs(t, err, ErrGameInProgress)
}

func TestChangeConfigHostOnly(t *testing.T) {
	c, _ := newTestCoordinator(time.Minute)
	l, err := c.Create("conn-h", "hostplayer", CreateOptions{})
	require.NoError(t, err)
	code := l.Snapshot().Code
	_, err = c.Join(code, "conn-a", "alice")
	require.NoError(t, err)

	snap, err := c.ChangeGameMode("conn-h", "chaos")
	require.NoError(t, err)
	assert.Equal(t, "chaos", snap.GameMode)

	snap, err = c.ChangeMapType("conn-h", "urban")
	require.NoError(t, err)
	assert.Equal(t, "urban", snap.MapType)

	_, err = c.ChangeGameMode("conn-a", "deathmatch")
	assert.ErrorIs(t, err, ErrNotHost)

	_, err = c.ChangeMapType("conn-a", "sand")
	assert.ErrorIs(t, err, ErrNotHost)

	_, err = c.ChangeGameMode("conn-h", "bogus")
	assert.ErrorIs(t, err, ErrInvalidGameMode)
}

func TestDisconnectGraceRemoval(t *testing.T) {
	c, reg := newTestCoordinator(20 * time.Millisecond)
	l, err := c.Create("conn-h", "hostplayer", CreateOptions{})
	require.NoError(t, err)
	code := l.Snapshot().Code
	_, err = c.Join(code, "conn-a", "alice")
	require.NoError(t, err)

	removals := make(chan LeaveResult, 1)
	c.OnPlayerRemoved = func(res LeaveResult) { removals <- res }

	res := c.Disconnect("conn-a")
	require.True(t, res.Happened)
	assert.Equal(t, code, res.Code)
	assert.False(t, res.Player.Connected)
	assert.False(t, res.Snapshot.Players[1].Connected)

	select {
	case removed := <-removals:
		assert.Equal(t, "conn-a", removed.Removed.ConnectionID)
		assert.Equal(t, code, removed.Code)
		require.Len(t, removed.Snapshot.Players, 1)
	case <-time.After(time.Second):
		t.Fatal("grace reaper never fired")
	}

	_, err = reg.GetByConnection("conn-a")
	assert.ErrorIs(t, err, ErrNotInLobby)
}

func TestExplicitLeaveCancelsGraceReaper(t *testing.T) {
	c, _ := newTestCoordinator(20 * time.Millisecond)
	l, err := c.Create("conn-h", "hostplayer", CreateOptions{})
	require.NoError(t, err)
	code := l.Snapshot().Code
	_, err = c.Join(code, "conn-a", "alice")
	require.NoError(t, err)

	removals := make(chan LeaveResult, 1)
	c.OnPlayerRemoved = func(res LeaveResult) { removals <- res }

	require.True(t, c.Disconnect("conn-a").Happened)
	require.True(t, c.Leave("conn-a").Happened)

	select {
	case <-removals:
		t.Fatal("reaper fired after an explicit leave already removed the player")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDisconnectUnknownConnection(t *testing.T) {
	c, _ := newTestCoordinator(time.Minute)
	assert.False(t, c.Disconnect("conn-ghost").Happened)
}

func TestConcurrentHostLeaveAndJoin(t *testing.T) {
	c, reg := newTestCoordinator(time.Minute)

	// Hammer the race between the sole member leaving (which deletes the
	// lobby) and a fresh join. Either the join lands first and the lobby
	// survives with the joiner as a member, or the deletion wins and the
	// join fails cleanly with no dangling binding. A joiner holding a
	// successful result for a deleted lobby is the failure mode.
	for i := 0; i < 200; i++ {
		hostID := fmt.Sprintf("host-%d", i)
		joinerID := fmt.Sprintf("joiner-%d", i)

		l, err := c.Create(hostID, "hostplayer", CreateOptions{})
		require.NoError(t, err)
		code := l.Snapshot().Code

		var wg sync.WaitGroup
		var joinErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, joinErr = c.Join(code, joinerID, "joinplayer")
		}()
		go func() {
			defer wg.Done()
			c.Leave(hostID)
		}()
		wg.Wait()

		if joinErr == nil {
			got, err := reg.GetByConnection(joinerID)
			require.NoError(t, err, "successful join must leave the joiner in a live lobby")
			got.Mu.Lock()
			member := got.MemberUnsafe(joinerID)
			got.Mu.Unlock()
			require.NotNil(t, member)
			c.Leave(joinerID)
		} else {
			_, err := reg.GetByConnection(joinerID)
			assert.ErrorIs(t, err, ErrNotInLobby, "failed join must not leave a binding behind")
		}
		require.Equal(t, 0, reg.Len())
	}
}

func TestJoinResultIsDetachedFromLiveMember(t *testing.T) {
	c, _ := newTestCoordinator(time.Minute)
	l, err := c.Create("conn-h", "hostplayer", CreateOptions{})
	require.NoError(t, err)
	code := l.Snapshot().Code

	res, err := c.Join(code, "conn-a", "alice")
	require.NoError(t, err)

	// Mutations to the live member after the join (host transfer, damage)
	// must not show through the returned copy.
	l.Mu.Lock()
	p := l.MemberUnsafe("conn-a")
	p.IsHost = true
	p.HP = 1
	l.Mu.Unlock()

	assert.False(t, res.Player.IsHost)
	assert.NotEqual(t, 1, res.Player.HP)
}

func TestCreateRetriesOnDuplicateCode(t *testing.T) {
	c, reg := newTestCoordinator(time.Minute)

	// Fill a few codes; duplicates during Create must be retried, not fail.
	for i := 0; i < 20; i++ {
		_, err := c.Create(fmt.Sprintf("conn-%d", i), fmt.Sprintf("player_%d", i), CreateOptions{})
		require.NoError(t, err)
	}
	assert.Equal(t, 20, reg.Len())
}
