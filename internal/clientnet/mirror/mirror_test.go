package mirror_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gmp-go/core/internal/clientnet/mirror"
	"github.com/gmp-go/core/internal/wire"
)

type recordingSink struct {
	spawned       []wire.PlayerId
	despawned     []wire.PlayerId
	snapped       map[wire.PlayerId]wire.Vec3
	interpolated  map[wire.PlayerId]wire.Vec3
	health        map[wire.PlayerId]int16
	deaths        []wire.PlayerId
	visibleBodies map[wire.PlayerId]bool
	itemSlots     map[wire.PlayerId]map[string]uint16
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		snapped:       make(map[wire.PlayerId]wire.Vec3),
		interpolated:  make(map[wire.PlayerId]wire.Vec3),
		health:        make(map[wire.PlayerId]int16),
		visibleBodies: make(map[wire.PlayerId]bool),
		itemSlots:     make(map[wire.PlayerId]map[string]uint16),
	}
}

func (s *recordingSink) SpawnEntity(p *mirror.RemotePlayer)  { s.spawned = append(s.spawned, p.ID) }
func (s *recordingSink) DespawnEntity(id wire.PlayerId)      { s.despawned = append(s.despawned, id) }
func (s *recordingSink) SnapPosition(id wire.PlayerId, pos wire.Vec3) { s.snapped[id] = pos }
func (s *recordingSink) InterpolateToPosition(id wire.PlayerId, pos wire.Vec3) {
	s.interpolated[id] = pos
}
func (s *recordingSink) SetOrientation(id wire.PlayerId, o mirror.Orientation) {}
func (s *recordingSink) SetItemInstance(id wire.PlayerId, slot string, instance uint16) {
	if s.itemSlots[id] == nil {
		s.itemSlots[id] = make(map[string]uint16)
	}
	s.itemSlots[id][slot] = instance
}
func (s *recordingSink) SetHealth(id wire.PlayerId, hp int16)       { s.health[id] = hp }
func (s *recordingSink) PlayDeathTransition(id wire.PlayerId)       { s.deaths = append(s.deaths, id) }
func (s *recordingSink) SetVisibleBody(id wire.PlayerId, visible bool) { s.visibleBodies[id] = visible }

func TestJoinGameSpawnsEntityAtInitialPosition(t *testing.T) {
	sink := newRecordingSink()
	m := mirror.New(sink)

	m.ApplyJoinGame(1, "TestUser2", 0, 0, 0, 0, 0, wire.Vec3{X: 1, Y: 2, Z: 3})

	require.Equal(t, []wire.PlayerId{1}, sink.spawned)
	require.Equal(t, wire.Vec3{X: 1, Y: 2, Z: 3}, sink.snapped[1])
	require.Equal(t, 1, m.Count())
}

func TestStateUpdateWithinTightRadiusLeftToAnimate(t *testing.T) {
	sink := newRecordingSink()
	m := mirror.New(sink)
	m.ApplyJoinGame(1, "p", 0, 0, 0, 0, 0, wire.Vec3{})

	m.ApplyStateUpdate(1, wire.PlayerState{Position: wire.Vec3{X: 40}}, false)
	_, interpolated := sink.interpolated[1]
	require.False(t, interpolated)
	require.NotEqual(t, wire.Vec3{X: 40}, sink.snapped[1])
}

func TestStateUpdateBeyondSnapDistanceTeleports(t *testing.T) {
	sink := newRecordingSink()
	m := mirror.New(sink)
	m.ApplyJoinGame(1, "p", 0, 0, 0, 0, 0, wire.Vec3{})

	m.ApplyStateUpdate(1, wire.PlayerState{Position: wire.Vec3{X: 401}}, false)
	require.Equal(t, wire.Vec3{X: 401}, sink.snapped[1])
}

func TestSetInterpolationThresholdsOverridesSnapDistance(t *testing.T) {
	sink := newRecordingSink()
	m := mirror.New(sink)
	m.SetInterpolationThresholds(100, 10)
	m.ApplyJoinGame(1, "p", 0, 0, 0, 0, 0, wire.Vec3{})

	m.ApplyStateUpdate(1, wire.PlayerState{Position: wire.Vec3{X: 150}}, false)
	require.Equal(t, wire.Vec3{X: 150}, sink.snapped[1], "custom 100-unit snap threshold should fire below the 400-unit default")
}

func TestSetInterpolationThresholdsIgnoresNonPositiveValues(t *testing.T) {
	sink := newRecordingSink()
	m := mirror.New(sink)
	m.SetInterpolationThresholds(-1, 0)
	m.ApplyJoinGame(1, "p", 0, 0, 0, 0, 0, wire.Vec3{})

	m.ApplyStateUpdate(1, wire.PlayerState{Position: wire.Vec3{X: 100}}, false)
	require.Equal(t, wire.Vec3{X: 100}, sink.interpolated[1], "default thresholds should still apply")
}

func TestStateUpdateInMidRangeInterpolatesUnlessFighting(t *testing.T) {
	sink := newRecordingSink()
	m := mirror.New(sink)
	m.ApplyJoinGame(1, "p", 0, 0, 0, 0, 0, wire.Vec3{})

	m.ApplyStateUpdate(1, wire.PlayerState{Position: wire.Vec3{X: 100}}, false)
	require.Equal(t, wire.Vec3{X: 100}, sink.interpolated[1])

	sink2 := newRecordingSink()
	m2 := mirror.New(sink2)
	m2.ApplyJoinGame(1, "p", 0, 0, 0, 0, 0, wire.Vec3{})
	m2.ApplyStateUpdate(1, wire.PlayerState{Position: wire.Vec3{X: 100}}, true)
	require.Equal(t, wire.Vec3{X: 100}, sink2.snapped[1])
	_, interpolated := sink2.interpolated[1]
	require.False(t, interpolated)
}

func TestHealthDiffSmallerThanGateIsSuppressedUntilFiveConsistentPackets(t *testing.T) {
	sink := newRecordingSink()
	m := mirror.New(sink)
	m.ApplyJoinGame(1, "p", 0, 0, 0, 0, 0, wire.Vec3{})

	for i := 0; i < 4; i++ {
		m.ApplyStateUpdate(1, wire.PlayerState{HealthPoints: 50}, false)
		_, reported := sink.health[1]
		require.False(t, reported)
	}
	m.ApplyStateUpdate(1, wire.PlayerState{HealthPoints: 50}, false)
	require.Equal(t, int16(50), sink.health[1])
}

func TestZeroHealthAfterPositiveHealthTriggersDeathImmediately(t *testing.T) {
	sink := newRecordingSink()
	m := mirror.New(sink)
	m.ApplyJoinGame(1, "p", 0, 0, 0, 0, 0, wire.Vec3{})
	for i := 0; i < 5; i++ {
		m.ApplyStateUpdate(1, wire.PlayerState{HealthPoints: 10}, false)
	}

	m.ApplyStateUpdate(1, wire.PlayerState{HealthPoints: 0}, false)

	require.Equal(t, []wire.PlayerId{1}, sink.deaths)
	require.Equal(t, int16(0), sink.health[1])
}

func TestItemInstanceDiffReportsChangedSlotsOnly(t *testing.T) {
	sink := newRecordingSink()
	m := mirror.New(sink)
	m.ApplyJoinGame(1, "p", 0, 0, 0, 0, 0, wire.Vec3{})

	m.ApplyStateUpdate(1, wire.PlayerState{RightHand: 7}, false)
	require.Equal(t, uint16(7), sink.itemSlots[1]["right"])
	_, leftSet := sink.itemSlots[1]["left"]
	require.False(t, leftSet)
}

func TestPositionUpdateTeleportsAndHidesBody(t *testing.T) {
	sink := newRecordingSink()
	m := mirror.New(sink)
	m.ApplyJoinGame(1, "p", 0, 0, 0, 0, 0, wire.Vec3{})

	m.ApplyPositionUpdate(1, wire.Vec3{X: 5001})

	require.Equal(t, wire.Vec3{X: 5001}, sink.snapped[1])
	require.False(t, sink.visibleBodies[1])
}

func TestLeftGameRemovesEntity(t *testing.T) {
	sink := newRecordingSink()
	m := mirror.New(sink)
	m.ApplyJoinGame(1, "p", 0, 0, 0, 0, 0, wire.Vec3{})

	m.ApplyLeftGame(1)

	require.Equal(t, []wire.PlayerId{1}, sink.despawned)
	require.Equal(t, 0, m.Count())
}
