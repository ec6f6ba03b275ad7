package hold

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/windi-project/windi-core/pkg/token"
)

func sovereignActor() *token.VirtueToken {
	return &token.VirtueToken{Sub: "operator-a", SLevel: token.SLevelStrategic, KillSwitchAuthority: true}
}

func powerlessActor() *token.VirtueToken {
	return &token.VirtueToken{Sub: "operator-b", SLevel: token.SLevelTactical, KillSwitchAuthority: false}
}

func TestActivate_HappyPath(t *testing.T) {
	r := NewRegistry(nil)
	h, err := r.Activate(context.Background(), sovereignActor(), "domain-1", "incident", time.Hour)
	require.NoError(t, err)
	require.Equal(t, StatusActive, h.Status)
	require.True(t, r.IsHeld("domain-1"))
}

func TestActivate_RejectsUnauthorizedActor(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Activate(context.Background(), powerlessActor(), "domain-1", "incident", time.Hour)
	require.Error(t, err)
	require.Contains(t, err.Error(), "HOLD:UNAUTHORIZED")
}

func TestActivate_RejectsDurationOverCap(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Activate(context.Background(), sovereignActor(), "domain-1", "incident", 73*time.Hour)
	require.Error(t, err)
	require.Contains(t, err.Error(), "HOLD:DURATION_EXCEEDED")
}

func TestRelease_ByDifferentActor(t *testing.T) {
	r := NewRegistry(nil)
	h, err := r.Activate(context.Background(), sovereignActor(), "domain-1", "incident", time.Hour)
	require.NoError(t, err)

	otherActor := &token.VirtueToken{Sub: "operator-c", SLevel: token.SLevelSovereign, KillSwitchAuthority: true}
	released, err := r.Release(context.Background(), otherActor, h.ID, "resolved")
	require.NoError(t, err)
	require.Equal(t, StatusReleased, released.Status)
	require.False(t, r.IsHeld("domain-1"))
}

func TestRelease_NotFound(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Release(context.Background(), sovereignActor(), "missing-id", "resolved")
	require.Error(t, err)
	require.Contains(t, err.Error(), "HOLD:NO_ACTIVE_HOLDS")
}

func TestRelease_RejectsUnauthorizedActor(t *testing.T) {
	r := NewRegistry(nil)
	h, err := r.Activate(context.Background(), sovereignActor(), "domain-1", "incident", time.Hour)
	require.NoError(t, err)

	_, err = r.Release(context.Background(), powerlessActor(), h.ID, "resolved")
	require.Error(t, err)
	require.Contains(t, err.Error(), "HOLD:RELEASE_UNAUTHORIZED")
}

func TestRelease_AlreadyReleased(t *testing.T) {
	r := NewRegistry(nil)
	h, err := r.Activate(context.Background(), sovereignActor(), "domain-1", "incident", time.Hour)
	require.NoError(t, err)

	_, err = r.Release(context.Background(), sovereignActor(), h.ID, "resolved")
	require.NoError(t, err)

	_, err = r.Release(context.Background(), sovereignActor(), h.ID, "resolved again")
	require.Error(t, err)
	require.Contains(t, err.Error(), "HOLD:ALREADY_RELEASED")
}

func TestTrail_RecordsActivateAndRelease(t *testing.T) {
	r := NewRegistry(nil)
	h, err := r.Activate(context.Background(), sovereignActor(), "domain-1", "incident", time.Hour)
	require.NoError(t, err)
	_, err = r.Release(context.Background(), sovereignActor(), h.ID, "resolved")
	require.NoError(t, err)

	trail := r.Trail(h.ID)
	require.Len(t, trail, 2)
	require.Equal(t, "ACTIVATE", trail[0].Action)
	require.Equal(t, "RELEASE", trail[1].Action)
	require.Equal(t, trail[0].CurrentHash, trail[1].PreviousHash)
}
