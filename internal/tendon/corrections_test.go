package tendon

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCorrectionStoreOverride(t *testing.T) {
	traj := Trajectory{{X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}}
	original := traj.Clone()

	store := NewCorrectionStore()
	store.Set(1, SiteDistal, 20, 20)

	got := store.Effective(SiteDistal, traj)
	want := Trajectory{{X: 1, Y: 1}, {X: 20, Y: 20}, {X: 3, Y: 3}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("effective trajectory mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(original, traj); diff != "" {
		t.Errorf("input trajectory was mutated (-want +got):\n%s", diff)
	}
}

func TestCorrectionStoreSiteIsolation(t *testing.T) {
	traj := Trajectory{{X: 1, Y: 1}, {X: 2, Y: 2}}

	store := NewCorrectionStore()
	store.Set(0, SiteProximal, 99, 99)

	got := store.Effective(SiteDistal, traj)
	if diff := cmp.Diff(traj, got); diff != "" {
		t.Errorf("proximal override leaked into distal view (-want +got):\n%s", diff)
	}
}

func TestCorrectionStoreOutOfRangeIgnored(t *testing.T) {
	traj := Trajectory{{X: 1, Y: 1}}

	store := NewCorrectionStore()
	store.Set(5, SiteDistal, 99, 99)
	store.Set(-1, SiteDistal, 99, 99)

	got := store.Effective(SiteDistal, traj)
	if diff := cmp.Diff(traj, got); diff != "" {
		t.Errorf("out-of-range override applied (-want +got):\n%s", diff)
	}
}

func TestCorrectionStoreLastWriteWins(t *testing.T) {
	traj := Trajectory{{X: 1, Y: 1}, {X: 2, Y: 2}}

	store := NewCorrectionStore()
	store.SetAll([]Correction{
		{FrameIndex: 1, Site: SiteDistal, X: 10, Y: 10},
		{FrameIndex: 1, Site: SiteDistal, X: 30, Y: 30},
	})

	got := store.Effective(SiteDistal, traj)
	if got[1].X != 30 || got[1].Y != 30 {
		t.Errorf("expected the later write to win, got (%v, %v)", got[1].X, got[1].Y)
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 stored override, got %d", store.Len())
	}
}

func TestCorrectionStoreReset(t *testing.T) {
	traj := Trajectory{{X: 1, Y: 1}, {X: 2, Y: 2}}

	store := NewCorrectionStore()
	store.Set(0, SiteDistal, 50, 50)
	store.Set(1, SiteProximal, 60, 60)
	store.Reset()

	if store.Len() != 0 {
		t.Fatalf("expected empty store after reset, got %d overrides", store.Len())
	}
	for _, site := range Sites {
		got := store.Effective(site, traj)
		if diff := cmp.Diff(traj, got); diff != "" {
			t.Errorf("%s: effective differs from raw after reset (-want +got):\n%s", site, diff)
		}
	}
}

func TestCorrectionStoreSnapshot(t *testing.T) {
	store := NewCorrectionStore()
	store.Set(2, SiteDistal, 7, 8)

	snap := store.Corrections()
	if len(snap) != 1 {
		t.Fatalf("expected 1 correction, got %d", len(snap))
	}
	want := Correction{FrameIndex: 2, Site: SiteDistal, X: 7, Y: 8}
	if diff := cmp.Diff(want, snap[0]); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}
