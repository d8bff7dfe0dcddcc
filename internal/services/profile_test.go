package services

import (
	"fmt"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/techniquebook/internal/models"
)

// buildForest adds roots*perRoot techniques in each mode; every other nogi name
// matches a gi name so the combined view has merged and single-mode records.
func buildForest(tb testing.TB, f *fixture, roots, perRoot int) {
	tb.Helper()
	for r := 0; r < roots; r++ {
		gi, err := f.svc.Add(fmt.Sprintf("Position %d", r), nil, models.ModeGi)
		require.NoError(tb, err)
		nogi, err := f.svc.Add(fmt.Sprintf("position %d", r), nil, models.ModeNoGi)
		require.NoError(tb, err)
		for c := 0; c < perRoot; c++ {
			_, err := f.svc.Add(fmt.Sprintf("Technique %d-%d", r, c), gi.ID.Ptr(), models.ModeGi)
			require.NoError(tb, err)
			name := fmt.Sprintf("Technique %d-%d", r, c)
			if c%2 == 1 {
				name = fmt.Sprintf("Nogi only %d-%d", r, c)
			}
			_, err = f.svc.Add(name, nogi.ID.Ptr(), models.ModeNoGi)
			require.NoError(tb, err)
		}
	}
}

// getMemoryStats returns current memory statistics
func getMemoryStats() runtime.MemStats {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats
}

// formatBytes formats bytes to human-readable string
func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

// TestMemoryCombinedRebuild checks that rebuilding the combined view on every read
// does not retain memory between calls.
func TestMemoryCombinedRebuild(t *testing.T) {
	if testing.Short() {
		t.Skip("memory profile skipped in short mode")
	}
	f := newFixture(t)
	buildForest(t, f, 10, 20)

	runtime.GC()
	initial := getMemoryStats()

	const iterations = 200
	for i := 0; i < iterations; i++ {
		all, err := f.svc.Combined()
		require.NoError(t, err)
		require.NotEmpty(t, all)
	}

	runtime.GC()
	final := getMemoryStats()

	t.Logf("Alloc before: %s, after: %s, total allocated: %s",
		formatBytes(initial.Alloc), formatBytes(final.Alloc),
		formatBytes(final.TotalAlloc-initial.TotalAlloc))

	if final.Alloc > initial.Alloc && final.Alloc-initial.Alloc > 10*1024*1024 {
		t.Errorf("possible leak: heap grew by %s over %d rebuilds",
			formatBytes(final.Alloc-initial.Alloc), iterations)
	}
}

func BenchmarkReconcile(b *testing.B) {
	f := newFixture(b)
	buildForest(b, f, 20, 25)
	gi, err := f.repo.ListByMode(models.ModeGi)
	require.NoError(b, err)
	nogi, err := f.repo.ListByMode(models.ModeNoGi)
	require.NoError(b, err)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Reconcile(gi, nogi)
	}
}

func BenchmarkCombinedRoots(b *testing.B) {
	f := newFixture(b)
	buildForest(b, f, 20, 25)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := f.svc.CombinedRoots(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSearchCombined(b *testing.B) {
	f := newFixture(b)
	buildForest(b, f, 20, 25)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := f.svc.Search("technique 1", models.ViewCombined); err != nil {
			b.Fatal(err)
		}
	}
}
