package status

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/update-manager/internal/config"
	domain "github.com/oshokin/update-manager/internal/domain/update"
)

// TestFileRepository_NotFound verifies Load returns ErrNotFound for a missing file.
func TestFileRepository_NotFound(t *testing.T) {
	t.Parallel()

	repo := NewFileRepository(filepath.Join(t.TempDir(), "missing.json"))

	record, err := repo.Load(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
	require.Nil(t, record)
}

// TestFileRepository_SaveLoad_Roundtrip ensures Save followed by Load returns an equal record.
func TestFileRepository_SaveLoad_Roundtrip(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "update.json")
	repo := NewFileRepository(file)

	startedAt := time.Now().UTC().Truncate(time.Second)
	completedAt := startedAt.Add(time.Minute)
	want := &domain.Record{
		Status:      domain.StatusComplete,
		Message:     "Update successful",
		StartedAt:   &startedAt,
		CompletedAt: &completedAt,
	}

	require.NoError(t, repo.Save(context.Background(), want))

	got, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, want.Status, got.Status)
	require.Equal(t, want.Message, got.Message)
	require.Equal(t, want.StartedAt.Unix(), got.StartedAt.Unix())
	require.Equal(t, want.CompletedAt.Unix(), got.CompletedAt.Unix())
	require.Nil(t, got.Lease)
}

// TestFileRepository_Save_CreatesParentDirectory checks that Save creates missing directories.
func TestFileRepository_Save_CreatesParentDirectory(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "nested", "deeper", "update.json")
	repo := NewFileRepository(file)

	require.NoError(t, repo.Save(context.Background(), domain.Idle()))

	_, err := os.Stat(file)
	require.NoError(t, err)
}

// TestFileRepository_Save_ReplacesWholeRecord verifies a later Save fully replaces the prior record.
func TestFileRepository_Save_ReplacesWholeRecord(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "update.json")
	repo := NewFileRepository(file)

	startedAt := time.Now().UTC()
	require.NoError(t, repo.Save(context.Background(), &domain.Record{
		Status:    domain.StatusPulling,
		StartedAt: &startedAt,
		Lease:     &domain.Lease{PID: os.Getpid(), RenewedAt: startedAt},
	}))

	require.NoError(t, repo.Save(context.Background(), domain.Idle()))

	got, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.StatusIdle, got.Status)
	require.Nil(t, got.StartedAt)
	require.Nil(t, got.CompletedAt)
	require.Nil(t, got.Lease)
}

// TestFileRepository_Load_CorruptFile verifies decode failures surface as errors
// for the orchestrator to absorb into the idle default.
func TestFileRepository_Load_CorruptFile(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "update.json")
	require.NoError(t, os.WriteFile(file, []byte("{not json"), config.DefaultFilePermissions))

	repo := NewFileRepository(file)

	record, err := repo.Load(context.Background())
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)
	require.Nil(t, record)
}

// TestFileRepository_Save_LeavesNoTempFiles ensures the atomic replace cleans up after itself.
func TestFileRepository_Save_LeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo := NewFileRepository(filepath.Join(dir, "update.json"))

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Save(context.Background(), domain.Idle()))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "update.json", entries[0].Name())
}
