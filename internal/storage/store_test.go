package storage

import (
	"database/sql"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func openTestStore(t *testing.T) (*SampleStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "samples.db")
	store, err := Open(path, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, path
}

func TestSampleStore_AppendAndReadBack(t *testing.T) {
	store, _ := openTestStore(t)

	sample := EffSample{
		Time:       time.Now(),
		Efficiency: 1.42857,
		Rhythm:     80,
		Prompt:     "Increase cadence (+10) → target 90",
	}
	require.NoError(t, store.Append(sample))

	samples, err := store.All()
	require.NoError(t, err)
	require.Len(t, samples, 1)

	// Timestamps round-trip at nanosecond resolution
	assert.True(t, samples[0].Time.Equal(sample.Time))
	assert.Equal(t, sample.Efficiency, samples[0].Efficiency)
	assert.Equal(t, sample.Rhythm, samples[0].Rhythm)
	assert.Equal(t, sample.Prompt, samples[0].Prompt)
}

func TestSampleStore_InsertionOrder(t *testing.T) {
	store, _ := openTestStore(t)

	base := time.Now()
	// Append out of timestamp order; read-back order is append order
	times := []time.Time{base.Add(2 * time.Second), base, base.Add(1 * time.Second)}
	for i, ts := range times {
		require.NoError(t, store.Append(EffSample{
			Time:       ts,
			Efficiency: float64(i),
			Rhythm:     80 + i,
			Prompt:     "Cadence optimal (90)",
		}))
	}

	samples, err := store.All()
	require.NoError(t, err)
	require.Len(t, samples, 3)
	for i := range times {
		assert.True(t, samples[i].Time.Equal(times[i]), "sample %d out of order", i)
		assert.Equal(t, float64(i), samples[i].Efficiency)
	}
}

func TestSampleStore_DuplicatesPreserved(t *testing.T) {
	store, _ := openTestStore(t)

	sample := EffSample{Time: time.Now(), Efficiency: 1.5, Rhythm: 90, Prompt: "Cadence optimal (90)"}
	require.NoError(t, store.Append(sample))
	require.NoError(t, store.Append(sample))

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSampleStore_EmptyPromptAllowed(t *testing.T) {
	store, _ := openTestStore(t)

	require.NoError(t, store.Append(EffSample{Time: time.Now(), Efficiency: 0, Rhythm: 0}))

	samples, err := store.All()
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "", samples[0].Prompt)
}

func TestSampleStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.db")

	store, err := Open(path, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Append(EffSample{Time: time.Now(), Efficiency: 1.0, Rhythm: 85, Prompt: "Cadence optimal (90)"}))
	require.NoError(t, store.Close())

	store, err = Open(path, testLogger())
	require.NoError(t, err)
	defer store.Close()

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSampleStore_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "samples.db")

	store, err := Open(path, testLogger())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Append(EffSample{Time: time.Now(), Efficiency: 1.0, Rhythm: 80}))
}

// createLegacyDB builds a database in the original three-field layout,
// before the rhythm rename and the prompt column existed.
func createLegacyDB(t *testing.T, path string, rows []EffSample) {
	t.Helper()

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE eff_samples (
			timestamp INTEGER NOT NULL,
			efficiency REAL NOT NULL,
			cadence INTEGER NOT NULL
		)`)
	require.NoError(t, err)

	for _, row := range rows {
		_, err = db.Exec(
			"INSERT INTO eff_samples (timestamp, efficiency, cadence) VALUES (?, ?, ?)",
			row.Time.UnixNano(), row.Efficiency, row.Rhythm,
		)
		require.NoError(t, err)
	}
}

func TestSampleStore_MigratesLegacySchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.db")

	base := time.Unix(0, 1700000000000000000)
	legacy := []EffSample{
		{Time: base, Efficiency: 1.1, Rhythm: 78},
		{Time: base.Add(5 * time.Second), Efficiency: 1.2, Rhythm: 82},
	}
	createLegacyDB(t, path, legacy)

	store, err := Open(path, testLogger())
	require.NoError(t, err)
	defer store.Close()

	// Historical rows survive the migration, with an empty prompt
	samples, err := store.All()
	require.NoError(t, err)
	require.Len(t, samples, 2)
	for i, s := range samples {
		assert.True(t, s.Time.Equal(legacy[i].Time))
		assert.Equal(t, legacy[i].Efficiency, s.Efficiency)
		assert.Equal(t, legacy[i].Rhythm, s.Rhythm)
		assert.Equal(t, "", s.Prompt)
	}

	// New rows mix into the same table
	require.NoError(t, store.Append(EffSample{
		Time:       base.Add(10 * time.Second),
		Efficiency: 1.3,
		Rhythm:     85,
		Prompt:     "Cadence optimal (90)",
	}))

	samples, err = store.All()
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, "Cadence optimal (90)", samples[2].Prompt)
}

func TestSampleStore_MigrationRunsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.db")
	createLegacyDB(t, path, []EffSample{{Time: time.Now(), Efficiency: 1.0, Rhythm: 80}})

	store, err := Open(path, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Second open sees the current schema version and leaves the data alone
	store, err = Open(path, testLogger())
	require.NoError(t, err)
	defer store.Close()

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSampleStore_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.db")

	store, err := Open(path, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO schema_versions (version, applied_at) VALUES (?, datetime('now'))",
		SchemaVersion+1)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(path, testLogger())
	require.Error(t, err)
}
