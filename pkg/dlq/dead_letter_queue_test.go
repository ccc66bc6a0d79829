package dlq

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDLQ_AddEntry_Success(t *testing.T) {
	tempDir := filepath.Join(os.TempDir(), "dlq_test_add_success")
	require.NoError(t, os.MkdirAll(tempDir, 0755))
	defer os.RemoveAll(tempDir)

	config := Config{
		Enabled:       true,
		Directory:     tempDir,
		MaxFileSize:   1024,
		MaxFiles:      5,
		RetentionDays: 7,
		JSONFormat:    true,
		FlushInterval: 100 * time.Millisecond,
		QueueSize:     100,
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	dlq := NewDeadLetterQueue(config, logger)
	require.NotNil(t, dlq)

	require.NoError(t, dlq.Start())
	defer dlq.Stop()

	entry := SideWrite{
		Operation:   "unclassified_endpoint",
		FirewallKey: "fw-01",
		Summary:     "upsert unclassified endpoint after retries exhausted",
	}

	err := dlq.AddEntry(entry, "write failed after max attempts", "writer_retry_exhausted", "store.upsertEndpointTx", 1,
		map[string]string{"retry_count": "1"})
	require.NoError(t, err, "should successfully add entry to DLQ")

	time.Sleep(200 * time.Millisecond)

	stats := dlq.GetStats()
	assert.Equal(t, int64(1), stats.TotalEntries, "should have 1 total entry")
	assert.Equal(t, int64(1), stats.EntriesWritten, "should have 1 entry written")

	files, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Greater(t, len(files), 0, "should have created a DLQ file")
}

func TestDLQ_AddEntry_Concurrent(t *testing.T) {
	tempDir := filepath.Join(os.TempDir(), "dlq_test_concurrent_add")
	require.NoError(t, os.MkdirAll(tempDir, 0755))
	defer os.RemoveAll(tempDir)

	config := Config{
		Enabled:       true,
		Directory:     tempDir,
		MaxFileSize:   10240,
		MaxFiles:      5,
		RetentionDays: 7,
		JSONFormat:    true,
		FlushInterval: 50 * time.Millisecond,
		QueueSize:     1000,
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	dlq := NewDeadLetterQueue(config, logger)
	require.NoError(t, dlq.Start())
	defer dlq.Stop()

	var wg sync.WaitGroup
	numGoroutines := 100
	entriesPerGoroutine := 5

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < entriesPerGoroutine; j++ {
				entry := SideWrite{
					Operation:   "device_identification",
					FirewallKey: fmt.Sprintf("fw-%d", id),
					Summary:     fmt.Sprintf("concurrent entry %d-%d", id, j),
				}
				if err := dlq.AddEntry(entry, "concurrent test error", "concurrent_test", "test_sink", 0, nil); err != nil {
					t.Logf("entry %d-%d failed to add (queue full): %v", id, j, err)
				}
			}
		}(i)
	}
	wg.Wait()

	time.Sleep(500 * time.Millisecond)

	stats := dlq.GetStats()
	assert.Greater(t, stats.TotalEntries, int64(0), "should have processed entries")
	t.Logf("processed %d entries concurrently", stats.TotalEntries)
}

func TestDLQ_FileRotation_Basic(t *testing.T) {
	tempDir := filepath.Join(os.TempDir(), "dlq_test_file_rotation")
	require.NoError(t, os.MkdirAll(tempDir, 0755))
	defer os.RemoveAll(tempDir)

	config := Config{
		Enabled:       true,
		Directory:     tempDir,
		MaxFileSize:   1, // 1MB, small for testing
		MaxFiles:      5,
		RetentionDays: 7,
		JSONFormat:    true,
		FlushInterval: 50 * time.Millisecond,
		QueueSize:     100,
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	dlq := NewDeadLetterQueue(config, logger)
	require.NoError(t, dlq.Start())
	defer dlq.Stop()

	for i := 0; i < 50; i++ {
		entry := SideWrite{
			Operation:   "firewall_inventory",
			FirewallKey: fmt.Sprintf("fw-%d", i),
			Summary:     fmt.Sprintf("large payload to force rotation %d - %s", i, strings.Repeat("x", 30000)),
		}
		require.NoError(t, dlq.AddEntry(entry, "rotation test error", "rotation_test", "test_sink", 0, nil))
	}

	time.Sleep(time.Second)

	files, err := filepath.Glob(filepath.Join(tempDir, "dlq_*.log"))
	require.NoError(t, err)
	assert.Greater(t, len(files), 1, "should have created multiple files due to rotation")

	stats := dlq.GetStats()
	t.Logf("created %d files, total entries: %d", stats.FilesCreated, stats.TotalEntries)
}

func TestDLQ_Cleanup_OldFiles(t *testing.T) {
	tempDir := filepath.Join(os.TempDir(), "dlq_test_cleanup_old")
	require.NoError(t, os.MkdirAll(tempDir, 0755))
	defer os.RemoveAll(tempDir)

	oldFile1 := filepath.Join(tempDir, "dlq_20200101_120000.log")
	oldFile2 := filepath.Join(tempDir, "dlq_20200102_120000.log")

	require.NoError(t, os.WriteFile(oldFile1, []byte("old content 1"), 0644))
	require.NoError(t, os.WriteFile(oldFile2, []byte("old content 2"), 0644))

	oldTime := time.Now().AddDate(0, 0, -10)
	require.NoError(t, os.Chtimes(oldFile1, oldTime, oldTime))
	require.NoError(t, os.Chtimes(oldFile2, oldTime, oldTime))

	config := Config{
		Enabled:       true,
		Directory:     tempDir,
		MaxFileSize:   10,
		MaxFiles:      5,
		RetentionDays: 7,
		JSONFormat:    true,
		FlushInterval: 100 * time.Millisecond,
		QueueSize:     10,
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	dlq := NewDeadLetterQueue(config, logger)
	require.NoError(t, dlq.Start())

	time.Sleep(200 * time.Millisecond)
	dlq.cleanupOldFiles()
	require.NoError(t, dlq.Stop())

	_, err := os.Stat(oldFile1)
	assert.True(t, os.IsNotExist(err), "old file 1 should be removed")

	_, err = os.Stat(oldFile2)
	assert.True(t, os.IsNotExist(err), "old file 2 should be removed")
}

func TestDLQ_Reprocess_Success(t *testing.T) {
	tempDir := filepath.Join(os.TempDir(), "dlq_test_reprocess")
	require.NoError(t, os.MkdirAll(tempDir, 0755))
	defer os.RemoveAll(tempDir)

	config := Config{
		Enabled:       true,
		Directory:     tempDir,
		MaxFileSize:   10,
		MaxFiles:      5,
		RetentionDays: 7,
		JSONFormat:    true,
		FlushInterval: 100 * time.Millisecond,
		QueueSize:     100,
		ReprocessingConfig: ReprocessingConfig{
			Enabled:      true,
			Interval:     time.Second,
			MaxRetries:   3,
			InitialDelay: 100 * time.Millisecond,
			MinEntryAge:  100 * time.Millisecond,
		},
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	dlq := NewDeadLetterQueue(config, logger)

	reprocessedCount := 0
	var reprocessMutex sync.Mutex

	dlq.SetReprocessCallback(func(entry SideWrite, originalSink string) error {
		reprocessMutex.Lock()
		reprocessedCount++
		reprocessMutex.Unlock()
		return nil
	})

	require.NoError(t, dlq.Start())
	defer dlq.Stop()

	for i := 0; i < 5; i++ {
		entry := SideWrite{
			Operation:   "unclassified_endpoint",
			FirewallKey: fmt.Sprintf("fw-%d", i),
			Summary:     fmt.Sprintf("reprocess test %d", i),
		}
		require.NoError(t, dlq.AddEntry(entry, "reprocess test error", "reprocess_test", "test_sink", 0, nil))
	}

	time.Sleep(300 * time.Millisecond)
	time.Sleep(2 * time.Second)

	stats := dlq.GetStats()
	t.Logf("reprocessing stats: attempts=%d, successes=%d, failures=%d",
		stats.ReprocessingAttempts, stats.ReprocessingSuccesses, stats.ReprocessingFailures)

	assert.Greater(t, stats.ReprocessingAttempts, int64(0), "should have reprocessing attempts")
}

func TestDLQ_Disabled(t *testing.T) {
	config := Config{Enabled: false}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	dlq := NewDeadLetterQueue(config, logger)
	require.NotNil(t, dlq)

	entry := SideWrite{Operation: "device_identification", Summary: "test"}

	err := dlq.AddEntry(entry, "test error", "test_type", "test_sink", 1, nil)
	assert.NoError(t, err, "should handle disabled state gracefully")

	require.NoError(t, dlq.Start())
	time.Sleep(100 * time.Millisecond)
	dlq.Stop()

	stats := dlq.GetStats()
	assert.Equal(t, int64(0), stats.TotalEntries, "no entries when disabled")
}

func TestDLQ_QueueFull(t *testing.T) {
	tempDir := filepath.Join(os.TempDir(), "dlq_test_queue_full")
	require.NoError(t, os.MkdirAll(tempDir, 0755))
	defer os.RemoveAll(tempDir)

	config := Config{
		Enabled:       true,
		Directory:     tempDir,
		MaxFileSize:   1024,
		MaxFiles:      5,
		RetentionDays: 7,
		JSONFormat:    true,
		FlushInterval: 5 * time.Second, // slow flush, to exercise overflow
		QueueSize:     3,               // small queue
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	dlq := NewDeadLetterQueue(config, logger)
	require.NoError(t, dlq.Start())
	defer dlq.Stop()

	successCount := 0
	failCount := 0

	for i := 0; i < 10; i++ {
		entry := SideWrite{
			Operation: "firewall_inventory",
			Summary:   fmt.Sprintf("queue overflow test %d", i),
		}
		if err := dlq.AddEntry(entry, "overflow test", "overflow_test", "test_sink", 1, nil); err == nil {
			successCount++
		} else {
			failCount++
		}
	}

	t.Logf("success: %d, failed: %d", successCount, failCount)
	assert.Greater(t, successCount, 0, "some entries should be accepted")
}
