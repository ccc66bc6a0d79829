package cleanup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskSpaceManager_NewDiskSpaceManager(t *testing.T) {
	config := Config{
		CheckInterval: 30 * time.Second,
		Directories: []DirectoryConfig{
			{
				Path:          "/tmp/test",
				MaxSizeMB:     100,
				MaxFiles:      10,
				RetentionDays: 7,
				FilePatterns:  []string{"*.log"},
			},
		},
	}

	logger := logrus.New()
	manager := NewDiskSpaceManager(config, logger)

	assert.NotNil(t, manager)
	assert.Equal(t, config, manager.config)
	assert.Equal(t, logger, manager.logger)
}

func TestDiskSpaceManager_CleanupByAge(t *testing.T) {
	testDir := filepath.Join(os.TempDir(), "disk_manager_test_age")
	require.NoError(t, os.MkdirAll(testDir, 0755))
	defer os.RemoveAll(testDir)

	oldFile := filepath.Join(testDir, "old.log")
	newFile := filepath.Join(testDir, "new.log")

	f1, err := os.Create(oldFile)
	require.NoError(t, err)
	f1.Close()

	oldTime := time.Now().Add(-10 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(oldFile, oldTime, oldTime))

	f2, err := os.Create(newFile)
	require.NoError(t, err)
	f2.Close()

	config := Config{
		CheckInterval: time.Second,
		Directories: []DirectoryConfig{
			{
				Path:          testDir,
				RetentionDays: 7,
				FilePatterns:  []string{"*.log"},
			},
		},
	}

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	manager := NewDiskSpaceManager(config, logger)
	require.NoError(t, manager.cleanupByAge(config.Directories[0]))

	_, err = os.Stat(oldFile)
	assert.True(t, os.IsNotExist(err), "old file should be deleted")

	_, err = os.Stat(newFile)
	assert.NoError(t, err, "new file should still exist")
}

func TestDiskSpaceManager_CleanupByCount(t *testing.T) {
	testDir := filepath.Join(os.TempDir(), "disk_manager_test_count")
	require.NoError(t, os.MkdirAll(testDir, 0755))
	defer os.RemoveAll(testDir)

	files := []string{"file1.log", "file2.log", "file3.log", "file4.log", "file5.log"}
	for i, filename := range files {
		filePath := filepath.Join(testDir, filename)
		f, err := os.Create(filePath)
		require.NoError(t, err)
		f.Close()

		modTime := time.Now().Add(-time.Duration(i) * time.Hour)
		require.NoError(t, os.Chtimes(filePath, modTime, modTime))
	}

	config := Config{
		CheckInterval: time.Second,
		Directories: []DirectoryConfig{
			{
				Path:         testDir,
				MaxFiles:     3,
				FilePatterns: []string{"*.log"},
			},
		},
	}

	logger := logrus.New()
	manager := NewDiskSpaceManager(config, logger)
	require.NoError(t, manager.cleanupByCount(config.Directories[0]))

	entries, err := os.ReadDir(testDir)
	require.NoError(t, err)

	logFiles := 0
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".log" {
			logFiles++
		}
	}
	assert.Equal(t, 3, logFiles, "should keep exactly 3 files")
}

func TestDiskSpaceManager_CleanupBySize(t *testing.T) {
	testDir := filepath.Join(os.TempDir(), "disk_manager_test_size")
	require.NoError(t, os.MkdirAll(testDir, 0755))
	defer os.RemoveAll(testDir)

	files := []string{"file1.log", "file2.log", "file3.log"}
	for i, filename := range files {
		filePath := filepath.Join(testDir, filename)
		f, err := os.Create(filePath)
		require.NoError(t, err)

		data := make([]byte, 1024)
		for j := range data {
			data[j] = byte('A' + i)
		}
		_, err = f.Write(data)
		require.NoError(t, err)
		f.Close()

		modTime := time.Now().Add(-time.Duration(i) * time.Hour)
		require.NoError(t, os.Chtimes(filePath, modTime, modTime))
	}

	config := Config{
		CheckInterval: time.Second,
		Directories: []DirectoryConfig{
			{
				Path:         testDir,
				MaxSizeMB:    1, // smallest positive MaxSizeMB this config accepts (int64 MB)
				FilePatterns: []string{"*.log"},
			},
		},
	}

	logger := logrus.New()
	manager := NewDiskSpaceManager(config, logger)
	require.NoError(t, manager.cleanupBySize(config.Directories[0]))

	entries, err := os.ReadDir(testDir)
	require.NoError(t, err)

	logFiles := 0
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".log" {
			logFiles++
		}
	}
	assert.LessOrEqual(t, logFiles, 3, "total bytes were already within the 1MB limit")
}

func TestDiskSpaceManager_GetDiskUsage(t *testing.T) {
	config := Config{CheckInterval: time.Second}
	logger := logrus.New()
	manager := NewDiskSpaceManager(config, logger)

	usage, err := manager.getDiskUsage("/tmp")
	require.NoError(t, err)
	assert.Greater(t, usage.Total, uint64(0))
	assert.LessOrEqual(t, usage.Free, usage.Total)

	_, err = manager.getDiskUsage("/nonexistent/path")
	assert.Error(t, err)
}

func TestDiskSpaceManager_FindMatchingFiles(t *testing.T) {
	testDir := filepath.Join(os.TempDir(), "disk_manager_test_patterns")
	require.NoError(t, os.MkdirAll(testDir, 0755))
	defer os.RemoveAll(testDir)

	for _, name := range []string{"a.log", "b.txt"} {
		f, err := os.Create(filepath.Join(testDir, name))
		require.NoError(t, err)
		f.Close()
	}

	logger := logrus.New()
	manager := NewDiskSpaceManager(Config{}, logger)

	files, err := manager.findMatchingFiles(DirectoryConfig{Path: testDir, FilePatterns: []string{"*.log"}})
	require.NoError(t, err)
	assert.Len(t, files, 1)
	assert.Equal(t, "a.log", filepath.Base(files[0].Path))
}

func TestDiskSpaceManager_StartStop(t *testing.T) {
	testDir := filepath.Join(os.TempDir(), "disk_manager_test_lifecycle")
	require.NoError(t, os.MkdirAll(testDir, 0755))
	defer os.RemoveAll(testDir)

	config := Config{
		CheckInterval: 50 * time.Millisecond,
		Directories: []DirectoryConfig{
			{Path: testDir, MaxFiles: 5, FilePatterns: []string{"*.log"}},
		},
	}

	logger := logrus.New()
	manager := NewDiskSpaceManager(config, logger)
	require.NoError(t, manager.Start())

	for i := 0; i < 3; i++ {
		f, err := os.Create(filepath.Join(testDir, "test"+string(rune('0'+i))+".log"))
		require.NoError(t, err)
		f.Close()
	}

	time.Sleep(150 * time.Millisecond)
	require.NoError(t, manager.Stop())

	select {
	case <-manager.ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("manager did not stop")
	}
}

func TestDiskSpaceManager_EmptyDirectories(t *testing.T) {
	config := Config{
		CheckInterval: time.Second,
		Directories:   []DirectoryConfig{},
	}

	logger := logrus.New()
	manager := NewDiskSpaceManager(config, logger)

	done := make(chan struct{})
	go func() {
		manager.performCleanup()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("performCleanup hung on empty directory list")
	}
}
