// Package cleanup runs a periodic disk-space sweep over configured
// directories — age, total-size, and file-count based eviction — and reports
// free space against warning/critical thresholds. internal/retention points
// it at the upload directory (spec section 4.8's upload area) alongside its
// own row-level cleanup.
package cleanup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"netwallfa/internal/metrics"

	"github.com/sirupsen/logrus"
)

// DiskSpaceManager periodically sweeps configured directories for eviction
// and low-space warnings.
type DiskSpaceManager struct {
	config Config
	logger *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// Config lists the directories to monitor and the sweep interval/thresholds.
type Config struct {
	Directories            []DirectoryConfig `yaml:"directories"`
	CheckInterval          time.Duration     `yaml:"check_interval"`
	CriticalSpaceThreshold float64           `yaml:"critical_space_threshold"` // percent free
	WarningSpaceThreshold  float64           `yaml:"warning_space_threshold"`  // percent free
}

// DirectoryConfig is one monitored directory's eviction policy.
type DirectoryConfig struct {
	Path              string   `yaml:"path"`
	MaxSizeMB         int64    `yaml:"max_size_mb"`
	RetentionDays     int      `yaml:"retention_days"`
	FilePatterns      []string `yaml:"file_patterns"`
	MaxFiles          int      `yaml:"max_files"`
	CleanupAgeSeconds int      `yaml:"cleanup_age_seconds"`
}

// FileInfo is a candidate file for eviction.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// NewDiskSpaceManager builds a manager; call Start to begin the sweep loop.
func NewDiskSpaceManager(config Config, logger *logrus.Logger) *DiskSpaceManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &DiskSpaceManager{
		config: config,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the background sweep loop.
func (dsm *DiskSpaceManager) Start() error {
	dsm.logger.Info("starting disk space manager")
	go dsm.monitorLoop()
	return nil
}

// Stop halts the sweep loop.
func (dsm *DiskSpaceManager) Stop() error {
	dsm.logger.Info("stopping disk space manager")
	dsm.cancel()
	return nil
}

func (dsm *DiskSpaceManager) monitorLoop() {
	ticker := time.NewTicker(dsm.config.CheckInterval)
	defer ticker.Stop()

	dsm.performCleanup()

	for {
		select {
		case <-dsm.ctx.Done():
			return
		case <-ticker.C:
			dsm.performCleanup()
		}
	}
}

func (dsm *DiskSpaceManager) performCleanup() {
	for _, dirConfig := range dsm.config.Directories {
		if err := dsm.cleanupDirectory(dirConfig); err != nil {
			dsm.logger.WithError(err).WithField("directory", dirConfig.Path).
				Error("failed to clean up directory")
		}
	}

	dsm.checkDiskSpace()
	dsm.updateDiskMetrics()
}

func (dsm *DiskSpaceManager) updateDiskMetrics() {
	for _, dirConfig := range dsm.config.Directories {
		usage, err := dsm.getDiskUsage(dirConfig.Path)
		if err != nil {
			dsm.logger.WithError(err).WithField("path", dirConfig.Path).
				Warn("failed to get disk usage for metrics")
			continue
		}
		metrics.DiskUsageBytes.WithLabelValues(dirConfig.Path).Set(float64(usage.Used))
	}
}

func (dsm *DiskSpaceManager) cleanupDirectory(config DirectoryConfig) error {
	if _, err := os.Stat(config.Path); os.IsNotExist(err) {
		if err := os.MkdirAll(config.Path, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", config.Path, err)
		}
		return nil
	}

	if err := dsm.cleanupByAge(config); err != nil {
		dsm.logger.WithError(err).Warn("age-based cleanup failed")
	}
	if err := dsm.cleanupBySize(config); err != nil {
		dsm.logger.WithError(err).Warn("size-based cleanup failed")
	}
	if err := dsm.cleanupByCount(config); err != nil {
		dsm.logger.WithError(err).Warn("count-based cleanup failed")
	}
	return nil
}

func (dsm *DiskSpaceManager) cleanupByAge(config DirectoryConfig) error {
	if config.RetentionDays <= 0 && config.CleanupAgeSeconds <= 0 {
		return nil
	}

	cutoffTime := time.Now()
	if config.RetentionDays > 0 {
		cutoffTime = cutoffTime.AddDate(0, 0, -config.RetentionDays)
	} else if config.CleanupAgeSeconds > 0 {
		cutoffTime = cutoffTime.Add(-time.Duration(config.CleanupAgeSeconds) * time.Second)
	}

	files, err := dsm.findMatchingFiles(config)
	if err != nil {
		return err
	}

	removedCount := 0
	var removedSize int64
	for _, file := range files {
		if file.ModTime.Before(cutoffTime) {
			if err := os.Remove(file.Path); err != nil {
				dsm.logger.WithError(err).WithField("file", file.Path).
					Warn("failed to remove old file")
				continue
			}
			removedCount++
			removedSize += file.Size
		}
	}

	if removedCount > 0 {
		dsm.logger.WithFields(logrus.Fields{
			"directory":     config.Path,
			"files_removed": removedCount,
			"bytes_freed":   removedSize,
			"cutoff_time":   cutoffTime,
		}).Info("age-based cleanup completed")
	}
	return nil
}

func (dsm *DiskSpaceManager) cleanupBySize(config DirectoryConfig) error {
	if config.MaxSizeMB <= 0 {
		return nil
	}

	files, err := dsm.findMatchingFiles(config)
	if err != nil {
		return err
	}

	var totalSize int64
	for _, file := range files {
		totalSize += file.Size
	}

	maxBytes := config.MaxSizeMB * 1024 * 1024
	if totalSize <= maxBytes {
		return nil
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.Before(files[j].ModTime)
	})

	removedCount := 0
	var removedSize int64
	currentSize := totalSize
	for _, file := range files {
		if currentSize <= maxBytes {
			break
		}
		if err := os.Remove(file.Path); err != nil {
			dsm.logger.WithError(err).WithField("file", file.Path).
				Warn("failed to remove file for size cleanup")
			continue
		}
		removedCount++
		removedSize += file.Size
		currentSize -= file.Size
	}

	if removedCount > 0 {
		dsm.logger.WithFields(logrus.Fields{
			"directory":     config.Path,
			"files_removed": removedCount,
			"bytes_freed":   removedSize,
			"max_size_mb":   config.MaxSizeMB,
			"final_size_mb": currentSize / (1024 * 1024),
		}).Info("size-based cleanup completed")
	}
	return nil
}

func (dsm *DiskSpaceManager) cleanupByCount(config DirectoryConfig) error {
	if config.MaxFiles <= 0 {
		return nil
	}

	files, err := dsm.findMatchingFiles(config)
	if err != nil {
		return err
	}
	if len(files) <= config.MaxFiles {
		return nil
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.Before(files[j].ModTime)
	})

	filesToRemove := len(files) - config.MaxFiles
	removedCount := 0
	var removedSize int64
	for i := 0; i < filesToRemove; i++ {
		file := files[i]
		if err := os.Remove(file.Path); err != nil {
			dsm.logger.WithError(err).WithField("file", file.Path).
				Warn("failed to remove file for count cleanup")
			continue
		}
		removedCount++
		removedSize += file.Size
	}

	if removedCount > 0 {
		dsm.logger.WithFields(logrus.Fields{
			"directory":     config.Path,
			"files_removed": removedCount,
			"bytes_freed":   removedSize,
			"max_files":     config.MaxFiles,
			"final_count":   len(files) - removedCount,
		}).Info("count-based cleanup completed")
	}
	return nil
}

func (dsm *DiskSpaceManager) findMatchingFiles(config DirectoryConfig) ([]FileInfo, error) {
	var files []FileInfo

	err := filepath.Walk(config.Path, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return nil
		}

		if len(config.FilePatterns) > 0 {
			matched := false
			for _, pattern := range config.FilePatterns {
				if ok, _ := filepath.Match(pattern, info.Name()); ok {
					matched = true
					break
				}
			}
			if !matched {
				return nil
			}
		}

		files = append(files, FileInfo{
			Path:    path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})

	return files, err
}

func (dsm *DiskSpaceManager) checkDiskSpace() {
	for _, dirConfig := range dsm.config.Directories {
		usage, err := dsm.getDiskUsage(dirConfig.Path)
		if err != nil {
			dsm.logger.WithError(err).WithField("directory", dirConfig.Path).
				Warn("failed to get disk usage")
			continue
		}

		freePercent := float64(usage.Free) / float64(usage.Total) * 100
		fields := logrus.Fields{
			"directory":    dirConfig.Path,
			"free_percent": freePercent,
			"free_mb":      usage.Free / (1024 * 1024),
			"total_mb":     usage.Total / (1024 * 1024),
		}

		if freePercent < dsm.config.CriticalSpaceThreshold {
			dsm.logger.WithFields(fields).Error("critical: disk space very low")
		} else if freePercent < dsm.config.WarningSpaceThreshold {
			dsm.logger.WithFields(fields).Warn("warning: disk space low")
		}
	}
}

// DiskUsage reports a filesystem's total/free/used byte counts.
type DiskUsage struct {
	Total uint64
	Free  uint64
	Used  uint64
}

func (dsm *DiskSpaceManager) getDiskUsage(path string) (*DiskUsage, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return nil, err
	}

	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	used := total - free

	return &DiskUsage{Total: total, Free: free, Used: used}, nil
}

// GetStatus reports per-directory disk usage and file counts, surfaced on
// the health endpoint.
func (dsm *DiskSpaceManager) GetStatus() map[string]interface{} {
	status := make(map[string]interface{})

	for _, dirConfig := range dsm.config.Directories {
		dirStatus := make(map[string]interface{})

		if usage, err := dsm.getDiskUsage(dirConfig.Path); err == nil {
			dirStatus["disk_usage"] = map[string]interface{}{
				"total_mb":     usage.Total / (1024 * 1024),
				"free_mb":      usage.Free / (1024 * 1024),
				"used_mb":      usage.Used / (1024 * 1024),
				"free_percent": float64(usage.Free) / float64(usage.Total) * 100,
			}
		}

		if files, err := dsm.findMatchingFiles(dirConfig); err == nil {
			var totalSize int64
			for _, file := range files {
				totalSize += file.Size
			}
			dirStatus["files"] = map[string]interface{}{
				"count":    len(files),
				"total_mb": totalSize / (1024 * 1024),
			}
		}

		status[dirConfig.Path] = dirStatus
	}

	return status
}
