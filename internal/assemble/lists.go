package assemble

import (
	"errors"
	"log/slog"

	"github.com/nao1215/corpuscrawl/internal/config"
)

// LoadClassifier builds a Classifier from the translator list files.
// A missing list is logged as a warning and treated as empty. A list that
// exists but is not a JSON array of strings is an error: silently dropping
// a blocked list would mark risky works safe.
func LoadClassifier(safePath, blockedPath string, threshold int, logger *slog.Logger) (*Classifier, error) {
	if logger == nil {
		logger = slog.Default()
	}

	safe, err := loadList(safePath, logger)
	if err != nil {
		return nil, err
	}
	blocked, err := loadList(blockedPath, logger)
	if err != nil {
		return nil, err
	}

	logger.Debug("translator lists loaded", "safe", len(safe), "blocked", len(blocked))
	return NewClassifier(
		WithSafeList(safe),
		WithBlockedList(blocked),
		WithModernThreshold(threshold),
	), nil
}

func loadList(path string, logger *slog.Logger) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	list, err := config.LoadPatternList(path)
	if err == nil {
		return list, nil
	}
	var cfgErr *config.ConfigError
	if errors.As(err, &cfgErr) && cfgErr.Kind == config.ConfigMissingListFile {
		logger.Warn("translator list not found, using empty list", "path", path)
		return nil, nil
	}
	return nil, err
}
