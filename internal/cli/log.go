package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/walletvault/vault/internal/config"
	"github.com/walletvault/vault/internal/crypto"
	"github.com/walletvault/vault/internal/storage"
	"github.com/walletvault/vault/internal/vault"
)

// log is the logger of the CLI itself.
var log = btclog.Disabled

// subsystemLoggers maps each subsystem tag to the function that installs
// its logger.
var subsystemLoggers = map[string]func(btclog.Logger){
	"CLI ": func(l btclog.Logger) { log = l },
	"VALT": vault.UseLogger,
	"STOR": storage.UseLogger,
	"CRYP": crypto.UseLogger,
}

// setupLogging wires every subsystem to a single backend. Logs go to the
// rotating log file when one is configured, to stderr otherwise. The
// returned closer releases the log file.
func setupLogging(stderr io.Writer, cfg *config.Config, verbose bool) (io.Closer, error) {
	var (
		w      io.Writer = stderr
		closer io.Closer = nopCloser{}
	)

	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o700); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
		}
		w, closer = rotator, rotator
	}

	level, ok := btclog.LevelFromString(cfg.LogLevel)
	if !ok {
		return nil, fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}
	if verbose && level > btclog.LevelDebug {
		level = btclog.LevelDebug
	}

	backend := btclog.NewBackend(w)
	for subsystem, use := range subsystemLoggers {
		logger := backend.Logger(subsystem)
		logger.SetLevel(level)
		use(logger)
	}

	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
