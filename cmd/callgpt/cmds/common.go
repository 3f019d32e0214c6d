package cmds

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/go-go-golems/callgpt/pkg/config"
	"github.com/go-go-golems/callgpt/pkg/escalation"
	"github.com/go-go-golems/callgpt/pkg/knowledge"
)

// RootFlags carries root-level settings into subcommands. ConfigPath is
// filled from --config once flags are parsed.
type RootFlags struct {
	ConfigPath string
}

// loadConfig reads an explicit config file, or else decodes the global viper
// that clay.InitViper populated.
func loadConfig(flags *RootFlags) (*config.Config, error) {
	if flags != nil && flags.ConfigPath != "" {
		return config.Load(flags.ConfigPath)
	}
	return config.FromViper(viper.GetViper())
}

// sqliteDSN adds a busy timeout so the server and the CLI can share the file.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_busy_timeout=5000"
}

type stores struct {
	tickets   escalation.Store
	knowledge knowledge.Store
}

func (s stores) Close() error {
	var errs []string
	if s.tickets != nil {
		if err := s.tickets.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if s.knowledge != nil {
		if err := s.knowledge.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return errors.Errorf("close stores: %s", strings.Join(errs, "; "))
	}
	return nil
}

// openStores returns sqlite stores, or in-memory ones when no DSN is configured.
func openStores(cfg *config.Config) (stores, error) {
	if cfg.Store.DSN == "" {
		return stores{tickets: escalation.NewMemoryStore(), knowledge: knowledge.NewMemoryStore()}, nil
	}
	dsn := sqliteDSN(cfg.Store.DSN)
	t, err := escalation.NewSQLiteStore(dsn)
	if err != nil {
		return stores{}, errors.Wrap(err, "open ticket store")
	}
	k, err := knowledge.NewSQLiteStore(dsn)
	if err != nil {
		_ = t.Close()
		return stores{}, errors.Wrap(err, "open knowledge store")
	}
	return stores{tickets: t, knowledge: k}, nil
}

// requirePersistentStore rejects administrative commands against in-memory
// stores, which would only ever see their own empty process.
func requirePersistentStore(cfg *config.Config) error {
	if cfg.Store.DSN == "" {
		return errors.New("store.dsn is empty; ticket and knowledge commands need a sqlite store shared with the server")
	}
	return nil
}
