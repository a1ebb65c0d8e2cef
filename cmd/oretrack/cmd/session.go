package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/BrandonDHaskell/oretrack/internal/logging"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/client"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/offline"
	"github.com/BrandonDHaskell/oretrack/internal/oretrack/syncer"
)

// fieldSession bundles what most commands need: the API client, the offline
// cache and the session that chooses between them.
type fieldSession struct {
	api     *client.Client
	cache   *offline.Log
	session *syncer.Session
	logger  logrus.FieldLogger
}

func newLogger(cmd *cobra.Command) *logrus.Logger {
	return logging.NewWithOutput(cmd.ErrOrStderr(), "dev", viper.GetString("log-level"))
}

func newAPI() *client.Client {
	return client.New(viper.GetString("url"), viper.GetDuration("timeout"))
}

func openSession(cmd *cobra.Command) (*fieldSession, error) {
	logger := newLogger(cmd)
	cache, err := offline.Open(cmd.Context(), cachePath())
	if err != nil {
		return nil, err
	}
	api := newAPI()
	return &fieldSession{
		api:     api,
		cache:   cache,
		session: syncer.NewSession(api, cache, logger),
		logger:  logger,
	}, nil
}

func (s *fieldSession) Close() error { return s.cache.Close() }
