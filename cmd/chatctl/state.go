package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/markdave123-py/Parley/internal/chatclient"
	"github.com/markdave123-py/Parley/internal/logger"
)

const (
	tokenFile       = "token"
	typedTitlesFile = "typed-titles.json"
)

var errNotLoggedIn = errors.New("not logged in; run `chatctl login` first")

func stateDir() string {
	return viper.GetString("state-dir")
}

func saveToken(token string) error {
	if err := os.MkdirAll(stateDir(), 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	return os.WriteFile(filepath.Join(stateDir(), tokenFile), []byte(token), 0o600)
}

func loadToken() (string, error) {
	raw, err := os.ReadFile(filepath.Join(stateDir(), tokenFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", errNotLoggedIn
	}
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", errNotLoggedIn
	}
	return token, nil
}

func newClient() *chatclient.Client {
	return chatclient.NewClient(viper.GetString("api-url"))
}

// authedClient returns a client carrying the stored token.
func authedClient() (*chatclient.Client, error) {
	token, err := loadToken()
	if err != nil {
		return nil, err
	}
	c := newClient()
	c.SetToken(token)
	return c, nil
}

func loadTitles() (*chatclient.TitleStore, error) {
	return chatclient.LoadTitleStore(filepath.Join(stateDir(), typedTitlesFile))
}

func newLogger() *zap.Logger {
	log, err := logger.New(viper.GetString("log-level"), true)
	if err != nil {
		return zap.NewNop()
	}
	return log
}
