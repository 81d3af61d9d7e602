package utils

import (
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// LoadConfig reads a .env file from the given path when present. Missing
// files are not an error; container deployments inject real env vars.
func LoadConfig(path string) {
	envPath := filepath.Join(path, ".env")
	if err := godotenv.Load(envPath); err != nil {
		logrus.Debugf("[CONFIG] No .env file loaded from %s: %v", envPath, err)
	}
}
