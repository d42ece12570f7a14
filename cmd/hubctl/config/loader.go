// Copyright (C) 2025 LymphHub contributors (ops@lyckabc.xyz)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	// Global is a singleton instance
	Global HubConfig
	once   sync.Once
)

// Load reads the stack config into the Global variable.
//
// The file is optional: a missing file leaves the defaults in place,
// since the stock LymphHub layout covers the common case.
func Load(path string) error {
	var err error
	once.Do(func() {
		err = loadInternal(path)
	})
	return err
}

func loadInternal(path string) error {
	Global = DefaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read the stack config: %w", err)
	}
	if err = yaml.Unmarshal(data, &Global); err != nil {
		return fmt.Errorf("failed to parse the stack config: %w", err)
	}
	return nil
}

// =============================================================================
// Environment
// =============================================================================

// Env holds the deployment variables read from the .env file and the
// process environment. Process environment wins over the file so
// one-off overrides work without editing anything.
type Env struct {
	Domain      string // DOMAIN
	NetworkName string // DOCKER_NETWORK
	DBHost      string // DB_HOST
	DBPort      int    // DB_PORT, 5432 when unset or non-numeric
	DBPassword  string // DB_PASSWORD
	OverlayUser string // HEADSCALE_USER

	// FileFound records whether the .env file existed. Absence is a
	// fatal preflight condition, decided by the caller.
	FileFound bool

	// Warnings collects recoverable parse problems, e.g. a non-numeric
	// DB_PORT that fell back to 5432.
	Warnings []string
}

// LoadEnv reads path with godotenv and overlays the process environment.
//
// A missing file is not an error here: the returned Env carries
// FileFound=false and the preflight checker decides what that means.
func LoadEnv(path string) (*Env, error) {
	fileVars := map[string]string{}
	found := true

	vars, err := godotenv.Read(path)
	switch {
	case err == nil:
		fileVars = vars
	case os.IsNotExist(err):
		found = false
	default:
		return nil, fmt.Errorf("failed to read the env file %s: %w", path, err)
	}

	lookup := func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return fileVars[key]
	}

	env := &Env{
		Domain:      lookup("DOMAIN"),
		NetworkName: lookup("DOCKER_NETWORK"),
		DBHost:      lookup("DB_HOST"),
		DBPassword:  lookup("DB_PASSWORD"),
		OverlayUser: lookup("HEADSCALE_USER"),
		FileFound:   found,
	}

	env.DBPort = 5432
	if raw := lookup("DB_PORT"); raw != "" {
		port, convErr := strconv.Atoi(raw)
		if convErr != nil || port < 1 || port > 65535 {
			env.Warnings = append(env.Warnings,
				fmt.Sprintf("DB_PORT %q is not a valid port, using 5432", raw))
		} else {
			env.DBPort = port
		}
	}

	return env, nil
}
