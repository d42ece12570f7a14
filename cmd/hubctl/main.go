// Copyright (C) 2025 LymphHub contributors (ops@lyckabc.xyz)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// hubctl deploys and verifies the LymphHub stack: a reverse proxy,
// a forward-auth broker, an overlay-network coordinator, and their
// storage backend, all managed through docker compose.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}
