// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

package app

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/k-t-corp/broccoli-console/internal/backend"
	"github.com/k-t-corp/broccoli-console/internal/pkg/logger"
	"github.com/k-t-corp/broccoli-console/internal/web"
)

// PrintRoutes writes the console route table as YAML. The table does not
// depend on configuration, so no backend or session store is contacted.
func PrintRoutes(w io.Writer) error {
	h := web.NewHandler(web.HandlerDeps{
		Backend:  backend.NewClient(backend.Config{}, logger.Nop()),
		Sessions: web.NewMemorySessionStore(0, web.CookieConfig{}),
		Version:  Version,
		Logger:   logger.Nop(),
	})

	doc := struct {
		Routes []web.RouteInfo `yaml:"routes"`
	}{Routes: web.ConsoleRoutes(h).Routes()}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode routes: %w", err)
	}
	return enc.Close()
}

// CheckConfig loads and validates cfgFile.
func CheckConfig(cfgFile string) (*Config, error) {
	cfg, err := LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	return cfg, nil
}
