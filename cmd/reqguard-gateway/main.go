/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Command reqguard-gateway runs the gateway in front of an upstream LLM service.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/billhaggle/reqguard/config"
	"github.com/billhaggle/reqguard/internal/gateway"
	"github.com/billhaggle/reqguard/log"
	"github.com/billhaggle/reqguard/service"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "config.yml", "path to the configuration file (YAML or JSON)")
	flag.Parse()

	cfg, err := gateway.LoadConfigFromFile(*cfgPath, configDataType(*cfgPath))
	if err != nil {
		return err
	}

	logger, closeLogger := log.NewLogger(cfg.Log)
	defer closeLogger()

	gw, err := gateway.New(cfg, logger, gateway.Opts{})
	if err != nil {
		logger.Error("failed to create gateway", log.Error(err))
		return err
	}
	if err = service.New(logger, gw).Start(); err != nil {
		logger.Error("gateway stopped with error", log.Error(err))
		return err
	}
	return nil
}

func configDataType(path string) config.DataType {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return config.DataTypeJSON
	}
	return config.DataTypeYAML
}
