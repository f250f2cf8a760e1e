package main

import (
	"fmt"

	snemo "github.com/next-exp/snemo_go/pkg"
)

func printConfiguration(config snemo.Configuration, logger Logger) {
	logger.Info(fmt.Sprintf("File in: %s", config.FileIn), "config")
	logger.Info(fmt.Sprintf("File out: %s", config.FileOut), "config")
	logger.Info(fmt.Sprintf("Algorithm: %s", config.Algorithm), "config")
	logger.Info(fmt.Sprintf("No DB: %t", config.NoDB), "config")
	if !config.NoDB {
		logger.Info(fmt.Sprintf("DB driver: %s", config.DBDriver), "config")
		if config.DBDriver == "mysql" {
			logger.Info(fmt.Sprintf("Host: %s", config.Host), "config")
			logger.Info(fmt.Sprintf("DB name: %s", config.DBName), "config")
		} else {
			logger.Info(fmt.Sprintf("DSN: %s", config.DSN), "config")
		}
	}
	logger.Info(fmt.Sprintf("Run label: %s", config.RunLabel), "config")
	logger.Info(fmt.Sprintf("Skip: %d", config.Skip), "config")
	logger.Info(fmt.Sprintf("Max events: %d", config.MaxEvents), "config")
	logger.Info(fmt.Sprintf("Verbosity: %d", config.Verbosity), "config")
	logger.Info(fmt.Sprintf("Discard: %t", config.Discard), "config")
	logger.Info(fmt.Sprintf("Write data: %t", config.WriteData), "config")
	logger.Info(fmt.Sprintf("Compression level: %d", config.Compression), "config")
	logger.Info(fmt.Sprintf("Number of workers: %d", config.NumWorkers), "config")
	for _, key := range config.CAT.Keys() {
		logger.Info(fmt.Sprintf("cat.%s: %v", key, config.CAT[key]), "config")
	}
	for _, key := range config.Trigger.Keys() {
		logger.Info(fmt.Sprintf("trigger.%s: %v", key, config.Trigger[key]), "config")
	}
}
