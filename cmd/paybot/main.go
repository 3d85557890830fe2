package main

import (
	"log"

	"github.com/m3rciful/paybot/app"
	"github.com/m3rciful/paybot/core/cmd"
)

func main() {
	err := cmd.Run(cmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig:        app.LoadConfig,
		Bootstrap:         app.New,
	})
	if err != nil {
		log.Fatalf("paybot: %v", err)
	}
}
