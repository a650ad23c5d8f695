package main

import (
	"github.com/meshmeet/meshmeet/cmd"
	"github.com/meshmeet/meshmeet/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init()
	cmd.Execute()
}
