package main

import (
	"go.uber.org/zap"

	"github.com/luckroyale/sixking/internal/app/client"
	"github.com/luckroyale/sixking/pkg/logging"
)

func main() {
	if err := client.NewApp().Run(); err != nil {
		logging.Fatal("client exited: ", zap.Error(err))
	}
}
