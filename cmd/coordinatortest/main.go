package main

import (
	"go.uber.org/zap"

	"github.com/luckroyale/sixking/internal/app/coordinatortest"
	"github.com/luckroyale/sixking/pkg/logging"
)

func main() {
	logging.Fatal("coordinator exited: ", zap.Error(
		coordinatortest.NewServer(coordinatortest.NewConfig()).Start(),
	))
}
