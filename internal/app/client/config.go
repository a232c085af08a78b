package client

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	CoordinatorUrl string
	RestBaseUrl    string
	AuthToken      string
	PlayerId       string
	PlayerName     string
	MinStake       int
	RollBudget     time.Duration
	TimeoutGrace   time.Duration
}

func NewConfig() Config {
	var config Config

	// Local overrides (auth token mainly) live in .env; absence is fine.
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs/client")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()
	err := viper.ReadInConfig()
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %s", err))
	}

	config.CoordinatorUrl = viper.GetString("Client.CoordinatorUrl")
	config.RestBaseUrl = viper.GetString("Client.RestBaseUrl")
	config.AuthToken = viper.GetString("AUTH_TOKEN")
	config.PlayerId = viper.GetString("PLAYER_ID")
	config.PlayerName = viper.GetString("PLAYER_NAME")
	config.MinStake = viper.GetInt("Client.MinStake")
	rollBudget, err := time.ParseDuration(viper.GetString("Client.RollBudget"))
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %s", err))
	}
	config.RollBudget = rollBudget
	grace, err := time.ParseDuration(viper.GetString("Client.TimeoutGrace"))
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %s", err))
	}
	config.TimeoutGrace = grace

	return config
}
