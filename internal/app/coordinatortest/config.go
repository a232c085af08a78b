package coordinatortest

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port            string
	TurnTimeout     time.Duration
	DisconnectGrace time.Duration
	MinStake        int
	AdminPlayerId   string
}

func (c Config) withDefaults() Config {
	if c.Port == "" {
		c.Port = "8090"
	}
	if c.TurnTimeout == 0 {
		c.TurnTimeout = 120 * time.Second
	}
	if c.DisconnectGrace == 0 {
		c.DisconnectGrace = 60 * time.Second
	}
	if c.MinStake == 0 {
		c.MinStake = 10
	}
	return c
}

func NewConfig() Config {
	var config Config

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs/coordinatortest")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil {
		config.Port = viper.GetString("Coordinator.Port")
		config.TurnTimeout = viper.GetDuration("Coordinator.TurnTimeout")
		config.DisconnectGrace = viper.GetDuration("Coordinator.DisconnectGrace")
		config.MinStake = viper.GetInt("Coordinator.MinStake")
		config.AdminPlayerId = viper.GetString("Coordinator.AdminPlayerId")
	}
	return config.withDefaults()
}
