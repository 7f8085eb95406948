package config

import (
	"os"
	"strconv"
)

// Ledger tags written with every signup credit.
const (
	RewardType        = "reward"
	SignupBonusReason = "signup_bonus"
)

type RewardConfig struct {
	SignupBonus int64
}

func LoadRewardConfig() *RewardConfig {
	return &RewardConfig{
		SignupBonus: getEnvAsInt64("SIGNUP_BONUS_AMOUNT", 1000),
	}
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}
