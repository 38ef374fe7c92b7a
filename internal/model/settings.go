package model

// Setting keys recognized by the settings store (spec.md §3, §6).
const (
	SettingTradingPaused        = "trading_paused"
	SettingAutoRebalanceEnabled = "auto_rebalance_enabled"
	SettingExecutionMode        = "execution_mode"
	SettingTradingTimeframe     = "trading_timeframe"
	SettingNumActiveStrategies  = "num_active_strategies"
	SettingCapitalLimitUSDT     = "capital_limit_usdt"
	SettingMinStrategyScore     = "min_strategy_score"
)

// ExecutionMode selects which execution client backs live trading.
type ExecutionMode string

const (
	ExecutionModePaper           ExecutionMode = "paper"
	ExecutionModeBinanceTestnet  ExecutionMode = "binance_testnet"
)

// DefaultSettings returns the built-in defaults, matching spec.md §6
// ("trading_paused (default true for safety)").
func DefaultSettings() map[string]interface{} {
	return map[string]interface{}{
		SettingTradingPaused:        true,
		SettingAutoRebalanceEnabled: false,
		SettingExecutionMode:        string(ExecutionModePaper),
		SettingTradingTimeframe:     string(Timeframe1d),
		SettingNumActiveStrategies:  5,
		SettingCapitalLimitUSDT:     nil,
		SettingMinStrategyScore:     0.0,
	}
}
