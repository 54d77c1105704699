package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"levelBot/internal/domain"
	"levelBot/internal/rules"
	"levelBot/internal/trend"
)

// Strategy is the trading setup read from the strategy file.
type Strategy struct {
	Levels       []float64 // seeds an empty ladder
	InitialTrend domain.TrendDirection
	Polarity     trend.Polarity
	ClosingRules []domain.ClosingRuleID
	Rules        rules.Params
}

type strategyFile struct {
	Levels             []float64 `mapstructure:"levels"`
	InitialTrend       string    `mapstructure:"initial_trend"`
	CorrectionPolarity string    `mapstructure:"correction_polarity"`
	ClosingRules       []string  `mapstructure:"closing_rules"`
	Rules              struct {
		TickSize           float64 `mapstructure:"tick_size"`
		FirstTouchDistance float64 `mapstructure:"first_touch_distance"`
		MidRetraceDistance float64 `mapstructure:"mid_retrace_distance"`
		TakeProfitDistance float64 `mapstructure:"take_profit_distance"`
		TrailArmDistance   float64 `mapstructure:"trail_arm_distance"`
		Trail50Distance    float64 `mapstructure:"trail_50_distance"`
		Trail3Ticks        int     `mapstructure:"trail_3_ticks"`
		StopLossDistance   float64 `mapstructure:"stop_loss_distance"`
	} `mapstructure:"rules"`
}

// LoadStrategy reads the YAML strategy file at path. An empty path yields
// the defaults.
func LoadStrategy(path string) (*Strategy, error) {
	v := viper.New()
	setStrategyDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read strategy file %s: %w", path, err)
		}
	}

	var raw strategyFile
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("unable to decode strategy file: %w", err)
	}
	return raw.build()
}

func setStrategyDefaults(v *viper.Viper) {
	d := rules.DefaultParams()
	v.SetDefault("initial_trend", string(domain.TrendUp))
	v.SetDefault("correction_polarity", string(trend.PolarityOpposite))
	v.SetDefault("rules.tick_size", d.TickSize)
	v.SetDefault("rules.first_touch_distance", d.FirstTouchDistance)
	v.SetDefault("rules.mid_retrace_distance", d.MidRetraceDistance)
	v.SetDefault("rules.take_profit_distance", d.TakeProfitDistance)
	v.SetDefault("rules.trail_arm_distance", d.TrailArmDistance)
	v.SetDefault("rules.trail_50_distance", d.Trail50Distance)
	v.SetDefault("rules.trail_3_ticks", d.Trail3Ticks)
	v.SetDefault("rules.stop_loss_distance", d.StopLossDistance)
}

func (f strategyFile) build() (*Strategy, error) {
	var errs []error
	s := &Strategy{
		Levels: f.Levels,
		Rules: rules.Params{
			TickSize:           f.Rules.TickSize,
			FirstTouchDistance: f.Rules.FirstTouchDistance,
			MidRetraceDistance: f.Rules.MidRetraceDistance,
			TakeProfitDistance: f.Rules.TakeProfitDistance,
			TrailArmDistance:   f.Rules.TrailArmDistance,
			Trail50Distance:    f.Rules.Trail50Distance,
			Trail3Ticks:        f.Rules.Trail3Ticks,
			StopLossDistance:   f.Rules.StopLossDistance,
		},
	}

	switch dir := domain.TrendDirection(strings.ToUpper(f.InitialTrend)); dir {
	case domain.TrendUp, domain.TrendDown:
		s.InitialTrend = dir
	default:
		errs = append(errs, fmt.Errorf("initial_trend must be UP or DOWN, got %q", f.InitialTrend))
	}

	polarity, err := trend.ParsePolarity(f.CorrectionPolarity)
	if err != nil {
		errs = append(errs, err)
	}
	s.Polarity = polarity

	if len(f.ClosingRules) == 0 {
		s.ClosingRules = append([]domain.ClosingRuleID(nil), domain.DefaultClosingRules...)
	}
	for _, name := range f.ClosingRules {
		id, err := domain.ParseClosingRule(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s.ClosingRules = append(s.ClosingRules, id)
	}

	for _, l := range f.Levels {
		if l <= 0 {
			errs = append(errs, fmt.Errorf("level %v must be positive", l))
		}
	}
	if err := s.Rules.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid strategy: %w", errors.Join(errs...))
	}
	return s, nil
}
