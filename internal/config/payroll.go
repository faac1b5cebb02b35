package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PayrollConfig holds engine-wide payroll settings loaded from payroll.yml.
type PayrollConfig struct {
	WorkerPoolSize       int                `mapstructure:"workerPoolSize"`
	LockTTL              time.Duration      `mapstructure:"lockTTL"`
	DefaultPrecision     int32              `mapstructure:"defaultPrecision"`
	FiscalYearStartMonth int                `mapstructure:"fiscalYearStartMonth"`
	SystemDefaults       []StatutoryDefault `mapstructure:"systemDefaults"`
}

// StatutoryDefault is a documented fallback rule used only for tenants with no statutory configuration.
type StatutoryDefault struct {
	RuleType            string          `mapstructure:"ruleType"`
	WageCeiling         decimal.Decimal `mapstructure:"wageCeiling"`
	EmployeeRatePercent decimal.Decimal `mapstructure:"employeeRatePercent"`
	EmployerRatePercent decimal.Decimal `mapstructure:"employerRatePercent"`
	StandardDeduction   decimal.Decimal `mapstructure:"standardDeduction"`
	CessRatePercent     decimal.Decimal `mapstructure:"cessRatePercent"`
	Bands               []BandDefault   `mapstructure:"bands"`
}

type BandDefault struct {
	LowerBound  decimal.Decimal  `mapstructure:"lowerBound"`
	UpperBound  *decimal.Decimal `mapstructure:"upperBound"`
	RatePercent decimal.Decimal  `mapstructure:"ratePercent"`
	Amount      decimal.Decimal  `mapstructure:"amount"`
	Marginal    bool             `mapstructure:"marginal"`
}

func DefaultPayrollConfig() PayrollConfig {
	return PayrollConfig{
		WorkerPoolSize:       8,
		LockTTL:              10 * time.Minute,
		DefaultPrecision:     2,
		FiscalYearStartMonth: 4,
		SystemDefaults: []StatutoryDefault{
			{
				RuleType:            "PF",
				WageCeiling:         decimal.NewFromInt(15000),
				EmployeeRatePercent: decimal.NewFromInt(12),
				EmployerRatePercent: decimal.NewFromInt(12),
			},
			{
				RuleType:            "ESI",
				WageCeiling:         decimal.NewFromInt(21000),
				EmployeeRatePercent: decimal.RequireFromString("0.75"),
				EmployerRatePercent: decimal.RequireFromString("3.25"),
			},
			{
				RuleType: "PT",
				Bands: []BandDefault{
					{LowerBound: decimal.Zero, UpperBound: decPtr(25000), Amount: decimal.Zero},
					{LowerBound: decimal.NewFromInt(25000), Amount: decimal.NewFromInt(200)},
				},
			},
			{
				RuleType:          "TDS",
				StandardDeduction: decimal.NewFromInt(75000),
				CessRatePercent:   decimal.NewFromInt(4),
				Bands: []BandDefault{
					{LowerBound: decimal.Zero, UpperBound: decPtr(400000), RatePercent: decimal.Zero},
					{LowerBound: decimal.NewFromInt(400000), UpperBound: decPtr(800000), RatePercent: decimal.NewFromInt(5)},
					{LowerBound: decimal.NewFromInt(800000), UpperBound: decPtr(1200000), RatePercent: decimal.NewFromInt(10)},
					{LowerBound: decimal.NewFromInt(1200000), UpperBound: decPtr(1600000), RatePercent: decimal.NewFromInt(15)},
					{LowerBound: decimal.NewFromInt(1600000), UpperBound: decPtr(2000000), RatePercent: decimal.NewFromInt(20)},
					{LowerBound: decimal.NewFromInt(2000000), UpperBound: decPtr(2400000), RatePercent: decimal.NewFromInt(25)},
					{LowerBound: decimal.NewFromInt(2400000), RatePercent: decimal.NewFromInt(30)},
				},
			},
		},
	}
}

func decPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

type PayrollConfigHolder struct {
	current atomic.Value // holds PayrollConfig
}

// NewPayrollConfigHolder reads payroll.yml and keeps it hot-reloaded.
func NewPayrollConfigHolder(log *zap.Logger) (*PayrollConfigHolder, error) {
	log = log.Named("payroll.config")
	v := viper.New()

	v.SetConfigName("payroll")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/payrollengine/config")
	v.AddConfigPath("/etc/payrollengine")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PAYROLL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPayrollConfig()
	v.SetDefault("payroll.workerPoolSize", defaults.WorkerPoolSize)
	v.SetDefault("payroll.lockTTL", defaults.LockTTL)
	v.SetDefault("payroll.defaultPrecision", defaults.DefaultPrecision)
	v.SetDefault("payroll.fiscalYearStartMonth", defaults.FiscalYearStartMonth)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	cfg, err := decodePayrollConfig(v)
	if err != nil {
		return nil, err
	}
	if !fileFound {
		cfg.SystemDefaults = defaults.SystemDefaults
	}

	holder := NewStaticPayrollConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodePayrollConfig(v)
		if err != nil {
			log.Warn("payroll config reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("payroll config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// NewStaticPayrollConfigHolder wraps a fixed config without file watching.
func NewStaticPayrollConfigHolder(cfg PayrollConfig) *PayrollConfigHolder {
	holder := &PayrollConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PayrollConfigHolder) Get() PayrollConfig {
	return h.current.Load().(PayrollConfig)
}

// SystemDefault returns the documented fallback for ruleType, if one is configured.
func (h *PayrollConfigHolder) SystemDefault(ruleType string) (StatutoryDefault, bool) {
	for _, def := range h.Get().SystemDefaults {
		if strings.EqualFold(def.RuleType, ruleType) {
			return def, true
		}
	}
	return StatutoryDefault{}, false
}

func decodePayrollConfig(v *viper.Viper) (PayrollConfig, error) {
	var cfg PayrollConfig
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		decimalDecodeHook(),
	))
	if err := v.UnmarshalKey("payroll", &cfg, hook); err != nil {
		return PayrollConfig{}, err
	}
	if err := validatePayrollConfig(cfg); err != nil {
		return PayrollConfig{}, err
	}
	return cfg, nil
}

func validatePayrollConfig(cfg PayrollConfig) error {
	if cfg.WorkerPoolSize <= 0 {
		return errors.New("payroll.workerPoolSize must be positive")
	}
	if cfg.DefaultPrecision < 0 || cfg.DefaultPrecision > 4 {
		return errors.New("payroll.defaultPrecision must be between 0 and 4")
	}
	if cfg.FiscalYearStartMonth < 1 || cfg.FiscalYearStartMonth > 12 {
		return errors.New("payroll.fiscalYearStartMonth must be between 1 and 12")
	}
	seen := map[string]bool{}
	for _, def := range cfg.SystemDefaults {
		key := strings.ToUpper(strings.TrimSpace(def.RuleType))
		if key == "" {
			return errors.New("payroll.systemDefaults entry missing ruleType")
		}
		if seen[key] {
			return fmt.Errorf("payroll.systemDefaults has duplicate ruleType %s", key)
		}
		seen[key] = true
	}
	return nil
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

// decimalDecodeHook decodes yaml scalars into decimal.Decimal. Quote values in yaml to keep them exact.
func decimalDecodeHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != decimalType {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return decimal.NewFromString(strings.TrimSpace(v))
		case int:
			return decimal.NewFromInt(int64(v)), nil
		case int64:
			return decimal.NewFromInt(v), nil
		case float64:
			return decimal.NewFromString(strconv.FormatFloat(v, 'f', -1, 64))
		default:
			return data, nil
		}
	}
}
