package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/example/resy-sniper/internal/reservation"
	"github.com/example/resy-sniper/internal/resy"
	"github.com/example/resy-sniper/internal/snipe"
)

// EnvPrefix prefixes environment overrides, e.g. RESYSNIPE_AUTH_API_KEY or
// RESYSNIPE_RETRY_MAX_NUM_ATTEMPTS.
const EnvPrefix = "RESYSNIPE"

// Snipe is a parsed one-shot snipe config.
type Snipe struct {
	Credentials resy.Credentials
	Target      reservation.TargetParameters
	Policy      snipe.RetryPolicy
	// WakeAt is zero when the run should start immediately.
	WakeAt time.Time
	Book   bool
	// APIURL is the Resy API base URL.
	APIURL string
}

type snipeFile struct {
	Auth struct {
		APIKey    string `mapstructure:"api_key"`
		AuthToken string `mapstructure:"auth_token"`
	} `mapstructure:"auth"`
	Reqs struct {
		VenueID      int    `mapstructure:"venue_id"`
		Date         string `mapstructure:"date"`
		EarliestTime string `mapstructure:"earliest_time"`
		PartySize    int    `mapstructure:"party_size"`
	} `mapstructure:"reqs"`
	WaitTill string `mapstructure:"wait_till"`
	Retry    struct {
		MillisecsBetween int `mapstructure:"millisecs_between"`
		MaxNumAttempts   int `mapstructure:"max_num_attempts"`
		AttemptTimeoutMS int `mapstructure:"attempt_timeout_ms"`
	} `mapstructure:"retry"`
	Book   bool   `mapstructure:"book"`
	APIURL string `mapstructure:"api_url"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("auth.api_key", "")
	v.SetDefault("auth.auth_token", "")
	v.SetDefault("reqs.venue_id", 0)
	v.SetDefault("reqs.date", "")
	v.SetDefault("reqs.earliest_time", "00:00:00")
	v.SetDefault("reqs.party_size", 2)
	v.SetDefault("wait_till", "")
	v.SetDefault("retry.millisecs_between", 250)
	v.SetDefault("retry.max_num_attempts", 8)
	v.SetDefault("retry.attempt_timeout_ms", 0)
	v.SetDefault("book", false)
	v.SetDefault("api_url", resy.DefaultBaseURL)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadSnipe reads a JSON or YAML snipe config from path. Environment
// variables override file values. wait_till is read in the local zone.
func LoadSnipe(ctx context.Context, path string) (Snipe, error) {
	return loadSnipe(ctx, path, time.Local)
}

func loadSnipe(ctx context.Context, path string, loc *time.Location) (Snipe, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if errors.As(err, &nf) || errors.Is(err, fs.ErrNotExist) {
			return Snipe{}, fmt.Errorf("config file %s not found: %w", path, err)
		}
		return Snipe{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var raw snipeFile
	if err := v.Unmarshal(&raw); err != nil {
		return Snipe{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	s, err := raw.parse(loc)
	if err != nil {
		return Snipe{}, err
	}

	zerolog.Ctx(ctx).Debug().
		Str("file", v.ConfigFileUsed()).
		Int("venue_id", s.Target.VenueID).
		Str("day", s.Target.Day()).
		Dur("interval", s.Policy.Interval).
		Int("max_attempts", s.Policy.MaxAttempts).
		Msg("snipe config loaded")
	return s, nil
}

func (f snipeFile) parse(loc *time.Location) (Snipe, error) {
	invalid := func(field string, err error) error {
		return fmt.Errorf("%w: %s: %w", ErrInvalid, field, err)
	}

	s := Snipe{
		Credentials: resy.Credentials{
			APIKey:    strings.TrimSpace(f.Auth.APIKey),
			AuthToken: strings.TrimSpace(f.Auth.AuthToken),
		},
		Book:   f.Book,
		APIURL: strings.TrimSpace(f.APIURL),
	}
	if s.Credentials.APIKey == "" || s.Credentials.AuthToken == "" {
		return Snipe{}, fmt.Errorf("%w: auth.api_key and auth.auth_token are required", ErrInvalid)
	}

	day, err := reservation.ParseDay(f.Reqs.Date)
	if err != nil {
		return Snipe{}, invalid("reqs.date", err)
	}
	earliest, err := reservation.ParseClock(f.Reqs.EarliestTime)
	if err != nil {
		return Snipe{}, invalid("reqs.earliest_time", err)
	}
	s.Target = reservation.TargetParameters{
		VenueID:      f.Reqs.VenueID,
		Date:         day,
		EarliestTime: earliest,
		PartySize:    f.Reqs.PartySize,
	}
	if err := s.Target.Validate(); err != nil {
		return Snipe{}, invalid("reqs", err)
	}

	if w := strings.TrimSpace(f.WaitTill); w != "" {
		s.WakeAt, err = time.ParseInLocation(reservation.DateTimeLayout, w, loc)
		if err != nil {
			return Snipe{}, invalid("wait_till", err)
		}
	}

	s.Policy = snipe.RetryPolicy{
		Interval:       time.Duration(f.Retry.MillisecsBetween) * time.Millisecond,
		MaxAttempts:    f.Retry.MaxNumAttempts,
		AttemptTimeout: time.Duration(f.Retry.AttemptTimeoutMS) * time.Millisecond,
	}
	if err := s.Policy.Validate(); err != nil {
		return Snipe{}, invalid("retry", err)
	}
	return s, nil
}
