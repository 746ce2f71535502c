package config

import (
	"maps"
	"reflect"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// is reported through RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ScheduleChanged is set when recording windows changed. New sessions
	// pick up the new schedule; running sessions keep theirs.
	ScheduleChanged bool

	// MaxActiveChanged is set when the concurrent session cap changed.
	MaxActiveChanged bool
	NewMaxActive     int

	// RestartRequired lists top-level sections that changed but are only
	// read at startup.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.ScheduleChanged && !d.MaxActiveChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Session.DefaultDuration != new.Session.DefaultDuration ||
		!maps.Equal(old.Session.LevelDurations, new.Session.LevelDurations) {
		d.ScheduleChanged = true
	}

	if old.Session.MaxActive != new.Session.MaxActive {
		d.MaxActiveChanged = true
		d.NewMaxActive = new.Session.MaxActive
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || !reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.Scripts, new.Scripts) {
		d.RestartRequired = append(d.RestartRequired, "scripts")
	}
	if !reflect.DeepEqual(old.Scoring, new.Scoring) {
		d.RestartRequired = append(d.RestartRequired, "scoring")
	}
	if !reflect.DeepEqual(old.Transcription, new.Transcription) {
		d.RestartRequired = append(d.RestartRequired, "transcription")
	}
	if old.Session.SampleRate != new.Session.SampleRate ||
		old.Session.Channels != new.Session.Channels ||
		old.Session.RecordingDir != new.Session.RecordingDir ||
		old.Session.MaxRecording != new.Session.MaxRecording {
		d.RestartRequired = append(d.RestartRequired, "session")
	}
	if old.Ranking != new.Ranking {
		d.RestartRequired = append(d.RestartRequired, "ranking")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}

	return d
}
