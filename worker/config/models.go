package config

import (
	"fmt"
	"strings"
	"time"
)

// Worker holds the settings of the loop that consumes notifications
type Worker struct {
	// Identifies this worker to the broker; generated when empty
	ID WorkerId `json:"id" yaml:"id" mapstructure:"id"`
	// Attempts made at handling one notification before giving up on it and moving on
	MaxAttempts     uint          `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts" validate:"min=1"`
	InitialBackoff  time.Duration `json:"initial_backoff" yaml:"initial_backoff" mapstructure:"initial_backoff" validate:"min=0"`
	MaxBackoff      time.Duration `json:"max_backoff" yaml:"max_backoff" mapstructure:"max_backoff" validate:"gtefield=InitialBackoff"`
	PartitionBuffer uint          `json:"partition_buffer" yaml:"partition_buffer" mapstructure:"partition_buffer"`
	FetchErrorWait  time.Duration `json:"fetch_error_wait" yaml:"fetch_error_wait" mapstructure:"fetch_error_wait"`
	LoopStopTimeout time.Duration `json:"loop_exit_wait" yaml:"loop_exit_wait" mapstructure:"loop_exit_wait" validate:"min=0"`
}

type WorkerId string

func (w *WorkerId) String() string {
	return string(*w)
}

func (w *WorkerId) Set(s string) error {
	if len(strings.TrimSpace(s)) == 0 {
		return fmt.Errorf("worker Id cannot be empty")
	} else {
		*w = WorkerId(s)
		return nil
	}
}

func (w *WorkerId) Type() string {
	return "WorkerId"
}
