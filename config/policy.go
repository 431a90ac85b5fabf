package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// duration decodes TOML strings such as "5s" or "3m".
type duration struct{ time.Duration }

func (d *duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// policyFile is the on-disk layout of POLICY_FILE. Absent keys keep the
// environment value.
type policyFile struct {
	Retry struct {
		TransientRetries *int     `toml:"transient_retries"`
		TransientBackoff duration `toml:"transient_backoff"`
		AttemptTimeout   duration `toml:"attempt_timeout"`
	} `toml:"retry"`
	Notices struct {
		Failure  *string `toml:"failure"`
		NotFound *string `toml:"not_found"`
		Startup  *string `toml:"startup"`
		Shutdown *string `toml:"shutdown"`
	} `toml:"notices"`
	Delivery struct {
		MaxUploadBytes      int64 `toml:"max_upload_bytes"`
		DeleteSourceMessage *bool `toml:"delete_source_message"`
	} `toml:"delivery"`
}

// LoadPolicy overlays retry, notice and delivery settings from a TOML file.
func (c *Config) LoadPolicy(path string) error {
	var p policyFile
	md, err := toml.DecodeFile(path, &p)
	if err != nil {
		return fmt.Errorf("policy file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("policy file %s: unknown keys %v", path, undecoded)
	}

	if p.Retry.TransientRetries != nil {
		if *p.Retry.TransientRetries < 0 {
			return fmt.Errorf("policy file %s: transient_retries must be >= 0", path)
		}
		c.TransientRetries = *p.Retry.TransientRetries
	}
	if p.Retry.TransientBackoff.Duration > 0 {
		c.TransientBackoff = p.Retry.TransientBackoff.Duration
	}
	if p.Retry.AttemptTimeout.Duration > 0 {
		c.AttemptTimeout = p.Retry.AttemptTimeout.Duration
	}
	if p.Notices.Failure != nil {
		c.FailureNotice = *p.Notices.Failure
	}
	if p.Notices.NotFound != nil {
		c.NotFoundNotice = *p.Notices.NotFound
	}
	if p.Notices.Startup != nil {
		c.StartupNotice = *p.Notices.Startup
	}
	if p.Notices.Shutdown != nil {
		c.ShutdownNotice = *p.Notices.Shutdown
	}
	if p.Delivery.MaxUploadBytes > 0 {
		c.MaxUploadBytes = p.Delivery.MaxUploadBytes
	}
	if p.Delivery.DeleteSourceMessage != nil {
		c.DeleteSourceMessage = *p.Delivery.DeleteSourceMessage
	}
	return nil
}
