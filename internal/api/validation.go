package api

import (
	"fmt"
	"net/url"
)

// validateCreateSchedule checks the request shape. Kind-specific trigger
// validation (cron syntax, timezone resolution, ranges) is the trigger
// engine's job and happens after decoding.
func validateCreateSchedule(req CreateScheduleRequest) error {
	if req.Name == "" {
		return fmt.Errorf("name is required")
	}

	if req.Trigger.Kind == "" {
		return fmt.Errorf("trigger.kind is required")
	}

	if req.Process.Type == "" {
		return fmt.Errorf("process.type is required")
	}
	if req.Process.Config == nil {
		return fmt.Errorf("process.config is required")
	}

	if req.Process.Type == "webhook" {
		rawURL, _ := req.Process.Config["url"].(string)
		if rawURL == "" {
			return fmt.Errorf("process.config.url is required for webhook processes")
		}
		if err := validateWebhookURL(rawURL); err != nil {
			return fmt.Errorf("invalid process.config.url: %w", err)
		}
	}

	if req.Analytics != nil {
		switch req.Analytics.Type {
		case "", "count", "rate":
		default:
			return fmt.Errorf("analytics.type must be count or rate")
		}
		if req.Analytics.WindowSeconds < 0 || req.Analytics.RetentionSeconds < 0 {
			return fmt.Errorf("analytics windows must be non-negative")
		}
	}

	return nil
}

func validateWebhookURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
