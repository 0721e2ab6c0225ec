package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// Validate checks that every task type in required is registered exactly
// once, that input schemas compile, that timeouts parse, and that every
// declared error code is one of errorCodes. All problems are returned
// together.
func (r *ActivityRegistry) Validate(required, errorCodes []string) error {
	if r == nil || len(r.Activities) == 0 {
		return errors.New("registry contains no activities")
	}

	known := make(map[string]bool, len(errorCodes))
	for _, c := range errorCodes {
		known[c] = true
	}

	var problems []error
	ids := make(map[string]bool)
	tasks := make(map[string]bool)
	for _, a := range r.Activities {
		switch {
		case a.ID == "":
			problems = append(problems, fmt.Errorf("activity for task %q has no id", a.TaskType))
		case ids[a.ID]:
			problems = append(problems, fmt.Errorf("duplicate activity id %s", a.ID))
		}
		ids[a.ID] = true

		if a.TaskType == "" {
			problems = append(problems, fmt.Errorf("activity %s has no taskType", a.ID))
		} else if tasks[a.TaskType] {
			problems = append(problems, fmt.Errorf("task type %s registered twice", a.TaskType))
		}
		tasks[a.TaskType] = true

		if a.Timeout != "" {
			if d, err := time.ParseDuration(a.Timeout); err != nil || d <= 0 {
				problems = append(problems, fmt.Errorf("activity %s: invalid timeout %q", a.ID, a.Timeout))
			}
		}
		if a.Retries < 0 {
			problems = append(problems, fmt.Errorf("activity %s: negative retries", a.ID))
		}
		if len(a.InputSchema) > 0 {
			if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(a.InputSchema)); err != nil {
				problems = append(problems, fmt.Errorf("activity %s: input schema: %w", a.ID, err))
			}
		}
		for _, code := range a.ErrorCodes {
			if len(known) > 0 && !known[code] {
				problems = append(problems, fmt.Errorf("activity %s: unknown error code %s", a.ID, code))
			}
		}
	}

	for _, task := range required {
		if !tasks[task] {
			problems = append(problems, fmt.Errorf("task type %s is not registered", task))
		}
	}
	return errors.Join(problems...)
}

// Set updates one field of the activity with the given id.
func (r *ActivityRegistry) Set(id, field, value string) error {
	var a *Activity
	for i := range r.Activities {
		if r.Activities[i].ID == id {
			a = &r.Activities[i]
			break
		}
	}
	if a == nil {
		return fmt.Errorf("activity with ID %s not found", id)
	}

	switch field {
	case "status":
		a.ImplementationStatus = value
	case "version":
		a.Version = value
	case "description":
		a.Description = value
	case "timeout":
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid timeout value: %w", err)
		}
		a.Timeout = value
	case "retries":
		retries, err := strconv.Atoi(value)
		if err != nil || retries < 0 {
			return fmt.Errorf("invalid retries value %q", value)
		}
		a.Retries = retries
	default:
		return fmt.Errorf("unknown field: %s", field)
	}
	return nil
}

// Save writes the registry as indented JSON, stamping LastUpdated with now.
func (r *ActivityRegistry) Save(path string, now time.Time) error {
	r.LastUpdated = now.Format("2006-01-02")
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}
