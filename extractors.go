package gpuboard

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/jpalmerr/gpuboard/internal/poller"
)

// TaskExtractor derives the "current task" column from the prompt metadata
// of the first running queue entry (element 2 of queue_running[0]).
//
// TaskExtractor should be a pure function. It returns "" when no task can be
// found; it is never called when nothing is running.
//
// # Panic Safety
//
// TaskExtractor functions are called within a panic recovery boundary. A
// panicking extractor yields an empty task and a log line with a correlation
// ID; the snapshot itself is kept.
type TaskExtractor func(meta []byte) string

// WorkflowTaskExtractor reads widgets_values[0] of the last node in
// extra_pnginfo.workflow.nodes. Strings are kept as-is, numbers and booleans
// are formatted, and objects or arrays yield "".
//
// This matches what ComfyUI UIs usually put in their final node (a prompt or
// an output name).
var WorkflowTaskExtractor TaskExtractor = poller.WorkflowTask

// JSONPathTaskExtractor returns a [TaskExtractor] that reads a single scalar
// at a gjson path inside the prompt metadata.
//
// Paths use dot notation with numeric array indexes and the "#" length
// modifier, for example "extra_pnginfo.workflow.nodes.0.title" or
// "client_id".
//
// Example:
//
//	extractor := gpuboard.JSONPathTaskExtractor("extra_pnginfo.workflow.nodes.3.widgets_values.0")
func JSONPathTaskExtractor(path string) TaskExtractor {
	return func(meta []byte) string {
		if !gjson.ValidBytes(meta) {
			return ""
		}
		return poller.ScalarString(gjson.GetBytes(meta, path))
	}
}

// RegexTaskExtractor returns a [TaskExtractor] that matches the raw metadata
// against a regular expression and returns the first capture group.
//
// Returns an error if the pattern is invalid or has no capture group.
//
// Example:
//
//	extractor, err := gpuboard.RegexTaskExtractor(`"filename_prefix":\s*"([^"]+)"`)
func RegexTaskExtractor(pattern string) (TaskExtractor, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if re.NumSubexp() < 1 {
		return nil, errors.New("pattern must contain a capture group")
	}

	return func(meta []byte) string {
		matches := re.FindSubmatch(meta)
		if len(matches) < 2 {
			return ""
		}
		return string(matches[1])
	}, nil
}

// MustRegexTaskExtractor is like [RegexTaskExtractor] but panics if the
// pattern is invalid.
func MustRegexTaskExtractor(pattern string) TaskExtractor {
	extractor, err := RegexTaskExtractor(pattern)
	if err != nil {
		panic("gpuboard: invalid regex pattern: " + err.Error())
	}
	return extractor
}

// FirstMatch returns a [TaskExtractor] that tries multiple extractors in
// order, returning the first non-empty task.
//
// Example:
//
//	// a dedicated node title first, the default workflow lookup second
//	extractor := gpuboard.FirstMatch(
//	    gpuboard.JSONPathTaskExtractor("extra_pnginfo.workflow.extra.task"),
//	    gpuboard.WorkflowTaskExtractor,
//	)
func FirstMatch(extractors ...TaskExtractor) TaskExtractor {
	return func(meta []byte) string {
		for _, extractor := range extractors {
			if extractor == nil {
				continue
			}
			if task := extractor(meta); task != "" {
				return task
			}
		}
		return ""
	}
}

// DefaultTaskExtractor is the [TaskExtractor] used when none is configured.
var DefaultTaskExtractor = WorkflowTaskExtractor

// ParseTaskExtractor builds a [TaskExtractor] from its textual form, as used
// in configuration files:
//
//   - "" or "default": [DefaultTaskExtractor]
//   - "json:<path>": [JSONPathTaskExtractor]
//   - "regex:<pattern>": [RegexTaskExtractor]
func ParseTaskExtractor(s string) (TaskExtractor, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "" || s == "default":
		return DefaultTaskExtractor, nil
	case strings.HasPrefix(s, "json:"):
		path := strings.TrimSpace(strings.TrimPrefix(s, "json:"))
		if path == "" {
			return nil, errors.New("json task extractor requires a path")
		}
		return JSONPathTaskExtractor(path), nil
	case strings.HasPrefix(s, "regex:"):
		extractor, err := RegexTaskExtractor(strings.TrimPrefix(s, "regex:"))
		if err != nil {
			return nil, fmt.Errorf("invalid regex task extractor: %w", err)
		}
		return extractor, nil
	default:
		return nil, fmt.Errorf("unknown task extractor %q (want default, json:<path> or regex:<pattern>)", s)
	}
}
