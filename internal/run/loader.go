package run

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
)

// Load error codes.
const (
	ErrCodeNotFound   = "E201" // file missing or unreadable
	ErrCodeParse      = "E202" // not valid JSON
	ErrCodeMissingKey = "E203" // required top-level key absent
	ErrCodeSchema     = "E204" // document does not match #Run
	ErrCodeTopicCount = "E205" // topic file entry count mismatch
	ErrCodeTurnCount  = "E206" // topic file aggregate turn count mismatch
	ErrCodeTopicData  = "E207" // malformed or duplicate topic entry
)

// LoadError is returned for any failure to load a run or topic file. Load
// errors are always fatal to a validation run.
type LoadError struct {
	Code    string
	Path    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s: %s", e.Code, e.Path, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// IsLoadError reports whether err is, or wraps, a *LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

// requiredRunKeys are checked before schema validation so a missing key is
// reported by name rather than as a schema diff.
var requiredRunKeys = []string{"run_name", "run_type", "turns"}

// LoadRun reads and parses a run submission file.
func LoadRun(path string) (*Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Path: path, Message: "cannot read run file", Err: err}
	}
	r, err := ParseRun(filepath.Base(path), data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.Path = path
		}
		return nil, err
	}
	return r, nil
}

// ParseRun parses a run document. name is used in error positions only.
func ParseRun(name string, data []byte) (*Run, error) {
	var top map[string]any
	if err := sonic.Unmarshal(data, &top); err != nil {
		return nil, &LoadError{Code: ErrCodeParse, Message: "run file is not a JSON object", Err: err}
	}
	for _, key := range requiredRunKeys {
		if _, ok := top[key]; !ok {
			return nil, &LoadError{Code: ErrCodeMissingKey, Message: fmt.Sprintf("missing %s entry", key)}
		}
	}

	if err := checkSchema(name, data); err != nil {
		return nil, &LoadError{Code: ErrCodeSchema, Message: "run file not in the right format", Err: err}
	}

	var r Run
	if err := sonic.Unmarshal(data, &r); err != nil {
		return nil, &LoadError{Code: ErrCodeSchema, Message: "decode run", Err: err}
	}
	return &r, nil
}

// TopicFileName returns the conventional topic file path for an edition,
// e.g. <fileroot>/2024_test_topics.json.
func TopicFileName(fileroot, edition string) string {
	return filepath.Join(fileroot, edition+"_test_topics.json")
}

// LoadTopics reads a topic reference file and checks it against expect.
func LoadTopics(path string, expect TopicExpectations) (*TopicSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Path: path, Message: "topics file not found", Err: err}
	}

	var topics []Topic
	if err := sonic.Unmarshal(data, &topics); err != nil {
		return nil, &LoadError{Code: ErrCodeParse, Path: path, Message: "failed to load topics JSON data", Err: err}
	}

	set, err := NewTopicSet(topics, expect)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.Path = path
		}
		return nil, err
	}
	return set, nil
}
