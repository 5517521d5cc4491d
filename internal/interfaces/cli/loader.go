package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/garyjia/admissions-workflow/internal/domain/workflow"
)

// LoadSubmission decodes one workflow submission from YAML. Unknown keys are
// rejected so a misspelled field does not silently drop a condition.
func LoadSubmission(r io.Reader) (workflow.Submission, error) {
	var sub workflow.Submission

	data, err := io.ReadAll(r)
	if err != nil {
		return sub, fmt.Errorf("read workflow file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return sub, fmt.Errorf("workflow file is empty")
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sub); err != nil && !errors.Is(err, io.EOF) {
		return sub, fmt.Errorf("decode workflow file: %w", err)
	}
	return sub, nil
}

// LoadSubmissionFile reads a submission from path
func LoadSubmissionFile(path string) (workflow.Submission, error) {
	f, err := os.Open(path)
	if err != nil {
		return workflow.Submission{}, fmt.Errorf("open workflow file: %w", err)
	}
	defer f.Close()
	return LoadSubmission(f)
}

// CheckSubmission runs the same field, temp id and graph checks the service
// runs before persisting, without touching storage.
func CheckSubmission(sub workflow.Submission, newID func() string) workflow.ValidationResult {
	errs := sub.CheckFields()

	stages, transitions, resolveErrs := workflow.Resolve(sub.Stages, sub.Transitions, newID)
	errs = append(errs, resolveErrs...)

	result := workflow.Validate(stages, transitions)
	result.Errors = append(errs, result.Errors...)
	return result
}
