package model

import (
	"encoding/json"
	"fmt"
	"io"
)

// ParseTask decodes a single task JSON object from r.
func ParseTask(r io.Reader) (*TaskRecord, error) {
	var task TaskRecord
	if err := json.NewDecoder(r).Decode(&task); err != nil {
		return nil, fmt.Errorf("failed to decode task json: %w", err)
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}
	return &task, nil
}

// ParseTasks decodes a stream of task JSON values from r. It accepts either
// a single JSON array or a sequence of concatenated objects, which is what
// hook-style callers pipe in.
func ParseTasks(r io.Reader) ([]*TaskRecord, error) {
	decoder := json.NewDecoder(r)

	var tasks []*TaskRecord
	for {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to decode task json: %w", err)
		}

		if len(raw) > 0 && raw[0] == '[' {
			var batch []*TaskRecord
			if err := json.Unmarshal(raw, &batch); err != nil {
				return nil, fmt.Errorf("failed to decode task array: %w", err)
			}
			tasks = append(tasks, batch...)
			continue
		}

		var task TaskRecord
		if err := json.Unmarshal(raw, &task); err != nil {
			return nil, fmt.Errorf("failed to decode task json: %w", err)
		}
		tasks = append(tasks, &task)
	}

	for _, task := range tasks {
		if err := task.Validate(); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}
