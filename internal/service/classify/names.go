package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
)

// ErrUnknownClass means the classifier produced an index the name table does
// not know; the model and the table were generated from different datasets.
var ErrUnknownClass = errors.New("class index missing from name table")

// ClassNames maps classifier output indices to card names. It is read-only
// after loading.
type ClassNames struct {
	names map[int]string
}

// LoadClassNames reads a JSON object of the form {"0": "Abomination", ...}.
func LoadClassNames(path string) (*ClassNames, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read class names: %w", err)
	}
	return ParseClassNames(data)
}

func ParseClassNames(data []byte) (*ClassNames, error) {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse class names: %w", err)
	}

	names := make(map[int]string, len(raw))
	for key, name := range raw {
		index, err := strconv.Atoi(key)
		if err != nil || index < 0 {
			return nil, fmt.Errorf("invalid class index %q", key)
		}
		if name == "" {
			return nil, fmt.Errorf("empty class name for index %d", index)
		}
		names[index] = name
	}
	return &ClassNames{names: names}, nil
}

// Name returns the card name for a classifier index.
func (c *ClassNames) Name(index int) (string, error) {
	name, ok := c.names[index]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownClass, index)
	}
	return name, nil
}

func (c *ClassNames) Len() int {
	return len(c.names)
}

// All returns every name in the table, used to check the card store for gaps.
func (c *ClassNames) All() []string {
	out := make([]string, 0, len(c.names))
	for _, name := range c.names {
		out = append(out, name)
	}
	return out
}
