package log

import (
	"bufio"
	"reflect"
	"strings"

	"github.com/keboola/go-utils/pkg/wildcards"
	"github.com/stretchr/testify/assert"

	"github.com/keboola/cluster-scheduler/internal/pkg/encoding/json"
	"github.com/keboola/cluster-scheduler/internal/pkg/utils/errors"
)

// CompareJSONMessages checks that each expected JSON line matches an actual JSON line, in the same order.
// An expected line matches if all its keys are present in the actual line.
// String values may contain wildcards, for example "%s" or "%d".
func CompareJSONMessages(expected string, actual string) error {
	actualScanner := bufio.NewScanner(strings.NewReader(strings.Trim(actual, "\n")))
	expectedScanner := bufio.NewScanner(strings.NewReader(strings.Trim(expected, "\n")))
	for expectedScanner.Scan() {
		expectedLine := expectedScanner.Text()
		var expectedData map[string]any
		if err := json.DecodeString(expectedLine, &expectedData); err != nil {
			return errors.Wrapf(err, "expected string contains invalid json:\n%s", expectedLine)
		}

		var skipped strings.Builder
		found := false
		for !found && actualScanner.Scan() {
			actualLine := actualScanner.Text()
			skipped.WriteString(actualLine)
			skipped.WriteString("\n")

			var actualData map[string]any
			if err := json.DecodeString(actualLine, &actualData); err != nil {
				return errors.Wrapf(err, "actual string contains invalid json:\n%s", actualLine)
			}
			found = messageMatches(expectedData, actualData)
		}

		if !found {
			return errors.Errorf(
				"Expected:\n-----\n%s\n-----\nActual:\n-----\n%s",
				expectedLine,
				strings.TrimRight(skipped.String(), "\n"),
			)
		}
	}
	return nil
}

func AssertJSONMessages(t assert.TestingT, expected string, actual string, msgAndArgs ...any) bool {
	if err := CompareJSONMessages(expected, actual); err != nil {
		return assert.Fail(t, err.Error(), msgAndArgs...)
	}
	return true
}

func messageMatches(expected, actual map[string]any) bool {
	for key, value := range expected {
		actualValue, ok := actual[key]
		if !ok || !valueMatches(value, actualValue) {
			return false
		}
	}
	return true
}

func valueMatches(expected any, actual any) bool {
	if expectedStr, ok := expected.(string); ok {
		actualStr, ok := actual.(string)
		return ok && wildcards.Compare(expectedStr, actualStr) == nil
	}
	return reflect.DeepEqual(expected, actual)
}
