package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// envVarPattern matches ${VAR} and ${VAR:-default} references.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// SubstituteEnvVars replaces ${VAR} references in YAML content with the
// value of the environment variable. ${VAR:-default} falls back to the
// default when VAR is unset or empty. A plain ${VAR} that resolves to
// nothing is an error, so missing credentials fail at load time instead of
// producing a half-empty config.
func SubstituteEnvVars(content string) (string, error) {
	var missing []string

	substituted := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name := groups[1]
		hasDefault := groups[2] != ""

		value := os.Getenv(name)
		if value == "" {
			if hasDefault {
				return groups[3]
			}
			missing = append(missing, name)
			return ""
		}
		return value
	})

	if len(missing) > 0 {
		return substituted, fmt.Errorf(
			"unset environment variables referenced in config: %s",
			strings.Join(missing, ", "),
		)
	}
	return substituted, nil
}
