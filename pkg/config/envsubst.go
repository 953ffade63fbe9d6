package config

import (
	"os"
	"strings"
)

// ExpandEnv replaces ${VAR_NAME} with environment variable values. Used by
// the tenant file store so credentials can stay out of the YAML on disk.
func ExpandEnv(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
