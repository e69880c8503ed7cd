package observability

import (
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String("method", method)
}

// pathAttr normalizes request paths to avoid unbounded label cardinality
// from per-job identifiers.
func pathAttr(path string) attribute.KeyValue {
	return attribute.String("path", normalizePath(path))
}

// statusAttr groups status codes by class (2xx, 4xx, 5xx) to keep
// cardinality low.
func statusAttr(code int) attribute.KeyValue {
	class := strconv.Itoa(code/100) + "xx"
	return attribute.String("status", class)
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool("success", success)
}

// normalizePath replaces model identifiers and artifact names in known
// routes with placeholders.
func normalizePath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")

	if len(parts) >= 3 && parts[0] == "v1" && parts[1] == "models" {
		parts[2] = "{modelId}"
		if len(parts) >= 5 && parts[3] == "artifacts" {
			parts[4] = "{artifact}"
		}
		return "/" + strings.Join(parts, "/")
	}

	return path
}
