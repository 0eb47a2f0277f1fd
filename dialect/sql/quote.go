package sql

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// QuoteIdentifier quotes every dot separated part of a possibly schema
// qualified name: public.users becomes "public"."users".
func QuoteIdentifier(name string) (string, error) {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if p == "" {
			return "", fmt.Errorf("dialect/sql: invalid identifier %q", name)
		}
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, "."), nil
}
