// cmd/secrets/stdin.go
package secrets

import (
	"bufio"
	"os"
	"strings"

	cerr "github.com/cockroachdb/errors"
)

// readValueFromStdin reads one line from stdin; trailing newline trimmed.
func readValueFromStdin() (string, error) {
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", cerr.Wrap(err, "failed to read secret value from stdin")
	}
	return strings.TrimRight(line, "\r\n"), nil
}
