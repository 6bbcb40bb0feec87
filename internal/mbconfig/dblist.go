package mbconfig

import (
	"bufio"
	"os"
	"strings"

	"github.com/uplo-tech/errors"

	"github.com/wikimedia/operations-software-mediabackups/internal/mberrors"
)

// LoadDblists reads every dblist file in paths (one wiki name per line,
// blank lines and "#"-prefixed comments ignored) and returns the
// deduplicated union, in first-seen order.
func LoadDblists(paths []string) ([]string, error) {
	seen := make(map[string]bool)
	var wikis []string
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Extend(err, mberrors.ErrConfig)
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if !seen[line] {
				seen[line] = true
				wikis = append(wikis, line)
			}
		}
		err = scanner.Err()
		f.Close()
		if err != nil {
			return nil, errors.AddContext(err, "mbconfig: reading dblist "+path)
		}
	}
	return wikis, nil
}
