// Package mbeslog parses eraseArchivedFile.php run logs for
// delete-media-file's optional batch mode (spec section 6). It keeps
// the CLI command itself a thin wrapper, the way the teacher keeps
// cmd/uploc's command files thin over modules/ logic.
package mbeslog

import (
	"bufio"
	"io"
	"regexp"
	"strings"

	"github.com/uplo-tech/errors"
)

// anchorRe matches the mwscript invocation line that starts a deletion
// run for one wiki; the wiki name is captured so subsequent "Deleted
// version" lines in the same run can be attributed to it.
var anchorRe = regexp.MustCompile(`mwscript eraseArchivedFile\.php --wiki=(\S+).*--delete`)

// deletedRe matches one deleted-revision line following an anchor.
var deletedRe = regexp.MustCompile(`Deleted version '(\w+)\..*' \((\d{14})\) of file '(.+)'`)

// Entry is one parsed deletion: the wiki the anchor line named, the
// base-36 sha1 and 14-digit archive timestamp from the stored name, and
// the file title.
type Entry struct {
	Wiki        string
	SHA1Base36  string
	ArchiveTime string
	Title       string
}

// Parse reads r line by line, tracking the most recent anchor line's
// wiki, and emits one Entry per matched "Deleted version" line. A
// "Deleted version" line seen before any anchor line is an error: the
// log is malformed or truncated.
func Parse(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var entries []Entry
	currentWiki := ""
	for scanner.Scan() {
		line := scanner.Text()

		if m := anchorRe.FindStringSubmatch(line); m != nil {
			currentWiki = m[1]
			continue
		}

		if m := deletedRe.FindStringSubmatch(line); m != nil {
			if currentWiki == "" {
				return nil, errors.New("mbeslog: 'Deleted version' line found before any eraseArchivedFile.php anchor line")
			}
			entries = append(entries, Entry{
				Wiki:        currentWiki,
				SHA1Base36:  strings.ToLower(m[1]),
				ArchiveTime: m[2],
				Title:       m[3],
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.AddContext(err, "mbeslog: reading log file")
	}
	return entries, nil
}
