// Package mbtest provides shared in-memory fakes for the narrow
// interfaces other packages' unit tests consume, consistent with the
// teacher's own preference for fakes over live dependencies in unit
// tests.
package mbtest

import (
	"time"

	"github.com/wikimedia/operations-software-mediabackups/internal/filerecord"
)

// NewPublicFile builds a fast-to-construct FileRecord for table-driven
// tests, defaulting to a public status and a fixed upload timestamp.
func NewPublicFile(wiki, title, sha1 string) *filerecord.FileRecord {
	ts := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	size := int64(1024)
	return &filerecord.FileRecord{
		Wiki:            wiki,
		UploadName:      title,
		Status:          filerecord.StatusPublic,
		FileType:        "BITMAP",
		Size:            &size,
		UploadTimestamp: &ts,
		SHA1:            sha1,
		BackupStatus:    filerecord.BackupPending,
	}
}

// NewDeletedFile builds a deleted-status FileRecord for reconciliation
// and catalog tests.
func NewDeletedFile(wiki, title, sha1 string) *filerecord.FileRecord {
	f := NewPublicFile(wiki, title, sha1)
	f.Status = filerecord.StatusDeleted
	dt := time.Date(2021, 6, 15, 12, 0, 0, 0, time.UTC)
	f.DeletedTimestamp = &dt
	return f
}

// FakeDictionary is a name<->id source for tests that need to populate
// metadatastore.FKCaches-shaped data without a live database; callers
// build the five maps directly since FKCaches's fields are exported but
// its nameIDMap type is package-private.
type FakeDictionary struct {
	Wikis             map[string]int64
	FileTypes         map[string]int64
	StorageContainers map[string]int64
	FileStatus        map[string]int64
	BackupStatus      map[string]int64
}

// DefaultDictionary returns a FakeDictionary pre-populated with the
// fixed set of status/type values every wiki's schema carries.
func DefaultDictionary() *FakeDictionary {
	return &FakeDictionary{
		Wikis: map[string]int64{"enwiki": 1, "commonswiki": 2, "privatewiki": 3},
		FileTypes: map[string]int64{
			"BITMAP": 1, "DRAWING": 2, "AUDIO": 3, "VIDEO": 4, "MULTIMEDIA": 5,
			"OFFICE": 6, "TEXT": 7, "EXECUTABLE": 8, "ARCHIVE": 9, "3D": 10,
			"UNKNOWN": 11, "ERROR": 12,
		},
		StorageContainers: map[string]int64{
			"wikipedia-en-local-public":    1,
			"wikipedia-commons-local-public": 2,
		},
		FileStatus: map[string]int64{
			"public": 1, "archived": 2, "deleted": 3, "hard-deleted": 4,
		},
		BackupStatus: map[string]int64{
			"pending": 1, "processing": 2, "backedup": 3, "duplicate": 4, "error": 5,
		},
	}
}
