package metadatastore

import (
	"context"
	"database/sql"

	"github.com/uplo-tech/errors"

	"github.com/wikimedia/operations-software-mediabackups/internal/filerecord"
	"github.com/wikimedia/operations-software-mediabackups/internal/mberrors"
)

// nameIDMap is a bi-directional name<->id cache for one normalized
// dictionary table.
type nameIDMap struct {
	nameToID map[string]int64
	idToName map[int64]string
}

func newNameIDMap() nameIDMap {
	return nameIDMap{nameToID: make(map[string]int64), idToName: make(map[int64]string)}
}

func (m nameIDMap) id(name string) (int64, bool) {
	v, ok := m.nameToID[name]
	return v, ok
}

func (m nameIDMap) name(id int64) (string, bool) {
	v, ok := m.idToName[id]
	return v, ok
}

// FKCaches bundles the five normalized dictionary caches. Per spec
// section 9, these are loaded fresh for each operation rather than
// cached process-wide, so schema changes are picked up without a
// restart; callers pass the cache down the call chain instead of
// reaching for a package-level global.
type FKCaches struct {
	Wikis              nameIDMap
	FileTypes          nameIDMap
	StorageContainers  nameIDMap
	FileStatus         nameIDMap
	BackupStatus       nameIDMap
}

// LoadFKs reads the five small normalized tables into bi-directional
// maps.
func (s *Store) LoadFKs(ctx context.Context) (*FKCaches, error) {
	caches := &FKCaches{
		Wikis:             newNameIDMap(),
		FileTypes:         newNameIDMap(),
		StorageContainers: newNameIDMap(),
		FileStatus:        newNameIDMap(),
		BackupStatus:      newNameIDMap(),
	}
	loaders := []struct {
		table, idCol, nameCol string
		dst                   *nameIDMap
	}{
		{"wikis", "id", "wiki_name", &caches.Wikis},
		{"file_types", "id", "type_name", &caches.FileTypes},
		{"storage_containers", "id", "storage_container_name", &caches.StorageContainers},
		{"file_status", "id", "status_name", &caches.FileStatus},
		{"backup_status", "id", "backup_status_name", &caches.BackupStatus},
	}
	for _, l := range loaders {
		if err := s.loadOne(ctx, l.table, l.idCol, l.nameCol, l.dst); err != nil {
			return nil, err
		}
		if len(l.dst.nameToID) == 0 {
			return nil, errors.AddContext(mberrors.ErrDictionaryLoad, l.table)
		}
	}
	return caches, nil
}

func (s *Store) loadOne(ctx context.Context, table, idCol, nameCol string, dst *nameIDMap) error {
	query := "SELECT " + idCol + ", " + nameCol + " FROM " + table
	var rows *sql.Rows
	err := s.withRetry(ctx, func(db *sql.DB) error {
		r, qerr := db.QueryContext(ctx, query)
		if qerr != nil {
			return qerr
		}
		rows = r
		return nil
	})
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return errors.AddContext(err, "metadatastore: scanning "+table)
		}
		dst.nameToID[name] = id
		dst.idToName[id] = name
	}
	return rows.Err()
}

// fileRecordForeignKeys resolves the four string-typed FileRecord fields
// that are normalized columns into their integer ids.
func fileRecordForeignKeys(caches *FKCaches, f *filerecord.FileRecord) (wikiID, fileTypeID, statusID, containerID int64, err error) {
	wikiID, ok := caches.Wikis.id(f.Wiki)
	if !ok {
		return 0, 0, 0, 0, errors.AddContext(mberrors.ErrConfig, "unknown wiki "+f.Wiki)
	}
	fileTypeID, ok = caches.FileTypes.id(f.FileType)
	if !ok {
		fileTypeID, ok = caches.FileTypes.id("ERROR")
		if !ok {
			return 0, 0, 0, 0, errors.AddContext(mberrors.ErrDictionaryLoad, "file_types missing ERROR")
		}
	}
	statusID, ok = caches.FileStatus.id(string(f.Status))
	if !ok {
		return 0, 0, 0, 0, errors.AddContext(mberrors.ErrDictionaryLoad, "file_status missing "+string(f.Status))
	}
	if f.StorageContainer != "" {
		containerID, ok = caches.StorageContainers.id(f.StorageContainer)
		if !ok {
			return 0, 0, 0, 0, errors.AddContext(mberrors.ErrDictionaryLoad, "storage_containers missing "+f.StorageContainer)
		}
	}
	return wikiID, fileTypeID, statusID, containerID, nil
}
