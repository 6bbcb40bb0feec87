// Package swiftaddr computes production Swift container and path
// addresses (spec section 4.4).
package swiftaddr

import (
	"crypto/md5"
	"fmt"
	"strings"

	"github.com/wikimedia/operations-software-mediabackups/internal/filerecord"
)

// projectForWiki derives the project segment of a container name from a
// wiki's suffix, e.g. "enwiki" -> "wikipedia", "commonswiki" -> "wikipedia".
func projectForWiki(wiki string) string {
	switch {
	case strings.HasSuffix(wiki, "wiki") && wiki != "wikidatawiki":
		return "wikipedia"
	case wiki == "wikidatawiki":
		return "wikidata"
	case strings.HasSuffix(wiki, "wiktionary"):
		return "wiktionary"
	case strings.HasSuffix(wiki, "wikibooks"):
		return "wikibooks"
	case strings.HasSuffix(wiki, "wikinews"):
		return "wikinews"
	case strings.HasSuffix(wiki, "wikiquote"):
		return "wikiquote"
	case strings.HasSuffix(wiki, "wikisource"):
		return "wikisource"
	case strings.HasSuffix(wiki, "wikiversity"):
		return "wikiversity"
	case strings.HasSuffix(wiki, "wikivoyage"):
		return "wikivoyage"
	default:
		return wiki
	}
}

func wikiPrefix(wiki, project string) string {
	if project == "commons" || project == "wikidata" {
		return project
	}
	trimmed := wiki
	for _, suffix := range []string{"wiktionary", "wikibooks", "wikinews", "wikiquote", "wikisource", "wikiversity", "wikivoyage", "wiki"} {
		if strings.HasSuffix(trimmed, suffix) {
			trimmed = strings.TrimSuffix(trimmed, suffix)
			break
		}
	}
	return strings.ReplaceAll(trimmed, "_", "-")
}

// containerBase returns the unsharded container name for (wiki, status).
// "archived" shares the "public" container.
func containerBase(wiki string, status filerecord.Status) string {
	project := projectForWiki(wiki)
	prefix := wikiPrefix(wiki, project)
	effective := status
	if effective == filerecord.StatusArchived {
		effective = filerecord.StatusPublic
	}
	return fmt.Sprintf("%s-%s-local-%s", project, prefix, effective)
}

// shardSuffix computes the two-character shard appended to a big wiki's
// container name.
func shardSuffix(status filerecord.Status, title, storedName string) string {
	if status == filerecord.StatusDeleted {
		if len(storedName) >= 2 {
			return strings.ToLower(storedName[:2])
		}
		return "00"
	}
	sum := md5.Sum([]byte(title))
	return fmt.Sprintf("%02x", sum[0])
}

// Addresses computes the (container, path) pair for a file. bigWiki
// selects the operator-configured sharded-container scheme (spec
// section 4.4, mbconfig.Config.BigWikis) over a single unsharded
// container.
//
// It returns (container, "") if storedName is empty, and (nil-equivalent
// "", "") if title is empty for a non-deleted file, matching the
// reference implementation's optionality rules via empty-string sentinels
// ("" stands for SQL NULL throughout this package).
func Addresses(wiki string, status filerecord.Status, title, storedName, sha1 string, bigWiki bool) (container, path string) {
	if status != filerecord.StatusDeleted && title == "" {
		return "", ""
	}
	container = containerBase(wiki, status)
	if bigWiki {
		container = container + "." + shardSuffix(status, title, storedName)
	}
	if storedName == "" {
		return container, ""
	}

	switch status {
	case filerecord.StatusPublic, filerecord.StatusArchived:
		m0, m1 := mwHashChars(storedName)
		if status == filerecord.StatusArchived {
			path = fmt.Sprintf("archive/%s/%s%s/%s", m0, m0, m1, storedName)
		} else {
			path = fmt.Sprintf("%s/%s%s/%s", m0, m0, m1, storedName)
		}
	case filerecord.StatusDeleted:
		s0, s1, s2 := deletedHashChars(storedName)
		path = fmt.Sprintf("%s/%s/%s/%s", s0, s1, s2, storedName)
	default:
		return container, ""
	}
	return container, path
}

// mwHashChars returns MediaWiki's 2-level hash directory components,
// computed from the MD5 of storedName the way MediaWiki's hashed storage
// backend does it.
func mwHashChars(storedName string) (m0, m1 string) {
	sum := md5.Sum([]byte(storedName))
	hx := fmt.Sprintf("%x", sum)
	return string(hx[0]), string(hx[1])
}

// deletedHashChars returns the first three characters of storedName,
// which for deleted files is itself a sha1-base36-derived name.
func deletedHashChars(storedName string) (s0, s1, s2 string) {
	padded := storedName
	for len(padded) < 3 {
		padded += "0"
	}
	return string(padded[0]), string(padded[1]), string(padded[2])
}

// ContainerToWiki parses a container stem (without the optional shard
// suffix) back to a wiki id. It is the best-effort inverse of
// containerBase and is used only by operator tooling (e.g. to display
// which wiki a backup row's production container belongs to); it is not
// guaranteed to invert every project's prefix perfectly.
func ContainerToWiki(container string) (wiki string, ok bool) {
	parts := strings.SplitN(container, "-", 3)
	if len(parts) < 2 {
		return "", false
	}
	project, prefix := parts[0], parts[1]
	switch project {
	case "commons":
		return "commonswiki", true
	case "wikidata":
		return "wikidatawiki", true
	case "wikipedia":
		return prefix + "wiki", true
	case "wiktionary", "wikibooks", "wikinews", "wikiquote", "wikisource", "wikiversity", "wikivoyage":
		return prefix + project, true
	default:
		return "", false
	}
}
