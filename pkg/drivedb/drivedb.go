// Package drivedb implements the optional "-B [+]<file>" drive-database
// augmentation of §6: a YAML table mapping a model/firmware regex pair to
// a set of per-device directive presets, applied to a probed device's
// config the same way a matching config line's own directives would be,
// via pkg/config.ApplyDirectives.
package drivedb

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	rterrors "github.com/stratastor/smartmond/internal/errors"
)

// Entry is one drive-database row: a model (and optional firmware)
// regex, plus the directive tokens to apply when a probed device
// matches.
type Entry struct {
	Model    string   `yaml:"model"`
	Firmware string   `yaml:"firmware,omitempty"`
	Presets  []string `yaml:"presets"`
	Warning  string   `yaml:"warning,omitempty"`

	modelRe    *regexp.Regexp
	firmwareRe *regexp.Regexp
}

// DB is a compiled drive database: built-in defaults, optionally
// replaced or augmented by a user-supplied file.
type DB struct {
	entries []Entry
}

// defaultEntries is the built-in table "-B +<file>" augments and a bare
// "-B <file>" (no "+") replaces outright. It is intentionally small: a
// handful of the same representative entries smartctl's own drivedb.h
// carries for common consumer drive families, not a full transcription
// of that multi-thousand-line table.
var defaultEntries = []Entry{
	{
		Model:   `^(ST|WDC WD|HGST|TOSHIBA).*`,
		Presets: []string{"-H", "-f", "-t", "-C", "197", "-U", "198"},
		Warning: "generic consumer SATA preset",
	},
	{
		Model:   `^Samsung SSD.*`,
		Presets: []string{"-H", "-l", "selftest"},
		Warning: "generic SSD preset, no spin-up/pending-sector attributes",
	},
}

// Default returns the built-in drive database.
func Default() *DB {
	db := &DB{entries: append([]Entry(nil), defaultEntries...)}
	if err := db.compile(); err != nil {
		// the built-in table is compiled afresh on every call to
		// Default(); a bad regex here is a programming error, not a
		// runtime condition to recover from.
		panic(err)
	}
	return db
}

// Load reads path as a YAML list of Entry and compiles it. augment
// decides whether the result is merged on top of the built-in defaults
// ("-B +<file>") or used in place of them ("-B <file>").
func Load(path string, augment bool) (*DB, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, rterrors.Wrap(err, rterrors.ConfigUnreadable).WithMetadata("path", path)
	}

	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, rterrors.Wrap(err, rterrors.ConfigSyntax).WithMetadata("path", path)
	}

	db := &DB{}
	if augment {
		db.entries = append(db.entries, defaultEntries...)
	}
	db.entries = append(db.entries, entries...)

	if err := db.compile(); err != nil {
		return nil, rterrors.Wrap(err, rterrors.ConfigSyntax).WithMetadata("path", path)
	}
	return db, nil
}

func (db *DB) compile() error {
	for i := range db.entries {
		e := &db.entries[i]
		re, err := regexp.Compile(e.Model)
		if err != nil {
			return fmt.Errorf("drivedb entry %d: bad model regex %q: %w", i, e.Model, err)
		}
		e.modelRe = re
		if e.Firmware != "" {
			fre, err := regexp.Compile(e.Firmware)
			if err != nil {
				return fmt.Errorf("drivedb entry %d: bad firmware regex %q: %w", i, e.Firmware, err)
			}
			e.firmwareRe = fre
		}
	}
	return nil
}

// Lookup returns the last entry whose model (and firmware, if the entry
// specifies one) regex matches, later entries in the table taking
// priority over earlier ones -- the same "last match wins" rule
// smartctl's own drivedb.h uses for a file that's been augmented.
func (db *DB) Lookup(model, firmware string) (Entry, bool) {
	var best Entry
	found := false
	for _, e := range db.entries {
		if !e.modelRe.MatchString(model) {
			continue
		}
		if e.firmwareRe != nil && !e.firmwareRe.MatchString(firmware) {
			continue
		}
		best = e
		found = true
	}
	return best, found
}
