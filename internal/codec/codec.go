// Package codec decodes uploaded artifact files into payloads.
//
// An upload is a (filename, contents) pair. The filename carries the session
// seed and the target slot as {name}_{seed}_exp{slot}.txt; the contents are a
// browser data URL, "<prefix>,<base64>", whose decoded body is the UTF-8
// derivation string.
package codec

import (
	"encoding/base64"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spaceshipgen/comparator/internal/domain"
)

var slotField = regexp.MustCompile(`^exp([1-3])\.txt$`)

// Decode parses one uploaded file. It has no side effects.
func Decode(filename, contents string) (domain.Payload, error) {
	seed, slot, err := parseFilename(filename)
	if err != nil {
		return domain.Payload{}, err
	}
	derivation, err := decodeBody(contents)
	if err != nil {
		return domain.Payload{}, err
	}
	return domain.Payload{
		Filename:   filename,
		Seed:       seed,
		Slot:       slot,
		Derivation: derivation,
	}, nil
}

// DecodeAll decodes every file of an upload event. Files that fail are
// reported individually and do not prevent the others from decoding.
func DecodeAll(files []domain.UploadFile) ([]domain.Payload, []*domain.ItemError) {
	payloads := make([]domain.Payload, 0, len(files))
	var failures []*domain.ItemError
	for _, f := range files {
		p, err := Decode(f.Name, f.Contents)
		if err != nil {
			failures = append(failures, &domain.ItemError{Filename: f.Name, Err: err})
			continue
		}
		payloads = append(payloads, p)
	}
	return payloads, failures
}

func parseFilename(filename string) (domain.Seed, domain.Slot, error) {
	base := filepath.Base(filepath.FromSlash(filename))
	fields := strings.Split(base, "_")
	if len(fields) != 3 {
		return "", 0, formatError("filename %q must have three underscore-delimited fields", base)
	}
	seed, err := domain.ParseSeed(fields[1])
	if err != nil {
		return "", 0, formatError("filename %q has invalid seed %q", base, fields[1])
	}
	m := slotField.FindStringSubmatch(fields[2])
	if m == nil {
		return "", 0, formatError("filename %q must end in exp1.txt, exp2.txt or exp3.txt", base)
	}
	n, _ := strconv.Atoi(m[1])
	return seed, domain.Slot(n), nil
}

func decodeBody(contents string) (string, error) {
	parts := strings.Split(contents, ",")
	if len(parts) != 2 {
		return "", formatError("contents must be a single \"<prefix>,<base64>\" pair")
	}
	encoded := strings.TrimSpace(parts[1])
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", formatError("contents are not valid base64: %v", err)
	}
	if !utf8.Valid(raw) {
		return "", formatError("decoded contents are not valid UTF-8")
	}
	return string(raw), nil
}

func formatError(format string, args ...any) error {
	return domain.NewEngineError(domain.ErrFormat.Code, domain.ErrFormat.Message+": "+fmt.Sprintf(format, args...))
}

// DataURL encodes a derivation the way a browser upload presents it.
func DataURL(derivation string) string {
	return "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte(derivation))
}

// FromFile builds the upload for a file read from disk. Contents already in
// data URL form are kept; anything else is taken as the raw derivation.
func FromFile(name string, data []byte) domain.UploadFile {
	contents := string(data)
	if !strings.HasPrefix(contents, "data:") {
		contents = DataURL(strings.TrimRight(contents, "\r\n"))
	}
	return domain.UploadFile{Name: filepath.Base(name), Contents: contents}
}

// IsArtifactName reports whether name looks like an uploadable artifact
// file, without validating the seed.
func IsArtifactName(name string) bool {
	fields := strings.Split(filepath.Base(name), "_")
	return len(fields) == 3 && slotField.MatchString(fields[2])
}
