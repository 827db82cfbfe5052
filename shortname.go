package fat32

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"golang.org/x/text/encoding/charmap"
)

// cp866Encoder maps sanitized short-name runes (already restricted to the
// allowed charset below) to their code-page-866 byte. golang.org/x/text
// already ships this table, so there is no reason to hand-roll the
// Cyrillic mapping.
var cp866Encoder = charmap.CodePage866.NewEncoder()

// isAllowedShortNameRune reports whether r may appear, unescaped, in a
// generated 8.3 short name.
func isAllowedShortNameRune(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= 'А' && r <= 'Я': // U+0410 - U+042F
		return true
	case r == 'Ё':
		return true
	}
	switch r {
	case '!', '#', '$', '%', '&', '\'', '(', ')', '-', '@', '^', '_', '`', '{', '}', '~':
		return true
	}
	return false
}

// sanitizeShortNameRunes uppercases s and replaces every rune outside the
// allowed set with '_'.
func sanitizeShortNameRunes(s string) string {
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToUpper(r)
		if !isAllowedShortNameRune(r) {
			r = '_'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// splitNameExt divides a long name into its base and extension: the
// extension is the last '.'-separated suffix (or empty if there is none);
// every other dot in the name is simply dropped.
func splitNameExt(longName string) (base, ext string) {
	idx := strings.LastIndexByte(longName, '.')
	if idx < 0 {
		return strings.ReplaceAll(longName, ".", ""), ""
	}
	base = strings.ReplaceAll(longName[:idx], ".", "")
	ext = longName[idx+1:]
	return base, ext
}

// encodeCP866 transcodes a sanitized (already charset-restricted) string
// into code-page-866 bytes. Every rune in the allowed set maps cleanly;
// any rune that somehow doesn't (there should be none, given
// sanitizeShortNameRunes) falls back to '_'.
func encodeCP866(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		b, err := cp866Encoder.Bytes([]byte(string(r)))
		if err != nil || len(b) != 1 {
			out = append(out, '_')
			continue
		}
		out = append(out, b[0])
	}
	return out
}

// pack11 builds the padded 11-byte on-disk name field from an (already
// sanitized, cp866-encoded) name of at most 8 bytes and extension of at
// most 3 bytes.
func pack11(name, ext []byte) [11]byte {
	var out [11]byte
	for i := range out {
		out[i] = ' '
	}
	copy(out[0:8], name)
	copy(out[8:11], ext)
	return out
}

// ShortNameOf formats an 11-byte packed name as "NAME.EXT" (or just
// "NAME" if the extension is empty), trimming padding from both sides.
func ShortNameOf(packed [11]byte) string {
	name := strings.TrimRight(string(packed[0:8]), " ")
	ext := strings.TrimRight(string(packed[8:11]), " ")
	if ext == "" {
		return name
	}
	return name + "." + ext
}

// GenerateShortName derives an 8.3 short name for longName that does not
// collide with any of existing (already-packed sibling short names). If
// the base name fits within 8 bytes and does not collide, it is used
// unchanged; otherwise a numeric tail FIRST6~k is tried for k in 1..9, and
// if all nine still collide a hashed 4-hex-digit tail is tried (see
// DESIGN.md) before giving up with ErrShortNameExhausted.
func GenerateShortName(longName string, existing [][11]byte) ([11]byte, error) {
	base, ext := splitNameExt(longName)

	sanitizedBase := sanitizeShortNameRunes(base)
	sanitizedExt := sanitizeShortNameRunes(ext)

	extBytes := encodeCP866(sanitizedExt)
	if len(extBytes) > 3 {
		extBytes = extBytes[:3]
	}

	baseRunes := []rune(sanitizedBase)

	collides := func(candidate [11]byte) bool {
		for _, e := range existing {
			if e == candidate {
				return true
			}
		}
		return false
	}

	if len(baseRunes) <= 8 {
		nameBytes := encodeCP866(string(baseRunes))
		candidate := pack11(nameBytes, extBytes)
		if !collides(candidate) {
			return candidate, nil
		}
	}

	head := baseRunes
	if len(head) > 6 {
		head = head[:6]
	}
	headBytes := encodeCP866(string(head))

	for k := 1; k <= 9; k++ {
		tail := fmt.Sprintf("~%d", k)
		nameBytes := append(append([]byte{}, headBytes...), []byte(tail)...)
		candidate := pack11(nameBytes, extBytes)
		if !collides(candidate) {
			return candidate, nil
		}
	}

	// Fall back to a hashed 4-hex-digit tail instead of giving up
	// immediately.
	for attempt := 0; attempt < 16; attempt++ {
		h := fnv.New32a()
		h.Write([]byte(longName))
		h.Write([]byte{byte(attempt)})
		tail := fmt.Sprintf("~%04X", h.Sum32()&0xFFFF)

		headShort := head
		if len(headShort) > 3 {
			headShort = headShort[:3]
		}
		nameBytes := append(encodeCP866(string(headShort)), []byte(tail)...)
		if len(nameBytes) > 8 {
			nameBytes = nameBytes[:8]
		}
		candidate := pack11(nameBytes, extBytes)
		if !collides(candidate) {
			return candidate, nil
		}
	}

	return [11]byte{}, &ShortNameExhaustedError{LongName: longName}
}

// ShortNameExhaustedError reports that no collision-free short name could
// be generated for LongName.
type ShortNameExhaustedError struct {
	LongName string
}

func (e *ShortNameExhaustedError) Error() string {
	return fmt.Sprintf("could not generate a unique short name for %q", e.LongName)
}

func (e *ShortNameExhaustedError) Is(target error) bool { return target == ErrShortNameExhausted }

// validateUserName rejects characters that cannot legally appear in a
// user-supplied name at all, independent of short-name generation: '<',
// '>', ':', '"', '/', '\', '|', '?', '*' and control bytes.
func validateUserName(name string) error {
	for _, r := range name {
		if r < 0x20 {
			return &InvalidNameError{Char: r}
		}
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			return &InvalidNameError{Char: r}
		}
	}
	return nil
}
