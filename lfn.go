package fat32

import "github.com/fatcrawl/fat32/internal/utf16x"

// groupUTF16 splits units into 13-code-unit LFN part payloads. The final
// group is padded with a 0x0000 terminator then 0xFFFF filler, and if the
// name length is an exact multiple of 13, an extra all-terminator part is
// appended to carry it.
func groupUTF16(units []uint16) [][13]uint16 {
	var groups [][13]uint16

	n := len(units)
	for i := 0; i < n; i += 13 {
		var g [13]uint16
		end := i + 13
		if end > n {
			end = n
		}
		copy(g[:], units[i:end])

		filled := end - i
		if filled < 13 {
			g[filled] = 0x0000
			for j := filled + 1; j < 13; j++ {
				g[j] = 0xFFFF
			}
		}
		groups = append(groups, g)
	}

	if n%13 == 0 {
		var g [13]uint16
		for j := 1; j < 13; j++ {
			g[j] = 0xFFFF
		}
		groups = append(groups, g)
	}

	return groups
}

// encodeLFNChain builds the raw 32-byte LFN parts for longName, already in
// on-disk write order (highest ordinal first), each stamped with
// checksum.
func encodeLFNChain(longName string, checksum byte) [][]byte {
	groups := groupUTF16(utf16x.Encode(longName))
	n := len(groups)

	entries := make([][]byte, 0, n)
	for i := n; i >= 1; i-- {
		var e lfnEntry
		seq := byte(i)
		if i == n {
			seq |= lfnLastPartFlag
		}
		e.Sequence = seq
		e.Checksum = checksum
		setChars(&e, groups[i-1])
		entries = append(entries, e.encode())
	}
	return entries
}

// lfnAccumulator reconstructs a long name from LFN parts encountered in
// on-disk order (highest ordinal first); each new part is prepended
// because parts are stored in reverse order.
type lfnAccumulator struct {
	text        string
	checksum    byte
	have        bool
	mismatch    bool
	expectedSeq int
}

func (a *lfnAccumulator) reset() { *a = lfnAccumulator{} }

// add folds one more LFN part into the accumulator. Sequencing is not
// strictly validated against gaps (a missing or out-of-order part simply
// produces a garbled name, which is tolerated rather than fatal).
func (a *lfnAccumulator) add(e lfnEntry) {
	units := e.chars()
	n := 13
	for i, u := range units {
		if u == 0x0000 {
			n = i
			break
		}
	}
	fragment := utf16x.Decode(units[:n])

	if a.have && a.checksum != e.Checksum {
		a.mismatch = true
	}
	a.checksum = e.Checksum
	a.have = true
	a.text = fragment + a.text
}

func (a *lfnAccumulator) empty() bool { return !a.have }
