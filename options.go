package fat32

import (
	"log/slog"
	"os"
)

// Logger is the structured logger used for non-fatal diagnostics (FAT
// divergence downgraded to a warning in scan mode, LFN checksum
// mismatches, scandisk findings). Threaded explicitly through Options
// rather than held at package scope.
type Logger = *slog.Logger

// Options configures a Volume at construction time.
type Options struct {
	// Logger receives structured diagnostics. If nil, a text handler
	// writing to standard error is used.
	Logger Logger

	// SkipChecks bypasses boot-sector structural validation, allowing
	// non-standard images to be opened.
	SkipChecks bool

	// ScanMode downgrades a FatCopiesDivergedError at open time to a
	// logged warning instead of a fatal error.
	ScanMode bool

	// ReadOnly makes Create, Mkdir and file writes fail with
	// ErrPermissionDenied, and makes Scandisk skip its closing FSInfo
	// update. Scandisk's repair passes do not consult it: a pass that finds
	// a defect writes its repair to the image.
	ReadOnly bool
}

func (o Options) logger() Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}
