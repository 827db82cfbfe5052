// Package fat32 implements a self-contained engine for reading, mutating
// and repairing a FAT32 filesystem stored as a single image file or block
// device.
//
// The package is organized as a small stack of layers, each depending only
// on the ones below it: Image I/O (image.go), volume metadata (geometry.go),
// the FAT table (fat.go), directory/file encode-decode (file.go, write.go,
// lfn.go, shortname.go, date.go) and the scandisk repair passes
// (scandisk.go). Volume ties all of these together and exposes an
// afero.Fs-compatible surface for an interactive browser built on top.
package fat32
