package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"github.com/fatcrawl/fat32"
)

// runBrowser implements the interactive, line-oriented directory browser:
// help, quit, cd, dir, info, open, type, hex, copyToExternal, copyToImage.
func runBrowser(vol *fat32.Volume) error {
	fmt.Printf("Opened volume %q\n", vol.Label())

	cwd := "/"
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Printf("%s> ", cwd)
		if !scanner.Scan() {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		verb, rest := splitVerb(line)
		var err error

		switch strings.ToLower(verb) {
		case "help":
			printHelp()
		case "quit", "exit":
			return nil
		case "cd":
			var next string
			next, err = changeDir(vol, cwd, rest)
			if err == nil {
				cwd = next
			}
		case "dir":
			err = listDir(vol, cwd, rest)
		case "info":
			err = showInfo(vol, cwd, rest)
		case "open":
			cwd, err = openEntry(vol, cwd, rest)
		case "type":
			err = typeFile(vol, cwd, rest)
		case "hex":
			err = hexDump(vol, cwd, rest)
		case "copytoexternal":
			err = copyToExternal(vol, cwd, rest)
		case "copytoimage":
			err = copyToImage(vol, cwd, rest)
		default:
			fmt.Printf("unknown command %q (try \"help\")\n", verb)
			continue
		}

		if err != nil {
			if isBrowserError(err) {
				fmt.Println("error:", err)
				continue
			}
			return err
		}
	}
}

// isBrowserError reports whether err belongs to the class the browser
// layer itself handles (InvalidName/NotFound/NotADirectory/IsADirectory/
// AlreadyExists); anything else
// (Io, InvalidImage, FatWriteIncomplete) escapes to the caller, which
// aborts the program.
func isBrowserError(err error) bool {
	return errors.Is(err, fat32.ErrInvalidName) ||
		errors.Is(err, fat32.ErrNotFound) ||
		errors.Is(err, fat32.ErrNotADirectory) ||
		errors.Is(err, fat32.ErrIsADirectory) ||
		errors.Is(err, fat32.ErrAlreadyExists)
}

func printHelp() {
	fmt.Println(`commands:
  help
  quit
  cd <path>
  dir [/b] [/s] [path]
  info <file>
  open <file>
  type <encoding> <file>
  hex <file> <line-length>
  copyToExternal <image-path> <external-path>
  copyToImage <external-path> <image-path>`)
}

func splitVerb(line string) (verb, rest string) {
	parts := strings.SplitN(line, " ", 2)
	verb = parts[0]
	if len(parts) > 1 {
		rest = strings.TrimSpace(parts[1])
	}
	return
}

// splitArgs tokenizes rest on spaces, honoring "..."-quoted segments that
// may themselves contain spaces.
func splitArgs(s string) []string {
	var args []string
	var cur strings.Builder
	inQuotes := false

	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == ' ' && !inQuotes:
			if cur.Len() > 0 {
				args = append(args, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		args = append(args, cur.String())
	}
	return args
}

// resolvePath resolves arg (which may use '/' or '\' separators, '.', or
// '..', and may be absolute) against cwd into an absolute slash path.
func resolvePath(cwd, arg string) string {
	arg = strings.ReplaceAll(arg, "\\", "/")
	if arg == "" {
		return cwd
	}

	base := cwd
	if strings.HasPrefix(arg, "/") {
		base = "/"
	}

	joined := strings.Trim(base, "/") + "/" + arg
	var stack []string
	for _, part := range strings.Split(joined, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, part)
		}
	}
	return "/" + strings.Join(stack, "/")
}

func changeDir(vol *fat32.Volume, cwd, rest string) (string, error) {
	args := splitArgs(rest)
	target := cwd
	if len(args) > 0 {
		target = resolvePath(cwd, args[0])
	}

	f, err := vol.Resolve(target)
	if err != nil {
		return "", err
	}
	if !f.IsDir() {
		return "", fmt.Errorf("%s: %w", target, fat32.ErrNotADirectory)
	}
	return target, nil
}

func listDir(vol *fat32.Volume, cwd, rest string) error {
	namesOnly, recursive := false, false
	target := ""

	for _, a := range splitArgs(rest) {
		switch strings.ToLower(a) {
		case "/b":
			namesOnly = true
		case "/s":
			recursive = true
		default:
			target = a
		}
	}

	path := cwd
	if target != "" {
		path = resolvePath(cwd, target)
	}

	dir, err := vol.Resolve(path)
	if err != nil {
		return err
	}
	if !dir.IsDir() {
		return fmt.Errorf("%s: %w", path, fat32.ErrNotADirectory)
	}

	printDir(dir, path, namesOnly, recursive)
	return nil
}

func printDir(dir *fat32.File, path string, namesOnly, recursive bool) {
	for _, c := range dir.Children() {
		if namesOnly {
			fmt.Println(c.Name())
		} else {
			kind := "FILE"
			if c.IsDir() {
				kind = "DIR "
			}
			fmt.Printf("%s %10d  %s\n", kind, c.SizeBytes, c.Name())
		}
		if recursive && c.IsDir() {
			printDir(c, path+"/"+c.Name(), namesOnly, recursive)
		}
	}
}

func showInfo(vol *fat32.Volume, cwd, rest string) error {
	args := splitArgs(rest)
	if len(args) == 0 {
		return fmt.Errorf("usage: info <file>")
	}

	f, err := vol.Resolve(resolvePath(cwd, args[0]))
	if err != nil {
		return err
	}

	fmt.Printf("name:          %s\n", f.Name())
	fmt.Printf("short name:    %s\n", fat32.ShortNameOf(f.ShortName))
	fmt.Printf("directory:     %v\n", f.IsDir())
	fmt.Printf("size:          %d bytes\n", f.SizeBytes)
	fmt.Printf("first cluster: %d\n", f.FirstCluster)
	if f.CreateTimeOK {
		fmt.Printf("created:       %s\n", f.CreateTime)
	}
	if f.ChangeOK {
		fmt.Printf("modified:      %s\n", f.ChangeTime)
	}
	return nil
}

// openEntry changes into the target if it is a directory; otherwise it
// extracts the file to a temporary path and hands it off to an external
// opener.
func openEntry(vol *fat32.Volume, cwd, rest string) (string, error) {
	args := splitArgs(rest)
	if len(args) == 0 {
		return cwd, fmt.Errorf("usage: open <file>")
	}

	path := resolvePath(cwd, args[0])
	f, err := vol.Resolve(path)
	if err != nil {
		return cwd, err
	}
	if f.IsDir() {
		return path, nil
	}

	data, err := vol.ReadFile(f)
	if err != nil {
		return cwd, err
	}

	tmp, err := os.CreateTemp("", "fat32-*-"+f.Name())
	if err != nil {
		return cwd, err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return cwd, err
	}
	tmp.Close()

	if err := launchExternalOpener(tmpPath); err != nil {
		fmt.Println("could not hand off to an external opener:", err)
	}
	return cwd, nil
}

func launchExternalOpener(path string) error {
	var name string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		name, args = "open", []string{path}
	case "windows":
		name, args = "cmd", []string{"/c", "start", "", path}
	default:
		name, args = "xdg-open", []string{path}
	}

	return exec.Command(name, args...).Start()
}

func typeFile(vol *fat32.Volume, cwd, rest string) error {
	args := splitArgs(rest)
	if len(args) != 2 {
		return fmt.Errorf("usage: type <encoding> <file>")
	}

	f, err := vol.Resolve(resolvePath(cwd, args[1]))
	if err != nil {
		return err
	}
	data, err := vol.ReadFile(f)
	if err != nil {
		return err
	}

	text, err := decodeAs(args[0], data)
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

func decodeAs(encName string, data []byte) (string, error) {
	switch strings.ToLower(encName) {
	case "utf8", "utf-8":
		return string(data), nil
	case "cp866":
		out, err := charmap.CodePage866.NewDecoder().Bytes(data)
		return string(out), err
	default:
		return "", fmt.Errorf("unsupported encoding %q", encName)
	}
}

func hexDump(vol *fat32.Volume, cwd, rest string) error {
	args := splitArgs(rest)
	if len(args) != 2 {
		return fmt.Errorf("usage: hex <file> <line-length>")
	}

	lineLen, err := strconv.Atoi(args[1])
	if err != nil || lineLen <= 0 {
		return fmt.Errorf("invalid line length %q", args[1])
	}

	f, err := vol.Resolve(resolvePath(cwd, args[0]))
	if err != nil {
		return err
	}
	data, err := vol.ReadFile(f)
	if err != nil {
		return err
	}

	for off := 0; off < len(data); off += lineLen {
		end := off + lineLen
		if end > len(data) {
			end = len(data)
		}
		fmt.Printf("%08x  % x\n", off, data[off:end])
	}
	return nil
}

func copyToExternal(vol *fat32.Volume, cwd, rest string) error {
	args := splitArgs(rest)
	if len(args) != 2 {
		return fmt.Errorf("usage: copyToExternal <image-path> <external-path>")
	}

	src, err := vol.Resolve(resolvePath(cwd, args[0]))
	if err != nil {
		return err
	}
	if src.IsDir() {
		return fmt.Errorf("%s: %w", args[0], fat32.ErrIsADirectory)
	}

	data, err := vol.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(args[1], data, 0o644)
}

func copyToImage(vol *fat32.Volume, cwd, rest string) error {
	args := splitArgs(rest)
	if len(args) != 2 {
		return fmt.Errorf("usage: copyToImage <external-path> <image-path>")
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	dstPath := resolvePath(cwd, args[1])
	f, err := vol.Resolve(dstPath)
	if err != nil {
		if _, cerr := vol.Create(dstPath); cerr != nil {
			return cerr
		}
		f, err = vol.Resolve(dstPath)
		if err != nil {
			return err
		}
	}
	return vol.WriteFile(f, data)
}
