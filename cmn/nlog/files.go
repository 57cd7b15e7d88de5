/*
 * Copyright (c) 2024, flowrt authors.
 */
package nlog

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

var (
	host string
	pid  int

	logDir string
	role   string
	title  string

	toStderr     bool
	alsoToStderr bool

	nlogs [3]*nlog

	sevText = [3]string{"I", "W", "E"}

	// source files whose own name would otherwise show up in every header
	// line (this package logging about itself, mostly from tests)
	redactFnames = map[string]struct{}{
		"nlog.go": {},
	}

	onceInitFiles sync.Once

	pool sync.Pool
)

func sname() string {
	if role != "" {
		return role
	}
	if title != "" {
		return title
	}
	return "flowrt"
}

func initFiles() {
	host, _ = os.Hostname()
	pid = os.Getpid()

	nlogs[sevInfo] = newNlog(sevInfo)
	nlogs[sevErr] = newNlog(sevErr)

	now := time.Now()
	for _, sev := range []severity{sevInfo, sevErr} {
		nl := nlogs[sev]
		f, _, err := fcreate(sevText[sev], now)
		if err != nil {
			nl.erred.Store(true)
			continue
		}
		nl.file = f
		s := fmt.Sprintf("host %s, %s for %s/%s\n", host, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		if title == "" {
			f.WriteString("Started up at " + now.Format("2006/01/02 15:04:05") + ", " + s)
		} else {
			f.WriteString(title + "\n" + s)
		}
	}
}

// fcreate opens (creating, if need be) the log file for the given severity
// tag under logDir, maintaining a "current" symlink alongside it.
func fcreate(tag string, now time.Time) (file *os.File, fname string, err error) {
	dir := logDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", err
	}
	name, link := logfname(tag, now)
	fname = filepath.Join(dir, name)
	file, err = os.OpenFile(fname, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, "", err
	}
	linkname := filepath.Join(dir, link)
	os.Remove(linkname)
	os.Symlink(name, linkname)
	return file, fname, nil
}

func assert(cond bool) {
	if !cond {
		panic("nlog: assertion failed")
	}
}
